package model

// NftTransferEvent is a single ownership movement. Amount is "1" for
// non-fungible transfers and may exceed 1 for semi-fungible ones; TokenId and
// Amount are decimal strings because token ids routinely exceed 64 bits.
type NftTransferEvent struct {
	TokenId    string          `json:"token_id"`
	From       string          `json:"from"`
	To         string          `json:"to"`
	Amount     string          `json:"amount"`
	BaseParams BaseEventParams `json:"base_params"`
}

// NftApprovalEvent is a blanket operator approval grant or revocation. It is
// not scoped to a token.
type NftApprovalEvent struct {
	Owner      string          `json:"owner"`
	Operator   string          `json:"operator"`
	Approved   bool            `json:"approved"`
	BaseParams BaseEventParams `json:"base_params"`
}

// CancelEvent records an on-chain order cancellation. Same dedup-key family
// as the NFT events.
type CancelEvent struct {
	Address    string          `json:"address"`
	OrderKind  string          `json:"order_kind"`
	OrderId    string          `json:"order_id"`
	BaseParams BaseEventParams `json:"base_params"`
}
