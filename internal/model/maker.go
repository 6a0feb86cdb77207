package model

import "fmt"

// Order sides as seen by the revalidation consumer.
const (
	SideSell = "sell"
	SideBuy  = "buy"
)

// MakerInfo tells the order-revalidation consumer that a maker's
// order-relevant state (holdings or approvals) may have changed. Context is
// the consumer-side dedup key.
type MakerInfo struct {
	Context       string `json:"context"`
	Side          string `json:"side"`
	Maker         string `json:"maker"`
	Contract      string `json:"contract"`
	TokenId       string `json:"tokenId,omitempty"`
	Operator      string `json:"operator,omitempty"`
	Approved      *bool  `json:"approved,omitempty"`
	CheckApproval bool   `json:"checkApproval,omitempty"`
}

// MakerContext derives the dedup/correlation key for maker updates spawned by
// the given log.
func MakerContext(base BaseEventParams) string {
	return fmt.Sprintf("%s-%d", base.TxHash, base.LogIndex)
}
