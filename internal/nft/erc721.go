package nft

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftScope/internal/model"
)

// Erc721 decodes ERC-721-family logs: the standard Transfer and
// ApprovalForAll signatures plus the legacy non-indexed-tokenId Transfer
// fallback. Both ABI tables are parsed once at construction and the instance
// is read-only afterwards.
type Erc721 struct {
	transfer       abi.Event
	legacyTransfer abi.Event
	approvalForAll abi.Event
}

func NewErc721() (*Erc721, error) {
	primary, err := parseABI(erc721ABIJSON)
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}
	legacy, err := parseABI(erc721LegacyABIJSON)
	if err != nil {
		return nil, fmt.Errorf("parse erc721 legacy abi: %w", err)
	}

	return &Erc721{
		transfer:       primary.Events["Transfer"],
		legacyTransfer: legacy.Events["Transfer"],
		approvalForAll: primary.Events["ApprovalForAll"],
	}, nil
}

// TransferTopic is the signature hash shared by the standard and legacy
// Transfer variants.
func (d *Erc721) TransferTopic() common.Hash { return d.transfer.ID }

// ApprovalForAllTopic is the ApprovalForAll signature hash.
func (d *Erc721) ApprovalForAllTopic() common.Hash { return d.approvalForAll.ID }

// Register wires the family's decode attempts into the registry. The legacy
// Transfer interpretation goes after the standard one so it is tried only
// when the standard decode fails structurally.
func (d *Erc721) Register(r *Registry) {
	r.Register(d.transfer.ID, d.decodeTransfer)
	r.Register(d.transfer.ID, d.decodeLegacyTransfer)
	r.Register(d.approvalForAll.ID, d.decodeApprovalForAll)
}

func (d *Erc721) decodeTransfer(log model.LogRecord, base model.BaseEventParams) (DecodedLog, error) {
	topics, err := indexedTopics(d.transfer, log.Topics)
	if err != nil {
		return DecodedLog{}, err
	}

	var indexed struct {
		From    common.Address
		To      common.Address
		TokenId *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.transfer.Inputs), topics); err != nil {
		return DecodedLog{}, fmt.Errorf("parse transfer topics: %w", err)
	}

	return d.buildTransfer(base, indexed.From, indexed.To, indexed.TokenId), nil
}

func (d *Erc721) decodeLegacyTransfer(log model.LogRecord, base model.BaseEventParams) (DecodedLog, error) {
	topics, err := indexedTopics(d.legacyTransfer, log.Topics)
	if err != nil {
		return DecodedLog{}, err
	}

	var indexed struct {
		From common.Address
		To   common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.legacyTransfer.Inputs), topics); err != nil {
		return DecodedLog{}, fmt.Errorf("parse legacy transfer topics: %w", err)
	}

	values, err := unpackNonIndexed(d.legacyTransfer, log.Data)
	if err != nil {
		return DecodedLog{}, err
	}
	if len(values) != 1 {
		return DecodedLog{}, fmt.Errorf("unexpected legacy transfer values: %d", len(values))
	}
	tokenId, err := asBigInt(values[0])
	if err != nil {
		return DecodedLog{}, err
	}

	return d.buildTransfer(base, indexed.From, indexed.To, tokenId), nil
}

// buildTransfer assembles the transfer variant and its two maker updates.
// Both sides are tagged "sell": either party's resting sell orders may have
// become valid or invalid with the balance change.
func (d *Erc721) buildTransfer(base model.BaseEventParams, from, to common.Address, tokenId *big.Int) DecodedLog {
	event := &model.NftTransferEvent{
		TokenId:    tokenId.String(),
		From:       lowerHex(from),
		To:         lowerHex(to),
		Amount:     "1",
		BaseParams: base,
	}

	context := model.MakerContext(base)
	makers := []model.MakerInfo{
		{
			Context:  context,
			Side:     model.SideSell,
			Maker:    event.From,
			Contract: base.ContractAddress,
			TokenId:  event.TokenId,
		},
		{
			Context:  context,
			Side:     model.SideSell,
			Maker:    event.To,
			Contract: base.ContractAddress,
			TokenId:  event.TokenId,
		},
	}

	return DecodedLog{Transfer: event, Makers: makers}
}

func (d *Erc721) decodeApprovalForAll(log model.LogRecord, base model.BaseEventParams) (DecodedLog, error) {
	topics, err := indexedTopics(d.approvalForAll, log.Topics)
	if err != nil {
		return DecodedLog{}, err
	}

	var indexed struct {
		Owner    common.Address
		Operator common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.approvalForAll.Inputs), topics); err != nil {
		return DecodedLog{}, fmt.Errorf("parse approval topics: %w", err)
	}

	values, err := unpackNonIndexed(d.approvalForAll, log.Data)
	if err != nil {
		return DecodedLog{}, err
	}
	if len(values) != 1 {
		return DecodedLog{}, fmt.Errorf("unexpected approval values: %d", len(values))
	}
	approved, ok := values[0].(bool)
	if !ok {
		return DecodedLog{}, fmt.Errorf("approved is not a bool: %T", values[0])
	}

	event := &model.NftApprovalEvent{
		Owner:      lowerHex(indexed.Owner),
		Operator:   lowerHex(indexed.Operator),
		Approved:   approved,
		BaseParams: base,
	}

	// checkApproval tells the consumer to re-check approval status rather
	// than balances.
	flag := approved
	makers := []model.MakerInfo{{
		Context:       model.MakerContext(base),
		Side:          model.SideSell,
		Maker:         event.Owner,
		Contract:      base.ContractAddress,
		Operator:      event.Operator,
		Approved:      &flag,
		CheckApproval: true,
	}}

	return DecodedLog{Approval: event, Makers: makers}, nil
}

func indexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("%s: expected %d topics, got %d", event.Name, indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	out, ok := value.(*big.Int)
	if !ok || out == nil {
		return nil, fmt.Errorf("not a big.Int: %T", value)
	}
	return out, nil
}

func lowerHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
