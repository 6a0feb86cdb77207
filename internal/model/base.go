package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMalformedLog marks a provider-contract violation: a log missing the
// metadata every delivered log is required to carry. It aborts processing of
// that single log only.
var ErrMalformedLog = errors.New("malformed log")

// BaseEventParams is the canonical per-event envelope attached to every
// decoded event. (BlockHash, TxHash, LogIndex) is the dedup key: two
// deliveries of the same log collapse to one stored row.
type BaseEventParams struct {
	ContractAddress string `json:"contract_address"`
	Block           uint64 `json:"block"`
	BlockHash       string `json:"block_hash"`
	TxHash          string `json:"tx_hash"`
	TxIndex         uint64 `json:"tx_index"`
	LogIndex        uint64 `json:"log_index"`
	Timestamp       uint64 `json:"timestamp"`
}

// ExtractBaseParams builds the event envelope from a normalized log. Hex
// fields come out lowercase.
func ExtractBaseParams(log LogRecord) (BaseEventParams, error) {
	if err := checkHash("block hash", log.BlockHash); err != nil {
		return BaseEventParams{}, err
	}
	if err := checkHash("tx hash", log.TxHash); err != nil {
		return BaseEventParams{}, err
	}
	if log.Address == "" {
		return BaseEventParams{}, fmt.Errorf("%w: missing address", ErrMalformedLog)
	}

	return BaseEventParams{
		ContractAddress: strings.ToLower(log.Address),
		Block:           log.BlockNumber,
		BlockHash:       strings.ToLower(log.BlockHash),
		TxHash:          strings.ToLower(log.TxHash),
		TxIndex:         log.TxIndex,
		LogIndex:        log.LogIndex,
		Timestamp:       log.Timestamp,
	}, nil
}

func checkHash(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformedLog, name)
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return fmt.Errorf("%w: invalid %s %q: %v", ErrMalformedLog, name, value, err)
	}
	if len(data) != 32 {
		return fmt.Errorf("%w: %s length %d", ErrMalformedLog, name, len(data))
	}
	return nil
}
