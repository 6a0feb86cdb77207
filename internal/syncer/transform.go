package syncer

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"nftScope/internal/model"
)

// buildLogRecord normalizes a provider log. Hex fields come out lowercase:
// the dedup key and address comparisons rely on it.
func buildLogRecord(log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, strings.ToLower(topic.Hex()))
	}

	return model.LogRecord{
		BlockNumber: log.BlockNumber,
		BlockHash:   strings.ToLower(log.BlockHash.Hex()),
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     strings.ToLower(log.Address.Hex()),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}
