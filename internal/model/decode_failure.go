package model

// Decode failure reasons.
const (
	ReasonUnparseable = "unparseable"
	ReasonNoTopic     = "missing topic0"
	ReasonMalformed   = "malformed metadata"
)

// DecodeFailure records a log that could not be decoded, with enough identity
// and raw payload to diagnose. It is a value, not an error: decoders never
// raise past their boundary, so a batch of logs can yield partial success.
type DecodeFailure struct {
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Data        string `json:"data"`
	Reason      string `json:"reason"`
}

// FailureFor captures the identity of an undecodable log.
func FailureFor(log LogRecord, reason string) DecodeFailure {
	return DecodeFailure{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		Topic0:      log.Topic0(),
		Data:        log.Data,
		Reason:      reason,
	}
}
