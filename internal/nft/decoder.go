package nft

import (
	"errors"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftScope/internal/model"
)

// DecodedLog is the typed result of decoding one raw log: at most one event
// variant plus the maker updates it spawns.
type DecodedLog struct {
	Transfer *model.NftTransferEvent
	Approval *model.NftApprovalEvent
	Cancel   *model.CancelEvent
	Makers   []model.MakerInfo
}

// DecodeFunc attempts one structural interpretation of a raw log. An error
// means the log does not match this interpretation; the registry then moves
// on to the next attempt.
type DecodeFunc func(log model.LogRecord, base model.BaseEventParams) (DecodedLog, error)

// Registry dispatches raw logs by topic0 to an ordered list of decode
// attempts. Attempts registered first win; fallback tables go after their
// primary. Populated once at startup, read-only afterwards.
type Registry struct {
	attempts map[string][]DecodeFunc
}

func NewRegistry() *Registry {
	return &Registry{attempts: make(map[string][]DecodeFunc)}
}

// Register appends a decode attempt for the given signature topic.
func (r *Registry) Register(topic common.Hash, fn DecodeFunc) {
	key := strings.ToLower(topic.Hex())
	r.attempts[key] = append(r.attempts[key], fn)
}

// Topics lists every registered signature topic, for building log filters.
func (r *Registry) Topics() []common.Hash {
	keys := make([]string, 0, len(r.attempts))
	for key := range r.attempts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	topics := make([]common.Hash, 0, len(keys))
	for _, key := range keys {
		data, err := hexutil.Decode(key)
		if err != nil {
			continue
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics
}

// Decode maps a raw log to its typed variant. It never panics or propagates
// an error: a log that cannot be decoded comes back as a DecodeFailure value
// so one bad log cannot poison a batch.
func (r *Registry) Decode(log model.LogRecord) (DecodedLog, *model.DecodeFailure) {
	topic0 := log.Topic0()
	if topic0 == "" {
		failure := model.FailureFor(log, model.ReasonNoTopic)
		return DecodedLog{}, &failure
	}

	base, err := model.ExtractBaseParams(log)
	if err != nil {
		failure := model.FailureFor(log, model.ReasonMalformed)
		return DecodedLog{}, &failure
	}

	fns, ok := r.attempts[strings.ToLower(topic0)]
	if !ok {
		failure := model.FailureFor(log, model.ReasonUnparseable)
		return DecodedLog{}, &failure
	}

	var lastErr error
	for _, fn := range fns {
		decoded, err := fn(log, base)
		if err == nil {
			return decoded, nil
		}
		lastErr = err
	}

	reason := model.ReasonUnparseable
	if lastErr != nil && errors.Is(lastErr, model.ErrMalformedLog) {
		reason = model.ReasonMalformed
	}
	failure := model.FailureFor(log, reason)
	return DecodedLog{}, &failure
}
