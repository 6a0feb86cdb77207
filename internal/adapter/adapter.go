package adapter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"nftScope/internal/model"
)

// Filter scopes the logs an adapter wants from the provider.
type Filter struct {
	Addresses []common.Address
	Topics    []common.Hash
}

// Adapter is the uniform surface the orchestrator drives, one per supported
// contract family. The orchestrator stays decoder-agnostic: it fetches logs
// matching Filter, hands them to SyncCallback, and calls FixCallback for
// every block hash a reorg orphans — before re-ingesting the corrected
// segment.
type Adapter interface {
	Name() string
	Filter() Filter

	// SyncCallback decodes and persists a batch of logs. Per-log decode
	// failures are logged and skipped; a persistence error aborts the whole
	// invocation and is retryable. Maker updates are enqueued only when
	// backfill is false.
	SyncCallback(ctx context.Context, logs []model.LogRecord, backfill bool) error

	// FixCallback removes every event kind the adapter owns for an orphaned
	// block hash. Idempotent; an error here must halt the adapter's forward
	// progress.
	FixCallback(ctx context.Context, blockHash string) error
}
