package store

import (
	"context"

	"nftScope/internal/model"
)

// EventStore persists decoded events idempotently, segregated by kind, keyed
// by (block_hash, tx_hash, log_index) so at-least-once delivery collapses to
// one visible row. There is no update-in-place: a changed on-chain fact is
// remove-then-re-add under a new block hash.
type EventStore interface {
	// AddBatch upserts one ingestion invocation's events of every kind in a
	// single transaction: either all of them become visible together or none
	// do. Empty slices are fine; an entirely empty batch is a no-op.
	AddBatch(ctx context.Context, transfers []model.NftTransferEvent, approvals []model.NftApprovalEvent, cancels []model.CancelEvent) error

	// AddTransfers upserts a batch of transfer events. Re-adding a stored
	// event is a no-op; an empty batch is a no-op. All-or-nothing per call.
	AddTransfers(ctx context.Context, events []model.NftTransferEvent) error

	// AddApprovals upserts a batch of approval events with the same
	// semantics as AddTransfers.
	AddApprovals(ctx context.Context, events []model.NftApprovalEvent) error

	// AddCancels upserts a batch of order-cancel events with the same
	// semantics as AddTransfers.
	AddCancels(ctx context.Context, events []model.CancelEvent) error

	// RemoveByBlockHash hard-deletes every stored event of every kind whose
	// block hash matches, returning the number of rows removed. It is the
	// only deletion path and exists for reorg rollback; calling it for an
	// unknown hash is safe and returns 0.
	RemoveByBlockHash(ctx context.Context, blockHash string) (int64, error)
}
