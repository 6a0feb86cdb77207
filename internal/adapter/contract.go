package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"nftScope/internal/model"
	"nftScope/internal/nft"
	"nftScope/internal/queue"
	"nftScope/internal/store"
)

// Config wires a contract family's decoder registry to its store and queue.
type Config struct {
	Name      string
	Addresses []common.Address
	Registry  *nft.Registry
	Store     store.EventStore
	Queue     queue.MakerQueue
	Logger    *zap.Logger

	// AcceptOrders gates live fan-out independently of backfill mode. When
	// false, maker updates are suppressed even for live batches.
	AcceptOrders bool
}

// ContractAdapter binds decoder, store, and queue behind the Adapter
// interface for one contract family.
type ContractAdapter struct {
	name         string
	filter       Filter
	registry     *nft.Registry
	store        store.EventStore
	queue        queue.MakerQueue
	logger       *zap.Logger
	acceptOrders bool

	// undelivered maker updates from a failed enqueue, re-attempted ahead of
	// the next live batch
	mu      sync.Mutex
	pending []model.MakerInfo
}

func New(cfg Config) (*ContractAdapter, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ContractAdapter{
		name: cfg.Name,
		filter: Filter{
			Addresses: cfg.Addresses,
			Topics:    cfg.Registry.Topics(),
		},
		registry:     cfg.Registry,
		store:        cfg.Store,
		queue:        cfg.Queue,
		logger:       logger.With(zap.String("adapter", cfg.Name)),
		acceptOrders: cfg.AcceptOrders,
	}, nil
}

func (a *ContractAdapter) Name() string { return a.name }

func (a *ContractAdapter) Filter() Filter { return a.filter }

// SyncCallback decodes the batch in ascending (txIndex, logIndex) order,
// persists the invocation's events in a single store transaction, and, live
// only, enqueues maker updates. One undecodable log is skipped and logged,
// never dropping the batch.
func (a *ContractAdapter) SyncCallback(ctx context.Context, logs []model.LogRecord, backfill bool) error {
	if len(logs) == 0 {
		return nil
	}

	ordered := make([]model.LogRecord, len(logs))
	copy(ordered, logs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		if ordered[i].TxIndex != ordered[j].TxIndex {
			return ordered[i].TxIndex < ordered[j].TxIndex
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	var (
		transfers []model.NftTransferEvent
		approvals []model.NftApprovalEvent
		cancels   []model.CancelEvent
		makers    []model.MakerInfo
	)

	for _, log := range ordered {
		if log.Removed {
			// the provider already reverted this log; the reorg fix path
			// owns whatever was ingested under its block hash
			a.logger.Debug("skipping removed log",
				zap.Uint64("block_number", log.BlockNumber),
				zap.String("tx_hash", log.TxHash),
				zap.Uint64("log_index", log.LogIndex),
			)
			continue
		}

		decoded, failure := a.registry.Decode(log)
		if failure != nil {
			promDecodeFailures.WithLabelValues(a.name).Inc()
			a.logger.Warn("skipping undecodable log",
				zap.String("reason", failure.Reason),
				zap.Uint64("block_number", failure.BlockNumber),
				zap.String("tx_hash", failure.TxHash),
				zap.Uint64("log_index", failure.LogIndex),
				zap.String("address", failure.Address),
				zap.String("topic0", failure.Topic0),
				zap.String("data", failure.Data),
			)
			continue
		}

		if decoded.Transfer != nil {
			transfers = append(transfers, *decoded.Transfer)
			promDecodedEvents.WithLabelValues(a.name, "transfer").Inc()
		}
		if decoded.Approval != nil {
			approvals = append(approvals, *decoded.Approval)
			promDecodedEvents.WithLabelValues(a.name, "approval").Inc()
		}
		if decoded.Cancel != nil {
			cancels = append(cancels, *decoded.Cancel)
			promDecodedEvents.WithLabelValues(a.name, "cancel").Inc()
		}
		makers = append(makers, decoded.Makers...)
	}

	// one transaction per invocation: a failure must not leave some kinds
	// visible and others not
	if err := a.store.AddBatch(ctx, transfers, approvals, cancels); err != nil {
		return fmt.Errorf("add events: %w", err)
	}

	// Backfill must never trigger live order re-evaluation: replayed history
	// would be judged against the consumer's current-state view over and
	// over. Hard policy, not an optimization.
	if backfill || !a.acceptOrders {
		return nil
	}

	a.enqueueMakers(ctx, makers)
	return nil
}

// enqueueMakers delivers the batch's maker updates plus anything a previous
// failed enqueue left behind. Fan-out is decoupled from the already-committed
// persistence step: a failure is logged, the items are held back for the next
// live batch, and ingestion is never unwound. Enqueue is keyed by
// (context, maker, side), so re-attempts insert nothing twice.
func (a *ContractAdapter) enqueueMakers(ctx context.Context, makers []model.MakerInfo) {
	a.mu.Lock()
	queued := append(a.pending, makers...)
	a.pending = nil
	a.mu.Unlock()

	if len(queued) == 0 {
		return
	}

	if err := a.queue.Enqueue(ctx, queued); err != nil {
		a.mu.Lock()
		a.pending = append(queued, a.pending...)
		a.mu.Unlock()
		promMakerEnqueueErrors.WithLabelValues(a.name).Inc()
		a.logger.Warn("maker update enqueue failed, holding for next batch", zap.Error(err), zap.Int("items", len(queued)))
		return
	}
	promMakerEnqueued.WithLabelValues(a.name).Add(float64(len(queued)))
}

// FixCallback removes everything the adapter ingested under an orphaned block
// hash. Safe to call repeatedly for the same hash.
func (a *ContractAdapter) FixCallback(ctx context.Context, blockHash string) error {
	removed, err := a.store.RemoveByBlockHash(ctx, blockHash)
	if err != nil {
		return fmt.Errorf("remove by block hash %s: %w", blockHash, err)
	}
	if removed > 0 {
		promReorgRemovals.WithLabelValues(a.name).Add(float64(removed))
	}
	a.logger.Info("reorg rollback", zap.String("block_hash", blockHash), zap.Int64("removed", removed))
	return nil
}
