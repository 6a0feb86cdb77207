package syncer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nftScope/internal/adapter"
	"nftScope/internal/model"
)

// Provider is the external source of raw logs and canonical headers.
type Provider interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// RunConfig holds runtime settings for the sync orchestrator.
type RunConfig struct {
	BatchSize         uint64
	MaxRetries        int
	RetryBackoff      time.Duration
	PollInterval      time.Duration
	ReorgDepth        int
	CheckpointDir     string
	CheckpointEnabled bool
}

// Runner drives contract adapters over block ranges: historical backfill and
// live tail with reorg rollback. Adapters advance independently; the one
// ordering the runner enforces is that every FixCallback for an orphaned hash
// commits before any SyncCallback re-ingests the corrected segment.
type Runner struct {
	cfg      RunConfig
	provider Provider
	adapters []adapter.Adapter
	logger   *zap.Logger
	window   *HashWindow
}

func NewRunner(cfg RunConfig, provider Provider, adapters []adapter.Adapter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		provider: provider,
		adapters: adapters,
		logger:   logger,
		window:   NewHashWindow(cfg.ReorgDepth),
	}
}

// Backfill replays the inclusive historical range through every adapter with
// the backfill flag set, so maker fan-out stays suppressed. Each adapter runs
// as its own worker and resumes from its own checkpoint.
func (r *Runner) Backfill(ctx context.Context, from, to uint64) error {
	if err := r.validate(); err != nil {
		return err
	}
	if to < from {
		return fmt.Errorf("to block must be >= from block")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.adapters {
		a := a
		g.Go(func() error {
			return r.backfillAdapter(gctx, a, from, to)
		})
	}
	return g.Wait()
}

func (r *Runner) backfillAdapter(ctx context.Context, a adapter.Adapter, from, to uint64) error {
	logger := r.logger.With(zap.String("adapter", a.Name()))
	checkpoint := r.checkpointFor("backfill-" + a.Name())

	cp, ok, err := checkpoint.Load()
	if err != nil {
		return err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		logger.Info("resume backfill from checkpoint", zap.Uint64("from", from))
	}
	if from > to {
		logger.Info("nothing to backfill", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	filter := a.Filter()
	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		records, err := r.fetchRecords(ctx, blockRange, filter, nil)
		if err != nil {
			return err
		}
		promLogsFetched.WithLabelValues(a.Name()).Add(float64(len(records)))

		if err := a.SyncCallback(ctx, records, true); err != nil {
			return fmt.Errorf("sync %s [%d..%d]: %w", a.Name(), blockRange.From, blockRange.To, err)
		}

		if err := checkpoint.Save(blockRange.To); err != nil {
			return err
		}
		logger.Info("backfill batch complete",
			zap.Int("logs", len(records)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	return nil
}

// Live tails the chain head: detect orphaned blocks first, roll them back
// through every adapter, then ingest the next range. The cursor only advances
// after every adapter committed the range.
func (r *Runner) Live(ctx context.Context, startBlock uint64) error {
	if err := r.validate(); err != nil {
		return err
	}

	checkpoint := r.checkpointFor("live")
	cursor, err := r.initialCursor(ctx, checkpoint, startBlock)
	if err != nil {
		return err
	}
	r.logger.Info("live tail start", zap.Uint64("cursor", cursor))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fork, orphaned, err := r.detectOrphans(ctx, cursor)
		if err != nil {
			return fmt.Errorf("detect reorg: %w", err)
		}
		if len(orphaned) > 0 {
			promReorgsDetected.Inc()
			promOrphanedBlocks.Add(float64(len(orphaned)))
			r.logger.Warn("reorg detected",
				zap.Uint64("fork", fork),
				zap.Int("orphaned_blocks", len(orphaned)),
			)
			// Rollback must commit before any re-ingest of the corrected
			// segment; a failure here halts progress rather than risking
			// phantom events.
			if err := r.fixAll(ctx, orphaned); err != nil {
				return fmt.Errorf("reorg rollback: %w", err)
			}
			r.window.Rollback(fork)
			cursor = fork - 1
		}

		latest, err := r.latestWithRetry(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		if latest <= cursor {
			if err := r.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		to := latest
		if to > cursor+r.cfg.BatchSize {
			to = cursor + r.cfg.BatchSize
		}
		blockRange := BlockRange{From: cursor + 1, To: to}

		timestamps, err := r.observeHeaders(ctx, blockRange)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, a := range r.adapters {
			a := a
			g.Go(func() error {
				records, err := r.fetchRecords(gctx, blockRange, a.Filter(), timestamps)
				if err != nil {
					return err
				}
				promLogsFetched.WithLabelValues(a.Name()).Add(float64(len(records)))
				if err := a.SyncCallback(gctx, records, false); err != nil {
					return fmt.Errorf("sync %s [%d..%d]: %w", a.Name(), blockRange.From, blockRange.To, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		cursor = to
		promBlocksProcessed.Add(float64(blockRange.To - blockRange.From + 1))
		if err := checkpoint.Save(cursor); err != nil {
			return err
		}
		r.logger.Info("live batch complete", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		if to == latest {
			if err := r.sleep(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) validate() error {
	if r.provider == nil {
		return fmt.Errorf("provider is nil")
	}
	if len(r.adapters) == 0 {
		return fmt.Errorf("at least one adapter is required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}

func (r *Runner) initialCursor(ctx context.Context, checkpoint *CheckpointStore, startBlock uint64) (uint64, error) {
	cp, ok, err := checkpoint.Load()
	if err != nil {
		return 0, err
	}
	if ok {
		return cp.LastProcessedBlock, nil
	}
	if startBlock > 0 {
		return startBlock - 1, nil
	}
	latest, err := r.latestWithRetry(ctx)
	if err != nil {
		return 0, fmt.Errorf("get latest block: %w", err)
	}
	return latest, nil
}

// detectOrphans walks back from the cursor comparing recorded hashes against
// the chain's current canonical headers, collecting every orphaned hash down
// to the fork point.
func (r *Runner) detectOrphans(ctx context.Context, cursor uint64) (uint64, []string, error) {
	fork := cursor + 1
	var orphaned []string

	low := uint64(1)
	if cursor > uint64(r.cfg.ReorgDepth) {
		low = cursor - uint64(r.cfg.ReorgDepth) + 1
	}
	for height := cursor; height >= low; height-- {
		stored, ok := r.window.Hash(height)
		if !ok {
			break
		}
		header, err := r.headerWithRetry(ctx, height)
		if err != nil {
			return 0, nil, err
		}
		if stored == strings.ToLower(header.Hash().Hex()) {
			break
		}
		orphaned = append(orphaned, stored)
		fork = height
	}

	return fork, orphaned, nil
}

// fixAll runs FixCallback for every adapter for every orphaned hash. Any
// failure aborts: re-ingestion must not start over a half-rolled-back store.
func (r *Runner) fixAll(ctx context.Context, orphaned []string) error {
	for _, blockHash := range orphaned {
		for _, a := range r.adapters {
			if err := a.FixCallback(ctx, blockHash); err != nil {
				return fmt.Errorf("fix %s for %s: %w", a.Name(), blockHash, err)
			}
		}
	}
	return nil
}

// observeHeaders records canonical hashes for the range into the reorg window
// and returns the block timestamps for log transformation.
func (r *Runner) observeHeaders(ctx context.Context, blockRange BlockRange) (map[uint64]uint64, error) {
	timestamps := make(map[uint64]uint64, blockRange.To-blockRange.From+1)
	for height := blockRange.From; height <= blockRange.To; height++ {
		header, err := r.headerWithRetry(ctx, height)
		if err != nil {
			return nil, err
		}
		r.window.Observe(height, header.Hash().Hex())
		timestamps[height] = header.Time
	}
	return timestamps, nil
}

// fetchRecords pulls the adapter's logs for the range and normalizes them.
// timestamps may be nil (backfill); missing entries fall back to the
// provider's header cache.
func (r *Runner) fetchRecords(ctx context.Context, blockRange BlockRange, filter adapter.Filter, timestamps map[uint64]uint64) ([]model.LogRecord, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.provider.FilterLogs(ctx, blockRange.From, blockRange.To, filter.Addresses, filter.Topics)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}

	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		ts, ok := timestamps[log.BlockNumber]
		if !ok {
			ts, err = r.timestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
		}
		records = append(records, buildLogRecord(log, ts))
	}
	return records, nil
}

func (r *Runner) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = r.provider.LatestBlockNumber(ctx)
		return err
	})
	return latest, err
}

func (r *Runner) headerWithRetry(ctx context.Context, height uint64) (*types.Header, error) {
	var header *types.Header
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		header, err = r.provider.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
		if err != nil {
			r.logger.Warn("header fetch failed", zap.Error(err), zap.Uint64("block_number", height))
		}
		return err
	})
	return header, err
}

func (r *Runner) timestampWithRetry(ctx context.Context, height uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.provider.BlockTimestamp(ctx, height)
		return err
	})
	return ts, err
}

func (r *Runner) checkpointFor(name string) *CheckpointStore {
	path := filepath.Join(r.cfg.CheckpointDir, name+".json")
	return NewCheckpointStore(path, r.cfg.CheckpointEnabled)
}

func (r *Runner) sleep(ctx context.Context) error {
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
