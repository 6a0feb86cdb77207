package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftScope/internal/model"
)

const (
	tableTransfers = "nft_transfer_events"
	tableApprovals = "nft_approval_events"
	tableCancels   = "cancel_events"
)

// Store is the Postgres EventStore. Inserts conflict-ignore on the
// (block_hash, tx_hash, log_index) primary key, so redelivered logs collapse
// to one row. Adds and reorg removals touching the same (table, block hash)
// serialize on advisory xact locks: a rollback racing a late add for an
// orphaned block cannot resurrect deleted rows.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the event tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS nft_transfer_events (
  contract_address TEXT NOT NULL,
  block_number     BIGINT NOT NULL,
  block_hash       TEXT NOT NULL,
  tx_hash          TEXT NOT NULL,
  tx_index         INT NOT NULL,
  log_index        INT NOT NULL,
  "timestamp"      BIGINT NOT NULL,
  from_address     TEXT NOT NULL,
  to_address       TEXT NOT NULL,
  token_id         NUMERIC(78,0) NOT NULL,
  amount           NUMERIC(78,0) NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (block_hash, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS nft_approval_events (
  contract_address TEXT NOT NULL,
  block_number     BIGINT NOT NULL,
  block_hash       TEXT NOT NULL,
  tx_hash          TEXT NOT NULL,
  tx_index         INT NOT NULL,
  log_index        INT NOT NULL,
  "timestamp"      BIGINT NOT NULL,
  owner_address    TEXT NOT NULL,
  operator_address TEXT NOT NULL,
  approved         BOOLEAN NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (block_hash, tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS cancel_events (
  contract_address TEXT NOT NULL,
  block_number     BIGINT NOT NULL,
  block_hash       TEXT NOT NULL,
  tx_hash          TEXT NOT NULL,
  tx_index         INT NOT NULL,
  log_index        INT NOT NULL,
  "timestamp"      BIGINT NOT NULL,
  address          TEXT NOT NULL,
  order_kind       TEXT NOT NULL,
  order_id         TEXT NOT NULL,
  created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (block_hash, tx_hash, log_index)
);
`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// AddBatch persists one invocation's events of every kind inside a single
// transaction, so a failure never leaves some kinds visible and others not.
func (s *Store) AddBatch(ctx context.Context, transfers []model.NftTransferEvent, approvals []model.NftApprovalEvent, cancels []model.CancelEvent) error {
	queued := len(transfers) + len(approvals) + len(cancels)
	if queued == 0 {
		return nil
	}

	keys := make([]string, 0, queued)
	batch := &pgx.Batch{}
	keys = append(keys, queueTransfers(batch, transfers)...)
	keys = append(keys, queueApprovals(batch, approvals)...)
	keys = append(keys, queueCancels(batch, cancels)...)

	return s.runLocked(ctx, dedupSorted(keys), batch, queued)
}

func (s *Store) AddTransfers(ctx context.Context, events []model.NftTransferEvent) error {
	return s.AddBatch(ctx, events, nil, nil)
}

func (s *Store) AddApprovals(ctx context.Context, events []model.NftApprovalEvent) error {
	return s.AddBatch(ctx, nil, events, nil)
}

func (s *Store) AddCancels(ctx context.Context, events []model.CancelEvent) error {
	return s.AddBatch(ctx, nil, nil, events)
}

// queueTransfers appends the insert statements to the batch and returns the
// advisory lock keys the rows need.
func queueTransfers(batch *pgx.Batch, events []model.NftTransferEvent) []string {
	keys := make([]string, 0, len(events))
	for _, event := range events {
		base := event.BaseParams
		keys = append(keys, lockKey(tableTransfers, base.BlockHash))
		batch.Queue(`
			INSERT INTO nft_transfer_events (
				contract_address, block_number, block_hash, tx_hash, tx_index, log_index,
				"timestamp", from_address, to_address, token_id, amount
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11::numeric)
			ON CONFLICT (block_hash, tx_hash, log_index) DO NOTHING
		`,
			base.ContractAddress,
			int64(base.Block),
			base.BlockHash,
			base.TxHash,
			int64(base.TxIndex),
			int64(base.LogIndex),
			int64(base.Timestamp),
			event.From,
			event.To,
			event.TokenId,
			event.Amount,
		)
	}
	return keys
}

func queueApprovals(batch *pgx.Batch, events []model.NftApprovalEvent) []string {
	keys := make([]string, 0, len(events))
	for _, event := range events {
		base := event.BaseParams
		keys = append(keys, lockKey(tableApprovals, base.BlockHash))
		batch.Queue(`
			INSERT INTO nft_approval_events (
				contract_address, block_number, block_hash, tx_hash, tx_index, log_index,
				"timestamp", owner_address, operator_address, approved
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (block_hash, tx_hash, log_index) DO NOTHING
		`,
			base.ContractAddress,
			int64(base.Block),
			base.BlockHash,
			base.TxHash,
			int64(base.TxIndex),
			int64(base.LogIndex),
			int64(base.Timestamp),
			event.Owner,
			event.Operator,
			event.Approved,
		)
	}
	return keys
}

func queueCancels(batch *pgx.Batch, events []model.CancelEvent) []string {
	keys := make([]string, 0, len(events))
	for _, event := range events {
		base := event.BaseParams
		keys = append(keys, lockKey(tableCancels, base.BlockHash))
		batch.Queue(`
			INSERT INTO cancel_events (
				contract_address, block_number, block_hash, tx_hash, tx_index, log_index,
				"timestamp", address, order_kind, order_id
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (block_hash, tx_hash, log_index) DO NOTHING
		`,
			base.ContractAddress,
			int64(base.Block),
			base.BlockHash,
			base.TxHash,
			int64(base.TxIndex),
			int64(base.LogIndex),
			int64(base.Timestamp),
			event.Address,
			event.OrderKind,
			event.OrderId,
		)
	}
	return keys
}

// RemoveByBlockHash deletes every event of every kind under the hash within
// one transaction and reports the total rows removed. Zero-match is fine.
func (s *Store) RemoveByBlockHash(ctx context.Context, blockHash string) (int64, error) {
	keys := []string{
		lockKey(tableCancels, blockHash),
		lockKey(tableApprovals, blockHash),
		lockKey(tableTransfers, blockHash),
	}
	sort.Strings(keys)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if err := acquireLocks(ctx, tx, keys); err != nil {
		return 0, err
	}

	var removed int64
	for _, table := range []string{tableTransfers, tableApprovals, tableCancels} {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE block_hash = $1`, table), blockHash)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", table, err)
		}
		removed += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return removed, nil
}

// runLocked executes the batch inside a transaction holding advisory locks
// for every (table, block hash) the batch touches.
func (s *Store) runLocked(ctx context.Context, keys []string, batch *pgx.Batch, queued int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := acquireLocks(ctx, tx, keys); err != nil {
		return err
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func acquireLocks(ctx context.Context, tx pgx.Tx, keys []string) error {
	for _, key := range keys {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}

func lockKey(table, blockHash string) string {
	return table + ":" + blockHash
}

// dedupSorted produces the distinct lock set for a batch in sorted order;
// sorted order keeps concurrent adds and removals deadlock-free.
func dedupSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
