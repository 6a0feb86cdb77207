package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftScope/internal/model"
)

// Outbox is a Postgres-backed MakerQueue. Rows are unique per
// (context, maker, side) so redelivered batches insert nothing new, while the
// two per-transfer entries sharing one context both survive. The external
// consumer drains with Pending and acks with MarkDelivered; a crash between
// the two redelivers, which is the intended at-least-once behavior.
type Outbox struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *Outbox {
	return &Outbox{pool: pool}
}

// EnsureSchema creates the outbox table when missing.
func (o *Outbox) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS maker_updates (
  id           BIGSERIAL PRIMARY KEY,
  context      TEXT NOT NULL,
  maker        TEXT NOT NULL,
  side         TEXT NOT NULL,
  payload      JSONB NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
  delivered_at TIMESTAMPTZ NULL,
  UNIQUE (context, maker, side)
);

CREATE INDEX IF NOT EXISTS maker_updates_pending_idx
  ON maker_updates (created_at) WHERE delivered_at IS NULL;
`
	_, err := o.pool.Exec(ctx, ddl)
	return err
}

func (o *Outbox) Enqueue(ctx context.Context, items []model.MakerInfo) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal maker info %s: %w", item.Context, err)
		}
		batch.Queue(`
			INSERT INTO maker_updates (context, maker, side, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (context, maker, side) DO NOTHING
		`, item.Context, item.Maker, item.Side, payload)
	}

	br := o.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range items {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PendingUpdate is an undelivered outbox row.
type PendingUpdate struct {
	ID   int64
	Info model.MakerInfo
}

// Pending returns up to limit undelivered maker updates, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]PendingUpdate, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := o.pool.Query(ctx, `
		SELECT id, payload FROM maker_updates
		WHERE delivered_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PendingUpdate
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var info model.MakerInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return nil, fmt.Errorf("unmarshal maker update %d: %w", id, err)
		}
		out = append(out, PendingUpdate{ID: id, Info: info})
	}
	return out, rows.Err()
}

// MarkDelivered acks processed updates.
func (o *Outbox) MarkDelivered(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := o.pool.Exec(ctx, `
		UPDATE maker_updates SET delivered_at = now()
		WHERE id = ANY($1) AND delivered_at IS NULL
	`, ids)
	return err
}
