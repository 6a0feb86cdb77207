package queue

import (
	"context"

	"nftScope/internal/model"
)

// MakerQueue delivers maker-update batches to the order-revalidation
// consumer. Delivery is at-least-once; the consumer dedups by Context.
type MakerQueue interface {
	Enqueue(ctx context.Context, items []model.MakerInfo) error
}
