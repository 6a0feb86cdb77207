package queue

import (
	"context"
	"sync"

	"nftScope/internal/model"
)

// MemoryQueue is an in-process MakerQueue used in tests and as a wiring
// substitute.
type MemoryQueue struct {
	mu    sync.Mutex
	items []model.MakerInfo
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(_ context.Context, items []model.MakerInfo) error {
	if len(items) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return nil
}

// Items returns a snapshot of everything enqueued so far.
func (q *MemoryQueue) Items() []model.MakerInfo {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.MakerInfo, len(q.items))
	copy(out, q.items)
	return out
}
