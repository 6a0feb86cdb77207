package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nftScope/internal/model"
)

// MemoryStore is an in-memory EventStore with the same visibility semantics
// as the Postgres store. Used in tests and as a wiring substitute.
type MemoryStore struct {
	mu        sync.Mutex
	transfers map[string]model.NftTransferEvent
	approvals map[string]model.NftApprovalEvent
	cancels   map[string]model.CancelEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transfers: make(map[string]model.NftTransferEvent),
		approvals: make(map[string]model.NftApprovalEvent),
		cancels:   make(map[string]model.CancelEvent),
	}
}

func dedupKey(base model.BaseEventParams) string {
	return fmt.Sprintf("%s:%s:%d", strings.ToLower(base.BlockHash), strings.ToLower(base.TxHash), base.LogIndex)
}

// AddBatch stores every kind of one invocation under a single lock hold, so
// readers observe the whole batch or none of it.
func (s *MemoryStore) AddBatch(_ context.Context, transfers []model.NftTransferEvent, approvals []model.NftApprovalEvent, cancels []model.CancelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range transfers {
		key := dedupKey(event.BaseParams)
		if _, ok := s.transfers[key]; !ok {
			s.transfers[key] = event
		}
	}
	for _, event := range approvals {
		key := dedupKey(event.BaseParams)
		if _, ok := s.approvals[key]; !ok {
			s.approvals[key] = event
		}
	}
	for _, event := range cancels {
		key := dedupKey(event.BaseParams)
		if _, ok := s.cancels[key]; !ok {
			s.cancels[key] = event
		}
	}
	return nil
}

func (s *MemoryStore) AddTransfers(_ context.Context, events []model.NftTransferEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		key := dedupKey(event.BaseParams)
		if _, ok := s.transfers[key]; ok {
			continue
		}
		s.transfers[key] = event
	}
	return nil
}

func (s *MemoryStore) AddApprovals(_ context.Context, events []model.NftApprovalEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		key := dedupKey(event.BaseParams)
		if _, ok := s.approvals[key]; ok {
			continue
		}
		s.approvals[key] = event
	}
	return nil
}

func (s *MemoryStore) AddCancels(_ context.Context, events []model.CancelEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		key := dedupKey(event.BaseParams)
		if _, ok := s.cancels[key]; ok {
			continue
		}
		s.cancels[key] = event
	}
	return nil
}

func (s *MemoryStore) RemoveByBlockHash(_ context.Context, blockHash string) (int64, error) {
	hash := strings.ToLower(blockHash)
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, event := range s.transfers {
		if strings.ToLower(event.BaseParams.BlockHash) == hash {
			delete(s.transfers, key)
			removed++
		}
	}
	for key, event := range s.approvals {
		if strings.ToLower(event.BaseParams.BlockHash) == hash {
			delete(s.approvals, key)
			removed++
		}
	}
	for key, event := range s.cancels {
		if strings.ToLower(event.BaseParams.BlockHash) == hash {
			delete(s.cancels, key)
			removed++
		}
	}
	return removed, nil
}

// Transfers returns a snapshot of stored transfer events.
func (s *MemoryStore) Transfers() []model.NftTransferEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NftTransferEvent, 0, len(s.transfers))
	for _, event := range s.transfers {
		out = append(out, event)
	}
	return out
}

// Approvals returns a snapshot of stored approval events.
func (s *MemoryStore) Approvals() []model.NftApprovalEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.NftApprovalEvent, 0, len(s.approvals))
	for _, event := range s.approvals {
		out = append(out, event)
	}
	return out
}

// Cancels returns a snapshot of stored cancel events.
func (s *MemoryStore) Cancels() []model.CancelEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CancelEvent, 0, len(s.cancels))
	for _, event := range s.cancels {
		out = append(out, event)
	}
	return out
}
