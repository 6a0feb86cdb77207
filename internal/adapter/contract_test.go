package adapter

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"nftScope/internal/model"
	"nftScope/internal/nft"
	"nftScope/internal/queue"
	"nftScope/internal/store"
)

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, []model.MakerInfo) error {
	return errors.New("sink down")
}

// flakyQueue fails the first n Enqueue calls, then delegates.
type flakyQueue struct {
	failures int
	inner    *queue.MemoryQueue
}

func (q *flakyQueue) Enqueue(ctx context.Context, items []model.MakerInfo) error {
	if q.failures > 0 {
		q.failures--
		return errors.New("sink down")
	}
	return q.inner.Enqueue(ctx, items)
}

// approvalRejectingStore fails any batch carrying approvals before writing
// anything.
type approvalRejectingStore struct {
	*store.MemoryStore
}

func (s *approvalRejectingStore) AddBatch(ctx context.Context, transfers []model.NftTransferEvent, approvals []model.NftApprovalEvent, cancels []model.CancelEvent) error {
	if len(approvals) > 0 {
		return errors.New("approvals rejected")
	}
	return s.MemoryStore.AddBatch(ctx, transfers, approvals, cancels)
}

func newTestAdapter(t *testing.T, acceptOrders bool, q queue.MakerQueue) (*ContractAdapter, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	return newTestAdapterWithStore(t, acceptOrders, q, memStore), memStore
}

func newTestAdapterWithStore(t *testing.T, acceptOrders bool, q queue.MakerQueue, s store.EventStore) *ContractAdapter {
	t.Helper()

	decoder, err := nft.NewErc721()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	registry := nft.NewRegistry()
	decoder.Register(registry)

	a, err := New(Config{
		Name:         "erc721",
		Addresses:    []common.Address{common.HexToAddress("0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6")},
		Registry:     registry,
		Store:        s,
		Queue:        q,
		Logger:       zap.NewNop(),
		AcceptOrders: acceptOrders,
	})
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return a
}

func transferTopic(t *testing.T) common.Hash {
	t.Helper()
	decoder, err := nft.NewErc721()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder.TransferTopic()
}

func approvalTopic(t *testing.T) common.Hash {
	t.Helper()
	decoder, err := nft.NewErc721()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	return decoder.ApprovalForAllTopic()
}

func transferLog(t *testing.T, blockHash string, logIndex uint64, tokenId int64) model.LogRecord {
	t.Helper()
	return model.LogRecord{
		BlockNumber: 17000000,
		BlockHash:   blockHash,
		TxHash:      "0x" + strings.Repeat("0b", 32),
		TxIndex:     1,
		LogIndex:    logIndex,
		Address:     "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6",
		Topics: []string{
			transferTopic(t).Hex(),
			common.BytesToHash(common.HexToAddress("0x2222222222222222222222222222222222222222").Bytes()).Hex(),
			common.BytesToHash(common.HexToAddress("0x3333333333333333333333333333333333333333").Bytes()).Hex(),
			common.BigToHash(big.NewInt(tokenId)).Hex(),
		},
		Data:      "0x",
		Timestamp: 1700000000,
	}
}

func approvalLog(t *testing.T, blockHash string, logIndex uint64, approved bool) model.LogRecord {
	t.Helper()
	word := make([]byte, 32)
	if approved {
		word[31] = 1
	}
	return model.LogRecord{
		BlockNumber: 17000000,
		BlockHash:   blockHash,
		TxHash:      "0x" + strings.Repeat("0b", 32),
		TxIndex:     1,
		LogIndex:    logIndex,
		Address:     "0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6",
		Topics: []string{
			approvalTopic(t).Hex(),
			common.BytesToHash(common.HexToAddress("0xAAA0000000000000000000000000000000000001").Bytes()).Hex(),
			common.BytesToHash(common.HexToAddress("0xBBB0000000000000000000000000000000000002").Bytes()).Hex(),
		},
		Data:      hexutil.Encode(word),
		Timestamp: 1700000000,
	}
}

func TestSyncCallbackPersistsAndFansOut(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	logs := []model.LogRecord{
		transferLog(t, blockHash, 0, 42),
		approvalLog(t, blockHash, 1, true),
	}

	if err := a.SyncCallback(ctx, logs, false); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("expected 1 transfer, got %d", got)
	}
	if got := len(memStore.Approvals()); got != 1 {
		t.Fatalf("expected 1 approval, got %d", got)
	}

	items := q.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 maker updates (2 transfer + 1 approval), got %d", len(items))
	}
	// observed fan-out tagging: both transfer parties ride the sell side
	for _, item := range items {
		if item.Side != model.SideSell {
			t.Fatalf("side mismatch: %+v", item)
		}
	}
	last := items[2]
	if !last.CheckApproval || last.Operator == "" || last.Approved == nil {
		t.Fatalf("approval maker update incomplete: %+v", last)
	}
}

func TestSyncCallbackPartialFailure(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	bad := transferLog(t, blockHash, 1, 43)
	bad.Topics = bad.Topics[:2] // neither the standard nor the legacy layout

	logs := []model.LogRecord{
		transferLog(t, blockHash, 0, 42),
		bad,
		transferLog(t, blockHash, 2, 44),
	}

	if err := a.SyncCallback(ctx, logs, false); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := len(memStore.Transfers()); got != 2 {
		t.Fatalf("expected 2 persisted transfers, got %d", got)
	}
}

func TestSyncCallbackBackfillSuppression(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	logs := []model.LogRecord{
		transferLog(t, blockHash, 0, 42),
		approvalLog(t, blockHash, 1, true),
	}

	if err := a.SyncCallback(ctx, logs, true); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("backfill must still persist events, got %d transfers", got)
	}
	if got := len(q.Items()); got != 0 {
		t.Fatalf("backfill must never enqueue maker updates, got %d", got)
	}
}

func TestSyncCallbackAcceptOrdersToggle(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, false, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	if err := a.SyncCallback(ctx, []model.LogRecord{transferLog(t, blockHash, 0, 42)}, false); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("expected persisted transfer, got %d", got)
	}
	if got := len(q.Items()); got != 0 {
		t.Fatalf("fan-out must stay suppressed while accept-orders is off, got %d", got)
	}
}

func TestSyncCallbackAtomicAcrossKinds(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	q := queue.NewMemoryQueue()
	a := newTestAdapterWithStore(t, true, q, &approvalRejectingStore{MemoryStore: mem})

	blockHash := "0x" + strings.Repeat("0a", 32)
	logs := []model.LogRecord{
		transferLog(t, blockHash, 0, 42),
		approvalLog(t, blockHash, 1, true),
	}

	if err := a.SyncCallback(ctx, logs, false); err == nil {
		t.Fatalf("expected the invocation to fail")
	}
	if got := len(mem.Transfers()); got != 0 {
		t.Fatalf("failed invocation must leave no kind visible, got %d transfers", got)
	}
	if got := len(q.Items()); got != 0 {
		t.Fatalf("uncommitted events must not fan out, got %d maker updates", got)
	}
}

func TestSyncCallbackEnqueueRetriedWithNextBatch(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyQueue{failures: 1, inner: queue.NewMemoryQueue()}
	a, memStore := newTestAdapter(t, true, flaky)

	blockHash := "0x" + strings.Repeat("0a", 32)
	if err := a.SyncCallback(ctx, []model.LogRecord{transferLog(t, blockHash, 0, 42)}, false); err != nil {
		t.Fatalf("sync with failing sink: %v", err)
	}
	if got := len(flaky.inner.Items()); got != 0 {
		t.Fatalf("failed enqueue must deliver nothing yet, got %d", got)
	}

	if err := a.SyncCallback(ctx, []model.LogRecord{transferLog(t, blockHash, 2, 43)}, false); err != nil {
		t.Fatalf("sync with recovered sink: %v", err)
	}

	items := flaky.inner.Items()
	if len(items) != 4 {
		t.Fatalf("expected the held-back updates plus the new batch (4 items), got %d", len(items))
	}
	if items[0].TokenId != "42" || items[2].TokenId != "43" {
		t.Fatalf("held-back updates must go out ahead of the new batch: %+v", items)
	}
	if got := len(memStore.Transfers()); got != 2 {
		t.Fatalf("expected 2 persisted transfers, got %d", got)
	}
}

func TestSyncCallbackSkipsRemovedLogs(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	log := transferLog(t, blockHash, 0, 42)
	log.Removed = true

	if err := a.SyncCallback(ctx, []model.LogRecord{log}, false); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := len(memStore.Transfers()); got != 0 {
		t.Fatalf("removed logs must not ingest, got %d transfers", got)
	}
	if got := len(q.Items()); got != 0 {
		t.Fatalf("removed logs must not fan out, got %d maker updates", got)
	}
}

func TestSyncCallbackQueueFailureDoesNotFailIngestion(t *testing.T) {
	ctx := context.Background()
	a, memStore := newTestAdapter(t, true, failingQueue{})

	blockHash := "0x" + strings.Repeat("0a", 32)
	if err := a.SyncCallback(ctx, []model.LogRecord{transferLog(t, blockHash, 0, 42)}, false); err != nil {
		t.Fatalf("enqueue failure must not fail the committed batch: %v", err)
	}
	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("expected persisted transfer, got %d", got)
	}
}

func TestSyncCallbackIdempotentRedelivery(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	blockHash := "0x" + strings.Repeat("0a", 32)
	logs := []model.LogRecord{transferLog(t, blockHash, 0, 42)}

	if err := a.SyncCallback(ctx, logs, false); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := a.SyncCallback(ctx, logs, false); err != nil {
		t.Fatalf("redelivered sync: %v", err)
	}
	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("redelivery must collapse to one row, got %d", got)
	}
}

func TestFixCallback(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue()
	a, memStore := newTestAdapter(t, true, q)

	orphaned := "0x" + strings.Repeat("0a", 32)
	canonical := "0x" + strings.Repeat("0c", 32)
	logs := []model.LogRecord{
		transferLog(t, orphaned, 0, 42),
		approvalLog(t, orphaned, 1, true),
		transferLog(t, canonical, 2, 43),
	}
	if err := a.SyncCallback(ctx, logs, true); err != nil {
		t.Fatalf("sync: %v", err)
	}

	if err := a.FixCallback(ctx, orphaned); err != nil {
		t.Fatalf("fix: %v", err)
	}
	if got := len(memStore.Transfers()); got != 1 {
		t.Fatalf("expected only the canonical transfer to survive, got %d", got)
	}
	if got := len(memStore.Approvals()); got != 0 {
		t.Fatalf("orphaned approvals must be removed, got %d", got)
	}

	// repeated rollback for the same hash is a no-op
	if err := a.FixCallback(ctx, orphaned); err != nil {
		t.Fatalf("repeated fix: %v", err)
	}
}

func TestFilterCoversRegisteredTopics(t *testing.T) {
	q := queue.NewMemoryQueue()
	a, _ := newTestAdapter(t, true, q)

	filter := a.Filter()
	if len(filter.Addresses) != 1 {
		t.Fatalf("expected 1 address, got %d", len(filter.Addresses))
	}
	if len(filter.Topics) != 2 {
		t.Fatalf("expected 2 signature topics (Transfer, ApprovalForAll), got %d", len(filter.Topics))
	}
}
