package repository_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
)

const testAddr = "0xcccccccccccccccccccccccccccccccccccccccc"

func openTestDB(t *testing.T) *db.LevelDB {
	t.Helper()
	store, err := db.NewLevelDB(t.TempDir())
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func queuedRequest(seq int, address string, requestedAt int64) *models.PumpRequest {
	return &models.PumpRequest{
		ID:          fmt.Sprintf("%020d-test", seq),
		UserAddress: address,
		StakeAmount: 100,
		Status:      models.RequestQueued,
		RequestedAt: requestedAt,
		UpdatedAt:   requestedAt,
	}
}

func TestRequestRepository_PutGetRoundTrip(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))

	req := queuedRequest(1, testAddr, 1000)
	req.LastError = "transient glitch"
	req.RetryCount = 2
	if err := repo.PutRequest(req); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetRequest(req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserAddress != testAddr || got.RetryCount != 2 || got.LastError != "transient glitch" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := repo.GetRequest("missing"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestRepository_ListPendingIsFIFO(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))

	// Inserted out of order; the timestamp-prefixed IDs define the order.
	for _, seq := range []int{3, 1, 2} {
		if err := repo.PutRequest(queuedRequest(seq, testAddr, int64(seq))); err != nil {
			t.Fatalf("put %d: %v", seq, err)
		}
	}

	pending, err := repo.ListPending(time.Now().UnixMilli(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, req := range pending {
		want := fmt.Sprintf("%020d-test", i+1)
		if req.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, req.ID)
		}
	}

	limited, err := repo.ListPending(time.Now().UnixMilli(), 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited))
	}
}

func TestRequestRepository_ListPendingSkipsFutureAttempts(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))
	now := time.Now().UnixMilli()

	ready := queuedRequest(1, testAddr, now)
	delayed := queuedRequest(2, testAddr, now)
	delayed.NextAttemptAt = now + 60_000
	for _, req := range []*models.PumpRequest{ready, delayed} {
		if err := repo.PutRequest(req); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	pending, err := repo.ListPending(now, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != ready.ID {
		t.Fatalf("expected only the ready request, got %+v", pending)
	}

	pending, err = repo.ListPending(now+61_000, 10)
	if err != nil {
		t.Fatalf("list after delay: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both after the delay passed, got %d", len(pending))
	}
}

func TestRequestRepository_StatusTransitionsMoveIndexes(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))

	req := queuedRequest(1, testAddr, 1000)
	if err := repo.PutRequest(req); err != nil {
		t.Fatalf("put queued: %v", err)
	}
	queued, inFlight, err := repo.QueueCounts()
	if err != nil || queued != 1 || inFlight != 0 {
		t.Fatalf("after enqueue: queued=%d inFlight=%d err=%v", queued, inFlight, err)
	}

	req.Status = models.RequestInFlight
	if err := repo.PutRequest(req); err != nil {
		t.Fatalf("put in-flight: %v", err)
	}
	queued, inFlight, _ = repo.QueueCounts()
	if queued != 0 || inFlight != 1 {
		t.Fatalf("after flip: queued=%d inFlight=%d", queued, inFlight)
	}

	req.Status = models.RequestConfirmed
	if err := repo.PutRequest(req); err != nil {
		t.Fatalf("put confirmed: %v", err)
	}
	queued, inFlight, _ = repo.QueueCounts()
	if queued != 0 || inFlight != 0 {
		t.Fatalf("after confirm: queued=%d inFlight=%d", queued, inFlight)
	}

	// The row itself is never deleted.
	if _, err := repo.GetRequest(req.ID); err != nil {
		t.Fatalf("confirmed row gone: %v", err)
	}
	pending, _ := repo.ListPending(time.Now().UnixMilli(), 10)
	if len(pending) != 0 {
		t.Fatalf("confirmed request still pending: %+v", pending)
	}
}

func TestRequestRepository_CountUserRequestsSince(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))
	other := "0xdddddddddddddddddddddddddddddddddddddddd"
	now := time.Now().UnixMilli()

	for i, ts := range []int64{now - 90_000, now - 30_000, now - 5_000} {
		if err := repo.PutRequest(queuedRequest(i+1, testAddr, ts)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := repo.PutRequest(queuedRequest(9, other, now)); err != nil {
		t.Fatalf("put other: %v", err)
	}

	count, err := repo.CountUserRequestsSince(testAddr, now-60_000)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 inside window, got %d", count)
	}

	// Status transitions keep the history row, so the window survives them.
	req, _ := repo.GetRequest(fmt.Sprintf("%020d-test", 3))
	req.Status = models.RequestConfirmed
	if err := repo.PutRequest(req); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	count, _ = repo.CountUserRequestsSince(testAddr, now-60_000)
	if count != 2 {
		t.Fatalf("expected count unchanged after confirm, got %d", count)
	}
}

func TestRequestRepository_ReserveIdempotencyKey(t *testing.T) {
	repo := repository.NewRequestRepository(openTestDB(t))

	if err := repo.ReserveIdempotencyKey("order-1", "req-a"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	err := repo.ReserveIdempotencyKey("order-1", "req-b")
	if !errors.Is(err, repository.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
	if err := repo.ReserveIdempotencyKey("order-2", "req-c"); err != nil {
		t.Fatalf("distinct key rejected: %v", err)
	}
}

func TestRoundRepository_ActivePointer(t *testing.T) {
	repo := repository.NewRoundRepository(openTestDB(t))

	if _, err := repo.GetActiveRound(); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("empty store: expected ErrNotFound, got %v", err)
	}

	round := &models.Round{ID: 1, Status: models.RoundActive, Threshold: 1000}
	if err := repo.PutRound(round); err != nil {
		t.Fatalf("put: %v", err)
	}
	active, err := repo.GetActiveRound()
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != 1 {
		t.Fatalf("expected active round 1, got %d", active.ID)
	}
}

func TestRoundRepository_CommitSettlement(t *testing.T) {
	repo := repository.NewRoundRepository(openTestDB(t))

	first := &models.Round{ID: 1, Status: models.RoundActive, Pressure: 1100, Pot: 1078, Threshold: 1000}
	if err := repo.PutRound(first); err != nil {
		t.Fatalf("put: %v", err)
	}

	ended := *first
	ended.Status = models.RoundEnded
	fresh := &models.Round{ID: 2, Status: models.RoundActive, Threshold: 1000}
	payout := &models.PayoutDistribution{
		RoundID:      1,
		Winner:       testAddr,
		WinnerAmount: 1078,
		TotalPot:     1078,
	}
	if err := repo.CommitSettlement(&ended, fresh, payout); err != nil {
		t.Fatalf("commit: %v", err)
	}

	active, err := repo.GetActiveRound()
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active.ID != 2 || active.Status != models.RoundActive {
		t.Fatalf("active pointer did not move: %+v", active)
	}
	if active.Pressure != 0 || active.Pot != 0 {
		t.Fatalf("fresh round not reset: %+v", active)
	}

	old, err := repo.GetRound(1)
	if err != nil {
		t.Fatalf("get ended: %v", err)
	}
	if old.Status != models.RoundEnded {
		t.Fatalf("round 1 not ended: %+v", old)
	}

	got, err := repo.GetPayout(1)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if got.Winner != testAddr || got.TotalPot != 1078 {
		t.Fatalf("payout mismatch: %+v", got)
	}
	if _, err := repo.GetPayout(2); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected no payout for active round, got %v", err)
	}
}

func TestBalanceRepository_CreditDebit(t *testing.T) {
	repo := repository.NewBalanceRepository(openTestDB(t))

	bal, err := repo.GetBalance(testAddr)
	if err != nil || bal != 0 {
		t.Fatalf("unknown address: expected 0, got %d (%v)", bal, err)
	}

	if bal, err = repo.Credit(testAddr, 500); err != nil || bal != 500 {
		t.Fatalf("credit: expected 500, got %d (%v)", bal, err)
	}
	if bal, err = repo.Debit(testAddr, 200); err != nil || bal != 300 {
		t.Fatalf("debit: expected 300, got %d (%v)", bal, err)
	}

	if _, err = repo.Debit(testAddr, 1000); !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if bal, _ = repo.GetBalance(testAddr); bal != 300 {
		t.Fatalf("failed debit must not change balance, got %d", bal)
	}
}
