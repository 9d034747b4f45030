package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/handlers"
	"github.com/trislit/BNB-Balloon-Pump-sub000/ledger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/queue"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
	"github.com/trislit/BNB-Balloon-Pump-sub000/routers"
)

const userAddr = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*models.PumpRequest
	idemKeys map[string]string
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{
		requests: make(map[string]*models.PumpRequest),
		idemKeys: make(map[string]string),
	}
}

func (m *memRequestRepo) PutRequest(req *models.PumpRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memRequestRepo) GetRequest(id string) (*models.PumpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memRequestRepo) ListPending(nowMillis int64, limit int) ([]*models.PumpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PumpRequest
	for _, req := range m.requests {
		if req.Status == models.RequestQueued && req.NextAttemptAt <= nowMillis {
			cp := *req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRequestRepo) CountUserRequestsSince(address string, since int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, req := range m.requests {
		if req.UserAddress == address && req.RequestedAt >= since {
			count++
		}
	}
	return count, nil
}

func (m *memRequestRepo) QueueCounts() (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var queued, inFlight int
	for _, req := range m.requests {
		switch req.Status {
		case models.RequestQueued:
			queued++
		case models.RequestInFlight:
			inFlight++
		}
	}
	return queued, inFlight, nil
}

func (m *memRequestRepo) ReserveIdempotencyKey(key, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.idemKeys[key]; ok {
		return repository.ErrDuplicateSubmission
	}
	m.idemKeys[key] = requestID
	return nil
}

type memRoundRepo struct {
	mu       sync.Mutex
	rounds   map[int64]*models.Round
	payouts  map[int64]*models.PayoutDistribution
	activeID int64
}

func newMemRoundRepo() *memRoundRepo {
	return &memRoundRepo{
		rounds:  make(map[int64]*models.Round),
		payouts: make(map[int64]*models.PayoutDistribution),
	}
}

func (m *memRoundRepo) PutRound(round *models.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *round
	m.rounds[round.ID] = &cp
	if round.Status == models.RoundActive {
		m.activeID = round.ID
	}
	return nil
}

func (m *memRoundRepo) GetRound(id int64) (*models.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoundRepo) GetActiveRound() (*models.Round, error) {
	m.mu.Lock()
	id := m.activeID
	m.mu.Unlock()
	if id == 0 {
		return nil, db.ErrNotFound
	}
	return m.GetRound(id)
}

func (m *memRoundRepo) CommitSettlement(ended, fresh *models.Round, payout *models.PayoutDistribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, f := *ended, *fresh
	m.rounds[ended.ID] = &e
	m.rounds[fresh.ID] = &f
	p := *payout
	m.payouts[payout.RoundID] = &p
	m.activeID = fresh.ID
	return nil
}

func (m *memRoundRepo) GetPayout(roundID int64) (*models.PayoutDistribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payouts[roundID]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

type memBalances struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newMemBalances() *memBalances {
	return &memBalances{balances: make(map[string]int64)}
}

func (m *memBalances) GetBalance(addr string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[addr], nil
}

func (m *memBalances) Credit(addr string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[addr] += amount
	return m.balances[addr], nil
}

func (m *memBalances) Debit(addr string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[addr] < amount {
		return m.balances[addr], repository.ErrInsufficientFunds
	}
	m.balances[addr] -= amount
	return m.balances[addr], nil
}

func newTestRouter(t *testing.T) (*mux.Router, *memRequestRepo, *memRoundRepo, *memBalances) {
	t.Helper()
	logger.Logger = zap.NewNop()

	requests := newMemRequestRepo()
	rounds := newMemRoundRepo()
	balances := newMemBalances()

	engine := ledger.NewLedger(rounds, balances, ledger.DefaultPolicy())
	if _, err := engine.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	q := queue.New(requests, nil, 3, 2*time.Second)
	h := handlers.NewHandler(q, engine, rounds, balances)

	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, nil)
	return r, requests, rounds, balances
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestSubmitPump_QueuesAndIsReadable(t *testing.T) {
	router, requests, _, _ := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/pump", map[string]interface{}{
		"user_address": userAddr,
		"stake_amount": 100,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := body["request_id"].(string)
	if id == "" {
		t.Fatalf("missing request_id in %v", body)
	}

	stored, err := requests.GetRequest(id)
	if err != nil {
		t.Fatalf("request not persisted: %v", err)
	}
	if stored.Status != models.RequestQueued {
		t.Fatalf("expected queued, got %s", stored.Status)
	}
	if stored.RoundIDHint != 1 {
		t.Fatalf("expected round hint 1, got %d", stored.RoundIDHint)
	}

	rec, body = doJSON(t, router, http.MethodGet, "/pump/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != string(models.RequestQueued) {
		t.Fatalf("unexpected status in %v", body)
	}
}

func TestSubmitPump_DuplicateIdempotencyKey(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	payload := map[string]interface{}{
		"user_address":    userAddr,
		"stake_amount":    100,
		"idempotency_key": "order-42",
	}
	if rec, _ := doJSON(t, router, http.MethodPost, "/pump", payload); rec.Code != http.StatusAccepted {
		t.Fatalf("first submission: expected 202, got %d", rec.Code)
	}
	rec, _ := doJSON(t, router, http.MethodPost, "/pump", payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replay: expected 409, got %d", rec.Code)
	}
}

func TestSubmitPump_BadPayloads(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/pump", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d", rec.Code)
	}

	rec2, _ := doJSON(t, router, http.MethodPost, "/pump", map[string]interface{}{"stake_amount": 100})
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("missing address: expected 400, got %d", rec2.Code)
	}
}

func TestGetPump_NotFound(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	rec, _ := doJSON(t, router, http.MethodGet, "/pump/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetState_ReturnsActiveRound(t *testing.T) {
	// /pump/state must win over /pump/{id}.
	router, _, _, _ := newTestRouter(t)
	rec, body := doJSON(t, router, http.MethodGet, "/pump/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["id"] != float64(1) {
		t.Fatalf("expected round 1, got %v", body["id"])
	}
	if body["status"] != string(models.RoundActive) {
		t.Fatalf("expected active round, got %v", body["status"])
	}
}

func TestQueueStatus_CountsByStatus(t *testing.T) {
	router, requests, _, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		requests.PutRequest(&models.PumpRequest{
			ID:          fmt.Sprintf("q-%d", i),
			UserAddress: userAddr,
			StakeAmount: 10,
			Status:      models.RequestQueued,
		})
	}
	requests.PutRequest(&models.PumpRequest{
		ID:          "f-0",
		UserAddress: userAddr,
		StakeAmount: 10,
		Status:      models.RequestInFlight,
	})

	rec, body := doJSON(t, router, http.MethodGet, "/queue/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["queued_count"] != float64(3) || body["in_flight_count"] != float64(1) {
		t.Fatalf("unexpected counts: %v", body)
	}
}

func TestDepositAndBalance(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rec, body := doJSON(t, router, http.MethodPost, "/balance/"+userAddr+"/deposit", map[string]interface{}{"amount": 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["balance"] != float64(500) {
		t.Fatalf("unexpected balance after deposit: %v", body)
	}

	rec, body = doJSON(t, router, http.MethodGet, "/balance/"+userAddr, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", rec.Code)
	}
	if body["balance"] != float64(500) {
		t.Fatalf("unexpected balance: %v", body)
	}
}

func TestDeposit_Rejections(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/balance/not-an-address/deposit", map[string]interface{}{"amount": 500})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address: expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, router, http.MethodPost, "/balance/"+userAddr+"/deposit", map[string]interface{}{"amount": -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount: expected 400, got %d", rec.Code)
	}
}

func TestRoundAndPayoutLookups(t *testing.T) {
	router, _, rounds, _ := newTestRouter(t)

	ended := &models.Round{ID: 7, Status: models.RoundEnded, Pot: 900, Threshold: 1000}
	fresh := &models.Round{ID: 8, Status: models.RoundActive, Threshold: 1000}
	payout := &models.PayoutDistribution{RoundID: 7, Winner: userAddr, WinnerAmount: 900, TotalPot: 900}
	if err := rounds.CommitSettlement(ended, fresh, payout); err != nil {
		t.Fatalf("seed settlement: %v", err)
	}

	rec, body := doJSON(t, router, http.MethodGet, "/rounds/7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("round: expected 200, got %d", rec.Code)
	}
	if body["status"] != string(models.RoundEnded) {
		t.Fatalf("unexpected round body: %v", body)
	}

	rec, body = doJSON(t, router, http.MethodGet, "/rounds/7/payout", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payout: expected 200, got %d", rec.Code)
	}
	if body["winner"] != userAddr || body["total_pot"] != float64(900) {
		t.Fatalf("unexpected payout body: %v", body)
	}

	if rec, _ := doJSON(t, router, http.MethodGet, "/rounds/99", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing round: expected 404, got %d", rec.Code)
	}
	if rec, _ := doJSON(t, router, http.MethodGet, "/rounds/1/payout", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing payout: expected 404, got %d", rec.Code)
	}
	if rec, _ := doJSON(t, router, http.MethodGet, "/rounds/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	rec, body := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", rec.Code, body)
	}
}
