package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/ledger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/queue"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
	"github.com/trislit/BNB-Balloon-Pump-sub000/validation"
)

// Handler contains the HTTP handlers for the pump API endpoints
type Handler struct {
	Queue    *queue.Queue
	Ledger   *ledger.Ledger
	Rounds   repository.RoundRepositoryInterface
	Balances repository.BalanceStoreInterface
}

// NewHandler creates and returns a new Handler instance
func NewHandler(q *queue.Queue, l *ledger.Ledger, rounds repository.RoundRepositoryInterface, balances repository.BalanceStoreInterface) *Handler {
	return &Handler{Queue: q, Ledger: l, Rounds: rounds, Balances: balances}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type pumpRequestBody struct {
	UserAddress    string `json:"user_address"`
	StakeAmount    int64  `json:"stake_amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SubmitPump handles POST /pump: it durably queues the stake submission
// and returns the request id. Full validation runs at dispatch time; only
// requests that cannot even be queued are rejected here.
func (h *Handler) SubmitPump(w http.ResponseWriter, r *http.Request) {
	var body pumpRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Logger.Error("Failed to decode pump submission", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.UserAddress == "" {
		writeError(w, http.StatusBadRequest, "user_address is required")
		return
	}

	// Round id at submission is a hint for the audit trail, never
	// authoritative: the round may rotate before dispatch.
	var roundHint int64
	if round, err := h.Ledger.CurrentRound(); err == nil {
		roundHint = round.ID
	}

	req, err := h.Queue.Enqueue(body.UserAddress, body.StakeAmount, roundHint, body.IdempotencyKey)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			writeError(w, http.StatusConflict, "duplicate submission")
			return
		}
		logger.Logger.Error("Failed to enqueue pump", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Pump request queued",
		"request_id": req.ID,
	})
}

// GetPump handles GET /pump/{id}: the request's current view, including
// its terminal error when it has one.
func (h *Handler) GetPump(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, err := h.Queue.GetRequest(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		logger.Logger.Error("Failed to load request", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetState handles GET /pump/state: the current round view.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	round, err := h.Ledger.CurrentRound()
	if err != nil {
		logger.Logger.Error("Failed to load active round", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// QueueStatus handles GET /queue/status
func (h *Handler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	queued, inFlight, err := h.Queue.Counts()
	if err != nil {
		logger.Logger.Error("Failed to read queue counts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"queued_count":    queued,
		"in_flight_count": inFlight,
	})
}

// GetRound handles GET /rounds/{id}: historical round lookup.
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	round, err := h.Rounds.GetRound(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetPayout handles GET /rounds/{id}/payout: how a popped round's pot was
// split.
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	payout, err := h.Rounds.GetPayout(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no payout for round")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// GetBalance handles GET /balance/{address}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !validation.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	balance, err := h.Balances.GetBalance(address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": balance,
	})
}

// Deposit handles POST /balance/{address}/deposit: the operator faucet for
// the simulated vault. The real custody layer lives outside this service.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !validation.ValidAddress(address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if body.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	balance, err := h.Balances.Credit(address, body.Amount)
	if err != nil {
		logger.Logger.Error("Deposit failed", zap.String("address", address), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Logger.Info("Deposit credited", zap.String("address", address), zap.Int64("amount", body.Amount))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": balance,
	})
}

// Healthz handles GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
