package routers

import (
	"github.com/gorilla/mux"

	"github.com/trislit/BNB-Balloon-Pump-sub000/handlers"
	"github.com/trislit/BNB-Balloon-Pump-sub000/metrics"
)

// RegisterRoutes sets up all the HTTP routes for the pump service
func RegisterRoutes(r *mux.Router, h *handlers.Handler, m *metrics.Metrics) {

	// Current round view: pressure, pot, contributors, status
	r.HandleFunc("/pump/state", h.GetState).Methods("GET")

	// Queues a stake submission and returns its request id
	r.HandleFunc("/pump", h.SubmitPump).Methods("POST")

	// One queued request's current status and outcome
	r.HandleFunc("/pump/{id}", h.GetPump).Methods("GET")

	// Queue introspection: queued and in-flight depths
	r.HandleFunc("/queue/status", h.QueueStatus).Methods("GET")

	// Historical round and payout lookup
	r.HandleFunc("/rounds/{id}", h.GetRound).Methods("GET")
	r.HandleFunc("/rounds/{id}/payout", h.GetPayout).Methods("GET")

	// Simulated vault balances
	r.HandleFunc("/balance/{address}", h.GetBalance).Methods("GET")
	r.HandleFunc("/balance/{address}/deposit", h.Deposit).Methods("POST")

	r.HandleFunc("/healthz", h.Healthz).Methods("GET")

	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods("GET")
	}
}
