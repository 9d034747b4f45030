package models

// RequestStatus is the queue lifecycle state of a pump request.
type RequestStatus string

const (
	RequestQueued    RequestStatus = "queued"
	RequestInFlight  RequestStatus = "in_flight"
	RequestConfirmed RequestStatus = "confirmed"
	RequestFailed    RequestStatus = "failed"
)

// Terminal reports whether the status can no longer transition.
func (s RequestStatus) Terminal() bool {
	return s == RequestConfirmed || s == RequestFailed
}

// PumpRequest is one queued stake submission. Rows are append-only: they
// are never deleted, only status-transitioned, so the store doubles as an
// audit trail.
type PumpRequest struct {
	ID            string        `json:"id"`
	UserAddress   string        `json:"user_address"`
	StakeAmount   int64         `json:"stake_amount"`
	RoundIDHint   int64         `json:"round_id_hint,omitempty"` // round id at submission, not authoritative
	Status        RequestStatus `json:"status"`
	RetryCount    int           `json:"retry_count"`
	NextAttemptAt int64         `json:"next_attempt_at"` // unix ms, drain skips rows still in the future
	LastError     string        `json:"last_error,omitempty"`
	// DeliveryWarning marks a request whose round mutation committed but
	// whose execution-backend hand-off failed. Such requests are confirmed,
	// never re-queued: a retry would capture the stake twice.
	DeliveryWarning bool   `json:"delivery_warning,omitempty"`
	BackendRef      string `json:"backend_ref,omitempty"`
	RequestedAt     int64  `json:"requested_at"` // unix ms
	UpdatedAt       int64  `json:"updated_at"`   // unix ms
}
