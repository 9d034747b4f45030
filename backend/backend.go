// Package backend defines the execution backend the dispatcher forwards
// settled pumps to. Exactly two implementations exist: the chain relay and
// the simulated ledger. The backend is chosen once at startup; business
// logic never branches on which one is in use.
package backend

import (
	"context"
	"errors"

	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
)

// ErrBackendUnavailable marks a failed hand-off. Whether it is retryable
// depends on where the request stands: before any round mutation it is,
// after a committed mutation it is recorded as a delivery warning instead.
var ErrBackendUnavailable = errors.New("execution backend unavailable")

// Receipt is the settled-pump record forwarded downstream.
type Receipt struct {
	RequestID   string                     `json:"request_id"`
	UserAddress string                     `json:"user_address"`
	StakeAmount int64                      `json:"stake_amount"`
	RoundID     int64                      `json:"round_id"`
	Popped      bool                       `json:"popped"`
	Payout      *models.PayoutDistribution `json:"payout,omitempty"`
}

// Backend accepts a settled pump and returns an opaque reference for it.
type Backend interface {
	Name() string
	Submit(ctx context.Context, receipt Receipt) (string, error)
}
