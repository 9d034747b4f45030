package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/backend"
	"github.com/trislit/BNB-Balloon-Pump-sub000/ledger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/metrics"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
	"github.com/trislit/BNB-Balloon-Pump-sub000/validation"
)

// Dispatcher runs one drained request through the pipeline: validation
// gate, then the settlement engine, then the execution backend. It returns
// an outcome; translating outcomes into status transitions is the queue's
// job, not the dispatcher's.
type Dispatcher struct {
	gate           *validation.Gate
	engine         *ledger.Ledger
	backend        backend.Backend
	metrics        *metrics.Metrics
	backendTimeout time.Duration
}

// New creates a dispatcher.
func New(gate *validation.Gate, engine *ledger.Ledger, be backend.Backend, m *metrics.Metrics, backendTimeout time.Duration) *Dispatcher {
	if backendTimeout <= 0 {
		backendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		gate:           gate,
		engine:         engine,
		backend:        be,
		metrics:        m,
		backendTimeout: backendTimeout,
	}
}

// Process applies one pump request end to end.
//
// Failure placement decides retryability: anything before the round
// mutation commits is retryable, a backend failure after the commit is not.
// Re-queueing a committed pump would capture the same stake twice, so that
// case confirms with a delivery warning instead.
func (d *Dispatcher) Process(ctx context.Context, req *models.PumpRequest) models.ProcessOutcome {
	round, err := d.engine.CurrentRound()
	if err != nil {
		// Defensive: the engine should always hold an active round. Treated
		// as transient so the request survives a round rotation in progress.
		return models.ProcessOutcome{Kind: models.OutcomeRetryable, Err: err.Error()}
	}

	if err := d.gate.Check(req, round); err != nil {
		if validation.Rejection(err) {
			return models.ProcessOutcome{Kind: models.OutcomeRejected, Err: err.Error()}
		}
		// Gate reads hit storage; an I/O failure there is transient.
		return models.ProcessOutcome{Kind: models.OutcomeRetryable, Err: err.Error()}
	}

	pump, err := d.engine.ApplyPump(req.UserAddress, req.StakeAmount)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInsufficientFunds):
			// Balance moved between gate and debit; deterministic for the
			// current balance, so terminal like any validation failure.
			return models.ProcessOutcome{Kind: models.OutcomeRejected, Err: err.Error()}
		case errors.Is(err, ledger.ErrInvariantViolation):
			logger.Logger.Error("Ledger invariant violation during dispatch",
				zap.String("request_id", req.ID), zap.Error(err))
			return models.ProcessOutcome{Kind: models.OutcomeFatal, Err: err.Error()}
		default:
			return models.ProcessOutcome{Kind: models.OutcomeRetryable, Err: err.Error()}
		}
	}

	if d.metrics != nil {
		d.metrics.PumpsTotal.Inc()
		if pump.Popped {
			d.metrics.PopsTotal.Inc()
			d.metrics.Pressure.Set(0)
			d.metrics.Pot.Set(0)
		} else {
			d.metrics.Pressure.Set(float64(pump.Pressure))
			d.metrics.Pot.Set(float64(pump.Pot))
		}
	}

	ref, warn := d.forward(ctx, req, pump)
	return models.ProcessOutcome{
		Kind:            models.OutcomeConfirmed,
		BackendRef:      ref,
		DeliveryWarning: warn,
		Pump:            pump,
	}
}

// forward hands the settled pump to the execution backend. The stake is
// already captured at this point, so a failed hand-off is recorded as a
// warning on the confirmed request rather than re-queued.
func (d *Dispatcher) forward(ctx context.Context, req *models.PumpRequest, pump *models.PumpOutcome) (ref string, warn bool) {
	callCtx, cancel := context.WithTimeout(ctx, d.backendTimeout)
	defer cancel()

	receipt := backend.Receipt{
		RequestID:   req.ID,
		UserAddress: req.UserAddress,
		StakeAmount: req.StakeAmount,
		RoundID:     pump.RoundID,
		Popped:      pump.Popped,
		Payout:      pump.Payout,
	}
	ref, err := d.backend.Submit(callCtx, receipt)
	if err != nil {
		logger.Logger.Warn("Backend delivery failed after settlement",
			zap.String("request_id", req.ID),
			zap.String("backend", d.backend.Name()),
			zap.Error(err))
		return "", true
	}
	return ref, false
}
