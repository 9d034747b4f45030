package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/metrics"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
)

// Queue is the durable FIFO of pump requests. It owns every status
// transition: the dispatcher reports outcomes, the queue decides what they
// mean for the row.
type Queue struct {
	repo       repository.RequestRepositoryInterface
	metrics    *metrics.Metrics
	maxRetries int
	retryDelay time.Duration

	mu   sync.Mutex    // serializes drain's read-and-flip
	wake chan struct{} // edge-triggered drain signal on enqueue
}

// New creates a queue over the given request store.
func New(repo repository.RequestRepositoryInterface, m *metrics.Metrics, maxRetries int, retryDelay time.Duration) *Queue {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Queue{
		repo:       repo,
		metrics:    m,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		wake:       make(chan struct{}, 1),
	}
}

// Wake is signalled whenever a new request lands, so the drain loop does
// not sit out a full poll interval under low load.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Enqueue persists a new request in queued state and returns it. The
// request ID embeds a zero-padded nanosecond timestamp, which makes store
// key order the submission order.
func (q *Queue) Enqueue(userAddress string, stakeAmount int64, roundIDHint int64, idempotencyKey string) (*models.PumpRequest, error) {
	now := time.Now()
	req := &models.PumpRequest{
		ID:          fmt.Sprintf("%020d-%s", now.UnixNano(), uuid.NewString()),
		UserAddress: userAddress,
		StakeAmount: stakeAmount,
		RoundIDHint: roundIDHint,
		Status:      models.RequestQueued,
		RequestedAt: now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}

	if idempotencyKey != "" {
		if err := q.repo.ReserveIdempotencyKey(idempotencyKey, req.ID); err != nil {
			return nil, err
		}
	}
	if err := q.repo.PutRequest(req); err != nil {
		return nil, fmt.Errorf("persist request: %w", err)
	}

	logger.Logger.Info("Pump request queued",
		zap.String("request_id", req.ID),
		zap.String("user", userAddress),
		zap.Int64("stake", stakeAmount))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.refreshGauges()
	return req, nil
}

// Drain returns up to limit dispatchable requests in FIFO order, flipping
// each to in-flight inside the same critical section so no request can be
// handed to two workers.
func (q *Queue) Drain(limit int) ([]*models.PumpRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UnixMilli()
	pending, err := q.repo.ListPending(now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	out := make([]*models.PumpRequest, 0, len(pending))
	for _, req := range pending {
		req.Status = models.RequestInFlight
		req.UpdatedAt = now
		if err := q.repo.PutRequest(req); err != nil {
			logger.Logger.Error("Failed to flip request in-flight",
				zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		out = append(out, req)
	}
	q.refreshGauges()
	return out, nil
}

// GetRequest returns one request by ID.
func (q *Queue) GetRequest(id string) (*models.PumpRequest, error) {
	return q.repo.GetRequest(id)
}

// Counts reports queued and in-flight depths.
func (q *Queue) Counts() (queued int, inFlight int, err error) {
	return q.repo.QueueCounts()
}

// MarkOutcome translates a dispatch outcome into the request's next
// status. Terminal rows are never transitioned again, so replaying an
// outcome is a no-op.
func (q *Queue) MarkOutcome(requestID string, outcome models.ProcessOutcome) error {
	req, err := q.repo.GetRequest(requestID)
	if err != nil {
		return fmt.Errorf("load request: %w", err)
	}
	if req.Status.Terminal() {
		return nil
	}

	now := time.Now().UnixMilli()
	req.UpdatedAt = now

	switch outcome.Kind {
	case models.OutcomeConfirmed:
		req.Status = models.RequestConfirmed
		req.BackendRef = outcome.BackendRef
		req.DeliveryWarning = outcome.DeliveryWarning
		req.LastError = ""
		if q.metrics != nil {
			q.metrics.ConfirmedTotal.Inc()
		}

	case models.OutcomeRejected, models.OutcomeFatal:
		req.Status = models.RequestFailed
		req.LastError = outcome.Err
		if q.metrics != nil {
			q.metrics.FailedTotal.Inc()
		}

	case models.OutcomeRetryable:
		req.RetryCount++
		if req.RetryCount >= q.maxRetries {
			req.Status = models.RequestFailed
			req.LastError = outcome.Err
			if q.metrics != nil {
				q.metrics.FailedTotal.Inc()
			}
			logger.Logger.Warn("Request exhausted retry budget",
				zap.String("request_id", req.ID),
				zap.Int("retries", req.RetryCount),
				zap.String("last_error", outcome.Err))
		} else {
			// Scheduled re-enqueue: the delay lives on the row, so it
			// survives restarts and no worker slot waits it out.
			req.Status = models.RequestQueued
			req.LastError = outcome.Err
			req.NextAttemptAt = now + int64(q.retryDelay/time.Millisecond)*int64(req.RetryCount)
			if q.metrics != nil {
				q.metrics.RetriesTotal.Inc()
			}
		}

	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}

	if err := q.repo.PutRequest(req); err != nil {
		return fmt.Errorf("persist outcome: %w", err)
	}
	q.refreshGauges()
	return nil
}

func (q *Queue) refreshGauges() {
	if q.metrics == nil {
		return
	}
	queued, inFlight, err := q.repo.QueueCounts()
	if err != nil {
		return
	}
	q.metrics.Queued.Set(float64(queued))
	q.metrics.InFlight.Set(float64(inFlight))
}
