package repository

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
)

// Key prefixes for the request store. Request rows are append-only; the
// pending/in-flight indexes are the only keys that ever get deleted.
const (
	reqPrefix      = "req:"
	pendingPrefix  = "pending:"
	inflightPrefix = "inflight:"
	historyPrefix  = "hist:"
	idemPrefix     = "idem:"
)

// ErrDuplicateSubmission is returned when an idempotency key collides with
// an earlier submission.
var ErrDuplicateSubmission = errors.New("duplicate submission")

// It abstracts the request storage layer from the queue logic
type RequestRepositoryInterface interface {
	PutRequest(req *models.PumpRequest) error
	GetRequest(id string) (*models.PumpRequest, error)
	ListPending(nowMillis int64, limit int) ([]*models.PumpRequest, error)
	CountUserRequestsSince(userAddress string, sinceMillis int64) (int, error)
	QueueCounts() (queued int, inFlight int, err error)
	ReserveIdempotencyKey(key, requestID string) error
}

// RequestRepository implements RequestRepositoryInterface using LevelDB as
// the storage backend. Request IDs carry a zero-padded nanosecond prefix,
// so iterating the pending index in key order yields FIFO submission order.
type RequestRepository struct {
	db *db.LevelDB
}

// NewRequestRepository creates and returns a new RequestRepository instance
func NewRequestRepository(db *db.LevelDB) *RequestRepository {
	return &RequestRepository{db: db}
}

// PutRequest stores a request and keeps the status indexes in sync, in one
// atomic batch.
func (r *RequestRepository) PutRequest(req *models.PumpRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(reqPrefix+req.ID), data)

	if req.Status == models.RequestQueued {
		batch.Put([]byte(pendingPrefix+req.ID), []byte(req.ID))
	} else {
		batch.Delete([]byte(pendingPrefix + req.ID))
	}
	if req.Status == models.RequestInFlight {
		batch.Put([]byte(inflightPrefix+req.ID), []byte(req.ID))
	} else {
		batch.Delete([]byte(inflightPrefix + req.ID))
	}

	// Per-user history for the sliding rate-limit window. Overwriting the
	// same key with the same timestamp is harmless.
	histKey := historyPrefix + req.UserAddress + ":" + req.ID
	batch.Put([]byte(histKey), []byte(strconv.FormatInt(req.RequestedAt, 10)))

	return r.db.WriteBatch(batch)
}

// GetRequest retrieves a request from LevelDB storage by its ID
func (r *RequestRepository) GetRequest(id string) (*models.PumpRequest, error) {
	data, err := r.db.Get([]byte(reqPrefix + id))
	if err != nil {
		return nil, err
	}
	var req models.PumpRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ListPending returns up to limit queued requests whose next attempt time
// has passed, oldest submission first.
func (r *RequestRepository) ListPending(nowMillis int64, limit int) ([]*models.PumpRequest, error) {
	iter := r.db.NewPrefixIterator([]byte(pendingPrefix))
	defer iter.Release()

	var out []*models.PumpRequest
	for iter.Next() {
		id := string(iter.Value())
		req, err := r.GetRequest(id)
		if err != nil {
			return nil, err
		}
		if req.Status != models.RequestQueued || req.NextAttemptAt > nowMillis {
			continue
		}
		out = append(out, req)
		if len(out) == limit {
			break
		}
	}
	return out, iter.Error()
}

// CountUserRequestsSince counts the user's submissions with a requested-at
// timestamp inside the trailing window. The count is backed by the durable
// history index, so it survives process restarts.
func (r *RequestRepository) CountUserRequestsSince(userAddress string, sinceMillis int64) (int, error) {
	iter := r.db.NewPrefixIterator([]byte(historyPrefix + userAddress + ":"))
	defer iter.Release()

	count := 0
	for iter.Next() {
		ts, err := strconv.ParseInt(string(iter.Value()), 10, 64)
		if err != nil {
			continue
		}
		if ts >= sinceMillis {
			count++
		}
	}
	return count, iter.Error()
}

// QueueCounts reports the current queued and in-flight depths.
func (r *RequestRepository) QueueCounts() (int, int, error) {
	queued, err := r.countPrefix(pendingPrefix)
	if err != nil {
		return 0, 0, err
	}
	inFlight, err := r.countPrefix(inflightPrefix)
	if err != nil {
		return 0, 0, err
	}
	return queued, inFlight, nil
}

func (r *RequestRepository) countPrefix(prefix string) (int, error) {
	iter := r.db.NewPrefixIterator([]byte(prefix))
	defer iter.Release()
	count := 0
	for iter.Next() {
		count++
	}
	return count, iter.Error()
}

// ReserveIdempotencyKey claims a client-supplied idempotency key for a
// request, failing with ErrDuplicateSubmission on collision.
func (r *RequestRepository) ReserveIdempotencyKey(key, requestID string) error {
	k := []byte(idemPrefix + key)
	exists, err := r.db.Has(k)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateSubmission
	}
	return r.db.Put(k, []byte(requestID))
}
