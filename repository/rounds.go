package repository

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
)

const (
	roundPrefix    = "round:"
	payoutPrefix   = "payout:"
	activeRoundKey = "round_active"
)

func roundKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%012d", roundPrefix, id))
}

func payoutKey(roundID int64) []byte {
	return []byte(fmt.Sprintf("%s%012d", payoutPrefix, roundID))
}

// It abstracts the round storage layer from the settlement engine
type RoundRepositoryInterface interface {
	PutRound(round *models.Round) error
	GetRound(id int64) (*models.Round, error)
	GetActiveRound() (*models.Round, error)
	CommitSettlement(ended, fresh *models.Round, payout *models.PayoutDistribution) error
	GetPayout(roundID int64) (*models.PayoutDistribution, error)
}

// RoundRepository implements RoundRepositoryInterface using LevelDB as the
// storage backend.
type RoundRepository struct {
	db *db.LevelDB
}

// NewRoundRepository creates and returns a new RoundRepository instance
func NewRoundRepository(db *db.LevelDB) *RoundRepository {
	return &RoundRepository{db: db}
}

// PutRound stores a round; an active round also updates the active pointer.
func (r *RoundRepository) PutRound(round *models.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(roundKey(round.ID), data)
	if round.Status == models.RoundActive {
		batch.Put([]byte(activeRoundKey), []byte(strconv.FormatInt(round.ID, 10)))
	}
	return r.db.WriteBatch(batch)
}

// GetRound retrieves a round by its ID
func (r *RoundRepository) GetRound(id int64) (*models.Round, error) {
	data, err := r.db.Get(roundKey(id))
	if err != nil {
		return nil, err
	}
	var round models.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return nil, err
	}
	return &round, nil
}

// GetActiveRound retrieves the round the active pointer designates.
// Returns db.ErrNotFound when no round has been bootstrapped yet.
func (r *RoundRepository) GetActiveRound() (*models.Round, error) {
	data, err := r.db.Get([]byte(activeRoundKey))
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, err
	}
	return r.GetRound(id)
}

// CommitSettlement persists a round termination in one atomic batch: the
// ended round, the payout record, the fresh round, and the active pointer
// move together or not at all. This is what keeps "exactly one active
// round" true across a crash mid-settlement.
func (r *RoundRepository) CommitSettlement(ended, fresh *models.Round, payout *models.PayoutDistribution) error {
	endedData, err := json.Marshal(ended)
	if err != nil {
		return err
	}
	freshData, err := json.Marshal(fresh)
	if err != nil {
		return err
	}
	payoutData, err := json.Marshal(payout)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(roundKey(ended.ID), endedData)
	batch.Put(payoutKey(payout.RoundID), payoutData)
	batch.Put(roundKey(fresh.ID), freshData)
	batch.Put([]byte(activeRoundKey), []byte(strconv.FormatInt(fresh.ID, 10)))
	return r.db.WriteBatch(batch)
}

// GetPayout retrieves the payout record for a popped round
func (r *RoundRepository) GetPayout(roundID int64) (*models.PayoutDistribution, error) {
	data, err := r.db.Get(payoutKey(roundID))
	if err != nil {
		return nil, err
	}
	var payout models.PayoutDistribution
	if err := json.Unmarshal(data, &payout); err != nil {
		return nil, err
	}
	return &payout, nil
}
