package repository

import (
	"errors"
	"strconv"
	"sync"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
)

const balancePrefix = "bal:"

// ErrInsufficientFunds is returned by Debit when the balance cannot cover
// the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// BalanceStoreInterface is the core's view of the vault. The custody layer
// that actually owns funds is external; the engine only needs these three
// operations.
type BalanceStoreInterface interface {
	GetBalance(userAddress string) (int64, error)
	Credit(userAddress string, amount int64) (int64, error)
	Debit(userAddress string, amount int64) (int64, error)
}

// BalanceRepository implements BalanceStoreInterface using LevelDB as the
// storage backend. A mutex serializes the read-modify-write cycle; balances
// are touched from both the settlement engine and the deposit handler.
type BalanceRepository struct {
	db *db.LevelDB
	mu sync.Mutex
}

// NewBalanceRepository creates and returns a new BalanceRepository instance
func NewBalanceRepository(db *db.LevelDB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// GetBalance returns the user's balance, zero for unknown addresses
func (r *BalanceRepository) GetBalance(userAddress string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(userAddress)
}

// Credit adds amount to the user's balance and returns the new balance
func (r *BalanceRepository) Credit(userAddress string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, err := r.read(userAddress)
	if err != nil {
		return 0, err
	}
	bal += amount
	if err := r.write(userAddress, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

// Debit removes amount from the user's balance, failing with
// ErrInsufficientFunds when the balance cannot cover it
func (r *BalanceRepository) Debit(userAddress string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, err := r.read(userAddress)
	if err != nil {
		return 0, err
	}
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	bal -= amount
	if err := r.write(userAddress, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

func (r *BalanceRepository) read(userAddress string) (int64, error) {
	data, err := r.db.Get([]byte(balancePrefix + userAddress))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(string(data), 10, 64)
}

func (r *BalanceRepository) write(userAddress string, balance int64) error {
	return r.db.Put([]byte(balancePrefix+userAddress), []byte(strconv.FormatInt(balance, 10)))
}
