package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trislit/BNB-Balloon-Pump-sub000/db"
	"github.com/trislit/BNB-Balloon-Pump-sub000/logger"
	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
)

var (
	// ErrNoActiveRound means the active pointer resolved to nothing; a
	// dispatch hitting this is retried, the next round should appear.
	ErrNoActiveRound = errors.New("no active round")
	// ErrStorage wraps transient persistence failures where the pump was
	// rolled back and may safely be retried.
	ErrStorage = errors.New("ledger storage failure")
	// ErrInvariantViolation means serialized round state was observed in an
	// impossible shape. It is fatal for the request and always alerted.
	ErrInvariantViolation = errors.New("round invariant violation")
)

// Ledger owns the single mutable round and the settlement algorithm. Every
// ApplyPump runs under one mutex: the pop decision is a read-modify-write
// over shared pressure, so two pumps must never interleave inside it.
type Ledger struct {
	rounds   repository.RoundRepositoryInterface
	balances repository.BalanceStoreInterface
	policy   Policy
	mux      sync.Mutex
	roll     func() float64 // uniform [0,1) draw for the pop decision
}

// NewLedger creates a settlement engine over the given stores.
func NewLedger(rounds repository.RoundRepositoryInterface, balances repository.BalanceStoreInterface, policy Policy) *Ledger {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Ledger{
		rounds:   rounds,
		balances: balances,
		policy:   policy,
		roll:     rnd.Float64,
	}
}

// SetRoll overrides the uniform draw used for the pop decision. Tests use
// this to force or forbid probabilistic pops.
func (l *Ledger) SetRoll(roll func() float64) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.roll = roll
}

// Policy returns the active game constants.
func (l *Ledger) Policy() Policy { return l.policy }

// Bootstrap ensures an active round exists, creating round 1 on first run.
func (l *Ledger) Bootstrap() (*models.Round, error) {
	l.mux.Lock()
	defer l.mux.Unlock()

	round, err := l.rounds.GetActiveRound()
	if err == nil {
		return round, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	round = l.freshRound(1)
	if err := l.rounds.PutRound(round); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	logger.Logger.Info("Bootstrapped first round", zap.Int64("round_id", round.ID))
	return round, nil
}

// CurrentRound returns the active round.
func (l *Ledger) CurrentRound() (*models.Round, error) {
	l.mux.Lock()
	defer l.mux.Unlock()

	round, err := l.rounds.GetActiveRound()
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNoActiveRound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return round, nil
}

// ApplyPump applies one stake to the active round: captures the stake,
// grows pressure and pot, rotates contributors, and decides whether the
// round pops. The full body is serialized; settlement order under
// concurrent dispatch is lock-acquisition order, not submission order.
//
// The stake is debited first and refunded if the round commit fails, so a
// retried pump never leaves a net debit behind.
func (l *Ledger) ApplyPump(userAddress string, stakeAmount int64) (*models.PumpOutcome, error) {
	l.mux.Lock()
	defer l.mux.Unlock()

	current, err := l.rounds.GetActiveRound()
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNoActiveRound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if current.Status != models.RoundActive {
		logger.Logger.Error("Active pointer resolved to a non-active round",
			zap.Int64("round_id", current.ID), zap.String("status", string(current.Status)))
		return nil, ErrInvariantViolation
	}

	if _, err := l.balances.Debit(userAddress, stakeAmount); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Work on a copy so a failed persist leaves the loaded state untouched.
	round := *current
	round.Contributors = append([]string(nil), current.Contributors...)

	fee := stakeAmount * l.policy.FeeBps / 10000
	round.Pot += stakeAmount - fee
	round.Pressure += stakeAmount
	round.UpdatedAt = nowMillis()
	round.RotateContributors(userAddress)

	if round.Pressure < current.Pressure || round.Pot < current.Pot {
		l.refund(userAddress, stakeAmount)
		logger.Logger.Error("Pressure or pot regressed on pump",
			zap.Int64("round_id", round.ID), zap.Int64("stake", stakeAmount))
		return nil, ErrInvariantViolation
	}

	ratio := round.PressureRatio()
	popped := ratio >= l.policy.HardCapRatio || l.roll() < l.policy.PopChance(ratio)

	if !popped {
		if err := l.rounds.PutRound(&round); err != nil {
			l.refund(userAddress, stakeAmount)
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return &models.PumpOutcome{
			RoundID:  round.ID,
			Pressure: round.Pressure,
			Pot:      round.Pot,
		}, nil
	}

	payout := l.buildPayout(&round, ratio)
	now := nowMillis()
	round.Status = models.RoundEnded
	round.PoppedAt = now
	round.UpdatedAt = now

	fresh := l.freshRound(round.ID + 1)
	if err := l.rounds.CommitSettlement(&round, fresh, payout); err != nil {
		l.refund(userAddress, stakeAmount)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.creditPayout(payout)

	logger.Logger.Info("Balloon popped",
		zap.Int64("round_id", round.ID),
		zap.Int64("pot", payout.TotalPot),
		zap.Float64("pressure_ratio", ratio),
		zap.String("winner", payout.Winner),
		zap.Int64("new_round_id", fresh.ID))

	return &models.PumpOutcome{
		Popped:     true,
		RoundID:    round.ID,
		Pressure:   round.Pressure,
		Pot:        round.Pot,
		NewRoundID: fresh.ID,
		Payout:     payout,
	}, nil
}

// buildPayout splits the pot among the distinct recipients closest to the
// head of the contributor list. Shares for missing second/third recipients
// fold into the dev share rather than being paid to an empty address.
func (l *Ledger) buildPayout(round *models.Round, ratio float64) *models.PayoutDistribution {
	split := l.policy.SplitFor(ratio)
	winnerAmt, secondAmt, thirdAmt, devAmt, burnAmt := split.Amounts(round.Pot)

	winner, second, third := distinctRecipients(round.Contributors)
	if second == "" {
		devAmt += secondAmt
		secondAmt = 0
	}
	if third == "" {
		devAmt += thirdAmt
		thirdAmt = 0
	}

	return &models.PayoutDistribution{
		RoundID:       round.ID,
		Winner:        winner,
		Second:        second,
		Third:         third,
		WinnerAmount:  winnerAmt,
		SecondAmount:  secondAmt,
		ThirdAmount:   thirdAmt,
		DevAmount:     devAmt,
		BurnAmount:    burnAmt,
		TotalPot:      round.Pot,
		PressureRatio: ratio,
		CreatedAt:     nowMillis(),
	}
}

// creditPayout pays each recipient through the balance store. The payout
// record is already committed at this point; a failed credit is alerted so
// the operator can reconcile from the record, it does not undo settlement.
func (l *Ledger) creditPayout(payout *models.PayoutDistribution) {
	credit := func(addr string, amount int64, role string) {
		if addr == "" || amount == 0 {
			return
		}
		if _, err := l.balances.Credit(addr, amount); err != nil {
			logger.Logger.Error("Payout credit failed",
				zap.Int64("round_id", payout.RoundID),
				zap.String("role", role),
				zap.String("address", addr),
				zap.Int64("amount", amount),
				zap.Error(err))
		}
	}
	credit(payout.Winner, payout.WinnerAmount, "winner")
	credit(payout.Second, payout.SecondAmount, "second")
	credit(payout.Third, payout.ThirdAmount, "third")
	credit(l.policy.DevAddress, payout.DevAmount, "dev")
	credit(l.policy.BurnAddress, payout.BurnAmount, "burn")
}

func (l *Ledger) refund(userAddress string, amount int64) {
	if _, err := l.balances.Credit(userAddress, amount); err != nil {
		logger.Logger.Error("Refund after failed pump commit failed",
			zap.String("address", userAddress), zap.Int64("amount", amount), zap.Error(err))
	}
}

func (l *Ledger) freshRound(id int64) *models.Round {
	now := nowMillis()
	return &models.Round{
		ID:        id,
		Status:    models.RoundActive,
		Threshold: l.policy.Threshold,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// distinctRecipients scans from the head of the contributor list and picks
// the first three distinct addresses.
func distinctRecipients(contributors []string) (winner, second, third string) {
	for _, c := range contributors {
		switch {
		case winner == "":
			winner = c
		case second == "" && c != winner:
			second = c
		case third == "" && c != winner && c != second:
			third = c
		}
	}
	return
}

// nowMillis returns current time in milliseconds
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
