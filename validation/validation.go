package validation

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/trislit/BNB-Balloon-Pump-sub000/models"
	"github.com/trislit/BNB-Balloon-Pump-sub000/repository"
)

// Validation failures are deterministic for a given input: a request that
// trips one is failed terminally, never retried.
var (
	ErrInvalidAddress    = errors.New("invalid user address")
	ErrNonPositiveAmount = errors.New("stake amount must be positive")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrRoundNotOpen      = errors.New("round is not open")
)

// addressPattern matches the chain's canonical account identifier: 0x
// followed by 40 hex characters.
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const rateWindow = time.Minute

// Gate runs the stateless pre-settlement checks. All checks are read-only;
// a failed check leaves no state behind.
type Gate struct {
	requests             repository.RequestRepositoryInterface
	balances             repository.BalanceStoreInterface
	maxRequestsPerMinute int
}

// NewGate creates a validation gate over the request history and balances.
func NewGate(requests repository.RequestRepositoryInterface, balances repository.BalanceStoreInterface, maxRequestsPerMinute int) *Gate {
	return &Gate{
		requests:             requests,
		balances:             balances,
		maxRequestsPerMinute: maxRequestsPerMinute,
	}
}

// Check validates a pump request against the current round. Returns nil on
// acceptance or one of the package sentinel errors (wrapped with detail).
func (g *Gate) Check(req *models.PumpRequest, round *models.Round) error {
	if !ValidAddress(req.UserAddress) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, req.UserAddress)
	}
	if req.StakeAmount <= 0 {
		return fmt.Errorf("%w: got %d", ErrNonPositiveAmount, req.StakeAmount)
	}

	if g.maxRequestsPerMinute > 0 {
		since := time.Now().Add(-rateWindow).UnixMilli()
		// The count comes from the persisted submission history, so the
		// window holds across restarts. It includes the request under
		// validation, which was recorded at enqueue time.
		count, err := g.requests.CountUserRequestsSince(req.UserAddress, since)
		if err != nil {
			return fmt.Errorf("count recent requests: %w", err)
		}
		if count > g.maxRequestsPerMinute {
			return fmt.Errorf("%w: %d submissions in the last minute", ErrRateLimited, count)
		}
	}

	balance, err := g.balances.GetBalance(req.UserAddress)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance < req.StakeAmount {
		return fmt.Errorf("%w: balance %d, stake %d", repository.ErrInsufficientFunds, balance, req.StakeAmount)
	}

	if round == nil || round.Status != models.RoundActive {
		return ErrRoundNotOpen
	}
	return nil
}

// ValidAddress reports whether s is a canonical account identifier.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Rejection reports whether err is a deterministic validation failure as
// opposed to a transient I/O error from the gate's reads.
func Rejection(err error) bool {
	return errors.Is(err, ErrInvalidAddress) ||
		errors.Is(err, ErrNonPositiveAmount) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, repository.ErrInsufficientFunds) ||
		errors.Is(err, ErrRoundNotOpen)
}
