package models

// RoundStatus is the lifecycle state of a balloon round.
type RoundStatus string

const (
	RoundActive RoundStatus = "active"
	RoundEnded  RoundStatus = "ended"
)

// ContributorSlots is how many recent pumpers stay eligible for a payout.
const ContributorSlots = 3

// Round is the single mutable game aggregate. Pressure and pot only grow
// while the round is active; both start at zero in every new round.
// All amounts are in the ledger's smallest unit.
type Round struct {
	ID           int64       `json:"id"`
	Status       RoundStatus `json:"status"`
	Pressure     int64       `json:"pressure"`
	Pot          int64       `json:"pot"`
	Threshold    int64       `json:"threshold"`
	Contributors []string    `json:"contributors"` // last pump events, most recent first, may repeat
	PoppedAt     int64       `json:"popped_at"`    // unix ms, zero until the round ends
	CreatedAt    int64       `json:"created_at"`   // unix ms
	UpdatedAt    int64       `json:"updated_at"`   // unix ms
}

// PressureRatio is pressure relative to the threshold. It is unbounded
// above 1.0; the threshold is a reference point, not a cap.
func (r *Round) PressureRatio() float64 {
	if r.Threshold <= 0 {
		return 0
	}
	return float64(r.Pressure) / float64(r.Threshold)
}

// RotateContributors records a pump event at the head of the contributor
// list. Every pump shifts the previous head down one slot, even when the
// same address pumps twice in a row; distinct recipients are resolved at
// settlement time.
func (r *Round) RotateContributors(userAddress string) {
	next := make([]string, 0, ContributorSlots)
	next = append(next, userAddress)
	for _, c := range r.Contributors {
		if len(next) == ContributorSlots {
			break
		}
		next = append(next, c)
	}
	r.Contributors = next
}

// PayoutDistribution records how a popped round's pot was split. The five
// amounts always sum exactly to TotalPot; the fixed-point remainder is
// folded into BurnAmount.
type PayoutDistribution struct {
	RoundID       int64  `json:"round_id"`
	Winner        string `json:"winner"`
	Second        string `json:"second"`
	Third         string `json:"third"`
	WinnerAmount  int64  `json:"winner_amount"`
	SecondAmount  int64  `json:"second_amount"`
	ThirdAmount   int64  `json:"third_amount"`
	DevAmount     int64  `json:"dev_amount"`
	BurnAmount    int64  `json:"burn_amount"`
	TotalPot      int64  `json:"total_pot"`
	PressureRatio float64 `json:"pressure_ratio"`
	CreatedAt     int64  `json:"created_at"` // unix ms
}

// PumpOutcome is what the ledger returns for one applied pump.
type PumpOutcome struct {
	Popped     bool                `json:"popped"`
	RoundID    int64               `json:"round_id"`
	Pressure   int64               `json:"pressure"`
	Pot        int64               `json:"pot"`
	NewRoundID int64               `json:"new_round_id,omitempty"`
	Payout     *PayoutDistribution `json:"payout,omitempty"`
}
