package ledger

// Policy holds the tunable game constants: the pop-chance curve, the fee,
// and the payout-split curve. Shares are expressed in basis points so that
// split amounts stay exact in integer math.
type Policy struct {
	Threshold    int64   // reference denominator for the pressure ratio
	FeeBps       int64   // taken off each stake before it enters the pot
	HardCapRatio float64 // at or above this ratio the round must pop

	PopBasePct float64 // pop probability at zero pressure, in [0,1]
	PopMaxPct  float64 // pop probability approached at ratio >= 1.0

	WinnerBaseBps  int64 // winner share at ratio 0
	WinnerSlopeBps int64 // added to the winner share as ratio approaches 1
	SecondBps      int64
	ThirdBps       int64

	DevAddress  string
	BurnAddress string
}

// DefaultPolicy returns the shipped game constants: 2% fee, 5%->35% pop
// chance, winner share rising 60%->80% with pressure.
func DefaultPolicy() Policy {
	return Policy{
		Threshold:      1_000_000,
		FeeBps:         200,
		HardCapRatio:   1.0,
		PopBasePct:     0.05,
		PopMaxPct:      0.35,
		WinnerBaseBps:  6000,
		WinnerSlopeBps: 2000,
		SecondBps:      1000,
		ThirdBps:       500,
		DevAddress:     "0x0000000000000000000000000000000000001001",
		BurnAddress:    "0x000000000000000000000000000000000000dEaD",
	}
}

// PopChance maps a pressure ratio to a pop probability in [0,1]. The curve
// is linear from PopBasePct to PopMaxPct and flat beyond ratio 1.0, which
// keeps it monotonically non-decreasing for any parameter choice with
// PopMaxPct >= PopBasePct.
func (p Policy) PopChance(pressureRatio float64) float64 {
	r := clampRatio(pressureRatio)
	return p.PopBasePct + (p.PopMaxPct-p.PopBasePct)*r
}

// Split is a payout division in basis points. The five shares always sum
// to exactly 10000.
type Split struct {
	WinnerBps int64
	SecondBps int64
	ThirdBps  int64
	DevBps    int64
	BurnBps   int64
}

// SplitFor computes the payout split at the given pressure ratio. The
// winner share grows with the ratio; the combined house share (dev+burn)
// shrinks correspondingly. Second and third shares are flat.
func (p Policy) SplitFor(pressureRatio float64) Split {
	r := clampRatio(pressureRatio)
	winner := p.WinnerBaseBps + int64(float64(p.WinnerSlopeBps)*r)
	second := p.SecondBps
	third := p.ThirdBps
	if winner+second+third > 10000 {
		winner = 10000 - second - third
	}
	rest := 10000 - winner - second - third
	dev := rest / 2
	burn := rest - dev
	return Split{
		WinnerBps: winner,
		SecondBps: second,
		ThirdBps:  third,
		DevBps:    dev,
		BurnBps:   burn,
	}
}

// Amounts divides the pot by the split. Integer division remainders are
// folded into the burn amount, so the five amounts sum exactly to pot.
func (s Split) Amounts(pot int64) (winner, second, third, dev, burn int64) {
	winner = pot * s.WinnerBps / 10000
	second = pot * s.SecondBps / 10000
	third = pot * s.ThirdBps / 10000
	dev = pot * s.DevBps / 10000
	burn = pot - winner - second - third - dev
	return
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
