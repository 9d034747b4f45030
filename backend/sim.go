package backend

import (
	"context"
	"fmt"
	"sync"
)

// SimLedger is the in-process execution backend: it acknowledges every
// receipt and keeps them in memory for inspection. Used when the service
// runs without a chain-settlement path.
type SimLedger struct {
	mu       sync.Mutex
	seq      int64
	receipts []Receipt
}

// NewSimLedger creates an empty simulated ledger.
func NewSimLedger() *SimLedger {
	return &SimLedger{}
}

func (s *SimLedger) Name() string { return "sim" }

// Submit records the receipt and returns a monotonic reference.
func (s *SimLedger) Submit(_ context.Context, receipt Receipt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.receipts = append(s.receipts, receipt)
	return fmt.Sprintf("sim-%d", s.seq), nil
}

// Receipts returns a copy of everything submitted so far.
func (s *SimLedger) Receipts() []Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out
}
