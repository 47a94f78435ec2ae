package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tradeagent/pkg/signal"
)

const sizeEpsilon = 1e-9

// ErrPositionLimit is returned by CommitOpen when inserting the position
// would exceed the configured cap. This is the commit-time re-check that
// closes the gap between an advisory risk accept and the actual commit.
var ErrPositionLimit = errors.New("portfolio: open position limit reached")

// View is an immutable copy of portfolio state used for risk evaluation and
// position matching. It never aliases live store memory.
type View struct {
	Balance          float64
	DayStartBalance  float64
	DailyRealizedPnL float64
	Open             []signal.Position
}

// OpenCount returns the number of open positions in the view.
func (v View) OpenCount() int { return len(v.Open) }

// DailyLossFraction returns the day's realized loss as a fraction of the
// day-start balance. Days that are flat or in profit report zero.
func (v View) DailyLossFraction() float64 {
	if v.DayStartBalance <= 0 || v.DailyRealizedPnL >= 0 {
		return 0
	}
	return -v.DailyRealizedPnL / v.DayStartBalance
}

// Store is the authoritative in-memory record of balance, open positions,
// daily counters and processed message ids. All mutation happens under its
// lock; callers hold it only for commits, never across broker I/O.
type Store struct {
	mu sync.RWMutex

	boundary DayBoundary

	balance         float64
	dayStart        time.Time
	dayStartBalance float64
	dailyRealized   float64

	open      []*signal.Position          // insertion order = open order
	index     map[string]*signal.Position // position id -> entry in open
	processed map[string]struct{}
}

// New constructs an empty store with the given daily reset boundary.
func New(boundary DayBoundary) *Store {
	return &Store{
		boundary:  boundary,
		index:     make(map[string]*signal.Position),
		processed: make(map[string]struct{}),
	}
}

// rolloverLocked resets daily counters when now has crossed the boundary.
func (s *Store) rolloverLocked(now time.Time) {
	start := s.boundary.StartFor(now)
	if s.dayStart.IsZero() {
		s.dayStart = start
		s.dayStartBalance = s.balance
		return
	}
	if start.After(s.dayStart) {
		s.dayStart = start
		s.dayStartBalance = s.balance
		s.dailyRealized = 0
	}
}

// Seen reports whether sourceID was already acted upon.
func (s *Store) Seen(sourceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[sourceID]
	return ok
}

// MarkProcessed records sourceID so redelivery never re-executes it. It is
// called for every outcome, including rejections.
func (s *Store) MarkProcessed(sourceID string) {
	if sourceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[sourceID] = struct{}{}
}

// SetBalance records equity refreshed from the broker.
func (s *Store) SetBalance(balance float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)
	s.balance = balance
	if s.dayStartBalance == 0 {
		s.dayStartBalance = balance
	}
}

// View returns a consistent copy of the state for evaluation outside the lock.
func (s *Store) View(now time.Time) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)

	open := make([]signal.Position, 0, len(s.open))
	for _, p := range s.open {
		open = append(open, clonePosition(p))
	}
	return View{
		Balance:          s.balance,
		DayStartBalance:  s.dayStartBalance,
		DailyRealizedPnL: s.dailyRealized,
		Open:             open,
	}
}

// CommitOpen inserts a broker-confirmed position. The cap is re-validated
// under the lock; a concurrent sibling may have consumed the slot since the
// advisory accept, in which case ErrPositionLimit is returned and the caller
// must unwind the venue-side order.
func (s *Store) CommitOpen(pos *signal.Position, maxOpen int, now time.Time) error {
	if pos == nil {
		return fmt.Errorf("portfolio: nil position")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)

	if maxOpen > 0 && len(s.open) >= maxOpen {
		return ErrPositionLimit
	}
	if _, exists := s.index[pos.ID]; exists {
		return fmt.Errorf("portfolio: duplicate position id %s", pos.ID)
	}
	entry := clonePosition(pos)
	s.open = append(s.open, &entry)
	s.index[pos.ID] = &entry
	return nil
}

// CommitReduce applies a broker-confirmed fill that reduces a position by
// quantity units at fillPrice. Realized PnL accrues to the position, the
// daily counter and the balance. A position whose remaining size reaches
// zero is promoted to Closed and leaves the open set.
func (s *Store) CommitReduce(positionID string, quantity, fillPrice float64, now time.Time) (signal.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked(now)

	pos, ok := s.index[positionID]
	if !ok {
		return signal.Position{}, fmt.Errorf("portfolio: unknown position %s", positionID)
	}
	if quantity <= 0 {
		return signal.Position{}, fmt.Errorf("portfolio: reduce quantity must be positive")
	}
	if quantity > pos.RemainingSize {
		quantity = pos.RemainingSize
	}

	realized := signal.ProfitOn(pos.Side, pos.EntryPrice, fillPrice, quantity)
	pos.RemainingSize -= quantity
	pos.RealizedPnL += realized
	s.dailyRealized += realized
	s.balance += realized

	if pos.RemainingSize <= sizeEpsilon {
		pos.RemainingSize = 0
		pos.Status = signal.StatusClosed
		pos.ClosedAt = now
		s.removeLocked(positionID)
	} else {
		pos.Status = signal.StatusPartiallyClosed
	}
	return clonePosition(pos), nil
}

// CommitStop applies a broker-acknowledged stop modification.
func (s *Store) CommitStop(positionID string, newStop float64) (signal.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[positionID]
	if !ok {
		return signal.Position{}, fmt.Errorf("portfolio: unknown position %s", positionID)
	}
	pos.StopLoss = newStop
	return clonePosition(pos), nil
}

// Position returns a copy of the open position with the given id.
func (s *Store) Position(id string) (signal.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return signal.Position{}, false
	}
	return clonePosition(pos), true
}

// OpenPositions returns copies of all open positions in open order.
func (s *Store) OpenPositions() []signal.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]signal.Position, 0, len(s.open))
	for _, p := range s.open {
		out = append(out, clonePosition(p))
	}
	return out
}

func (s *Store) removeLocked(positionID string) {
	delete(s.index, positionID)
	for i, p := range s.open {
		if p.ID == positionID {
			s.open = append(s.open[:i], s.open[i+1:]...)
			return
		}
	}
}

func clonePosition(p *signal.Position) signal.Position {
	out := *p
	if p.TakeProfits != nil {
		out.TakeProfits = append([]float64(nil), p.TakeProfits...)
	}
	return out
}
