package portfolio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"tradeagent/pkg/signal"
)

const snapshotVersion = 1

// Snapshot is the serialized form of the store. It is written with msgpack
// via SaveSnapshot and read back with LoadSnapshot on restart.
type Snapshot struct {
	Version            int               `msgpack:"version"`
	SavedAt            time.Time         `msgpack:"saved_at"`
	Balance            float64           `msgpack:"balance"`
	DayStart           time.Time         `msgpack:"day_start"`
	DayStartBalance    float64           `msgpack:"day_start_balance"`
	DailyRealizedPnL   float64           `msgpack:"daily_realized_pnl"`
	Positions          []signal.Position `msgpack:"positions"`
	ProcessedSourceIDs []string          `msgpack:"processed_source_ids"`
}

// Export captures the current state as a snapshot.
func (s *Store) Export(now time.Time) *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Version:          snapshotVersion,
		SavedAt:          now,
		Balance:          s.balance,
		DayStart:         s.dayStart,
		DayStartBalance:  s.dayStartBalance,
		DailyRealizedPnL: s.dailyRealized,
	}
	for _, p := range s.open {
		snap.Positions = append(snap.Positions, clonePosition(p))
	}
	for id := range s.processed {
		snap.ProcessedSourceIDs = append(snap.ProcessedSourceIDs, id)
	}
	return snap
}

// Restore replaces the store contents with the snapshot. Closed positions
// are skipped; they belong to trade history, not the open set.
func (s *Store) Restore(snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("portfolio: unsupported snapshot version %d", snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.balance = snap.Balance
	s.dayStart = snap.DayStart
	s.dayStartBalance = snap.DayStartBalance
	s.dailyRealized = snap.DailyRealizedPnL

	s.open = s.open[:0]
	s.index = make(map[string]*signal.Position, len(snap.Positions))
	for i := range snap.Positions {
		if snap.Positions[i].Closed() {
			continue
		}
		entry := clonePosition(&snap.Positions[i])
		s.open = append(s.open, &entry)
		s.index[entry.ID] = &entry
	}

	s.processed = make(map[string]struct{}, len(snap.ProcessedSourceIDs))
	for _, id := range snap.ProcessedSourceIDs {
		s.processed[id] = struct{}{}
	}
	return nil
}

// SaveSnapshot writes the snapshot to path atomically: the bytes land in a
// sibling temp file first and are renamed over the target, so a crash mid
// write never leaves a truncated snapshot behind.
func SaveSnapshot(path string, snap *Snapshot) error {
	if path == "" {
		return fmt.Errorf("portfolio: snapshot path is empty")
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("portfolio: encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("portfolio: create snapshot dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("portfolio: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("portfolio: publish snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing file is not an error;
// it returns (nil, nil) so first runs start from an empty portfolio.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("portfolio: read snapshot: %w", err)
	}
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("portfolio: decode snapshot: %w", err)
	}
	return &snap, nil
}
