// Package journal persists one outcome record per processed signal as
// daily-rotated JSONL files. The journal is the always-on audit trail; the
// optional Postgres trade history complements it.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Disposition classifies how a processed signal ended.
type Disposition string

const (
	// DispositionExecuted means a broker call succeeded and state was committed.
	DispositionExecuted Disposition = "executed"
	// DispositionRejected means risk policy or matching declined the signal.
	DispositionRejected Disposition = "rejected"
	// DispositionFailed means a broker or backend call failed.
	DispositionFailed Disposition = "failed"
	// DispositionDuplicate means the source id was already processed.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionIgnored means the signal carried nothing executable.
	DispositionIgnored Disposition = "ignored"
	// DispositionUnreconciled means a venue-side fill exists that the engine
	// could neither commit nor close; operator reconciliation is required.
	DispositionUnreconciled Disposition = "unreconciled"
)

// Record captures the outcome of one processed signal for audit and replay
// analysis.
type Record struct {
	Timestamp      time.Time              `json:"timestamp"`
	SourceID       string                 `json:"source_id"`
	Kind           string                 `json:"kind"`
	Symbol         string                 `json:"symbol,omitempty"`
	Disposition    Disposition            `json:"disposition"`
	Reason         string                 `json:"reason,omitempty"`
	PositionID     string                 `json:"position_id,omitempty"`
	OrderRef       string                 `json:"order_ref,omitempty"`
	FillPrice      float64                `json:"fill_price,omitempty"`
	FilledQuantity float64                `json:"filled_quantity,omitempty"`
	RealizedPnL    float64                `json:"realized_pnl,omitempty"`
	Extra          map[string]interface{} `json:"extra,omitempty"`
}

// Writer appends outcome records to per-day JSONL files under dir. Writes
// are serialized internally; per-symbol workers share one Writer.
type Writer struct {
	mu    sync.Mutex
	dir   string
	day   string
	file  *os.File
	nowFn func() time.Time
}

// NewWriter constructs a journal writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "journal"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, nowFn: time.Now}, nil
}

// Write appends one record, rotating to a new file at each UTC day boundary.
func (w *Writer) Write(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("journal: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	day := rec.Timestamp.UTC().Format("20060102")
	if w.file == nil || day != w.day {
		if err := w.rotate(day); err != nil {
			return err
		}
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: append record: %w", err)
	}
	return nil
}

func (w *Writer) rotate(day string) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	name := fmt.Sprintf("outcomes_%s.jsonl", day)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", name, err)
	}
	w.file, w.day = f, day
	return nil
}

// Close flushes and closes the current file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
