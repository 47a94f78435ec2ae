package signal

import (
	"fmt"
	"time"
)

// Kind classifies the trading intent carried by a message.
type Kind string

const (
	// KindEntry is an actionable request to open a position.
	KindEntry Kind = "entry"
	// KindEntryAlert is an informational pre-entry mention; never executed.
	KindEntryAlert Kind = "entry_alert"
	// KindPartialExit closes a fraction of an open position.
	KindPartialExit Kind = "partial_exit"
	// KindStopMove adjusts the stop loss of an open position.
	KindStopMove Kind = "stop_move"
	// KindClose closes an open position entirely.
	KindClose Kind = "close"
	// KindUnparseable marks a message that carries no usable trading intent.
	KindUnparseable Kind = "unparseable"
)

// Actionable reports whether the kind can result in a broker call.
func (k Kind) Actionable() bool {
	switch k {
	case KindEntry, KindPartialExit, KindStopMove, KindClose:
		return true
	}
	return false
}

// RequiresPosition reports whether the kind must resolve to an existing open position.
func (k Kind) RequiresPosition() bool {
	switch k {
	case KindPartialExit, KindStopMove, KindClose:
		return true
	}
	return false
}

// Side is the direction of a position or intent.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
	// SideUnspecified means the message did not state a direction.
	SideUnspecified Side = ""
)

// PriceRange is an entry zone quoted as a low/high pair.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Mid returns the midpoint of the range.
func (r PriceRange) Mid() float64 { return (r.Low + r.High) / 2 }

// Signal is a classified trading intent derived from exactly one message.
// SourceID is the originating message identifier and must be unique; the
// engine uses it for at-most-once execution.
type Signal struct {
	Kind            Kind        `json:"kind"`
	Symbol          string      `json:"symbol,omitempty"`
	Side            Side        `json:"side,omitempty"`
	EntryPrice      float64     `json:"entry_price,omitempty"`
	EntryRange      *PriceRange `json:"entry_range,omitempty"`
	StopLoss        float64     `json:"stop_loss,omitempty"`
	TakeProfits     []float64   `json:"take_profits,omitempty"`
	PartialFraction float64     `json:"partial_fraction,omitempty"`
	Confidence      float64     `json:"confidence"`
	SourceID        string      `json:"source_id"`
	ObservedAt      time.Time   `json:"observed_at"`
}

// Unparseable builds the degenerate signal for a message that could not be
// classified. All trading fields are zero and confidence is 0.
func Unparseable(sourceID string, observedAt time.Time) Signal {
	return Signal{Kind: KindUnparseable, SourceID: sourceID, ObservedAt: observedAt}
}

// ReferenceEntry returns the price an entry intent quotes: the explicit entry
// price when present, otherwise the midpoint of the entry zone, otherwise 0.
func (s Signal) ReferenceEntry() float64 {
	if s.EntryPrice > 0 {
		return s.EntryPrice
	}
	if s.EntryRange != nil {
		return s.EntryRange.Mid()
	}
	return 0
}

// Validate checks structural invariants after classification.
func (s Signal) Validate() error {
	if s.SourceID == "" {
		return fmt.Errorf("signal: source id is required")
	}
	switch s.Kind {
	case KindEntry, KindEntryAlert, KindPartialExit, KindStopMove, KindClose, KindUnparseable:
	default:
		return fmt.Errorf("signal: unknown kind %q", s.Kind)
	}
	if s.Kind == KindUnparseable {
		if s.Symbol != "" || s.Confidence != 0 {
			return fmt.Errorf("signal: unparseable signal must carry no trading fields")
		}
		return nil
	}
	// Position-targeting kinds may omit the symbol; the matcher resolves them
	// against the open set. Entries must name an instrument.
	if s.Symbol == "" && !s.Kind.RequiresPosition() {
		return fmt.Errorf("signal: symbol is required for kind %q", s.Kind)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal: confidence %.3f outside [0,1]", s.Confidence)
	}
	if s.Kind == KindPartialExit && (s.PartialFraction <= 0 || s.PartialFraction > 1) {
		return fmt.Errorf("signal: partial fraction %.3f outside (0,1]", s.PartialFraction)
	}
	if s.EntryRange != nil && s.EntryRange.Low > s.EntryRange.High {
		return fmt.Errorf("signal: entry range low %.8g above high %.8g", s.EntryRange.Low, s.EntryRange.High)
	}
	return nil
}
