package classify

import (
	"time"

	"tradeagent/pkg/signal"
)

// signalContract mirrors the structured JSON contract expected from the LLM.
// Field names follow the prompt in etc/prompts/classifier; partial sizes
// arrive as whole percentages and confidence as a 0..1 fraction.
type signalContract struct {
	SignalType        string            `json:"signal_type"`
	Symbol            string            `json:"symbol"`
	Side              string            `json:"side"`
	EntryPrice        float64           `json:"entry_price"`
	EntryZoneLow      float64           `json:"entry_zone_low"`
	EntryZoneHigh     float64           `json:"entry_zone_high"`
	StopLoss          float64           `json:"stop_loss"`
	TakeProfitLevels  []float64         `json:"take_profit_levels"`
	PartialPercentage float64           `json:"partial_percentage"`
	Confidence        float64           `json:"confidence"`
	Metadata          map[string]string `json:"metadata"`
}

// mapSignalContract converts the LLM contract into the internal Signal form.
// It normalizes the symbol, clamps confidence into [0,1] and fills the
// default partial fraction when the message named none. An unknown
// signal_type degrades to Unparseable.
func mapSignalContract(c signalContract, defaultPartial float64, sourceID string, observedAt time.Time) signal.Signal {
	kind := signal.ParseKind(c.SignalType)
	if kind == signal.KindUnparseable {
		return signal.Unparseable(sourceID, observedAt)
	}

	sig := signal.Signal{
		Kind:       kind,
		Symbol:     signal.NormalizeSymbol(c.Symbol),
		Side:       signal.ParseSide(c.Side),
		EntryPrice: c.EntryPrice,
		StopLoss:   c.StopLoss,
		Confidence: clamp01(c.Confidence),
		SourceID:   sourceID,
		ObservedAt: observedAt,
	}
	if sig.Symbol == "" && !kind.RequiresPosition() {
		// An entry without an instrument cannot be routed anywhere. Kinds that
		// target an open position may omit the symbol; the matcher resolves it.
		return signal.Unparseable(sourceID, observedAt)
	}
	if c.EntryZoneLow > 0 && c.EntryZoneHigh >= c.EntryZoneLow {
		sig.EntryRange = &signal.PriceRange{Low: c.EntryZoneLow, High: c.EntryZoneHigh}
	}
	for _, tp := range c.TakeProfitLevels {
		if tp > 0 {
			sig.TakeProfits = append(sig.TakeProfits, tp)
		}
	}
	if kind == signal.KindPartialExit {
		sig.PartialFraction = partialFraction(c.PartialPercentage, defaultPartial)
	}
	return sig
}

// partialFraction converts a whole percentage (50 -> 0.5) into a fraction,
// accepting fractional input (0.5) as-is and falling back to the configured
// default when the value is absent or out of range.
func partialFraction(pct, fallback float64) float64 {
	switch {
	case pct > 1 && pct <= 100:
		return pct / 100
	case pct > 0 && pct <= 1:
		return pct
	default:
		return fallback
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
