package engine

import (
	"errors"
	"fmt"

	"tradeagent/pkg/signal"
)

// MatchError reports that a position-targeting signal resolved to no open
// position.
type MatchError struct {
	Symbol string
	Side   signal.Side
}

func (e *MatchError) Error() string {
	switch {
	case e.Symbol == "" && e.Side == signal.SideUnspecified:
		return "engine: no open position to match"
	case e.Side == signal.SideUnspecified:
		return fmt.Sprintf("engine: no open position for %s", e.Symbol)
	case e.Symbol == "":
		return fmt.Sprintf("engine: no open %s position", e.Side)
	}
	return fmt.Sprintf("engine: no open %s position for %s", e.Side, e.Symbol)
}

// IsNoMatch reports whether err is a failed position match.
func IsNoMatch(err error) bool {
	var matchErr *MatchError
	return errors.As(err, &matchErr)
}

// Match resolves a partial-exit, stop-move or close signal to exactly one
// open position. An empty signal symbol matches any position; a specified
// side narrows the candidates. When several positions qualify the most
// recently opened one wins: conversational signals almost always refer to
// the latest trade. The returned count is the candidate set size so callers
// can log ambiguous matches.
func Match(sig signal.Signal, open []signal.Position) (signal.Position, int, error) {
	var candidates []signal.Position
	for _, pos := range open {
		if sig.Symbol != "" && pos.Symbol != sig.Symbol {
			continue
		}
		if sig.Side != signal.SideUnspecified && pos.Side != sig.Side {
			continue
		}
		candidates = append(candidates, pos)
	}

	if len(candidates) == 0 {
		return signal.Position{}, 0, &MatchError{Symbol: sig.Symbol, Side: sig.Side}
	}

	best := 0
	for i := 1; i < len(candidates); i++ {
		if !candidates[i].OpenedAt.Before(candidates[best].OpenedAt) {
			best = i
		}
	}
	return candidates[best], len(candidates), nil
}
