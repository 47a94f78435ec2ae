package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"tradeagent/pkg/intake"
	"tradeagent/pkg/signal"
)

// ruleBackend is a deterministic keyword/regex parser covering the common
// message shapes of the monitored channels. It exists as an offline fallback
// and for tests; it never returns an error.
type ruleBackend struct {
	cfg *Config
}

func newRuleBackend(cfg *Config) *ruleBackend { return &ruleBackend{cfg: cfg} }

func (b *ruleBackend) name() string { return BackendRules }

var (
	partialRe   = regexp.MustCompile(`(?i)\btrim(?:ming|med)?\b|\bpartials?\b|(?:took|taking|take)\s+\d+(?:\.\d+)?\s*%|\d+(?:\.\d+)?\s*%\s*(?:off|out|partial)`)
	breakevenRe = regexp.MustCompile(`(?i)\bbreak\s*even\b|\brisk\s*free\b|\bprotect\b`)
	stopMoveRe  = regexp.MustCompile(`(?i)\bmov\w*\s+(?:the\s+)?(?:sl|stop(?:\s*loss)?)\b|\b(?:sl|stop(?:\s*loss)?)\s+to\s+\d`)
	closeRe     = regexp.MustCompile(`(?i)\bclos(?:e|ed|ing)\b|\ball\s+out\b`)
	alertRe     = regexp.MustCompile(`(?i)\bapproaching\b|\bgetting\s+ready\b|\blooking\s+at\b|\bwatching\b`)
	entryRe     = regexp.MustCompile(`(?i)\benter(?:ed|ing)?\b|\bentry\b|\bbuying\b|\bselling\b|\bgoing\s+(?:long|short)\b|\bi'?m\s+in\b|\bbought\b|\bsold\b`)

	longRe  = regexp.MustCompile(`(?i)\b(?:long|buy|buying|bought)\b`)
	shortRe = regexp.MustCompile(`(?i)\b(?:short|sell|selling|sold)\b`)

	zoneRe       = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[-–]\s*(\d+(?:\.\d+)?)`)
	entryPriceRe = regexp.MustCompile(`(?i)\bentry\s+(\d+(?:\.\d+)?)`)
	atPriceRe    = regexp.MustCompile(`(?i)(?:\bat\b|@)\s*(\d+(?:\.\d+)?)`)
	stopPriceRe  = regexp.MustCompile(`(?i)\b(?:sl|stop(?:\s*loss)?)\s*(?:at|to|:|=)?\s*(\d+(?:\.\d+)?)`)
	takeProfitRe = regexp.MustCompile(`(?i)\b(?:tp|take\s*profits?|targets?)\s*(?:at|:|=)?\s*(\d+(?:\.\d+)?(?:\s*,\s*\d+(?:\.\d+)?)*)`)
	percentRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

	tickerRe = regexp.MustCompile(`\b[A-Z]{2,12}(?:[/_-][A-Z]{2,6})?\b`)
	aliasRe  = regexp.MustCompile(`(?i)\b(gold|silver|bitcoin|ethereum)\b`)
)

// tickerStopwords are all-caps words that look like tickers but are channel
// vocabulary, not instruments.
var tickerStopwords = map[string]struct{}{
	"SL": {}, "TP": {}, "RR": {}, "BE": {}, "ENTRY": {}, "MARKET": {},
	"LIMIT": {}, "BUY": {}, "SELL": {}, "BUYING": {}, "SELLING": {},
	"LONG": {}, "SHORT": {}, "STOP": {}, "LOSS": {}, "CLOSE": {},
	"CLOSED": {}, "CLOSING": {}, "PRICE": {}, "APPROACHING": {}, "ZONE": {},
	"TAKE": {}, "PROFIT": {}, "PROFITS": {}, "TARGET": {}, "TARGETS": {},
	"RISK": {}, "FREE": {}, "PROTECT": {}, "POSITION": {}, "POSITIONS": {},
	"PIPS": {}, "OVER": {}, "MOVE": {}, "MOVING": {}, "ALL": {}, "OUT": {},
	"OFF": {}, "AND": {}, "THE": {}, "FOR": {}, "WITH": {}, "NOW": {},
	"READY": {}, "OK": {}, "USD": {},
}

func (b *ruleBackend) classify(_ context.Context, msg intake.Message) (signal.Signal, error) {
	text := msg.Text
	kind, breakeven := detectKind(text)
	if kind == signal.KindUnparseable {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), nil
	}

	sig := signal.Signal{
		Kind:       kind,
		Symbol:     extractSymbol(text),
		Side:       detectSide(text),
		SourceID:   msg.SourceID,
		ObservedAt: msg.ObservedAt,
	}
	if sig.Symbol == "" && !kind.RequiresPosition() {
		return signal.Unparseable(msg.SourceID, msg.ObservedAt), nil
	}

	if m := stopPriceRe.FindStringSubmatch(text); m != nil {
		sig.StopLoss = parsePrice(m[1])
	}
	if m := takeProfitRe.FindStringSubmatch(text); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			if p := parsePrice(part); p > 0 {
				sig.TakeProfits = append(sig.TakeProfits, p)
			}
		}
	}

	switch kind {
	case signal.KindEntry, signal.KindEntryAlert:
		if m := zoneRe.FindStringSubmatch(text); m != nil {
			low, high := parsePrice(m[1]), parsePrice(m[2])
			if low > 0 && high >= low {
				sig.EntryRange = &signal.PriceRange{Low: low, High: high}
			}
		}
		if sig.EntryRange == nil {
			if m := entryPriceRe.FindStringSubmatch(text); m != nil {
				sig.EntryPrice = parsePrice(m[1])
			} else if m := atPriceRe.FindStringSubmatch(text); m != nil {
				sig.EntryPrice = parsePrice(m[1])
			}
		}
	case signal.KindPartialExit:
		pct := 0.0
		if m := percentRe.FindStringSubmatch(text); m != nil {
			pct = parsePrice(m[1])
		}
		sig.PartialFraction = partialFraction(pct, b.cfg.DefaultPartialFraction)
	case signal.KindStopMove:
		if breakeven {
			// Breakeven requests carry no price; the engine resolves the
			// position's entry price at execution time.
			sig.StopLoss = 0
		}
	}

	sig.Confidence = ruleConfidence(sig)
	return sig, nil
}

// detectKind orders the intent checks so that de-risking vocabulary wins over
// the entry words that often appear in the same sentence.
func detectKind(text string) (signal.Kind, bool) {
	switch {
	case partialRe.MatchString(text):
		return signal.KindPartialExit, false
	case breakevenRe.MatchString(text):
		return signal.KindStopMove, true
	case stopMoveRe.MatchString(text):
		return signal.KindStopMove, false
	case closeRe.MatchString(text):
		return signal.KindClose, false
	case alertRe.MatchString(text):
		return signal.KindEntryAlert, false
	case entryRe.MatchString(text):
		return signal.KindEntry, false
	default:
		return signal.KindUnparseable, false
	}
}

func detectSide(text string) signal.Side {
	long := longRe.MatchString(text)
	short := shortRe.MatchString(text)
	switch {
	case long && !short:
		return signal.SideLong
	case short && !long:
		return signal.SideShort
	default:
		return signal.SideUnspecified
	}
}

// extractSymbol picks the first ticker-looking token, falling back to spelled
// out instrument names (gold, bitcoin). Normalization maps aliases onto
// canonical codes.
func extractSymbol(text string) string {
	for _, tok := range tickerRe.FindAllString(text, -1) {
		if _, stop := tickerStopwords[tok]; stop {
			continue
		}
		return signal.NormalizeSymbol(tok)
	}
	if m := aliasRe.FindString(text); m != "" {
		return signal.NormalizeSymbol(m)
	}
	return ""
}

// ruleConfidence mirrors the bands the prompt asks the LLM to use, picked
// deterministically from how complete the parsed signal is.
func ruleConfidence(sig signal.Signal) float64 {
	switch sig.Kind {
	case signal.KindEntry:
		hasPrice := sig.EntryPrice > 0 || sig.EntryRange != nil
		switch {
		case hasPrice && sig.StopLoss > 0:
			return 0.95
		case hasPrice:
			return 0.9
		default:
			return 0.72
		}
	case signal.KindEntryAlert:
		return 0.6
	default:
		return 0.8
	}
}

func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
