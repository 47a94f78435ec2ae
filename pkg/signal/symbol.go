package signal

import "strings"

// symbolAliases maps common chat spellings to canonical instrument codes.
var symbolAliases = map[string]string{
	"GOLD":     "XAUUSD",
	"XAU":      "XAUUSD",
	"SILVER":   "XAGUSD",
	"XAG":      "XAGUSD",
	"BITCOIN":  "BTCUSDT",
	"BTC":      "BTCUSDT",
	"ETHEREUM": "ETHUSDT",
	"ETH":      "ETHUSDT",
}

// NormalizeSymbol canonicalizes an instrument identifier: trims, upper-cases,
// removes pair separators (BTC/USDT -> BTCUSDT) and applies alias mappings
// (GOLD -> XAUUSD).
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
	if canonical, ok := symbolAliases[s]; ok {
		return canonical
	}
	return s
}

// ParseSide maps free-form direction words onto a Side.
func ParseSide(raw string) Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "long", "buy":
		return SideLong
	case "short", "sell":
		return SideShort
	default:
		return SideUnspecified
	}
}

// ParseKind maps the classifier contract's signal type onto a Kind.
// Unknown values degrade to Unparseable rather than erroring so a sloppy
// backend response never crashes the pipeline.
func ParseKind(raw string) Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "entry":
		return KindEntry
	case "entry_alert", "alert":
		return KindEntryAlert
	case "partial_exit", "partial":
		return KindPartialExit
	case "stop_move", "stop_loss_move", "sl_move":
		return KindStopMove
	case "close", "exit":
		return KindClose
	default:
		return KindUnparseable
	}
}
