package classify

import "strings"

// signalKeywords are the substrings that mark a message as potentially
// trading-related. A message matching none of them is discarded without
// spending a backend call. The list follows the vocabulary of the channels
// this system monitors.
var signalKeywords = []string{
	"entry", "enter", "entered", "long", "short", "buy", "sell", "buying",
	"selling", "partial", "partials", "tp", "take profit", "stop loss",
	"sl", "stop", "target", "breakeven", "break even", "close", "closed",
	"closing", "exit", "approaching", "getting ready", "zone", "position",
	"gold", "xauusd", "trimming", "trim", "took", "risk free", "protect",
	"rr", "pips", "market", "limit", "%",
}

// prefilterPass reports whether the text contains at least one trading
// keyword. Matching is case-insensitive substring containment.
func prefilterPass(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range signalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
