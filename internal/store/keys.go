package store

import (
	"strings"
	"time"

	"tradeagent/internal/config"
)

// Namespace is the Redis key prefix for the agent's cache entries.
const Namespace = "tradeagent"

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// TradesRecentKey caches the recent-trades list for a symbol; an empty
// symbol keys the cross-symbol list.
func TradesRecentKey(symbol string) string {
	if symbol == "" {
		return formatKey("trades", "recent", "all")
	}
	return formatKey("trades", "recent", symbol)
}

// TradeBySourceKey caches a single trade row looked up by source id.
func TradeBySourceKey(sourceID string) string {
	return formatKey("trades", "source", sourceID)
}
