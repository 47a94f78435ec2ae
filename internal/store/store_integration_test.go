package store

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeagent/internal/config"
	"tradeagent/pkg/journal"
)

// TestStoreRoundTrip exercises the trades table against a real Postgres.
// Provide TRADEAGENT_PG_DSN (schema from scripts/schema.sql applied) to run.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TRADEAGENT_PG_DSN")
	if dsn == "" {
		t.Skip("TRADEAGENT_PG_DSN not set; skipping postgres integration test")
	}

	ttl := NewTTLSet(config.CacheTTL{Short: 10, Medium: 60, Long: 300})
	s, err := New(config.PostgresConf{DSN: dsn}, nil, ttl)
	require.NoError(t, err)

	ctx := context.Background()
	sourceID := "it-" + time.Now().UTC().Format("20060102150405.000")

	require.NoError(t, s.Record(ctx, &journal.Record{
		Timestamp:      time.Now().UTC(),
		SourceID:       sourceID,
		Kind:           "entry",
		Symbol:         "BTCUSDT",
		Disposition:    journal.DispositionExecuted,
		PositionID:     "pos-it",
		OrderRef:       "ref-it",
		FillPrice:      45000,
		FilledQuantity: 0.1,
	}))

	// Non-executed outcomes never become rows.
	require.NoError(t, s.Record(ctx, &journal.Record{
		SourceID:    sourceID + "-rejected",
		Disposition: journal.DispositionRejected,
		Reason:      "low_confidence",
	}))

	got, err := s.BySource(ctx, sourceID)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, 45000.0, got.FillPrice)

	_, err = s.BySource(ctx, sourceID+"-rejected")
	assert.Error(t, err, "rejected outcome must not be stored")

	recent, err := s.Recent(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, sourceID, recent[0].SourceID, "most recent fill first")
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(config.PostgresConf{}, nil, NewTTLSet(config.CacheTTL{}))
	assert.Error(t, err)
}

func TestTTLSetDefaults(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{})
	assert.Equal(t, 10*time.Second, ttl.Short)
	assert.Equal(t, time.Minute, ttl.Medium)
	assert.Equal(t, 5*time.Minute, ttl.Long)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "tradeagent:trades:recent:BTCUSDT", TradesRecentKey("BTCUSDT"))
	assert.Equal(t, "tradeagent:trades:recent:all", TradesRecentKey(""))
	assert.Equal(t, "tradeagent:trades:source:m1", TradeBySourceKey("m1"))
}
