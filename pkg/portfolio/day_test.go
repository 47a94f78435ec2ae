package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayBoundary(t *testing.T) {
	b, err := ParseDayBoundary("21:30")
	require.NoError(t, err, "valid boundary should parse")
	assert.Equal(t, 21, b.Hour)
	assert.Equal(t, 30, b.Minute)

	b, err = ParseDayBoundary("")
	require.NoError(t, err, "empty boundary should default to midnight")
	assert.Equal(t, 0, b.Hour)
	assert.Equal(t, 0, b.Minute)

	for _, raw := range []string{"24:00", "12:60", "noon", "9", "-1:00"} {
		_, err := ParseDayBoundary(raw)
		assert.Error(t, err, "boundary %q should be rejected", raw)
	}
}

func TestDayBoundaryStartFor(t *testing.T) {
	b, err := ParseDayBoundary("21:30")
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC), b.StartFor(after),
		"after the boundary the day starts today")

	before := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 9, 21, 30, 0, 0, time.UTC), b.StartFor(before),
		"before the boundary the day started yesterday")

	exact := time.Date(2026, 3, 10, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, exact, b.StartFor(exact), "the boundary instant belongs to the new day")

	assert.Equal(t, time.Date(2026, 3, 11, 21, 30, 0, 0, time.UTC), b.NextAfter(after))
}

func TestDayBoundaryNormalizesToUTC(t *testing.T) {
	b, err := ParseDayBoundary("00:00")
	require.NoError(t, err)

	loc := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2026, 3, 10, 6, 0, 0, 0, loc) // 2026-03-09 22:00 UTC
	start := b.StartFor(local)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), start,
		"wall clock resets are evaluated in UTC")
}
