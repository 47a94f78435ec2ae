package portfolio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeagent/pkg/signal"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(midnightBoundary(t))
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s.SetBalance(10000, now)

	pos := signal.NewPosition("BTCUSDT", signal.SideLong, 1, 100, now)
	pos.StopLoss = 95
	pos.TakeProfits = []float64{110, 120}
	require.NoError(t, s.CommitOpen(pos, 0, now))
	_, err := s.CommitReduce(pos.ID, 0.4, 110, now.Add(time.Hour))
	require.NoError(t, err)
	s.MarkProcessed("msg-1")
	s.MarkProcessed("msg-2")

	path := filepath.Join(t.TempDir(), "state", "portfolio.msgpack")
	require.NoError(t, SaveSnapshot(path, s.Export(now.Add(2*time.Hour))))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.NotNil(t, snap)

	restored := New(midnightBoundary(t))
	require.NoError(t, restored.Restore(snap))

	view := restored.View(now.Add(2 * time.Hour))
	assert.InDelta(t, 10004, view.Balance, 1e-9, "balance includes the 4.0 realized on the partial")
	assert.InDelta(t, 4, view.DailyRealizedPnL, 1e-9)
	require.Len(t, view.Open, 1)
	assert.Equal(t, pos.ID, view.Open[0].ID)
	assert.Equal(t, signal.StatusPartiallyClosed, view.Open[0].Status)
	assert.InDelta(t, 0.6, view.Open[0].RemainingSize, 1e-9)
	assert.Equal(t, []float64{110, 120}, view.Open[0].TakeProfits)

	assert.True(t, restored.Seen("msg-1"))
	assert.True(t, restored.Seen("msg-2"))
	assert.False(t, restored.Seen("msg-3"))
}

func TestSnapshotRestoreSkipsClosedPositions(t *testing.T) {
	closed := signal.Position{
		ID:     "dead",
		Symbol: "BTCUSDT",
		Side:   signal.SideLong,
		Status: signal.StatusClosed,
	}
	open := signal.Position{
		ID:            "live",
		Symbol:        "ETHUSDT",
		Side:          signal.SideShort,
		OpenedSize:    1,
		RemainingSize: 1,
		Status:        signal.StatusOpen,
	}
	snap := &Snapshot{
		Version:   snapshotVersion,
		Positions: []signal.Position{closed, open},
	}

	s := New(midnightBoundary(t))
	require.NoError(t, s.Restore(snap))

	positions := s.OpenPositions()
	require.Len(t, positions, 1)
	assert.Equal(t, "live", positions[0].ID)
}

func TestSnapshotVersionMismatch(t *testing.T) {
	s := New(midnightBoundary(t))
	err := s.Restore(&Snapshot{Version: 99})
	assert.Error(t, err, "unknown snapshot versions must not restore")
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	snap, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.msgpack"))
	require.NoError(t, err, "a missing snapshot is a clean first start")
	assert.Nil(t, snap)
}
