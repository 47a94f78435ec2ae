package intake

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	msg := Message{SourceID: "m1", Text: "entered BTCUSDT long"}
	assert.NoError(t, msg.Validate())

	assert.Error(t, (&Message{Text: "no id"}).Validate(), "source id is required")
	assert.Error(t, (&Message{SourceID: "m2", Text: "   "}).Validate(), "blank text is rejected")
}

func TestChannelSourceDeliversInOrder(t *testing.T) {
	src := NewChannelSource(4)
	out := make(chan Message, 8)

	done := make(chan error, 1)
	go func() { done <- src.Run(context.Background(), out) }()

	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, src.Publish(ctx, Message{SourceID: id, Text: "long BTC"}))
	}
	src.Close()

	require.NoError(t, <-done, "run should finish after close")

	var got []string
	for msg := range out {
		got = append(got, msg.SourceID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, got, "buffered messages drain in order")
}

func TestChannelSourcePublishAfterClose(t *testing.T) {
	src := NewChannelSource(1)
	src.Close()
	err := src.Publish(context.Background(), Message{SourceID: "m1", Text: "long BTC"})
	assert.Error(t, err, "publish must fail once closed")
}

func TestChannelSourcePublishRejectsInvalid(t *testing.T) {
	src := NewChannelSource(1)
	defer src.Close()
	err := src.Publish(context.Background(), Message{Text: "missing id"})
	assert.Error(t, err)
}

func TestFileSourceReplaysJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.jsonl")

	lines := []Message{
		{SourceID: "m1", Channel: "signals", Text: "entered BTCUSDT long at 45000", ObservedAt: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
		{SourceID: "m2", Text: "took 50% off"},
	}
	var buf []byte
	buf = append(buf, []byte("# exported chat log\n\n")...)
	for _, msg := range lines {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	// A record without a source id gets a deterministic synthetic one.
	buf = append(buf, []byte(`{"text":"moving SL to breakeven"}`+"\n")...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)

	out := make(chan Message, 8)
	require.NoError(t, src.Run(context.Background(), out))

	var got []Message
	for msg := range out {
		got = append(got, msg)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].SourceID)
	assert.Equal(t, "signals", got[0].Channel)
	assert.Equal(t, "m2", got[1].SourceID)
	assert.Equal(t, path+":5", got[2].SourceID, "synthetic id is file:line")
	assert.False(t, got[2].ObservedAt.IsZero(), "missing timestamp is stamped")
}

func TestFileSourceMalformedLineAborts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"source_id":"m1","text":"ok"}`+"\n{not json\n"), 0o644))

	src, err := NewFileSource(path)
	require.NoError(t, err)

	out := make(chan Message, 8)
	err = src.Run(context.Background(), out)
	assert.Error(t, err, "malformed line must abort the replay")
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}
