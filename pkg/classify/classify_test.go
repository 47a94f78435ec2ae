package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeagent/pkg/intake"
	"tradeagent/pkg/llm"
	"tradeagent/pkg/signal"
)

// fakeLLM returns a fixed structured contract, or an error when failWith is set.
type fakeLLM struct {
	contract string
	failWith error
	calls    int
}

func (f *fakeLLM) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, nil
}

func (f *fakeLLM) ChatStructured(_ context.Context, _ *llm.ChatRequest, target interface{}) (interface{}, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	if err := llm.ParseStructured(f.contract, target); err != nil {
		return nil, err
	}
	return target, nil
}

func (f *fakeLLM) GetConfig() *llm.Config { return &llm.Config{} }
func (f *fakeLLM) Close() error           { return nil }

func msg(text string) intake.Message {
	return intake.Message{
		SourceID:   "msg-1",
		Channel:    "signals",
		Text:       text,
		ObservedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestClassifyEntryViaLLM(t *testing.T) {
	client := &fakeLLM{contract: `{
		"signal_type": "entry",
		"symbol": "GOLD",
		"side": "buy",
		"entry_price": 3989.75,
		"stop_loss": 3987.2,
		"take_profit_levels": [3995.0],
		"confidence": 0.95
	}`}
	c, err := New(Default(), client)
	require.NoError(t, err, "classifier should build with llm backend")

	sig, err := c.Classify(context.Background(), msg("BUYING GOLD @ MARKET ENTRY 3989.75 SL 3987.2 TP 3995"))
	require.NoError(t, err, "backend succeeded")

	assert.Equal(t, signal.KindEntry, sig.Kind)
	assert.Equal(t, "XAUUSD", sig.Symbol, "GOLD should normalize to XAUUSD")
	assert.Equal(t, signal.SideLong, sig.Side)
	assert.Equal(t, 3989.75, sig.EntryPrice)
	assert.Equal(t, 3987.2, sig.StopLoss)
	assert.Equal(t, []float64{3995}, sig.TakeProfits)
	assert.Equal(t, 0.95, sig.Confidence)
	assert.Equal(t, "msg-1", sig.SourceID, "source id carried through")
}

func TestClassifyPrefilterSkipsBackend(t *testing.T) {
	client := &fakeLLM{contract: `{"signal_type":"entry"}`}
	c, err := New(Default(), client)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), msg("gm everyone, how was your weekend?"))
	require.NoError(t, err, "prefilter rejection is not an error")

	assert.Equal(t, signal.KindUnparseable, sig.Kind)
	assert.Zero(t, sig.Confidence)
	assert.Equal(t, 0, client.calls, "backend must not be called for chatter")
}

func TestClassifyBackendFailureDegrades(t *testing.T) {
	client := &fakeLLM{failWith: errors.New("quota exhausted")}
	c, err := New(Default(), client)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), msg("BUYING GOLD ENTRY 3989.75"))
	require.Error(t, err, "backend failure surfaces for logging")
	assert.True(t, IsClassification(err), "error should be a ClassificationError")
	assert.Equal(t, signal.KindUnparseable, sig.Kind, "signal degrades to unparseable")
	assert.Equal(t, "msg-1", sig.SourceID)
}

func TestClassifyContractNormalization(t *testing.T) {
	client := &fakeLLM{contract: `{"signal_type": "entry", "symbol": "BTCUSDT", "confidence": 4.2}`}
	c, err := New(Default(), client)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), msg("entry BTCUSDT"))
	require.NoError(t, err, "clamped confidence is not a contract violation")
	assert.Equal(t, 1.0, sig.Confidence, "confidence above 1 clamps to 1")

	// A partial naming no size gets the default fraction.
	client.contract = `{"signal_type": "partial", "symbol": "BTCUSDT", "confidence": 0.8}`
	sig, err = c.Classify(context.Background(), msg("trimming BTCUSDT here"))
	require.NoError(t, err)
	assert.Equal(t, signal.KindPartialExit, sig.Kind)
	assert.Equal(t, 0.5, sig.PartialFraction, "default partial fraction is half")
}

func TestClassifyMalformedJSONDegrades(t *testing.T) {
	client := &fakeLLM{contract: `sorry, I cannot help with that`}
	c, err := New(Default(), client)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), msg("BUYING GOLD ENTRY 3989.75"))
	require.Error(t, err, "non-JSON response is a backend failure")
	assert.True(t, IsClassification(err))
	assert.Equal(t, signal.KindUnparseable, sig.Kind)
}

func TestClassifyUnknownTypeDegrades(t *testing.T) {
	client := &fakeLLM{contract: `{"signal_type": "unknown", "confidence": 0.3}`}
	c, err := New(Default(), client)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), msg("Booom!!! 100 pips"))
	require.NoError(t, err, "unknown type is a clean degrade, not an error")
	assert.Equal(t, signal.KindUnparseable, sig.Kind)
}

func TestClassifyInvalidMessage(t *testing.T) {
	c, err := New(&Config{Backend: BackendRules, Prefilter: true, DefaultPartialFraction: 0.5, RequestTimeout: time.Second}, nil)
	require.NoError(t, err)

	sig, err := c.Classify(context.Background(), intake.Message{SourceID: "msg-2", Text: "   "})
	require.Error(t, err, "empty text is a feed defect")
	assert.Equal(t, signal.KindUnparseable, sig.Kind)
}

func TestNewRequiresClientForLLMBackend(t *testing.T) {
	_, err := New(Default(), nil)
	assert.Error(t, err, "llm backend needs a client")

	cfg := Default()
	cfg.Backend = BackendRules
	c, err := New(cfg, nil)
	require.NoError(t, err, "rule backend needs no client")
	assert.Equal(t, BackendRules, c.Backend())
}
