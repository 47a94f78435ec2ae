package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractedSignal struct {
	SignalType  string    `json:"signal_type" description:"entry, partial, stop_loss_move, close or unknown"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side,omitempty"`
	EntryPrice  float64   `json:"entry_price,omitempty"`
	TakeProfits []float64 `json:"take_profits,omitempty"`
	Confidence  float64   `json:"confidence"`
	ignored     string
	Skipped     string    `json:"-"`
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema(&extractedSignal{})
	require.NoError(t, err)

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)

	assert.Contains(t, props, "signal_type")
	assert.Contains(t, props, "take_profits")
	assert.NotContains(t, props, "ignored", "unexported fields are dropped")
	assert.NotContains(t, props, "Skipped", "json:\"-\" fields are dropped")

	st := props["signal_type"].(map[string]interface{})
	assert.Equal(t, "string", st["type"])
	assert.Contains(t, st["description"], "entry")

	tp := props["take_profits"].(map[string]interface{})
	assert.Equal(t, "array", tp["type"])
	assert.Equal(t, map[string]interface{}{"type": "number"}, tp["items"])

	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"signal_type", "symbol", "confidence"}, required,
		"omitempty fields are optional")
}

func TestGenerateSchemaRejectsNonStructs(t *testing.T) {
	_, err := GenerateSchema(nil)
	assert.Error(t, err)
	_, err = GenerateSchema("not a struct")
	assert.Error(t, err)
}

func TestParseStructured(t *testing.T) {
	var out extractedSignal
	err := ParseStructured(`{"signal_type":"entry","symbol":"BTCUSDT","side":"long","confidence":0.9}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "entry", out.SignalType)
	assert.Equal(t, "BTCUSDT", out.Symbol)
	assert.InDelta(t, 0.9, out.Confidence, 1e-9)
}

func TestParseStructuredScrubsFencesAndBOM(t *testing.T) {
	cases := map[string]string{
		"json fence": "```json\n{\"signal_type\":\"close\",\"symbol\":\"XAUUSD\",\"confidence\":0.8}\n```",
		"bare fence": "```\n{\"signal_type\":\"close\",\"symbol\":\"XAUUSD\",\"confidence\":0.8}\n```",
		"bom":        "\uFEFF{\"signal_type\":\"close\",\"symbol\":\"XAUUSD\",\"confidence\":0.8}",
		"padding":    "  {\"signal_type\":\"close\",\"symbol\":\"XAUUSD\",\"confidence\":0.8}\n\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var out extractedSignal
			require.NoError(t, ParseStructured(raw, &out))
			assert.Equal(t, "close", out.SignalType)
			assert.Equal(t, "XAUUSD", out.Symbol)
		})
	}
}

func TestParseStructuredErrors(t *testing.T) {
	assert.Error(t, ParseStructured("{}", nil), "nil target")

	var out extractedSignal
	assert.Error(t, ParseStructured("{}", out), "non-pointer target")
	assert.Error(t, ParseStructured("not json at all", &out))
}
