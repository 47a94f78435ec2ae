package risk

import (
	"strings"
	"testing"
)

func TestLoadConfigFromReader(t *testing.T) {
	yamlData := `
position_size_percent: 3
max_position_size_percent: 6
max_open_positions: 4
max_daily_loss_percent: 2.5
confidence_threshold: 0.8
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yamlData))
	if err != nil {
		t.Fatalf("LoadConfigFromReader failed: %v", err)
	}
	if cfg.PositionSizePercent != 3 {
		t.Errorf("PositionSizePercent = %v, want 3", cfg.PositionSizePercent)
	}
	if cfg.MaxPositionSizePercent != 6 {
		t.Errorf("MaxPositionSizePercent = %v, want 6", cfg.MaxPositionSizePercent)
	}
	if cfg.MaxOpenPositions != 4 {
		t.Errorf("MaxOpenPositions = %v, want 4", cfg.MaxOpenPositions)
	}
	if cfg.MaxDailyLossPercent != 2.5 {
		t.Errorf("MaxDailyLossPercent = %v, want 2.5", cfg.MaxDailyLossPercent)
	}
	if cfg.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold = %v, want 0.8", cfg.ConfidenceThreshold)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("LoadConfigFromReader failed: %v", err)
	}
	if cfg.PositionSizePercent != 2 {
		t.Errorf("default PositionSizePercent = %v, want 2", cfg.PositionSizePercent)
	}
	if cfg.MaxPositionSizePercent != 5 {
		t.Errorf("default MaxPositionSizePercent = %v, want 5", cfg.MaxPositionSizePercent)
	}
	if cfg.MaxOpenPositions != 5 {
		t.Errorf("default MaxOpenPositions = %v, want 5", cfg.MaxOpenPositions)
	}
	if cfg.MaxDailyLossPercent != 5 {
		t.Errorf("default MaxDailyLossPercent = %v, want 5", cfg.MaxDailyLossPercent)
	}
	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("default ConfidenceThreshold = %v, want 0.7", cfg.ConfidenceThreshold)
	}
}

func TestLoadConfigExplicitZeroConfidence(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader("confidence_threshold: 0\n"))
	if err != nil {
		t.Fatalf("LoadConfigFromReader failed: %v", err)
	}
	if cfg.ConfidenceThreshold != 0 {
		t.Errorf("explicit zero threshold = %v, want 0", cfg.ConfidenceThreshold)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"oversized entry":      "position_size_percent: 150\n",
		"oversized cap":        "max_position_size_percent: 101\n",
		"oversized daily loss": "max_daily_loss_percent: 200\n",
		"confidence above one": "confidence_threshold: 1.5\n",
		"negative confidence":  "confidence_threshold: -0.2\n",
	}
	for name, yamlData := range cases {
		if _, err := LoadConfigFromReader(strings.NewReader(yamlData)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}
