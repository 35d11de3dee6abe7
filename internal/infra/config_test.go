package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: autotrader
  version: 0.1.0
trading:
  mode: PAPER
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Execution.FillProbability != 1.0 {
		t.Errorf("default fill probability = %f, want 1.0", cfg.Execution.FillProbability)
	}
	if cfg.Resiliency.MaxRetries != 3 {
		t.Errorf("default max retries = %d, want 3", cfg.Resiliency.MaxRetries)
	}
	if cfg.Resiliency.FailureThreshold != 5 {
		t.Errorf("default failure threshold = %d, want 5", cfg.Resiliency.FailureThreshold)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default log level = %s, want info", cfg.Logging.Level)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"BadMode", "trading:\n  mode: YOLO\n"},
		{"BadProbability", "execution:\n  fill_probability: 1.5\n"},
		{"NegativeLatency", "execution:\n  latency_ms: -5\n"},
		{"BadFeedURL", "feed:\n  ws_url: http://not-ws\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "trading:\n  mode: PAPER\n")

	t.Setenv("TRADER_MODE", "MOCK")
	t.Setenv("TRADER_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Trading.Mode != "MOCK" {
		t.Errorf("mode = %s, want MOCK from env", cfg.Trading.Mode)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %s, want debug from env", cfg.Logging.Level)
	}
}
