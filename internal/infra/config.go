package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the execution core. Loaded once at
// bootstrap; environment-specific values may be overridden via
// environment variables after parsing.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode string `yaml:"mode"` // PAPER, MOCK, REAL
	} `yaml:"trading"`

	Execution struct {
		LatencyMS       int     `yaml:"latency_ms"`       // Simulated venue latency window.
		SlippageBps     int64   `yaml:"slippage_bps"`     // Against the order's side.
		CommissionBps   int64   `yaml:"commission_bps"`   // Of filled notional.
		FillProbability float64 `yaml:"fill_probability"` // [0,1], 1.0 = deterministic fills.
		InitialBalance  float64 `yaml:"initial_balance"`  // Quote-currency cash.
		Seed            int64   `yaml:"seed"`             // RNG seed for the probability draw.
	} `yaml:"execution"`

	Resiliency struct {
		MaxRetries       int     `yaml:"max_retries"`
		InitialBackoffMS int     `yaml:"initial_backoff_ms"`
		MaxBackoffMS     int     `yaml:"max_backoff_ms"`
		SubmitTimeoutMS  int     `yaml:"submit_timeout_ms"`
		FailureThreshold int     `yaml:"failure_threshold"`
		FailureWindowSec int     `yaml:"failure_window_sec"`
		CooldownSec      int     `yaml:"cooldown_sec"`
		DLQCapacity      int     `yaml:"dlq_capacity"`
		RateLimit        int     `yaml:"rate_limit"`      // Max burst of adapter calls.
		RatePerSecond    float64 `yaml:"rate_per_second"` // Token refill rate.
	} `yaml:"resiliency"`

	Feed struct {
		WSURL   string   `yaml:"ws_url"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills zero values whose natural default is not zero.
func (c *Config) applyDefaults() {
	if c.Trading.Mode == "" {
		c.Trading.Mode = "PAPER"
	}
	if c.Execution.FillProbability == 0 {
		c.Execution.FillProbability = 1.0
	}
	if c.Resiliency.MaxRetries == 0 {
		c.Resiliency.MaxRetries = 3
	}
	if c.Resiliency.InitialBackoffMS == 0 {
		c.Resiliency.InitialBackoffMS = 100
	}
	if c.Resiliency.MaxBackoffMS == 0 {
		c.Resiliency.MaxBackoffMS = 5000
	}
	if c.Resiliency.SubmitTimeoutMS == 0 {
		c.Resiliency.SubmitTimeoutMS = 2000
	}
	if c.Resiliency.FailureThreshold == 0 {
		c.Resiliency.FailureThreshold = 5
	}
	if c.Resiliency.FailureWindowSec == 0 {
		c.Resiliency.FailureWindowSec = 60
	}
	if c.Resiliency.CooldownSec == 0 {
		c.Resiliency.CooldownSec = 30
	}
	if c.Resiliency.DLQCapacity == 0 {
		c.Resiliency.DLQCapacity = 1000
	}
	if c.Resiliency.RateLimit == 0 {
		c.Resiliency.RateLimit = 10
	}
	if c.Resiliency.RatePerSecond == 0 {
		c.Resiliency.RatePerSecond = 5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "PAPER", "MOCK", "REAL":
	default:
		return fmt.Errorf("unknown trading mode: %s", c.Trading.Mode)
	}

	if c.Execution.LatencyMS < 0 {
		return fmt.Errorf("latency must not be negative")
	}
	if c.Execution.FillProbability < 0 || c.Execution.FillProbability > 1 {
		return fmt.Errorf("fill probability must be within [0,1]: %f", c.Execution.FillProbability)
	}
	if c.Execution.SlippageBps < 0 || c.Execution.CommissionBps < 0 {
		return fmt.Errorf("slippage and commission bps must not be negative")
	}

	if c.Resiliency.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.Resiliency.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be positive")
	}

	if c.Feed.WSURL != "" && !hasPrefix(c.Feed.WSURL, "ws://") && !hasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variables over file values.
// Environment takes precedence so a deployment can pin the mode and
// feed endpoint without editing the config file.
func overrideWithEnv(cfg *Config) {
	if mode := os.Getenv("TRADER_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
	if url := os.Getenv("TRADER_FEED_WS_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if level := os.Getenv("TRADER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
