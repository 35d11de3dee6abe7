package broker

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// Mode represents the trading execution mode.
type Mode string

const (
	ModePaper Mode = "PAPER"
	ModeMock  Mode = "MOCK"
	ModeReal  Mode = "REAL"
)

// NewAdapter returns the adapter for the configured mode.
func NewAdapter(cfg *infra.Config) (Adapter, error) {
	mode := Mode(cfg.Trading.Mode)

	slog.Info("Initializing broker adapter", "mode", mode)

	switch mode {
	case ModePaper:
		return NewPaperAdapter(PaperConfigFrom(cfg)), nil

	case ModeMock:
		return NewMockAdapter(), nil

	case ModeReal:
		// SAFETY LATCH: live trading must be confirmed explicitly.
		if os.Getenv("CONFIRM_REAL_MONEY") != "true" {
			return nil, fmt.Errorf("SAFETY_GUARD: real trading requires CONFIRM_REAL_MONEY=true")
		}
		// Live venue adapters are linked in per deployment; this build
		// ships only the simulated venue.
		return nil, fmt.Errorf("no live venue adapter linked in this build")

	default:
		return nil, fmt.Errorf("unknown execution mode: %s", mode)
	}
}

// PaperConfigFrom maps the execution config section onto the paper
// venue's tuning knobs.
func PaperConfigFrom(cfg *infra.Config) PaperConfig {
	return PaperConfig{
		Latency:         time.Duration(cfg.Execution.LatencyMS) * time.Millisecond,
		SlippageBps:     cfg.Execution.SlippageBps,
		CommissionBps:   cfg.Execution.CommissionBps,
		FillProbability: cfg.Execution.FillProbability,
		InitialCash:     quant.ToPriceMicros(cfg.Execution.InitialBalance),
		Seed:            cfg.Execution.Seed,
	}
}
