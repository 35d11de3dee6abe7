package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Journal *storage.Journal
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logging, DB).
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Autotrader...")

	// 1. Load Config (Dynamic Path Resolution)
	cfg, err := infra.LoadConfig(infra.ResolveConfigPath())
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Mode banner and safety warning
	infra.PrintBanner(cfg)

	// 4. Initialize Journal (WAL-mode SQLite)
	// Data isolation per mode: _workspace/data/{mode}/journal.db
	mode := strings.ToLower(cfg.Trading.Mode)
	if mode == "" {
		mode = "paper"
	}

	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	logDir := filepath.Join(workDir, "logs", mode)

	if err := infra.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := infra.EnsureDir(logDir); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "journal.db")
	journal, err := storage.NewJournal(dbPath)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Journal initialized (WAL-mode)", "path", dbPath, "mode", mode)

	return nil
}

// Close releases bootstrap-owned resources.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Journal close failed", slog.Any("error", err))
		}
	}
}
