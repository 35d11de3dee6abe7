package strategy

import (
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
)

// Strategy defines the interface for trading logic.
type Strategy interface {
	// OnMarketUpdate is called when new market data arrives. It returns
	// zero or more decisions for the execution engine to act on.
	OnMarketUpdate(state domain.MarketState) []domain.Decision

	// RecordExecution is called after a fill is applied. Implementations
	// must not block and must not panic; the engine recovers but logs.
	RecordExecution(fill domain.Fill)

	// Status returns a short human-readable state summary for logs.
	Status() string
}
