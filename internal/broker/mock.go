package broker

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
)

// MockAdapter is a safe implementation that only logs orders.
// It never produces fills; useful for wiring checks and dry runs.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Name() string { return "mock" }

func (m *MockAdapter) Connect(ctx context.Context) bool { return true }

func (m *MockAdapter) Disconnect() {}

func (m *MockAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	slog.Info("MOCK: Submit Order",
		slog.String("id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)),
		slog.String("qty", order.QtySats.String()),
	)
	order.Status = domain.StatusSubmitted
	return order, nil
}

func (m *MockAdapter) CancelOrder(ctx context.Context, orderID string) bool {
	slog.Info("MOCK: Cancel Order", slog.String("id", orderID))
	return true
}

func (m *MockAdapter) Balance() Balance {
	return Balance{Cash: decimal.Zero, Holdings: map[string]decimal.Decimal{}, Equity: decimal.Zero}
}

func (m *MockAdapter) SubscribeFills(fn func(domain.Fill)) {}

func (m *MockAdapter) SubscribeCancels(fn func(orderID string)) {}
