package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/broker"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/resiliency"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/strategy"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// ErrHalted is returned for any trading operation after the kill
// switch has fired.
var ErrHalted = errors.New("engine: trading halted")

// ErrFlatPosition is returned for a CLOSE decision on a symbol with no
// open position.
var ErrFlatPosition = errors.New("engine: no position to close")

// Engine turns strategy decisions into venue orders. All order flow
// passes through the resiliency layer; all fills flow back through the
// OMS before any strategy callback sees them.
type Engine struct {
	adapter  broker.Adapter
	oms      *oms.Manager
	submit   *resiliency.Manager
	strategy strategy.Strategy // Optional.

	connected atomic.Bool
	halted    atomic.Bool
}

// Status is an operator-facing snapshot of the engine.
type Status struct {
	Connected  bool                    `json:"connected"`
	Halted     bool                    `json:"halted"`
	Strategy   string                  `json:"strategy,omitempty"`
	Metrics    oms.PerformanceMetrics  `json:"metrics"`
	Resiliency resiliency.FailureStats `json:"resiliency"`
}

// NewEngine wires the execution core together. The fill subscription
// is installed immediately so no fill can race past the ledger.
func NewEngine(adapter broker.Adapter, ledger *oms.Manager, submit *resiliency.Manager, strat strategy.Strategy) *Engine {
	e := &Engine{
		adapter:  adapter,
		oms:      ledger,
		submit:   submit,
		strategy: strat,
	}
	adapter.SubscribeFills(e.onFill)
	adapter.SubscribeCancels(e.onCancel)
	return e
}

// Connect establishes the venue session.
func (e *Engine) Connect(ctx context.Context) error {
	if e.halted.Load() {
		return ErrHalted
	}
	if !e.adapter.Connect(ctx) {
		return fmt.Errorf("engine: connect to %s failed", e.adapter.Name())
	}
	e.connected.Store(true)
	slog.Info("Engine connected", slog.String("adapter", e.adapter.Name()))
	return nil
}

// Disconnect tears down the venue session. Working orders at the venue
// are unaffected.
func (e *Engine) Disconnect() {
	e.adapter.Disconnect()
	e.connected.Store(false)
	slog.Info("Engine disconnected", slog.String("adapter", e.adapter.Name()))
}

// ExecuteDecision translates one strategy decision into an order and
// submits it. The order is registered with the ledger before the
// adapter call so an arbitrarily fast fill always finds it.
func (e *Engine) ExecuteDecision(ctx context.Context, d domain.Decision) (domain.Order, error) {
	if e.halted.Load() {
		return domain.Order{}, ErrHalted
	}
	if err := d.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("engine: invalid decision: %w", err)
	}

	order, err := e.buildOrder(d)
	if err != nil {
		return domain.Order{}, err
	}

	e.oms.Register(order)

	ack, err := e.submit.SubmitOrder(ctx, order)
	if err != nil {
		if broker.IsRejection(err) {
			e.oms.MarkRejected(order.ID, ack.RejectReason)
		} else {
			e.oms.MarkRejected(order.ID, "submission failed: "+err.Error())
		}
		return ack, err
	}

	e.oms.MarkSubmitted(order.ID)
	slog.Info("Order submitted",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("qty", order.QtySats.String()))

	current, ok := e.oms.GetOrder(order.ID)
	if !ok {
		current = ack
	}
	return current, nil
}

// buildOrder maps a decision onto an order. LONG buys, SHORT sells,
// CLOSE offsets the current net position exactly.
func (e *Engine) buildOrder(d domain.Decision) (domain.Order, error) {
	now := quant.TimeStamp(time.Now().UnixMicro())
	order := domain.Order{
		ID:           e.oms.NewOrderID(),
		Symbol:       d.Symbol,
		Type:         domain.TypeMarket,
		Status:       domain.StatusNew,
		CreatedUnixM: now,
		UpdatedUnixM: now,
	}

	switch d.Action {
	case domain.ActionLong:
		order.Side = domain.SideBuy
		order.QtySats = d.SizeSats
	case domain.ActionShort:
		order.Side = domain.SideSell
		order.QtySats = d.SizeSats
	case domain.ActionClose:
		pos := e.oms.GetPosition(d.Symbol)
		switch {
		case pos > 0:
			order.Side = domain.SideSell
			order.QtySats = pos
		case pos < 0:
			order.Side = domain.SideBuy
			order.QtySats = -pos
		default:
			return domain.Order{}, ErrFlatPosition
		}
	}
	return order, nil
}

// CancelOrder requests cancellation at the venue and, if accepted,
// closes the ledger copy. A fill that already completed the order wins.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) bool {
	if !e.submit.CancelOrder(ctx, orderID) {
		return false
	}
	e.oms.MarkCancelled(orderID)
	return true
}

// onFill routes every fill ledger-first. The strategy callback runs
// after the ledger is consistent and is isolated from panics.
func (e *Engine) onFill(fill domain.Fill) {
	e.oms.OnFill(fill)

	if e.strategy == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Strategy panicked in fill callback",
				slog.String("fill_id", fill.ID),
				slog.Any("panic", r))
		}
	}()
	e.strategy.RecordExecution(fill)
}

// onCancel closes the ledger copy of an order the venue cancelled on
// its own, such as an IOC that found no liquidity.
func (e *Engine) onCancel(orderID string) {
	e.oms.MarkCancelled(orderID)
	slog.Info("Order cancelled by venue", slog.String("order_id", orderID))
}

// GetStatus returns the engine snapshot.
func (e *Engine) GetStatus() Status {
	st := Status{
		Connected:  e.connected.Load(),
		Halted:     e.halted.Load(),
		Metrics:    e.oms.GetPerformanceMetrics(),
		Resiliency: e.submit.GetFailureStats(),
	}
	if e.strategy != nil {
		st.Strategy = e.strategy.Status()
	}
	return st
}
