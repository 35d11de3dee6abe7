package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// KillSwitch is the one-way emergency stop. Activation halts all new
// order flow immediately, then makes a best-effort pass at cancelling
// working orders and tearing down the venue session. There is no
// deactivation short of a process restart.
type KillSwitch struct {
	engine  *Engine
	alerter domain.Alerter // Optional.

	once   sync.Once
	active atomic.Bool

	mu      sync.Mutex
	reason  string
	firedAt time.Time
}

// NewKillSwitch arms a kill switch over the engine.
func NewKillSwitch(e *Engine, alerter domain.Alerter) *KillSwitch {
	return &KillSwitch{engine: e, alerter: alerter}
}

// Activate fires the kill switch. Safe to call from any goroutine and
// idempotent; only the first call does work. Cancellation failures are
// logged and do not abort the remaining teardown.
func (k *KillSwitch) Activate(ctx context.Context, reason string) {
	k.once.Do(func() {
		// Halt first so no new order can slip in during teardown.
		k.engine.halted.Store(true)
		k.active.Store(true)

		k.mu.Lock()
		k.reason = reason
		k.firedAt = time.Now()
		k.mu.Unlock()

		slog.Error("KILL SWITCH ACTIVATED", slog.String("reason", reason))

		cancelled, failed := 0, 0
		for _, order := range k.engine.oms.ActiveOrders() {
			if k.engine.submit.CancelOrder(ctx, order.ID) {
				k.engine.oms.MarkCancelled(order.ID)
				cancelled++
			} else {
				failed++
				slog.Warn("Kill switch could not cancel order",
					slog.String("order_id", order.ID),
					slog.String("symbol", order.Symbol))
			}
		}

		k.engine.Disconnect()

		slog.Error("Kill switch teardown complete",
			slog.Int("cancelled", cancelled),
			slog.Int("cancel_failed", failed))

		k.notify(reason, cancelled, failed)
	})
}

// IsActive reports whether the switch has fired.
func (k *KillSwitch) IsActive() bool {
	return k.active.Load()
}

// Reason returns why the switch fired, empty if it has not.
func (k *KillSwitch) Reason() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reason
}

func (k *KillSwitch) notify(reason string, cancelled, failed int) {
	if k.alerter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Alerter panicked", slog.Any("panic", r))
		}
	}()
	k.alerter.Notify(domain.Alert{
		Severity: domain.SeverityCritical,
		Source:   "killswitch",
		Message: fmt.Sprintf("trading halted: %s (cancelled %d orders, %d cancel failures)",
			reason, cancelled, failed),
		TsUnixM: quant.TimeStamp(time.Now().UnixMicro()),
	})
}
