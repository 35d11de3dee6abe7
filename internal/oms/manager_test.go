package oms

import (
	"fmt"
	"sync"
	"testing"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

func submittedOrder(id, symbol string, side domain.Side, qty int64) domain.Order {
	return domain.Order{
		ID:      id,
		Symbol:  symbol,
		Side:    side,
		Type:    domain.TypeMarket,
		QtySats: quant.QtySats(qty),
		Status:  domain.StatusSubmitted,
	}
}

func fillFor(fillID string, o domain.Order, qty, price int64) domain.Fill {
	return domain.Fill{
		ID:          fillID,
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		QtySats:     quant.QtySats(qty),
		PriceMicros: quant.PriceMicros(price),
	}
}

func TestManager_FillIdempotence(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)

	f := fillFor("fill-1", o, 100, 50)
	m.OnFill(f)
	m.OnFill(f) // Same fill ID: must be a no-op.

	got, _ := m.GetOrder("ord-1")
	if got.FilledQtySats != 100 {
		t.Errorf("filled qty = %d, want 100 after duplicate", got.FilledQtySats)
	}
	if pos := m.GetPosition("BTCUSDT"); pos != 100 {
		t.Errorf("position = %d, want 100 after duplicate", pos)
	}
	if n := len(m.GetFills("")); n != 1 {
		t.Errorf("recorded fills = %d, want 1", n)
	}
}

func TestManager_PartialThenFull(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)

	m.OnFill(fillFor("fill-1", o, 40, 50))

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", got.Status)
	}
	if got.FilledQtySats != 40 {
		t.Errorf("filled = %d, want 40", got.FilledQtySats)
	}

	m.OnFill(fillFor("fill-2", o, 60, 60))

	got, _ = m.GetOrder("ord-1")
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
	// VWAP: (40*50 + 60*60) / 100 = 56.
	if got.AvgFillPriceMicros != 56 {
		t.Errorf("avg fill price = %d, want 56", got.AvgFillPriceMicros)
	}
	if n := len(m.ActiveOrders()); n != 0 {
		t.Errorf("active orders = %d, want 0 after completion", n)
	}
}

func TestManager_Conservation(t *testing.T) {
	// Position equals the signed sum of all recorded fills.
	m := NewManager()
	buy := submittedOrder("ord-b", "BTCUSDT", domain.SideBuy, 300)
	sell := submittedOrder("ord-s", "BTCUSDT", domain.SideSell, 120)
	m.Register(buy)
	m.Register(sell)

	m.OnFill(fillFor("f1", buy, 200, 50))
	m.OnFill(fillFor("f2", sell, 120, 55))
	m.OnFill(fillFor("f3", buy, 100, 52))

	var signed int64
	for _, f := range m.GetFills("BTCUSDT") {
		signed += int64(f.SignedQty())
	}
	if got := int64(m.GetPosition("BTCUSDT")); got != signed {
		t.Errorf("position %d != signed fill sum %d", got, signed)
	}
	if signed != 180 {
		t.Errorf("signed sum = %d, want 180", signed)
	}
}

func TestManager_MonotonicityClampsOverfill(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)

	m.OnFill(fillFor("f1", o, 90, 50))
	m.OnFill(fillFor("f2", o, 90, 50)) // Venue bug: would overfill.

	got, _ := m.GetOrder("ord-1")
	if got.FilledQtySats != 100 {
		t.Errorf("filled = %d, want clamped to 100", got.FilledQtySats)
	}
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}

	// The clamp applies everywhere: the position and the recorded
	// fills carry the accepted 10, not the delivered 90.
	if pos := m.GetPosition("BTCUSDT"); pos != 100 {
		t.Errorf("position = %d, want 100", pos)
	}
	var recorded int64
	for _, f := range m.GetFills("") {
		recorded += int64(f.QtySats)
	}
	if recorded != 100 {
		t.Errorf("recorded fill qty = %d, want 100", recorded)
	}
}

func TestManager_TerminalOrderFillDroppedEverywhere(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)
	m.MarkCancelled("ord-1")

	m.OnFill(fillFor("late-1", o, 100, 50))

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusCancelled || got.FilledQtySats != 0 {
		t.Errorf("order = %s/%d, want CANCELLED/0", got.Status, got.FilledQtySats)
	}
	if pos := m.GetPosition("BTCUSDT"); pos != 0 {
		t.Errorf("position = %d, want 0: a dropped fill must not move it", pos)
	}
	if n := len(m.GetFills("")); n != 0 {
		t.Errorf("fills = %d, want 0", n)
	}
}

func TestManager_UnknownOrderFillDropped(t *testing.T) {
	m := NewManager()

	m.OnFill(domain.Fill{ID: "f1", OrderID: "ghost", Symbol: "BTCUSDT", Side: domain.SideBuy, QtySats: 10, PriceMicros: 50})

	if pos := m.GetPosition("BTCUSDT"); pos != 0 {
		t.Errorf("position = %d, want 0: unknown fills must not fabricate state", pos)
	}
	if n := len(m.GetFills("")); n != 0 {
		t.Errorf("fills = %d, want 0", n)
	}
	if _, ok := m.GetOrder("ghost"); ok {
		t.Error("unknown fill must not synthesize an order")
	}
}

func TestManager_TerminalOrdersDoNotRegress(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)
	m.OnFill(fillFor("f1", o, 100, 50))

	m.MarkCancelled("ord-1") // Fill already won.

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED to stick", got.Status)
	}
}

func TestManager_MarkCancelled(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o)

	m.MarkCancelled("ord-1")

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if n := len(m.ActiveOrders()); n != 0 {
		t.Errorf("active orders = %d, want 0", n)
	}
}

func TestManager_MarkSubmitted(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	o.Status = domain.StatusNew
	m.Register(o)

	m.MarkSubmitted("ord-1")

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusSubmitted {
		t.Errorf("status = %s, want SUBMITTED", got.Status)
	}

	// A late acknowledgement never regresses a partially filled order.
	m.OnFill(fillFor("fill-1", o, 40, 50))
	m.MarkSubmitted("ord-1")
	got, _ = m.GetOrder("ord-1")
	if got.Status != domain.StatusPartiallyFilled {
		t.Errorf("status = %s, want PARTIALLY_FILLED", got.Status)
	}
}

func TestManager_MarkRejected(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, 100)
	o.Status = domain.StatusNew
	m.Register(o)

	m.MarkRejected("ord-1", "insufficient funds")

	got, _ := m.GetOrder("ord-1")
	if got.Status != domain.StatusRejected {
		t.Errorf("status = %s, want REJECTED", got.Status)
	}
	if got.RejectReason != "insufficient funds" {
		t.Errorf("reason = %q", got.RejectReason)
	}
	if n := len(m.ActiveOrders()); n != 0 {
		t.Errorf("active orders = %d, want 0", n)
	}

	// Rejection after completion is ignored: the fill had precedence.
	o2 := submittedOrder("ord-2", "BTCUSDT", domain.SideBuy, 100)
	m.Register(o2)
	m.OnFill(fillFor("fill-2", o2, 100, 50))
	m.MarkRejected("ord-2", "late rejection")
	got, _ = m.GetOrder("ord-2")
	if got.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", got.Status)
	}
}

func TestManager_FillRate(t *testing.T) {
	m := NewManager()
	for i := 0; i < 4; i++ {
		o := submittedOrder(fmt.Sprintf("ord-%d", i), "BTCUSDT", domain.SideBuy, 100)
		m.Register(o)
		if i < 3 {
			m.OnFill(fillFor(fmt.Sprintf("f-%d", i), o, 100, 50))
		}
	}

	pm := m.GetPerformanceMetrics()
	if pm.TotalOrders != 4 || pm.FilledOrders != 3 {
		t.Fatalf("counters = %d/%d, want 4/3", pm.TotalOrders, pm.FilledOrders)
	}
	if pm.FillRate != 0.75 {
		t.Errorf("fill rate = %f, want 0.75", pm.FillRate)
	}
}

func TestManager_MetricsAccumulateNotionalAndCommission(t *testing.T) {
	m := NewManager()
	o := submittedOrder("ord-1", "BTCUSDT", domain.SideBuy, quant.QtyScale) // 1.0 unit
	m.Register(o)

	f := fillFor("f1", o, quant.QtyScale, 50_000_000_000)
	f.CommissionMicros = 5_000_000
	m.OnFill(f)

	pm := m.GetPerformanceMetrics()
	if pm.TotalNotionalMicros != 50_000_000_000 {
		t.Errorf("notional = %d, want 50000000000", pm.TotalNotionalMicros)
	}
	if pm.TotalCommissionMicros != 5_000_000 {
		t.Errorf("commission = %d, want 5000000", pm.TotalCommissionMicros)
	}
}

func TestManager_ConcurrentFillsAcrossSymbols(t *testing.T) {
	m := NewManager()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT"}

	var orders []domain.Order
	for i, sym := range symbols {
		o := submittedOrder(fmt.Sprintf("ord-%d", i), sym, domain.SideBuy, 1000)
		m.Register(o)
		orders = append(orders, o)
	}

	var wg sync.WaitGroup
	for i, o := range orders {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(o domain.Order, i, j int) {
				defer wg.Done()
				m.OnFill(fillFor(fmt.Sprintf("f-%d-%d", i, j), o, 100, 50))
			}(o, i, j)
		}
	}
	wg.Wait()

	for _, sym := range symbols {
		if pos := m.GetPosition(sym); pos != 1000 {
			t.Errorf("position[%s] = %d, want 1000", sym, pos)
		}
	}
	for _, o := range orders {
		got, _ := m.GetOrder(o.ID)
		if got.Status != domain.StatusFilled || got.FilledQtySats != 1000 {
			t.Errorf("order %s = %s/%d, want FILLED/1000", o.ID, got.Status, got.FilledQtySats)
		}
	}
	if n := len(m.GetFills("")); n != 40 {
		t.Errorf("total fills = %d, want 40", n)
	}
}
