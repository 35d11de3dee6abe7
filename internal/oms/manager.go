package oms

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/safe"
)

// Journal receives best-effort write-behind copies of ledger state.
// Failures are logged and never affect the in-memory ledger.
type Journal interface {
	RecordOrder(order domain.Order) error
	RecordFill(fill domain.Fill) error
}

// PerformanceMetrics aggregates execution quality counters.
type PerformanceMetrics struct {
	TotalOrders           int           `json:"total_orders"`
	FilledOrders          int           `json:"filled_orders"`
	FillRate              float64       `json:"fill_rate"`
	AvgFillLatency        time.Duration `json:"avg_fill_latency"`
	TotalNotionalMicros   int64         `json:"total_notional,string"`
	TotalCommissionMicros int64         `json:"total_commission,string"`
}

// orderEntry wraps one order with its own lock so concurrent fills for
// different orders never contend.
type orderEntry struct {
	mu        sync.Mutex
	order     domain.Order
	submitted time.Time
}

// positionEntry wraps one symbol's position with its own lock.
type positionEntry struct {
	mu  sync.Mutex
	pos domain.Position
}

// Manager is the authoritative in-memory ledger of orders, fills and
// positions. It must never lose or double-count a fill: OnFill is
// idempotent by fill ID, filled quantity is monotone, and positions
// are derived exclusively by folding fills in arrival order.
//
// Synchronization is per keyed entity (per order, per symbol); the
// registry lock only guards map membership.
type Manager struct {
	mu        sync.RWMutex
	active    map[string]*orderEntry
	completed map[string]*orderEntry
	positions map[string]*positionEntry

	fillMu    sync.Mutex
	fills     []domain.Fill
	seenFills map[string]struct{}

	metricsMu        sync.Mutex
	totalOrders      int
	filledOrders     int
	fillLatencySum   time.Duration
	notionalMicros   int64
	commissionMicros int64

	journal Journal // Optional.
}

// NewManager creates an empty ledger.
func NewManager() *Manager {
	return &Manager{
		active:    make(map[string]*orderEntry),
		completed: make(map[string]*orderEntry),
		positions: make(map[string]*positionEntry),
		seenFills: make(map[string]struct{}),
	}
}

// WithJournal attaches a write-behind journal.
func (m *Manager) WithJournal(j Journal) *Manager {
	m.journal = j
	return m
}

// NewOrderID assigns a process-unique order identifier. Assigned
// before the adapter call so a fill can never reference an order the
// ledger has not seen.
func (m *Manager) NewOrderID() string {
	return uuid.NewString()
}

// Register stores an order returned by the venue as active. Terminal
// orders (e.g. immediate rejections) go straight to completed.
func (m *Manager) Register(order domain.Order) {
	entry := &orderEntry{order: order, submitted: time.Now()}

	m.mu.Lock()
	if order.Status.IsTerminal() {
		m.completed[order.ID] = entry
	} else {
		m.active[order.ID] = entry
	}
	m.mu.Unlock()

	m.metricsMu.Lock()
	m.totalOrders++
	m.metricsMu.Unlock()

	m.journalOrder(order)
}

// lookup finds an entry in either map under the registry read lock.
func (m *Manager) lookup(orderID string) *orderEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.active[orderID]; ok {
		return e
	}
	return m.completed[orderID]
}

// OnFill folds one fill into the ledger. Re-applying the same fill ID
// is a no-op; a fill for an unknown order is logged and dropped.
//
// Acceptance is all-or-nothing per quantity unit: the quantity the
// order accepts (after the overfill clamp, zero for terminal orders)
// is exactly what reaches the fill record, the position and the
// metrics, so the three views never disagree.
func (m *Manager) OnFill(fill domain.Fill) {
	m.fillMu.Lock()
	if _, dup := m.seenFills[fill.ID]; dup {
		m.fillMu.Unlock()
		slog.Debug("OMS: duplicate fill ignored", slog.String("fill_id", fill.ID))
		return
	}

	entry := m.lookup(fill.OrderID)
	if entry == nil {
		m.fillMu.Unlock()
		slog.Warn("OMS: fill for unknown order dropped",
			slog.String("fill_id", fill.ID),
			slog.String("order_id", fill.OrderID))
		return
	}

	// Marked seen even if the order rejects it so replays stay silent.
	m.seenFills[fill.ID] = struct{}{}
	m.fillMu.Unlock()

	accepted := m.applyToOrder(entry, &fill)
	if accepted == 0 {
		return
	}
	adj := fill
	adj.QtySats = accepted

	m.fillMu.Lock()
	m.fills = append(m.fills, adj)
	m.fillMu.Unlock()

	m.applyToPosition(&adj)

	m.metricsMu.Lock()
	m.notionalMicros = safe.SafeAdd(m.notionalMicros, quant.NotionalMicros(adj.PriceMicros, adj.QtySats))
	m.commissionMicros = safe.SafeAdd(m.commissionMicros, adj.CommissionMicros)
	m.metricsMu.Unlock()

	if m.journal != nil {
		if err := m.journal.RecordFill(adj); err != nil {
			slog.Warn("OMS: journal fill write failed", slog.String("fill_id", adj.ID), slog.Any("err", err))
		}
	}
}

// applyToOrder advances one order's quantity, VWAP and status. It
// returns the quantity the order accepted; zero means the fill must
// not touch any other ledger view.
func (m *Manager) applyToOrder(entry *orderEntry, fill *domain.Fill) quant.QtySats {
	entry.mu.Lock()

	o := &entry.order
	if o.Status.IsTerminal() {
		// Terminal orders never mutate.
		entry.mu.Unlock()
		slog.Warn("OMS: fill for terminal order dropped",
			slog.String("order_id", o.ID), slog.String("status", string(o.Status)))
		return 0
	}

	remaining := o.QtySats - o.FilledQtySats
	qty := fill.QtySats
	if qty > remaining {
		// Clamp: filled quantity never exceeds ordered quantity.
		slog.Warn("OMS: overfill clamped",
			slog.String("order_id", o.ID),
			slog.String("fill_qty", qty.String()),
			slog.String("remaining", remaining.String()))
		qty = remaining
	}
	if qty == 0 {
		entry.mu.Unlock()
		return 0
	}

	o.AvgFillPriceMicros = quant.VWAP(o.AvgFillPriceMicros, o.FilledQtySats, fill.PriceMicros, qty)
	o.FilledQtySats += qty
	o.CommissionMicros = safe.SafeAdd(o.CommissionMicros, fill.CommissionMicros)
	o.UpdatedUnixM = quant.TimeStamp(time.Now().UnixMicro())

	filled := o.FilledQtySats == o.QtySats
	if filled {
		o.Status = domain.StatusFilled
	} else {
		o.Status = domain.StatusPartiallyFilled
	}
	snapshot := *o
	latency := time.Since(entry.submitted)
	entry.mu.Unlock()

	if filled {
		m.mu.Lock()
		if _, ok := m.active[snapshot.ID]; ok {
			delete(m.active, snapshot.ID)
			m.completed[snapshot.ID] = entry
		}
		m.mu.Unlock()

		m.metricsMu.Lock()
		m.filledOrders++
		m.fillLatencySum += latency
		m.metricsMu.Unlock()
	}

	m.journalOrder(snapshot)
	return qty
}

// applyToPosition folds the fill into the symbol's position.
func (m *Manager) applyToPosition(fill *domain.Fill) {
	m.mu.Lock()
	entry, ok := m.positions[fill.Symbol]
	if !ok {
		entry = &positionEntry{pos: domain.Position{Symbol: fill.Symbol}}
		m.positions[fill.Symbol] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()
	entry.pos.ApplyFill(fill)
	entry.mu.Unlock()
}

// MarkSubmitted records venue acknowledgement of an order. A no-op if
// a fill already advanced the order past SUBMITTED.
func (m *Manager) MarkSubmitted(orderID string) {
	entry := m.lookup(orderID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	o := &entry.order
	if o.Status != domain.StatusNew || !o.CanTransition(domain.StatusSubmitted) {
		entry.mu.Unlock()
		return
	}
	o.Status = domain.StatusSubmitted
	o.UpdatedUnixM = quant.TimeStamp(time.Now().UnixMicro())
	snapshot := *o
	entry.mu.Unlock()

	m.journalOrder(snapshot)
}

// MarkRejected records that an order never reached a working state at
// the venue. Fills already applied keep precedence.
func (m *Manager) MarkRejected(orderID, reason string) {
	entry := m.lookup(orderID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	o := &entry.order
	if !o.CanTransition(domain.StatusRejected) {
		entry.mu.Unlock()
		return
	}
	o.Status = domain.StatusRejected
	o.RejectReason = reason
	o.UpdatedUnixM = quant.TimeStamp(time.Now().UnixMicro())
	snapshot := *o
	entry.mu.Unlock()

	m.mu.Lock()
	if _, ok := m.active[orderID]; ok {
		delete(m.active, orderID)
		m.completed[orderID] = entry
	}
	m.mu.Unlock()

	m.journalOrder(snapshot)
}

// MarkCancelled records a venue-confirmed cancellation. A later fill
// for the same order still wins: cancellation of an order that already
// completed is ignored.
func (m *Manager) MarkCancelled(orderID string) {
	entry := m.lookup(orderID)
	if entry == nil {
		return
	}

	entry.mu.Lock()
	o := &entry.order
	if !o.CanTransition(domain.StatusCancelled) {
		entry.mu.Unlock()
		return
	}
	o.Status = domain.StatusCancelled
	o.UpdatedUnixM = quant.TimeStamp(time.Now().UnixMicro())
	snapshot := *o
	entry.mu.Unlock()

	m.mu.Lock()
	if _, ok := m.active[orderID]; ok {
		delete(m.active, orderID)
		m.completed[orderID] = entry
	}
	m.mu.Unlock()

	m.journalOrder(snapshot)
}

// GetOrder returns a copy of an order by ID.
func (m *Manager) GetOrder(orderID string) (domain.Order, bool) {
	entry := m.lookup(orderID)
	if entry == nil {
		return domain.Order{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.order, true
}

// ActiveOrders returns copies of all non-terminal orders.
func (m *Manager) ActiveOrders() []domain.Order {
	m.mu.RLock()
	entries := make([]*orderEntry, 0, len(m.active))
	for _, e := range m.active {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]domain.Order, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.order)
		e.mu.Unlock()
	}
	return out
}

// GetPosition returns the net signed quantity for a symbol, zero if
// the symbol was never touched.
func (m *Manager) GetPosition(symbol string) quant.QtySats {
	m.mu.RLock()
	entry, ok := m.positions[symbol]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.pos.QtySats
}

// GetFills returns recorded fills in ingestion order, optionally
// filtered by symbol (empty = all).
func (m *Manager) GetFills(symbol string) []domain.Fill {
	m.fillMu.Lock()
	defer m.fillMu.Unlock()

	out := make([]domain.Fill, 0, len(m.fills))
	for _, f := range m.fills {
		if symbol == "" || f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// GetPerformanceMetrics returns a snapshot of the execution counters.
func (m *Manager) GetPerformanceMetrics() PerformanceMetrics {
	m.metricsMu.Lock()
	defer m.metricsMu.Unlock()

	pm := PerformanceMetrics{
		TotalOrders:           m.totalOrders,
		FilledOrders:          m.filledOrders,
		TotalNotionalMicros:   m.notionalMicros,
		TotalCommissionMicros: m.commissionMicros,
	}
	if m.totalOrders > 0 {
		pm.FillRate = float64(m.filledOrders) / float64(m.totalOrders)
	}
	if m.filledOrders > 0 {
		pm.AvgFillLatency = m.fillLatencySum / time.Duration(m.filledOrders)
	}
	return pm
}

func (m *Manager) journalOrder(order domain.Order) {
	if m.journal == nil {
		return
	}
	if err := m.journal.RecordOrder(order); err != nil {
		slog.Warn("OMS: journal order write failed", slog.String("order_id", order.ID), slog.Any("err", err))
	}
}
