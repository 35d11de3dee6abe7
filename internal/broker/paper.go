package broker

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/safe"
)

// PaperConfig tunes the simulated venue.
type PaperConfig struct {
	Latency         time.Duration // Simulated network/matching delay before a fill.
	SlippageBps     int64         // Applied against the order's side.
	CommissionBps   int64         // Of filled notional.
	FillProbability float64       // [0,1]; 1.0 fills deterministically.
	InitialCash     quant.PriceMicros
	Seed            int64 // RNG seed; 0 seeds from the clock.
}

// paperOrder is a working order at the simulated venue.
type paperOrder struct {
	order domain.Order
	timer *time.Timer // Non-nil while a fill is scheduled.
	armed bool        // STOP orders: trigger level crossed.
}

// PaperAdapter is the reference BrokerAdapter: a simulated venue with
// a settable price book, a latency window, slippage and commission in
// basis points, and a seedable fill-probability draw. It doubles as
// the test harness for everything above it.
//
// Fills, once generated, are never retracted: a cancel racing an
// already-generated fill always loses.
type PaperAdapter struct {
	cfg PaperConfig

	mu         sync.Mutex
	connected  bool
	prices     map[string]quant.PriceMicros
	working    map[string]*paperOrder
	closed     map[string]domain.OrderStatus
	delivered  []domain.Fill
	subs       []func(domain.Fill)
	cancelSubs []func(string)
	rng        *rand.Rand

	cashMicros int64
	holdings   map[string]quant.QtySats
}

// NewPaperAdapter creates a simulated venue with the given tuning.
func NewPaperAdapter(cfg PaperConfig) *PaperAdapter {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperAdapter{
		cfg:        cfg,
		prices:     make(map[string]quant.PriceMicros),
		working:    make(map[string]*paperOrder),
		closed:     make(map[string]domain.OrderStatus),
		rng:        rand.New(rand.NewSource(seed)),
		cashMicros: int64(cfg.InitialCash),
		holdings:   make(map[string]quant.QtySats),
	}
}

// Name returns the venue identifier.
func (p *PaperAdapter) Name() string { return "paper" }

// Connect marks the session live. Idempotent, always succeeds.
func (p *PaperAdapter) Connect(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return true
}

// Disconnect closes the session. Idempotent. Orders already scheduled
// stop producing fills while disconnected.
func (p *PaperAdapter) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
}

// SetPrice updates the last traded price and re-evaluates resting
// LIMIT/STOP orders against the new level.
func (p *PaperAdapter) SetPrice(symbol string, price quant.PriceMicros) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price

	for id, po := range p.working {
		if po.order.Symbol != symbol || po.timer != nil {
			continue
		}
		if p.shouldTrigger(po, price) {
			p.scheduleLocked(id, po)
		}
	}
}

// shouldTrigger reports whether a resting order becomes executable at
// the given price. Caller must hold mu.
func (p *PaperAdapter) shouldTrigger(po *paperOrder, price quant.PriceMicros) bool {
	o := &po.order
	switch o.Type {
	case domain.TypeLimit:
		if o.Side == domain.SideBuy {
			return price <= o.LimitPriceMicros
		}
		return price >= o.LimitPriceMicros
	case domain.TypeStop:
		if po.armed {
			return true
		}
		crossed := (o.Side == domain.SideBuy && price >= o.LimitPriceMicros) ||
			(o.Side == domain.SideSell && price <= o.LimitPriceMicros)
		if crossed {
			po.armed = true // From here on it behaves as MARKET.
		}
		return crossed
	default:
		// MARKET/IOC/FOK left resting after a failed probability draw.
		return true
	}
}

// SubmitOrder accepts an order and schedules simulated execution.
// It never blocks waiting for a fill.
func (p *PaperAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return order, ErrNotConnected
	}
	if order.ID == "" {
		return order, &RejectionError{Reason: "missing order id"}
	}
	if err := order.Validate(); err != nil {
		return order, &RejectionError{Reason: err.Error()}
	}

	last, havePrice := p.prices[order.Symbol]
	if !havePrice {
		return order, &RejectionError{Reason: "unknown symbol: " + order.Symbol}
	}

	// Funds check for buys against the current level. Sells may open
	// shorts in the simulator.
	if order.Side == domain.SideBuy {
		cost := safe.SafeAdd(
			quant.NotionalMicros(quant.ApplyBps(last, p.cfg.SlippageBps), order.QtySats),
			quant.CommissionMicros(last, order.QtySats, p.cfg.CommissionBps),
		)
		if cost > p.cashMicros {
			return order, &RejectionError{Reason: "insufficient funds"}
		}
	}

	order.Status = domain.StatusSubmitted
	order.UpdatedUnixM = nowMicros()

	po := &paperOrder{order: order}
	p.working[order.ID] = po

	switch order.Type {
	case domain.TypeMarket, domain.TypeIOC, domain.TypeFOK:
		p.scheduleLocked(order.ID, po)
	case domain.TypeLimit, domain.TypeStop:
		if p.shouldTrigger(po, last) {
			p.scheduleLocked(order.ID, po)
		}
		// Otherwise rests until SetPrice crosses the level.
	}

	slog.Debug("PAPER: order accepted",
		slog.String("id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)))

	return order, nil
}

// scheduleLocked arms the latency timer for an executable order.
// Caller must hold mu.
func (p *PaperAdapter) scheduleLocked(id string, po *paperOrder) {
	po.timer = time.AfterFunc(p.cfg.Latency, func() {
		p.fire(id)
	})
}

// fire executes a scheduled order once the latency window elapses.
func (p *PaperAdapter) fire(id string) {
	p.mu.Lock()

	po, ok := p.working[id]
	if !ok {
		// Cancelled before execution.
		p.mu.Unlock()
		return
	}
	po.timer = nil
	if !p.connected {
		// Session closed; the order stays working but produces nothing.
		p.mu.Unlock()
		return
	}
	o := &po.order

	last, ok := p.prices[o.Symbol]
	if !ok {
		p.mu.Unlock()
		return
	}

	if p.cfg.FillProbability < 1.0 && p.rng.Float64() >= p.cfg.FillProbability {
		// No liquidity this round. IOC/FOK cancel immediately; other
		// types stay working and re-arm on the next price update.
		if o.Type == domain.TypeIOC || o.Type == domain.TypeFOK {
			delete(p.working, id)
			o.Status = domain.StatusCancelled
			p.closed[id] = domain.StatusCancelled
			cancelSubs := make([]func(string), len(p.cancelSubs))
			copy(cancelSubs, p.cancelSubs)
			p.mu.Unlock()
			slog.Info("PAPER: unfilled, cancelled",
				slog.String("id", id), slog.String("type", string(o.Type)))
			// Venue-initiated, so subscribers are told; an explicit
			// CancelOrder learns the outcome from its return value.
			for _, fn := range cancelSubs {
				fn(id)
			}
			return
		}
		p.mu.Unlock()
		return
	}

	price := p.executionPrice(o, last)
	commission := quant.CommissionMicros(price, o.QtySats, p.cfg.CommissionBps)

	fill := domain.Fill{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		Symbol:           o.Symbol,
		Side:             o.Side,
		QtySats:          o.QtySats,
		PriceMicros:      price,
		CommissionMicros: commission,
		TsUnixM:          nowMicros(),
	}

	p.applyFillLocked(&fill)

	o.Status = domain.StatusFilled
	o.FilledQtySats = o.QtySats
	o.AvgFillPriceMicros = price
	delete(p.working, id)
	p.closed[id] = domain.StatusFilled

	p.delivered = append(p.delivered, fill)
	subs := make([]func(domain.Fill), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	slog.Info("PAPER: order filled",
		slog.String("id", o.ID),
		slog.String("symbol", fill.Symbol),
		slog.String("side", string(fill.Side)),
		slog.String("price", fill.PriceMicros.String()),
		slog.String("qty", fill.QtySats.String()))

	// Delivered outside the lock so subscribers may call back in.
	for _, fn := range subs {
		fn(fill)
	}
}

// executionPrice applies slippage against the side for market-style
// execution; LIMIT fills at the limit level.
func (p *PaperAdapter) executionPrice(o *domain.Order, last quant.PriceMicros) quant.PriceMicros {
	if o.Type == domain.TypeLimit {
		return o.LimitPriceMicros
	}
	bps := p.cfg.SlippageBps
	if o.Side == domain.SideSell {
		bps = -bps
	}
	return quant.ApplyBps(last, bps)
}

// applyFillLocked moves cash and holdings. Caller must hold mu.
func (p *PaperAdapter) applyFillLocked(f *domain.Fill) {
	notional := quant.NotionalMicros(f.PriceMicros, f.QtySats)
	if f.Side == domain.SideBuy {
		p.cashMicros = safe.SafeSub(p.cashMicros, safe.SafeAdd(notional, f.CommissionMicros))
		p.holdings[f.Symbol] += f.QtySats
	} else {
		p.cashMicros = safe.SafeAdd(p.cashMicros, safe.SafeSub(notional, f.CommissionMicros))
		p.holdings[f.Symbol] -= f.QtySats
	}
}

// CancelOrder removes a working order. A fill already generated wins
// the race: cancellation then returns false.
func (p *PaperAdapter) CancelOrder(ctx context.Context, orderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	po, ok := p.working[orderID]
	if !ok {
		return false
	}
	if po.timer != nil {
		po.timer.Stop()
	}
	po.order.Status = domain.StatusCancelled
	delete(p.working, orderID)
	p.closed[orderID] = domain.StatusCancelled

	slog.Info("PAPER: order cancelled", slog.String("id", orderID))
	return true
}

// OrderStatus reports the venue-side status of a submitted order.
// Orders no longer working report their terminal status.
func (p *PaperAdapter) OrderStatus(orderID string) (domain.OrderStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if po, ok := p.working[orderID]; ok {
		return po.order.Status, true
	}
	if st, ok := p.closed[orderID]; ok {
		return st, true
	}
	return "", false
}

// Balance returns a decimal snapshot of cash, holdings and equity at
// current marks.
func (p *PaperAdapter) Balance() Balance {
	p.mu.Lock()
	defer p.mu.Unlock()

	cash := decimal.New(p.cashMicros, -6)
	equity := cash
	holdings := make(map[string]decimal.Decimal, len(p.holdings))
	for sym, qty := range p.holdings {
		if qty == 0 {
			continue
		}
		holdings[sym] = decimal.New(int64(qty), -8)
		if last, ok := p.prices[sym]; ok {
			mark := decimal.New(quant.NotionalMicros(last, qty), -6)
			equity = equity.Add(mark)
		}
	}

	return Balance{Cash: cash, Holdings: holdings, Equity: equity}
}

// SubscribeFills registers a fill callback and replays fills already
// delivered so late subscribers observe the full history.
func (p *PaperAdapter) SubscribeFills(fn func(domain.Fill)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	replay := make([]domain.Fill, len(p.delivered))
	copy(replay, p.delivered)
	p.mu.Unlock()

	for _, f := range replay {
		fn(f)
	}
}

// SubscribeCancels registers a callback for venue-initiated
// cancellations, such as an IOC that found no liquidity.
func (p *PaperAdapter) SubscribeCancels(fn func(orderID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelSubs = append(p.cancelSubs, fn)
}

// WorkingOrders lists orders still open at the venue.
func (p *PaperAdapter) WorkingOrders() []domain.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Order, 0, len(p.working))
	for _, po := range p.working {
		out = append(out, po.order)
	}
	return out
}

func nowMicros() quant.TimeStamp {
	return quant.TimeStamp(time.Now().UnixMicro())
}
