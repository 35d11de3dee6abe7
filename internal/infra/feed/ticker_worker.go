package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// PriceSink receives the latest traded price for a symbol.
// The paper adapter's price book implements this.
type PriceSink interface {
	SetPrice(symbol string, price quant.PriceMicros)
}

// tickerMessage is the generic ticker frame the feed endpoint emits.
// Numeric fields arrive as strings; they are parsed with decimal to
// avoid float64 precision loss before conversion to fixed point.
type tickerMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Qty    string `json:"qty"`
	TsMS   int64  `json:"ts"`
}

// Worker streams tickers from a WebSocket feed into a PriceSink and,
// optionally, a market-state callback for the strategy loop.
type Worker struct {
	base    *infra.BaseWSWorker
	url     string
	symbols []string
	sink    PriceSink
	onTick  func(domain.MarketState)
}

// NewWorker creates a ticker feed worker.
// onTick may be nil when only the price book needs updates.
func NewWorker(url string, symbols []string, sink PriceSink, onTick func(domain.MarketState)) *Worker {
	w := &Worker{
		url:     url,
		symbols: symbols,
		sink:    sink,
		onTick:  onTick,
	}
	w.base = infra.NewBaseWSWorker(w)
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() string { return "TICKER_FEED" }

// GetURL returns the feed WebSocket endpoint.
func (w *Worker) GetURL() string { return w.url }

// Connect starts the WebSocket connection.
func (w *Worker) Connect(ctx context.Context) error {
	w.base.Start(ctx)
	return nil
}

// Disconnect terminates the connection.
func (w *Worker) Disconnect() {
	w.base.Stop()
}

// OnConnect subscribes to tickers for the configured symbols.
func (w *Worker) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	msg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "ticker",
		"symbols": w.symbols,
	}
	b, _ := json.Marshal(msg)
	return w.base.Write(websocket.TextMessage, b)
}

// OnMessage parses a ticker frame and forwards it.
func (w *Worker) OnMessage(ctx context.Context, msg []byte) {
	var tick tickerMessage
	if err := json.Unmarshal(msg, &tick); err != nil {
		slog.Warn("Feed: malformed frame", "err", err)
		return
	}
	if tick.Type != "" && tick.Type != "ticker" {
		return // Subscription acks, heartbeats.
	}
	if tick.Symbol == "" || tick.Price == "" {
		return
	}

	price, err := parseMicros(tick.Price, quant.PriceScale)
	if err != nil {
		slog.Warn("Feed: bad price", "symbol", tick.Symbol, "price", tick.Price, "err", err)
		return
	}
	qty, _ := parseMicros(tick.Qty, quant.QtyScale)

	if w.sink != nil {
		w.sink.SetPrice(tick.Symbol, quant.PriceMicros(price))
	}
	if w.onTick != nil {
		w.onTick(domain.MarketState{
			Symbol:          tick.Symbol,
			PriceMicros:     quant.PriceMicros(price),
			TotalQtySats:    quant.QtySats(qty),
			LastUpdateUnixM: quant.TimeStamp(tick.TsMS * 1000),
		})
	}
}

// OnPing sends a protocol-level ping frame.
func (w *Worker) OnPing(ctx context.Context, conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// parseMicros converts a decimal string into int64 at the given scale.
func parseMicros(s string, scale int64) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(decimal.NewFromInt(scale)).Round(0).IntPart(), nil
}
