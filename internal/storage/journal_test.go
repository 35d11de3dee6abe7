package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/resiliency"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

var (
	_ oms.Journal              = (*Journal)(nil)
	_ resiliency.DeadLetterSink = (*Journal)(nil)
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_OrderRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	order := domain.Order{
		ID:               "ord-1",
		Symbol:           "BTCUSDT",
		Side:             domain.SideBuy,
		Type:             domain.TypeLimit,
		QtySats:          quant.ToQtySats(0.5),
		LimitPriceMicros: quant.ToPriceMicros(50000),
		Status:           domain.StatusSubmitted,
		CreatedUnixM:     quant.TimeStamp(1000),
		UpdatedUnixM:     quant.TimeStamp(1000),
	}
	if err := j.RecordOrder(order); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}

	loaded, err := j.LoadOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}
	if loaded != order {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded, order)
	}
}

func TestJournal_OrderUpsertKeepsLatestState(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	order := domain.Order{
		ID:           "ord-1",
		Symbol:       "BTCUSDT",
		Side:         domain.SideBuy,
		Type:         domain.TypeMarket,
		QtySats:      quant.ToQtySats(1.0),
		Status:       domain.StatusSubmitted,
		CreatedUnixM: quant.TimeStamp(1000),
		UpdatedUnixM: quant.TimeStamp(1000),
	}
	if err := j.RecordOrder(order); err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}

	order.Status = domain.StatusFilled
	order.FilledQtySats = order.QtySats
	order.AvgFillPriceMicros = quant.ToPriceMicros(50100)
	order.UpdatedUnixM = quant.TimeStamp(2000)
	if err := j.RecordOrder(order); err != nil {
		t.Fatalf("RecordOrder upsert: %v", err)
	}

	loaded, err := j.LoadOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}
	if loaded.Status != domain.StatusFilled {
		t.Errorf("status = %s, want FILLED", loaded.Status)
	}
	if loaded.UpdatedUnixM != 2000 {
		t.Errorf("updated = %d, want 2000", loaded.UpdatedUnixM)
	}

	// Terminal orders drop out of the open set.
	open, err := j.LoadOpenOrders(ctx)
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open orders = %d, want 0", len(open))
	}
}

func TestJournal_LoadOpenOrders(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	states := []struct {
		id     string
		status domain.OrderStatus
	}{
		{"ord-open", domain.StatusSubmitted},
		{"ord-partial", domain.StatusPartiallyFilled},
		{"ord-done", domain.StatusFilled},
		{"ord-dead", domain.StatusRejected},
	}
	for i, s := range states {
		order := domain.Order{
			ID:               s.id,
			Symbol:           "ETHUSDT",
			Side:             domain.SideSell,
			Type:             domain.TypeLimit,
			QtySats:          quant.ToQtySats(1.0),
			LimitPriceMicros: quant.ToPriceMicros(3000),
			Status:           s.status,
			CreatedUnixM:     quant.TimeStamp(int64(1000 + i)),
			UpdatedUnixM:     quant.TimeStamp(int64(1000 + i)),
		}
		if err := j.RecordOrder(order); err != nil {
			t.Fatalf("RecordOrder %s: %v", s.id, err)
		}
	}

	open, err := j.LoadOpenOrders(ctx)
	if err != nil {
		t.Fatalf("LoadOpenOrders: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open orders = %d, want 2", len(open))
	}
	if open[0].ID != "ord-open" || open[1].ID != "ord-partial" {
		t.Errorf("open order IDs = %s, %s", open[0].ID, open[1].ID)
	}
}

func TestJournal_FillsIdempotentByID(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	fill := domain.Fill{
		ID:               "fill-1",
		OrderID:          "ord-1",
		Symbol:           "BTCUSDT",
		Side:             domain.SideBuy,
		QtySats:          quant.ToQtySats(0.25),
		PriceMicros:      quant.ToPriceMicros(50000),
		CommissionMicros: 12500000,
		TsUnixM:          quant.TimeStamp(1500),
	}
	if err := j.RecordFill(fill); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}
	// Replayed delivery of the same fill must not duplicate the row.
	if err := j.RecordFill(fill); err != nil {
		t.Fatalf("RecordFill replay: %v", err)
	}

	fills, err := j.LoadFills(ctx, "ord-1")
	if err != nil {
		t.Fatalf("LoadFills: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	if fills[0] != fill {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", fills[0], fill)
	}
}

func TestJournal_DeadLetters(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	dl := resiliency.DeadLetter{
		Order:    domain.Order{ID: "ord-1", Symbol: "BTCUSDT"},
		Reason:   "retries exhausted: connection refused",
		FailedAt: time.Now(),
	}
	if err := j.RecordDeadLetter(dl); err != nil {
		t.Fatalf("RecordDeadLetter: %v", err)
	}

	n, err := j.DeadLetterCount(ctx)
	if err != nil {
		t.Fatalf("DeadLetterCount: %v", err)
	}
	if n != 1 {
		t.Errorf("dead letters = %d, want 1", n)
	}
}

func TestJournal_LoadMissingOrder(t *testing.T) {
	j := newTestJournal(t)

	_, err := j.LoadOrder(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}
