package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/resiliency"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// Journal handles persistent storage of the execution record in SQLite.
// Orders are upserted so the row always reflects the latest state;
// fills and dead letters are append-only.
type Journal struct {
	db *sql.DB
}

// NewJournal creates a SQLite journal with WAL mode enabled.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL,
			qty_sats INTEGER NOT NULL,
			limit_price_micros INTEGER NOT NULL,
			status TEXT NOT NULL,
			filled_qty_sats INTEGER NOT NULL,
			avg_fill_price_micros INTEGER NOT NULL,
			commission_micros INTEGER NOT NULL,
			reject_reason TEXT NOT NULL DEFAULT '',
			created_unix INTEGER NOT NULL,
			updated_unix INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS fills (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty_sats INTEGER NOT NULL,
			price_micros INTEGER NOT NULL,
			commission_micros INTEGER NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id);`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			reason TEXT NOT NULL,
			failed_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Journal{db: db}, nil
}

// RecordOrder upserts the current state of an order.
func (j *Journal) RecordOrder(order domain.Order) error {
	_, err := j.db.Exec(`
		INSERT INTO orders (id, symbol, side, type, qty_sats, limit_price_micros,
			status, filled_qty_sats, avg_fill_price_micros, commission_micros,
			reject_reason, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			filled_qty_sats=excluded.filled_qty_sats,
			avg_fill_price_micros=excluded.avg_fill_price_micros,
			commission_micros=excluded.commission_micros,
			reject_reason=excluded.reject_reason,
			updated_unix=excluded.updated_unix`,
		order.ID, order.Symbol, string(order.Side), string(order.Type),
		int64(order.QtySats), int64(order.LimitPriceMicros),
		string(order.Status), int64(order.FilledQtySats),
		int64(order.AvgFillPriceMicros), order.CommissionMicros,
		order.RejectReason, int64(order.CreatedUnixM), int64(order.UpdatedUnixM),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", order.ID, err)
	}
	return nil
}

// RecordFill appends a fill. Replaying the same fill ID is a no-op so
// at-least-once delivery upstream stays safe.
func (j *Journal) RecordFill(fill domain.Fill) error {
	_, err := j.db.Exec(`
		INSERT INTO fills (id, order_id, symbol, side, qty_sats, price_micros, commission_micros, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		fill.ID, fill.OrderID, fill.Symbol, string(fill.Side),
		int64(fill.QtySats), int64(fill.PriceMicros), fill.CommissionMicros,
		int64(fill.TsUnixM),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill %s: %w", fill.ID, err)
	}
	return nil
}

// RecordDeadLetter appends a permanently failed order.
func (j *Journal) RecordDeadLetter(dl resiliency.DeadLetter) error {
	_, err := j.db.Exec(`
		INSERT INTO dead_letters (order_id, symbol, reason, failed_at)
		VALUES (?, ?, ?, ?)`,
		dl.Order.ID, dl.Order.Symbol, dl.Reason, dl.FailedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter for %s: %w", dl.Order.ID, err)
	}
	return nil
}

// LoadOrder reads one order by ID. Returns sql.ErrNoRows when absent.
func (j *Journal) LoadOrder(ctx context.Context, id string) (domain.Order, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, symbol, side, type, qty_sats, limit_price_micros,
			status, filled_qty_sats, avg_fill_price_micros, commission_micros,
			reject_reason, created_unix, updated_unix
		FROM orders WHERE id = ?`, id)
	return scanOrder(row)
}

// LoadOpenOrders reads all orders not yet in a terminal state, used to
// rebuild the working set after a restart.
func (j *Journal) LoadOpenOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, side, type, qty_sats, limit_price_micros,
			status, filled_qty_sats, avg_fill_price_micros, commission_micros,
			reject_reason, created_unix, updated_unix
		FROM orders
		WHERE status NOT IN ('FILLED', 'CANCELLED', 'REJECTED')
		ORDER BY created_unix ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return orders, nil
}

// LoadFills reads all fills for an order, oldest first.
func (j *Journal) LoadFills(ctx context.Context, orderID string) ([]domain.Fill, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, qty_sats, price_micros, commission_micros, ts
		FROM fills WHERE order_id = ? ORDER BY ts ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		var qty, price, ts int64
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &side, &qty, &price, &f.CommissionMicros, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		f.Side = domain.Side(side)
		f.QtySats = quant.QtySats(qty)
		f.PriceMicros = quant.PriceMicros(price)
		f.TsUnixM = quant.TimeStamp(ts)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return fills, nil
}

// DeadLetterCount returns the number of persisted dead letters.
func (j *Journal) DeadLetterCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letters").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var side, typ, status string
	var qty, limitPrice, filledQty, avgPrice, created, updated int64
	err := row.Scan(&o.ID, &o.Symbol, &side, &typ, &qty, &limitPrice,
		&status, &filledQty, &avgPrice, &o.CommissionMicros,
		&o.RejectReason, &created, &updated)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)
	o.QtySats = quant.QtySats(qty)
	o.LimitPriceMicros = quant.PriceMicros(limitPrice)
	o.FilledQtySats = quant.QtySats(filledQty)
	o.AvgFillPriceMicros = quant.PriceMicros(avgPrice)
	o.CreatedUnixM = quant.TimeStamp(created)
	o.UpdatedUnixM = quant.TimeStamp(updated)
	return o, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
