package broker

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
)

// ErrNotConnected is returned when an operation needs a live venue
// session. It is transient: callers may reconnect and retry.
var ErrNotConnected = errors.New("broker: not connected")

// RejectionError is an order-level rejection (bad symbol, insufficient
// funds). It is terminal for the order and must never be retried.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "order rejected: " + e.Reason
}

// IsRejection reports whether err carries an order-level rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// Balance is a point-in-time snapshot of the venue account, reported
// in decimal at the boundary.
type Balance struct {
	Cash     decimal.Decimal            `json:"cash"`
	Holdings map[string]decimal.Decimal `json:"holdings"`
	Equity   decimal.Decimal            `json:"equity"`
}

// Adapter translates generic orders into venue operations and emits
// fills. One variant exists per venue; each variant exclusively owns
// its own connection.
//
// Contract every variant satisfies:
//   - Connect/Disconnect are idempotent and never panic; a failed
//     Connect returns false so callers can retry.
//   - SubmitOrder returns with status >= SUBMITTED and never blocks
//     for a fill; fills arrive asynchronously via SubscribeFills.
//   - CancelOrder returning true means the request was accepted, not
//     that no fill will still arrive.
//   - SubscribeFills invokes the callback once per fill and replays
//     fills delivered before the subscription if the venue supports
//     replay.
//   - SubscribeCancels reports venue-initiated cancellations only
//     (e.g. an IOC that found no liquidity); the outcome of an
//     explicit CancelOrder is its return value, not a notification.
type Adapter interface {
	Name() string
	Connect(ctx context.Context) bool
	Disconnect()
	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) bool
	Balance() Balance
	SubscribeFills(fn func(domain.Fill))
	SubscribeCancels(fn func(orderID string))
}
