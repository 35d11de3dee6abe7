package domain

import (
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType describes how an order executes.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
	TypeIOC    OrderType = "IOC"
	TypeFOK    OrderType = "FOK"
	TypeStop   OrderType = "STOP"
)

// OrderStatus is the lifecycle state of an order.
// Transitions are monotone: NEW -> SUBMITTED -> PARTIALLY_FILLED* ->
// {FILLED | CANCELLED | REJECTED}. Terminal states never change.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

// statusRank orders the lifecycle so monotonicity can be enforced.
var statusRank = map[OrderStatus]int{
	StatusNew:             0,
	StatusSubmitted:       1,
	StatusPartiallyFilled: 2,
	StatusFilled:          3,
	StatusCancelled:       3,
	StatusRejected:        3,
}

// IsTerminal reports whether the status admits no further transition.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order represents a trading order.
// All monetary values are strictly int64 fixed-point.
type Order struct {
	ID                  string            `json:"id"`
	Symbol              string            `json:"symbol"`
	Side                Side              `json:"side"`
	Type                OrderType         `json:"type"`
	QtySats             quant.QtySats     `json:"qty,string"`
	LimitPriceMicros    quant.PriceMicros `json:"limit_price,string"` // Required for LIMIT/STOP, 0 otherwise.
	Status              OrderStatus       `json:"status"`
	FilledQtySats       quant.QtySats     `json:"filled_qty,string"`
	AvgFillPriceMicros  quant.PriceMicros `json:"avg_fill_price,string"`
	CommissionMicros    int64             `json:"commission,string"`
	CreatedUnixM        quant.TimeStamp   `json:"created_unix"`
	UpdatedUnixM        quant.TimeStamp   `json:"updated_unix"`
	RejectReason        string            `json:"reject_reason,omitempty"`
}

// IsOpen checks if the order is still working at the venue.
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// CanTransition reports whether moving to next respects the monotone
// lifecycle. Terminal states reject everything, including themselves.
func (o *Order) CanTransition(next OrderStatus) bool {
	if o.Status.IsTerminal() {
		return false
	}
	return statusRank[next] >= statusRank[o.Status]
}

// Validate checks structural invariants of a freshly built order.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return ErrInvalidOrder{Field: "symbol", Reason: "empty"}
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return ErrInvalidOrder{Field: "side", Reason: string(o.Side)}
	}
	if o.QtySats <= 0 {
		return ErrInvalidOrder{Field: "qty", Reason: "must be positive"}
	}
	switch o.Type {
	case TypeLimit, TypeStop:
		if o.LimitPriceMicros <= 0 {
			return ErrInvalidOrder{Field: "limit_price", Reason: "required for " + string(o.Type)}
		}
	case TypeMarket, TypeIOC, TypeFOK:
		// Price discovered at the venue.
	default:
		return ErrInvalidOrder{Field: "type", Reason: string(o.Type)}
	}
	return nil
}

// ErrInvalidOrder reports a structurally invalid order before submission.
type ErrInvalidOrder struct {
	Field  string
	Reason string
}

func (e ErrInvalidOrder) Error() string {
	return "invalid order: " + e.Field + ": " + e.Reason
}
