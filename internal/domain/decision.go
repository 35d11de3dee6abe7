package domain

import (
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// Action is the high-level intent of a strategy decision.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionClose Action = "CLOSE"
)

// Decision is a strategy's instruction to the execution engine.
// Each decision is consumed once and maps to at most one order.
// Confidence is informational; upstream filters have already run.
type Decision struct {
	Action     Action          `json:"action"`
	Symbol     string          `json:"symbol"`
	SizeSats   quant.QtySats   `json:"size,string"`
	Confidence float64         `json:"confidence"` // [0, 1]
	TsUnixM    quant.TimeStamp `json:"ts"`
}

// Validate checks structural invariants before translation to an order.
func (d *Decision) Validate() error {
	if d.Symbol == "" {
		return ErrInvalidOrder{Field: "symbol", Reason: "empty"}
	}
	switch d.Action {
	case ActionLong, ActionShort:
		if d.SizeSats <= 0 {
			return ErrInvalidOrder{Field: "size", Reason: "must be positive"}
		}
	case ActionClose:
		// Size comes from the current position.
	default:
		return ErrInvalidOrder{Field: "action", Reason: string(d.Action)}
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return ErrInvalidOrder{Field: "confidence", Reason: "outside [0,1]"}
	}
	return nil
}
