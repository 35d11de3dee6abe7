package domain

import (
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
)

// Fill is a confirmation that some or all of an order's quantity
// executed at a price. Fills are immutable once recorded; applying the
// same fill ID twice is a no-op at the ledger.
type Fill struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	Symbol           string            `json:"symbol"`
	Side             Side              `json:"side"`
	QtySats          quant.QtySats     `json:"qty,string"`
	PriceMicros      quant.PriceMicros `json:"price,string"`
	CommissionMicros int64             `json:"commission,string"`
	TsUnixM          quant.TimeStamp   `json:"ts"`
}

// SignedQty returns the position delta of the fill: positive for BUY,
// negative for SELL.
func (f *Fill) SignedQty() quant.QtySats {
	if f.Side == SideSell {
		return -f.QtySats
	}
	return f.QtySats
}
