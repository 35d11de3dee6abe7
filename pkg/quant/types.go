package quant

import (
	"fmt"
	"math"

	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/safe"
)

// PriceMicros represents price multiplied by 1,000,000 (10^6).
// E.g., 1.23 USD = 1,230,000 PriceMicros.
type PriceMicros int64

// QtySats represents quantity multiplied by 100,000,000 (10^8).
// E.g., 1.0 BTC = 100,000,000 QtySats.
type QtySats int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

const (
	PriceScale = 1000000
	QtyScale   = 100000000

	// BpsScale is the denominator for basis-point math (1 bps = 0.01%).
	BpsScale = 10000
)

// ToPriceMicros converts a float64 (from external API) to PriceMicros.
// Note: Only used at the boundary. Internal logic uses PriceMicros directly.
func ToPriceMicros(f float64) PriceMicros {
	return PriceMicros(math.Round(f * PriceScale))
}

// ToQtySats converts a float64 to QtySats.
func ToQtySats(f float64) QtySats {
	return QtySats(math.Round(f * QtyScale))
}

func (p PriceMicros) String() string {
	return fmt.Sprintf("%.6f", float64(p)/PriceScale)
}

func (q QtySats) String() string {
	return fmt.Sprintf("%.8f", float64(q)/QtyScale)
}

// NotionalMicros returns price*qty rescaled back to micros.
func NotionalMicros(price PriceMicros, qty QtySats) int64 {
	return safe.SafeMulDiv(int64(price), int64(qty), QtyScale)
}

// ApplyBps scales a price by (BpsScale+bps)/BpsScale. Negative bps
// moves the price down. Used for slippage against the side of an order.
func ApplyBps(price PriceMicros, bps int64) PriceMicros {
	return PriceMicros(safe.SafeMulDiv(int64(price), BpsScale+bps, BpsScale))
}

// CommissionMicros returns bps of the notional price*qty.
func CommissionMicros(price PriceMicros, qty QtySats, bps int64) int64 {
	return safe.SafeMulDiv(NotionalMicros(price, qty), bps, BpsScale)
}

// VWAP folds a new fill into a running volume-weighted average price.
// prevQty is the quantity already averaged into prevAvg.
func VWAP(prevAvg PriceMicros, prevQty QtySats, fillPrice PriceMicros, fillQty QtySats) PriceMicros {
	totalQty := safe.SafeAdd(int64(prevQty), int64(fillQty))
	if totalQty == 0 {
		return 0
	}
	prevNotional := safe.SafeMulDiv(int64(prevAvg), int64(prevQty), 1)
	fillNotional := safe.SafeMulDiv(int64(fillPrice), int64(fillQty), 1)
	return PriceMicros(safe.SafeDiv(safe.SafeAdd(prevNotional, fillNotional), totalQty))
}
