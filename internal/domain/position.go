package domain

import (
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/safe"
)

// Position represents the net exposure for one symbol.
// It is derived exclusively by folding fills in arrival order and is
// never mutated directly. All monetary values are strictly int64.
type Position struct {
	Symbol              string            `json:"symbol"`
	QtySats             quant.QtySats     `json:"qty,string"` // Positive for Long, Negative for Short.
	AvgEntryPriceMicros quant.PriceMicros `json:"avg_entry,string"`
}

// IsLong checks if the position is Long.
func (p *Position) IsLong() bool {
	return p.QtySats > 0
}

// IsShort checks if the position is Short.
func (p *Position) IsShort() bool {
	return p.QtySats < 0
}

// IsFlat checks if the position has no exposure.
func (p *Position) IsFlat() bool {
	return p.QtySats == 0
}

// ApplyFill folds one fill into the position. Entry price tracks the
// volume-weighted average while the fill extends exposure; a fill that
// reduces or flips exposure keeps (or restarts) the average.
func (p *Position) ApplyFill(f *Fill) {
	delta := f.SignedQty()
	next := quant.QtySats(safe.SafeAdd(int64(p.QtySats), int64(delta)))

	switch {
	case p.QtySats == 0:
		p.AvgEntryPriceMicros = f.PriceMicros
	case (p.QtySats > 0) == (delta > 0):
		// Extending the same direction: fold into the VWAP.
		abs := p.QtySats
		if abs < 0 {
			abs = -abs
		}
		fillAbs := delta
		if fillAbs < 0 {
			fillAbs = -fillAbs
		}
		p.AvgEntryPriceMicros = quant.VWAP(p.AvgEntryPriceMicros, abs, f.PriceMicros, fillAbs)
	case (next > 0) != (p.QtySats > 0) && next != 0:
		// Flipped through zero: the remainder opened at the fill price.
		p.AvgEntryPriceMicros = f.PriceMicros
	case next == 0:
		p.AvgEntryPriceMicros = 0
	}
	p.QtySats = next
}
