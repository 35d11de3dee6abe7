package quant

import "testing"

func TestConversions(t *testing.T) {
	if got := ToPriceMicros(1.23); got != 1_230_000 {
		t.Errorf("ToPriceMicros(1.23) = %d, want 1230000", got)
	}
	if got := ToQtySats(0.1); got != 10_000_000 {
		t.Errorf("ToQtySats(0.1) = %d, want 10000000", got)
	}
}

func TestNotionalMicros(t *testing.T) {
	// 0.1 units at 50,000 -> 5,000 notional.
	price := ToPriceMicros(50000)
	qty := ToQtySats(0.1)
	if got := NotionalMicros(price, qty); got != 5_000_000_000 {
		t.Errorf("NotionalMicros = %d, want 5000000000", got)
	}
}

func TestApplyBps(t *testing.T) {
	tests := []struct {
		name string
		bps  int64
		want PriceMicros
	}{
		{"NoSlippage", 0, 50_000_000_000},
		{"FiveBpsUp", 5, 50_025_000_000},
		{"FiveBpsDown", -5, 49_975_000_000},
	}
	base := ToPriceMicros(50000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyBps(base, tt.bps); got != tt.want {
				t.Errorf("ApplyBps(%d, %d) = %d, want %d", base, tt.bps, got, tt.want)
			}
		})
	}
}

func TestCommissionMicros(t *testing.T) {
	// 10 bps of a 5,000 notional -> 5.
	price := ToPriceMicros(50000)
	qty := ToQtySats(0.1)
	if got := CommissionMicros(price, qty, 10); got != 5_000_000 {
		t.Errorf("CommissionMicros = %d, want 5000000", got)
	}
	if got := CommissionMicros(price, qty, 0); got != 0 {
		t.Errorf("zero bps commission = %d, want 0", got)
	}
}

func TestVWAP(t *testing.T) {
	tests := []struct {
		name      string
		prevAvg   PriceMicros
		prevQty   QtySats
		fillPrice PriceMicros
		fillQty   QtySats
		want      PriceMicros
	}{
		{"FirstFill", 0, 0, 100_000_000, 50_000_000, 100_000_000},
		{"EqualWeights", 100_000_000, 50_000_000, 200_000_000, 50_000_000, 150_000_000},
		{"SkewedWeights", 100_000_000, 300_000_000, 200_000_000, 100_000_000, 125_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VWAP(tt.prevAvg, tt.prevQty, tt.fillPrice, tt.fillQty)
			if got != tt.want {
				t.Errorf("VWAP = %d, want %d", got, tt.want)
			}
		})
	}
}
