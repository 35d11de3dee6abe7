package strategy

import (
	"fmt"
	"sync/atomic"

	"github.com/CrisisCore-Systems/Autotrader-sub003/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/quant"
	"github.com/CrisisCore-Systems/Autotrader-sub003/pkg/safe"
)

// MomentumStrategy implements an SMA crossover strategy.
// It is stateful and deterministic: the same tick sequence always
// produces the same decision sequence.
// Uses a ring buffer so the hotpath does not allocate.
type MomentumStrategy struct {
	symbol      string
	shortPeriod int
	longPeriod  int
	sizeSats    quant.QtySats

	// Ring buffer over the long period.
	prices []int64
	head   int   // Next write position; oldest slot when full.
	count  int
	sum    int64 // Running sum over the long period.

	prevShortSMA int64
	prevLongSMA  int64

	long      bool // Currently holding a long position.
	fillCount atomic.Int64
}

// NewMomentumStrategy creates a crossover strategy for one symbol.
// sizeSats is the fixed size of each entry.
func NewMomentumStrategy(symbol string, shortPeriod, longPeriod int, sizeSats quant.QtySats) *MomentumStrategy {
	if shortPeriod >= longPeriod {
		panic("MomentumStrategy: shortPeriod must be less than longPeriod")
	}
	if sizeSats <= 0 {
		panic("MomentumStrategy: sizeSats must be positive")
	}
	return &MomentumStrategy{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		sizeSats:    sizeSats,
		prices:      make([]int64, longPeriod),
	}
}

// OnMarketUpdate folds a tick into the ring buffer and emits a decision
// on a crossover. A golden cross (short SMA rising above long) opens a
// long; a dead cross closes it.
func (s *MomentumStrategy) OnMarketUpdate(state domain.MarketState) []domain.Decision {
	if state.Symbol != s.symbol {
		return nil
	}

	currentPrice := int64(state.PriceMicros)

	// If full, subtract the oldest value from sum before overwriting.
	if s.count == s.longPeriod {
		s.sum = safe.SafeSub(s.sum, s.prices[s.head])
	}
	s.prices[s.head] = currentPrice
	s.sum = safe.SafeAdd(s.sum, currentPrice)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	if s.count < s.longPeriod {
		return nil
	}

	currLongSMA := safe.SafeDiv(s.sum, int64(s.longPeriod))
	currShortSMA := s.shortSMA()

	var decisions []domain.Decision
	if s.prevShortSMA != 0 && s.prevLongSMA != 0 {
		crossUp := s.prevShortSMA <= s.prevLongSMA && currShortSMA > currLongSMA
		crossDown := s.prevShortSMA >= s.prevLongSMA && currShortSMA < currLongSMA

		switch {
		case crossUp && !s.long:
			decisions = append(decisions, domain.Decision{
				Action:     domain.ActionLong,
				Symbol:     s.symbol,
				SizeSats:   s.sizeSats,
				Confidence: crossConfidence(currShortSMA, currLongSMA),
				TsUnixM:    state.LastUpdateUnixM,
			})
			s.long = true
		case crossDown && s.long:
			decisions = append(decisions, domain.Decision{
				Action:     domain.ActionClose,
				Symbol:     s.symbol,
				Confidence: crossConfidence(currLongSMA, currShortSMA),
				TsUnixM:    state.LastUpdateUnixM,
			})
			s.long = false
		}
	}

	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA
	return decisions
}

// RecordExecution counts fills. Position state is tracked from
// decisions, not fills, so a partial fill does not flip intent.
func (s *MomentumStrategy) RecordExecution(fill domain.Fill) {
	if fill.Symbol != s.symbol {
		return
	}
	s.fillCount.Add(1)
}

// Status summarizes the strategy state for logs.
func (s *MomentumStrategy) Status() string {
	posture := "FLAT"
	if s.long {
		posture = "LONG"
	}
	return fmt.Sprintf("momentum[%s] sma=%d/%d posture=%s fills=%d",
		s.symbol, s.shortPeriod, s.longPeriod, posture, s.fillCount.Load())
}

// shortSMA walks the ring buffer backwards from the newest entry.
func (s *MomentumStrategy) shortSMA() int64 {
	var sum int64
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = safe.SafeAdd(sum, s.prices[idx])
	}
	return safe.SafeDiv(sum, int64(s.shortPeriod))
}

// crossConfidence scales the SMA spread into (0, 1]. A wider spread at
// the moment of the cross reads as a stronger signal.
func crossConfidence(above, below int64) float64 {
	if below == 0 {
		return 0.5
	}
	spread := float64(safe.SafeSub(above, below)) / float64(below)
	if spread < 0 {
		spread = -spread
	}
	conf := 0.5 + spread*10
	if conf > 1 {
		conf = 1
	}
	return conf
}
