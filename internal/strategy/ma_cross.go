package strategy

import (
	"fmt"
	"time"

	"session-trader/internal/indicators"
	"session-trader/internal/market"
)

// MACross generates BUY on a golden cross (fast SMA crossing above the
// slow SMA) and SELL on a death cross, evaluated on the closes of the
// bar window.
type MACross struct {
	name    string
	symbols []string
	tf      market.Timeframe
	fast    int
	slow    int

	lastSignal map[string]Action // avoid repeating the same signal
}

// NewMACross builds the strategy, validating the periods.
func NewMACross(name string, symbols []string, tf market.Timeframe, fast, slow int) (*MACross, error) {
	if fast <= 0 || slow <= fast {
		return nil, fmt.Errorf("%w: ma_cross needs 0 < fast < slow, got fast=%d slow=%d", ErrConfigInvalid, fast, slow)
	}
	if name == "" || len(symbols) == 0 {
		return nil, fmt.Errorf("%w: name and symbols are required", ErrConfigInvalid)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: unsupported timeframe %q", ErrConfigInvalid, tf)
	}
	return &MACross{
		name:       name,
		symbols:    symbols,
		tf:         tf,
		fast:       fast,
		slow:       slow,
		lastSignal: make(map[string]Action),
	}, nil
}

func (s *MACross) Describe() Descriptor {
	return Descriptor{
		Name:        s.name,
		Description: fmt.Sprintf("SMA crossover: buy the golden cross, sell the death cross (%d/%d).", s.fast, s.slow),
		Symbols:     s.symbols,
		Timeframe:   s.tf,
		Parameters: map[string]any{
			"fast_period": s.fast,
			"slow_period": s.slow,
		},
	}
}

func (s *MACross) Compute(symbol string, bars []market.Bar, quote market.Quote, now time.Time) (Signal, error) {
	if len(bars) < s.slow+1 {
		return Hold(s.name, symbol), nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	prevFast := indicators.SMA(closes[:len(closes)-1], s.fast)
	prevSlow := indicators.SMA(closes[:len(closes)-1], s.slow)
	fast := indicators.SMA(closes, s.fast)
	slow := indicators.SMA(closes, s.slow)

	var action Action
	switch {
	case prevFast <= prevSlow && fast > slow:
		action = ActionBuy
	case prevFast >= prevSlow && fast < slow:
		action = ActionSell
	default:
		return Hold(s.name, symbol), nil
	}

	if s.lastSignal[symbol] == action {
		return Hold(s.name, symbol), nil
	}
	s.lastSignal[symbol] = action

	return Signal{
		Strategy: s.name,
		Symbol:   symbol,
		Action:   action,
		Note:     fmt.Sprintf("SMA%d %.2f vs SMA%d %.2f", s.fast, fast, s.slow, slow),
	}, nil
}
