package strategy

import (
	"fmt"
	"time"

	"session-trader/internal/indicators"
	"session-trader/internal/market"
)

// RSIReversion trades RSI extremes on the closes of the bar window:
// BUY below the oversold threshold, SELL above the overbought threshold.
type RSIReversion struct {
	name       string
	symbols    []string
	tf         market.Timeframe
	period     int
	oversold   float64
	overbought float64

	lastSignal map[string]Action
}

// NewRSIReversion builds the strategy, validating the thresholds.
func NewRSIReversion(name string, symbols []string, tf market.Timeframe, period int, oversold, overbought float64) (*RSIReversion, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: rsi period must be positive, got %d", ErrConfigInvalid, period)
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, fmt.Errorf("%w: rsi thresholds need 0 < oversold < overbought < 100, got %.1f/%.1f", ErrConfigInvalid, oversold, overbought)
	}
	if name == "" || len(symbols) == 0 {
		return nil, fmt.Errorf("%w: name and symbols are required", ErrConfigInvalid)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: unsupported timeframe %q", ErrConfigInvalid, tf)
	}
	return &RSIReversion{
		name:       name,
		symbols:    symbols,
		tf:         tf,
		period:     period,
		oversold:   oversold,
		overbought: overbought,
		lastSignal: make(map[string]Action),
	}, nil
}

func (s *RSIReversion) Describe() Descriptor {
	return Descriptor{
		Name:        s.name,
		Description: fmt.Sprintf("RSI reversion: buy below %.0f, sell above %.0f (period %d).", s.oversold, s.overbought, s.period),
		Symbols:     s.symbols,
		Timeframe:   s.tf,
		Parameters: map[string]any{
			"period":     s.period,
			"oversold":   s.oversold,
			"overbought": s.overbought,
		},
	}
}

func (s *RSIReversion) Compute(symbol string, bars []market.Bar, quote market.Quote, now time.Time) (Signal, error) {
	if len(bars) < s.period+1 {
		return Hold(s.name, symbol), nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	rsi := indicators.RSI(closes, s.period)

	var action Action
	switch {
	case rsi < s.oversold:
		action = ActionBuy
	case rsi > s.overbought:
		action = ActionSell
	default:
		s.lastSignal[symbol] = ActionHold
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
		Note:     fmt.Sprintf("RSI %.2f", rsi),
	}, nil
}
