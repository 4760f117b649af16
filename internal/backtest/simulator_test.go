package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-trader/internal/market"
	"session-trader/internal/order"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
)

// replayStrategy emits a prepared signal when the bar window reaches a
// given length, and records every window it was shown.
type replayStrategy struct {
	signalAt map[int]strategy.Signal // keyed by len(bars)
	windows  []int
	lastBars []market.Bar
}

func (r *replayStrategy) Describe() strategy.Descriptor {
	return strategy.Descriptor{Name: "replay", Symbols: []string{"SPY"}, Timeframe: market.Timeframe5Min}
}

func (r *replayStrategy) Compute(symbol string, bars []market.Bar, quote market.Quote, now time.Time) (strategy.Signal, error) {
	r.windows = append(r.windows, len(bars))
	r.lastBars = bars
	if sig, ok := r.signalAt[len(bars)]; ok {
		return sig, nil
	}
	return strategy.Hold("replay", symbol), nil
}

func buySignal(entry, stop, target float64) strategy.Signal {
	return strategy.Signal{
		Strategy: "replay", Symbol: "SPY",
		Action: strategy.ActionBuy,
		Entry:  entry, StopLoss: stop, TakeProfit: target,
	}
}

func sellSignal(entry, stop, target float64) strategy.Signal {
	s := buySignal(entry, stop, target)
	s.Action = strategy.ActionSell
	return s
}

// flatBars builds n five-minute bars with the given OHLC applied to all.
func flatBars(n int, o, h, l, c float64) []market.Bar {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	out := make([]market.Bar, n)
	for i := range out {
		out[i] = market.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute), Open: o, High: h, Low: l, Close: c}
	}
	return out
}

func newSim(t *testing.T, strat strategy.Strategy, limits risk.Limits) *Simulator {
	t.Helper()
	sim, err := New(Config{
		Strategy:    strat,
		Gate:        risk.NewGate(limits),
		Symbol:      "SPY",
		Timeframe:   market.Timeframe5Min,
		InitialCash: 10000,
	})
	require.NoError(t, err)
	return sim
}

func sizingLimits() risk.Limits {
	// Position size only; every other check disabled.
	return risk.Limits{MaxPositionSizePct: 5.0}
}

func TestConfigValidation(t *testing.T) {
	strat := &replayStrategy{}
	gate := risk.NewGate(sizingLimits())

	cases := []struct {
		name string
		cfg  Config
	}{
		{"missing strategy", Config{Gate: gate, Symbol: "SPY", Timeframe: market.Timeframe5Min, InitialCash: 100}},
		{"missing gate", Config{Strategy: strat, Symbol: "SPY", Timeframe: market.Timeframe5Min, InitialCash: 100}},
		{"missing symbol", Config{Strategy: strat, Gate: gate, Timeframe: market.Timeframe5Min, InitialCash: 100}},
		{"zero cash", Config{Strategy: strat, Gate: gate, Symbol: "SPY", Timeframe: market.Timeframe5Min}},
		{"bad timeframe", Config{Strategy: strat, Gate: gate, Symbol: "SPY", Timeframe: "7Min", InitialCash: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunRejectsUnsortedBars(t *testing.T) {
	sim := newSim(t, &replayStrategy{}, sizingLimits())
	bars := flatBars(3, 100, 101, 99, 100)
	bars[2].Time = bars[0].Time // duplicate timestamp

	_, err := sim.Run(bars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")

	_, err = sim.Run(nil)
	assert.Error(t, err)
}

func TestStrategySeesOnlyClosedBars(t *testing.T) {
	strat := &replayStrategy{}
	sim := newSim(t, strat, sizingLimits())
	bars := flatBars(6, 100, 101, 99, 100)

	_, err := sim.Run(bars)
	require.NoError(t, err)

	// Call i sees exactly bars [0..i].
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, strat.windows)
	assert.Equal(t, bars[5].Time, strat.lastBars[len(strat.lastBars)-1].Time)
}

func TestSignalFillsAtNextBarOpen(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		2: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, sizingLimits())

	bars := flatBars(5, 100, 101, 99, 100)
	bars[2].Open = 100.6 // the fill bar opens away from the signal price

	res, err := sim.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, order.SideBuy, tr.Side)
	assert.Equal(t, bars[2].Time, tr.EntryTime)
	assert.InDelta(t, 100.6, tr.EntryPrice, 1e-9)
	// Budget 500 over a 10-point stop: 50 units.
	assert.InDelta(t, 50.0, tr.Qty, 1e-9)
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
}

func TestStopWinsWhenBarTouchesBothLevels(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, sizingLimits())

	bars := flatBars(4, 100, 101, 99, 100)
	bars[2] = market.Bar{Time: bars[2].Time, Open: 100, High: 115, Low: 85, Close: 100}

	res, err := sim.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ExitStopLoss, tr.ExitReason)
	assert.InDelta(t, 90.0, tr.ExitPrice, 1e-9)
	assert.InDelta(t, -500.0, tr.PnL, 1e-9) // 50 units x -10
}

func TestGapThroughStopFillsAtOpen(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, sizingLimits())

	bars := flatBars(4, 100, 101, 99, 100)
	bars[2] = market.Bar{Time: bars[2].Time, Open: 80, High: 82, Low: 78, Close: 80}

	res, err := sim.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, ExitStopLoss, tr.ExitReason)
	assert.InDelta(t, 80.0, tr.ExitPrice, 1e-9)
}

func TestShortTakeProfit(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: sellSignal(100, 110, 90),
	}}
	sim := newSim(t, strat, sizingLimits())

	bars := flatBars(4, 100, 101, 99, 100)
	bars[2] = market.Bar{Time: bars[2].Time, Open: 96, High: 97, Low: 88, Close: 92}

	res, err := sim.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, order.SideSell, tr.Side)
	assert.Equal(t, ExitTakeProfit, tr.ExitReason)
	assert.InDelta(t, 90.0, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 500.0, tr.PnL, 1e-9) // short from 100 to 90, 50 units
	assert.InDelta(t, 10500.0, res.FinalEquity, 1e-9)
}

func TestOnePositionAtATime(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: buySignal(100, 90, 110),
		3: buySignal(100, 90, 110), // arrives while the first is open
	}}
	sim := newSim(t, strat, sizingLimits())

	res, err := sim.Run(flatBars(6, 100, 101, 99, 100))
	require.NoError(t, err)
	assert.Len(t, res.Trades, 1)
	assert.Zero(t, res.Rejections) // skipped, not even proposed
}

func TestGateRejectionIsCounted(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, risk.Limits{MaxPositionSizePct: 0.000001})

	res, err := sim.Run(flatBars(4, 100, 101, 99, 100))
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Rejections)
	assert.InDelta(t, 10000.0, res.FinalEquity, 1e-9)
}

func TestDailyLossLimitUsesSimulatedClock(t *testing.T) {
	// Two losing days of data. The first day's loss breaches the daily
	// limit and blocks the second signal that same day, but the next
	// simulated day starts with a clean slate.
	day1 := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	mk := func(start time.Time, i int, o, h, l, c float64) market.Bar {
		return market.Bar{Time: start.Add(time.Duration(i) * 5 * time.Minute), Open: o, High: h, Low: l, Close: c}
	}
	bars := []market.Bar{
		mk(day1, 0, 100, 101, 99, 100),
		mk(day1, 1, 100, 101, 99, 100),  // signal 1 fills at bar 2
		mk(day1, 2, 100, 100, 85, 90),   // stopped out, -500 on the day
		mk(day1, 3, 100, 101, 99, 100),  // signal 2 rejected: daily loss
		mk(day1, 4, 100, 101, 99, 100),
		mk(day2, 0, 100, 101, 99, 100),  // signal 3 approved on the new day
		mk(day2, 1, 100, 101, 99, 100),
		mk(day2, 2, 100, 101, 99, 100),
	}

	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		2: buySignal(100, 90, 110),
		4: buySignal(100, 90, 110),
		6: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, risk.Limits{MaxPositionSizePct: 5.0, MaxDailyLossPct: 2.0})

	res, err := sim.Run(bars)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rejections)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, ExitStopLoss, res.Trades[0].ExitReason)
	assert.Equal(t, ExitEndOfData, res.Trades[1].ExitReason)
	assert.Equal(t, market.DayKey(day2, time.UTC), market.DayKey(res.Trades[1].EntryTime, time.UTC))
}

func TestEquityCurveMarksToMarket(t *testing.T) {
	strat := &replayStrategy{signalAt: map[int]strategy.Signal{
		1: buySignal(100, 90, 110),
	}}
	sim := newSim(t, strat, sizingLimits())

	bars := flatBars(4, 100, 101, 99, 100)
	bars[2].Close = 104
	bars[3].Close = 98

	res, err := sim.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Equity, 4)

	// Flat before the fill, then cash + 50 units marked at each close.
	assert.InDelta(t, 10000.0, res.Equity[0].Equity, 1e-9)
	assert.InDelta(t, 10000.0, res.Equity[1].Equity, 1e-9)
	assert.InDelta(t, 10200.0, res.Equity[2].Equity, 1e-9) // 5000 cash + 50x104
	assert.InDelta(t, 9900.0, res.Equity[3].Equity, 1e-9)  // 5000 cash + 50x98
	assert.InDelta(t, 9900.0, res.FinalEquity, 1e-9)
}

func TestRunIsDeterministic(t *testing.T) {
	bars := flatBars(8, 100, 101, 99, 100)
	bars[3] = market.Bar{Time: bars[3].Time, Open: 100, High: 112, Low: 99, Close: 110}

	run := func() *Result {
		strat := &replayStrategy{signalAt: map[int]strategy.Signal{
			2: buySignal(100, 90, 110),
		}}
		sim := newSim(t, strat, sizingLimits())
		res, err := sim.Run(bars)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.Equity, b.Equity)
	assert.Equal(t, a.Metrics, b.Metrics)
}
