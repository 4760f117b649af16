package strategy

import (
	"testing"
	"time"

	"session-trader/internal/market"
)

func testSessionConfig() SessionRangeConfig {
	cfg := DefaultSessionRangeConfig()
	cfg.MinSessionBars = 3
	return cfg
}

func newTestSessionStrategy(t *testing.T, cfg SessionRangeConfig) *SessionRangeReversal {
	t.Helper()
	s, err := NewSessionRangeReversal("session_test", []string{"BTC/USD"}, market.Timeframe1Hour, cfg)
	if err != nil {
		t.Fatalf("NewSessionRangeReversal: %v", err)
	}
	return s
}

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// sessionBarsAt returns n identical hourly bars inside the 00:00-07:00
// session of the given day.
func sessionBarsAt(day time.Time, n int, open, high, low, close float64) []market.Bar {
	bars := make([]market.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, market.Bar{
			Time:  day.Add(time.Duration(i) * time.Hour),
			Open:  open,
			High:  high,
			Low:   low,
			Close: close,
		})
	}
	return bars
}

func TestClipOutlierWicks(t *testing.T) {
	s := newTestSessionStrategy(t, testSessionConfig())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, madrid(t))

	bars := []market.Bar{
		{Time: day, Open: 105, High: 110, Low: 100, Close: 106},
		{Time: day.Add(1 * time.Hour), Open: 104, High: 109, Low: 101, Close: 105},
		{Time: day.Add(2 * time.Hour), Open: 104, High: 155, Low: 100, Close: 106}, // flash wick
		{Time: day.Add(3 * time.Hour), Open: 103, High: 110, Low: 101, Close: 104},
		{Time: day.Add(4 * time.Hour), Open: 105, High: 110, Low: 100, Close: 105},
	}
	// Ranges 10, 8, 55, 9, 10: median 10, threshold 5x10=50, only the
	// third bar is clipped.

	clean := s.clipOutlierWicks(bars)
	if len(clean) != len(bars) {
		t.Fatalf("bar count changed: %d != %d", len(clean), len(bars))
	}
	if clean[2].High != 106 || clean[2].Low != 104 {
		t.Errorf("outlier not clipped to body: high=%.2f low=%.2f", clean[2].High, clean[2].Low)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if clean[i] != bars[i] {
			t.Errorf("bar %d modified without being an outlier", i)
		}
	}
	// Input slice untouched.
	if bars[2].High != 155 {
		t.Error("clip mutated the input slice")
	}

	high, low := extremes(clean)
	if high != 110 || low != 100 {
		t.Errorf("cleaned extremes: got [%.2f, %.2f], want [100, 110]", low, high)
	}
}

func TestClipOutlierWicksSmallWindows(t *testing.T) {
	s := newTestSessionStrategy(t, testSessionConfig())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, madrid(t))

	// Fewer than 3 bars: returned unchanged even with a huge wick.
	two := []market.Bar{
		{Time: day, Open: 105, High: 500, Low: 100, Close: 106},
		{Time: day.Add(time.Hour), Open: 104, High: 109, Low: 101, Close: 105},
	}
	if got := s.clipOutlierWicks(two); got[0].High != 500 {
		t.Error("window below 3 bars must not be clipped")
	}

	// Zero median (doji session): returned unchanged.
	flat := sessionBarsAt(day, 4, 100, 100, 100, 100)
	flat = append(flat, market.Bar{Time: day.Add(5 * time.Hour), Open: 100, High: 120, Low: 100, Close: 100})
	if got := s.clipOutlierWicks(flat); got[4].High != 120 {
		t.Error("zero median must disable clipping")
	}
}

func TestClipThresholdMonotonicInMultiplier(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, madrid(t))
	bars := []market.Bar{
		{Time: day, Open: 105, High: 110, Low: 100, Close: 106},
		{Time: day.Add(1 * time.Hour), Open: 104, High: 109, Low: 101, Close: 105},
		{Time: day.Add(2 * time.Hour), Open: 104, High: 145, Low: 100, Close: 106},
		{Time: day.Add(3 * time.Hour), Open: 103, High: 110, Low: 101, Close: 104},
		{Time: day.Add(4 * time.Hour), Open: 105, High: 110, Low: 100, Close: 105},
	}

	tight := testSessionConfig()
	tight.WickOutlierMultiplier = 3.0
	loose := testSessionConfig()
	loose.WickOutlierMultiplier = 8.0

	cleanTight := newTestSessionStrategy(t, tight).clipOutlierWicks(bars)
	cleanLoose := newTestSessionStrategy(t, loose).clipOutlierWicks(bars)

	highTight, _ := extremes(cleanTight)
	highLoose, _ := extremes(cleanLoose)
	if highTight > highLoose {
		t.Errorf("smaller multiplier must clip at least as much: %.2f > %.2f", highTight, highLoose)
	}
	if highTight != 110 {
		t.Errorf("multiplier 3 should clip the wick, high=%.2f", highTight)
	}
	if highLoose != 145 {
		t.Errorf("multiplier 8 should keep the wick, high=%.2f", highLoose)
	}
}

func TestSessionLifecycleAndEntries(t *testing.T) {
	loc := madrid(t)
	s := newTestSessionStrategy(t, testSessionConfig())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, loc)
	bars := sessionBarsAt(day, 7, 105, 110, 100, 105) // ATR 10, range 10

	flatQuote := market.Quote{Symbol: "BTC/USD", Bid: 105, Ask: 105.5}

	// During the session: building, no signals.
	sig, err := s.Compute("BTC/USD", bars[:4], flatQuote, day.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("compute during session: %v", err)
	}
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD while building, got %s", sig.Action)
	}
	if state, _, _, _, _ := s.DayState("BTC/USD"); state != StateBuilding {
		t.Errorf("expected building, got %s", state)
	}

	// After session close, before the entry window: frozen.
	sig, _ = s.Compute("BTC/USD", bars, flatQuote, day.Add(7*time.Hour+10*time.Minute))
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD while frozen, got %s", sig.Action)
	}
	state, high, low, atr, enabled := s.DayState("BTC/USD")
	if state != StateFrozen {
		t.Errorf("expected frozen, got %s", state)
	}
	if high != 110 || low != 100 || atr != 10 {
		t.Errorf("frozen range: high=%.2f low=%.2f atr=%.2f", high, low, atr)
	}
	if !enabled {
		t.Error("day should pass all quality gates")
	}

	// Entry window, no touch: hold.
	sig, _ = s.Compute("BTC/USD", bars, flatQuote, day.Add(8*time.Hour))
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD without touch, got %s", sig.Action)
	}

	// Bid reaches the session high: SELL with a symmetric bracket.
	touch := market.Quote{Symbol: "BTC/USD", Bid: 110.5, Ask: 111}
	sig, _ = s.Compute("BTC/USD", bars, touch, day.Add(8*time.Hour+30*time.Minute))
	if sig.Action != ActionSell {
		t.Fatalf("expected SELL on high touch, got %s", sig.Action)
	}
	if sig.Entry != 110 || sig.StopLoss != 130 || sig.TakeProfit != 90 {
		t.Errorf("bracket: entry=%.2f sl=%.2f tp=%.2f, want 110/130/90", sig.Entry, sig.StopLoss, sig.TakeProfit)
	}

	// Second touch the same day: trade budget spent.
	sig, _ = s.Compute("BTC/USD", bars, touch, day.Add(9*time.Hour))
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD after max trades per day, got %s", sig.Action)
	}

	// After the entry window: done.
	sig, _ = s.Compute("BTC/USD", bars, touch, day.Add(13*time.Hour))
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD after entry window, got %s", sig.Action)
	}
	if state, _, _, _, _ := s.DayState("BTC/USD"); state != StateDoneForDay {
		t.Errorf("expected done, got %s", state)
	}

	// Next day: state resets and the trade budget is fresh.
	next := day.AddDate(0, 0, 1)
	nextBars := sessionBarsAt(next, 7, 105, 110, 100, 105)
	sig, _ = s.Compute("BTC/USD", nextBars, touch, next.Add(8*time.Hour))
	if sig.Action != ActionSell {
		t.Fatalf("expected SELL on the next day, got %s", sig.Action)
	}
}

func TestEntryLowTouchProducesBuy(t *testing.T) {
	loc := madrid(t)
	s := newTestSessionStrategy(t, testSessionConfig())
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	bars := sessionBarsAt(day, 7, 105, 110, 100, 105)

	touch := market.Quote{Symbol: "BTC/USD", Bid: 99, Ask: 99.5}
	sig, _ := s.Compute("BTC/USD", bars, touch, day.Add(8*time.Hour))
	if sig.Action != ActionBuy {
		t.Fatalf("expected BUY on low touch, got %s", sig.Action)
	}
	if sig.Entry != 100 || sig.StopLoss != 80 || sig.TakeProfit != 120 {
		t.Errorf("bracket: entry=%.2f sl=%.2f tp=%.2f, want 100/80/120", sig.Entry, sig.StopLoss, sig.TakeProfit)
	}
}

func TestDualTouchTieBreak(t *testing.T) {
	loc := madrid(t)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	bars := sessionBarsAt(day, 7, 105, 110, 100, 105)

	// Midpoint nearer the low: the low touch wins.
	s := newTestSessionStrategy(t, testSessionConfig())
	wide := market.Quote{Symbol: "BTC/USD", Bid: 110, Ask: 95}
	sig, _ := s.Compute("BTC/USD", bars, wide, day.Add(8*time.Hour))
	if sig.Action != ActionBuy {
		t.Fatalf("expected BUY when midpoint is nearer the low, got %s", sig.Action)
	}

	// Equidistant midpoint: the high touch wins the tie.
	s2 := newTestSessionStrategy(t, testSessionConfig())
	even := market.Quote{Symbol: "BTC/USD", Bid: 111, Ask: 99}
	sig, _ = s2.Compute("BTC/USD", bars, even, day.Add(8*time.Hour))
	if sig.Action != ActionSell {
		t.Fatalf("expected SELL on equidistant dual touch, got %s", sig.Action)
	}
}

func TestSpreadFilterBlocksEntry(t *testing.T) {
	loc := madrid(t)
	s := newTestSessionStrategy(t, testSessionConfig())
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	bars := sessionBarsAt(day, 7, 105, 110, 100, 105)

	// ATR 10, max spread 0.25 x 10 = 2.5; a 3.0 spread blocks the touch.
	wide := market.Quote{Symbol: "BTC/USD", Bid: 110.5, Ask: 113.5}
	sig, _ := s.Compute("BTC/USD", bars, wide, day.Add(8*time.Hour))
	if sig.Action != ActionHold {
		t.Fatalf("expected HOLD on wide spread, got %s", sig.Action)
	}
}

func TestQualityGatesDisableDay(t *testing.T) {
	loc := madrid(t)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	touch := market.Quote{Symbol: "BTC/USD", Bid: 110.5, Ask: 111}

	t.Run("too few session bars", func(t *testing.T) {
		cfg := testSessionConfig()
		cfg.MinSessionBars = 10
		s := newTestSessionStrategy(t, cfg)
		bars := sessionBarsAt(day, 7, 105, 110, 100, 105)

		sig, _ := s.Compute("BTC/USD", bars, touch, day.Add(8*time.Hour))
		if sig.Action != ActionHold {
			t.Fatalf("expected HOLD with disabled day, got %s", sig.Action)
		}
		if _, _, _, _, enabled := s.DayState("BTC/USD"); enabled {
			t.Error("day should be disabled by the bar-count gate")
		}
	})

	t.Run("zero ATR", func(t *testing.T) {
		s := newTestSessionStrategy(t, testSessionConfig())
		bars := sessionBarsAt(day, 7, 100, 100, 100, 100)

		sig, _ := s.Compute("BTC/USD", bars, touch, day.Add(8*time.Hour))
		if sig.Action != ActionHold {
			t.Fatalf("expected HOLD with zero ATR, got %s", sig.Action)
		}
		if _, _, _, _, enabled := s.DayState("BTC/USD"); enabled {
			t.Error("day should be disabled by the ATR gate")
		}
	})

	t.Run("range below ratio", func(t *testing.T) {
		cfg := testSessionConfig()
		cfg.MinRangeRatio = 1.5 // identical bars give range == ATR
		s := newTestSessionStrategy(t, cfg)
		bars := sessionBarsAt(day, 7, 105, 110, 100, 105)

		sig, _ := s.Compute("BTC/USD", bars, touch, day.Add(8*time.Hour))
		if sig.Action != ActionHold {
			t.Fatalf("expected HOLD with narrow range, got %s", sig.Action)
		}
		if _, _, _, _, enabled := s.DayState("BTC/USD"); enabled {
			t.Error("day should be disabled by the range gate")
		}
	})
}

func TestSessionConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionRangeConfig)
	}{
		{"zero atr multiplier", func(c *SessionRangeConfig) { c.ATRMultiplier = 0 }},
		{"negative session bars", func(c *SessionRangeConfig) { c.MinSessionBars = -1 }},
		{"zero trades per day", func(c *SessionRangeConfig) { c.MaxTradesPerDay = 0 }},
		{"inverted session window", func(c *SessionRangeConfig) { c.SessionEndHour = 0 }},
		{"entry before freeze", func(c *SessionRangeConfig) { c.EntryStartMinute = 60 }},
		{"bad timezone", func(c *SessionRangeConfig) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSessionRangeConfig()
			tt.mutate(&cfg)
			if _, err := NewSessionRangeReversal("x", []string{"BTC/USD"}, market.Timeframe1Hour, cfg); err == nil {
				t.Error("expected config validation to fail")
			}
		})
	}
}

func TestComputeRejectsEmptyWindow(t *testing.T) {
	s := newTestSessionStrategy(t, testSessionConfig())
	if _, err := s.Compute("BTC/USD", nil, market.Quote{}, time.Now()); err == nil {
		t.Error("expected error on empty bar window")
	}
}
