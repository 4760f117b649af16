package strategy

import (
	"fmt"
	"log"
	"math"
	"time"

	"session-trader/internal/indicators"
	"session-trader/internal/market"
)

// SessionState enumerates the daily cycle of the session range strategy.
type SessionState string

const (
	StateBuilding     SessionState = "building"      // accumulating the session range
	StateFrozen       SessionState = "frozen"        // range frozen, validating gates
	StateSeekingEntry SessionState = "seeking_entry" // testing boundary touches
	StateDoneForDay   SessionState = "done"          // entry window closed
)

// SessionRangeConfig holds the tunable parameters of the session range
// reversal strategy. Times are interpreted in Timezone.
type SessionRangeConfig struct {
	ATRMultiplier         float64 `yaml:"atr_multiplier" json:"atr_multiplier"`
	MinSessionBars        int     `yaml:"min_session_bars" json:"min_session_bars"`
	MinRangeRatio         float64 `yaml:"min_range_ratio" json:"min_range_ratio"`
	MaxSpreadRatio        float64 `yaml:"max_spread_ratio" json:"max_spread_ratio"`
	MaxTradesPerDay       int     `yaml:"max_trades_per_day" json:"max_trades_per_day"`
	WickOutlierMultiplier float64 `yaml:"wick_outlier_multiplier" json:"wick_outlier_multiplier"`
	Timezone              string  `yaml:"timezone" json:"timezone"`
	SessionStartHour      int     `yaml:"session_start_hour" json:"session_start_hour"`
	SessionEndHour        int     `yaml:"session_end_hour" json:"session_end_hour"`
	EntryStartMinute      int     `yaml:"entry_start_minute" json:"entry_start_minute"` // minutes after midnight
	EntryEndMinute        int     `yaml:"entry_end_minute" json:"entry_end_minute"`
}

// DefaultSessionRangeConfig mirrors the production BTC/USD setup: Asia
// session 00:00-07:00 Europe/Madrid, entries 07:30-12:00.
func DefaultSessionRangeConfig() SessionRangeConfig {
	return SessionRangeConfig{
		ATRMultiplier:         2.0,
		MinSessionBars:        78,
		MinRangeRatio:         0.8,
		MaxSpreadRatio:        0.25,
		MaxTradesPerDay:       1,
		WickOutlierMultiplier: 5.0,
		Timezone:              "Europe/Madrid",
		SessionStartHour:      0,
		SessionEndHour:        7,
		EntryStartMinute:      7*60 + 30,
		EntryEndMinute:        12 * 60,
	}
}

// Validate checks the parameters at registration time.
func (c SessionRangeConfig) Validate() error {
	if c.ATRMultiplier <= 0 {
		return fmt.Errorf("%w: atr_multiplier must be positive, got %.2f", ErrConfigInvalid, c.ATRMultiplier)
	}
	if c.MinSessionBars <= 0 {
		return fmt.Errorf("%w: min_session_bars must be positive, got %d", ErrConfigInvalid, c.MinSessionBars)
	}
	if c.MinRangeRatio <= 0 {
		return fmt.Errorf("%w: min_range_ratio must be positive, got %.2f", ErrConfigInvalid, c.MinRangeRatio)
	}
	if c.MaxSpreadRatio <= 0 {
		return fmt.Errorf("%w: max_spread_ratio must be positive, got %.2f", ErrConfigInvalid, c.MaxSpreadRatio)
	}
	if c.MaxTradesPerDay <= 0 {
		return fmt.Errorf("%w: max_trades_per_day must be positive, got %d", ErrConfigInvalid, c.MaxTradesPerDay)
	}
	if c.WickOutlierMultiplier <= 0 {
		return fmt.Errorf("%w: wick_outlier_multiplier must be positive, got %.2f", ErrConfigInvalid, c.WickOutlierMultiplier)
	}
	if c.SessionStartHour < 0 || c.SessionStartHour >= 24 || c.SessionEndHour <= c.SessionStartHour || c.SessionEndHour > 24 {
		return fmt.Errorf("%w: session window [%d,%d) is not a valid hour range", ErrConfigInvalid, c.SessionStartHour, c.SessionEndHour)
	}
	if c.EntryStartMinute < c.SessionEndHour*60 || c.EntryEndMinute <= c.EntryStartMinute || c.EntryEndMinute > 24*60 {
		return fmt.Errorf("%w: entry window [%d,%d) must follow the session freeze", ErrConfigInvalid, c.EntryStartMinute, c.EntryEndMinute)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrConfigInvalid, c.Timezone, err)
	}
	return nil
}

// sessionDay is the per (symbol, trading day) range state. Created at
// the first evaluation of a new day, discarded at rollover. Transitions
// are monotonic within a day.
type sessionDay struct {
	date  string
	state SessionState

	high     float64
	low      float64
	rangeAbs float64
	atr      float64
	barCount int

	dayEnabled  bool
	tradeTaken  bool
	tradesToday int
}

// SessionRangeReversal trades reversions at the extremes of a range
// accumulated over a fixed overnight session: a touch of the session
// high proposes SELL, a touch of the session low proposes BUY, both
// with protective levels at atrMultiplier times the session ATR (RR 1:1).
type SessionRangeReversal struct {
	name    string
	symbols []string
	tf      market.Timeframe
	cfg     SessionRangeConfig
	loc     *time.Location

	days map[string]*sessionDay // symbol -> current day state
}

// NewSessionRangeReversal validates the config and builds the strategy.
func NewSessionRangeReversal(name string, symbols []string, tf market.Timeframe, cfg SessionRangeConfig) (*SessionRangeReversal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" || len(symbols) == 0 {
		return nil, fmt.Errorf("%w: name and symbols are required", ErrConfigInvalid)
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: unsupported timeframe %q", ErrConfigInvalid, tf)
	}
	loc, _ := time.LoadLocation(cfg.Timezone)
	return &SessionRangeReversal{
		name:    name,
		symbols: symbols,
		tf:      tf,
		cfg:     cfg,
		loc:     loc,
		days:    make(map[string]*sessionDay),
	}, nil
}

func (s *SessionRangeReversal) Describe() Descriptor {
	return Descriptor{
		Name: s.name,
		Description: fmt.Sprintf(
			"Session range reversal: sell the session high, buy the session low. "+
				"Session %02d:00-%02d:00 %s, entries %s-%s, SL/TP at %.1fxATR (RR 1:1), max %d trade(s)/day.",
			s.cfg.SessionStartHour, s.cfg.SessionEndHour, s.cfg.Timezone,
			minuteClock(s.cfg.EntryStartMinute), minuteClock(s.cfg.EntryEndMinute),
			s.cfg.ATRMultiplier, s.cfg.MaxTradesPerDay),
		Symbols:   s.symbols,
		Timeframe: s.tf,
		Parameters: map[string]any{
			"atr_multiplier":          s.cfg.ATRMultiplier,
			"min_session_bars":        s.cfg.MinSessionBars,
			"min_range_ratio":         s.cfg.MinRangeRatio,
			"max_spread_ratio":        s.cfg.MaxSpreadRatio,
			"max_trades_per_day":      s.cfg.MaxTradesPerDay,
			"wick_outlier_multiplier": s.cfg.WickOutlierMultiplier,
			"timezone":                s.cfg.Timezone,
		},
		SkipMarketCheck: true, // crypto trades around the clock
	}
}

// Compute runs the daily state machine for one symbol.
func (s *SessionRangeReversal) Compute(symbol string, bars []market.Bar, quote market.Quote, now time.Time) (Signal, error) {
	if len(bars) == 0 {
		return Hold(s.name, symbol), fmt.Errorf("%w: empty bar window for %s", ErrComputeFailed, symbol)
	}

	local := now.In(s.loc)
	today := market.DayKey(now, s.loc)

	day := s.days[symbol]
	if day == nil || day.date != today {
		day = &sessionDay{date: today, state: StateBuilding}
		s.days[symbol] = day
		log.Printf("[%s] new trading day %s for %s", s.name, today, symbol)
	}

	minute := local.Hour()*60 + local.Minute()

	// Building: accumulate the range while the session is open.
	if local.Hour() < s.cfg.SessionEndHour {
		day.state = StateBuilding
		s.buildRange(symbol, bars, day, local)
		return Hold(s.name, symbol), nil
	}

	// Freeze once when the session closes, before the entry window.
	if minute < s.cfg.EntryStartMinute {
		if day.state == StateBuilding {
			s.freezeRange(symbol, bars, day, local)
		}
		day.state = StateFrozen
		return Hold(s.name, symbol), nil
	}

	// Entry window.
	if minute < s.cfg.EntryEndMinute {
		if day.state == StateBuilding {
			s.freezeRange(symbol, bars, day, local)
		}
		if day.state == StateBuilding || day.state == StateFrozen {
			day.state = StateSeekingEntry
		}
		if day.state != StateSeekingEntry {
			return Hold(s.name, symbol), nil
		}
		if !day.dayEnabled || day.tradesToday >= s.cfg.MaxTradesPerDay {
			return Hold(s.name, symbol), nil
		}
		return s.checkEntry(symbol, quote, day), nil
	}

	day.state = StateDoneForDay
	return Hold(s.name, symbol), nil
}

// buildRange recomputes the running session high/low from the bars of
// today's session, with outlier wicks clipped to the bar body.
func (s *SessionRangeReversal) buildRange(symbol string, bars []market.Bar, day *sessionDay, local time.Time) {
	session := s.sessionBars(bars, local)
	if len(session) == 0 {
		return
	}
	clean := s.clipOutlierWicks(session)

	day.high, day.low = extremes(clean)
	day.rangeAbs = day.high - day.low
	day.barCount = len(session) // original count feeds the bar-count gate
}

// freezeRange finalizes the range at session close, computes the session
// ATR and runs the quality gates. All gates must pass to enable entries
// for the day; a failed gate disables the day without error.
func (s *SessionRangeReversal) freezeRange(symbol string, bars []market.Bar, day *sessionDay, local time.Time) {
	session := s.sessionBars(bars, local)
	if len(session) == 0 {
		log.Printf("[%s] no session bars for %s on %s, day disabled", s.name, symbol, day.date)
		day.dayEnabled = false
		return
	}

	clean := s.clipOutlierWicks(session)
	day.barCount = len(session)
	day.high, day.low = extremes(clean)
	day.rangeAbs = day.high - day.low
	day.atr = indicators.ATR(clean)

	log.Printf("[%s] session frozen %s %s: high=%.2f low=%.2f range=%.2f atr=%.2f bars=%d",
		s.name, symbol, day.date, day.high, day.low, day.rangeAbs, day.atr, day.barCount)

	if day.barCount < s.cfg.MinSessionBars {
		log.Printf("[%s] gate: too few session bars (%d < %d), day disabled", s.name, day.barCount, s.cfg.MinSessionBars)
		day.dayEnabled = false
		return
	}
	if day.atr <= 0 {
		log.Printf("[%s] gate: session ATR is zero, day disabled", s.name)
		day.dayEnabled = false
		return
	}
	if minRange := s.cfg.MinRangeRatio * day.atr; day.rangeAbs < minRange {
		log.Printf("[%s] gate: range %.2f < %.2f (%.2f x ATR), day disabled", s.name, day.rangeAbs, minRange, s.cfg.MinRangeRatio)
		day.dayEnabled = false
		return
	}

	day.dayEnabled = true
	log.Printf("[%s] day enabled, protective distance D=%.2f", s.name, s.cfg.ATRMultiplier*day.atr)
}

// checkEntry tests the current quote against the frozen boundaries.
func (s *SessionRangeReversal) checkEntry(symbol string, quote market.Quote, day *sessionDay) Signal {
	if day.atr <= 0 || quote.Bid <= 0 && quote.Ask <= 0 {
		return Hold(s.name, symbol)
	}

	if spread := quote.Spread(); spread > s.cfg.MaxSpreadRatio*day.atr {
		log.Printf("[%s] spread %.2f above %.2f x ATR, touch ignored", s.name, spread, s.cfg.MaxSpreadRatio)
		return Hold(s.name, symbol)
	}

	touchHigh := quote.Bid >= day.high
	touchLow := quote.Ask <= day.low

	// Both boundaries in one evaluation: keep the one closer to the
	// bid/ask midpoint.
	if touchHigh && touchLow {
		mid := quote.Mid()
		if math.Abs(mid-day.high) <= math.Abs(mid-day.low) {
			touchLow = false
		} else {
			touchHigh = false
		}
	}

	d := s.cfg.ATRMultiplier * day.atr

	if touchHigh {
		day.tradeTaken = true
		day.tradesToday++
		log.Printf("[%s] SELL %s at session high %.2f (SL %.2f TP %.2f)", s.name, symbol, day.high, day.high+d, day.high-d)
		return Signal{
			Strategy:   s.name,
			Symbol:     symbol,
			Action:     ActionSell,
			Entry:      day.high,
			StopLoss:   day.high + d,
			TakeProfit: day.high - d,
			Note:       fmt.Sprintf("session high touch, D=%.2f", d),
		}
	}

	if touchLow {
		day.tradeTaken = true
		day.tradesToday++
		log.Printf("[%s] BUY %s at session low %.2f (SL %.2f TP %.2f)", s.name, symbol, day.low, day.low-d, day.low+d)
		return Signal{
			Strategy:   s.name,
			Symbol:     symbol,
			Action:     ActionBuy,
			Entry:      day.low,
			StopLoss:   day.low - d,
			TakeProfit: day.low + d,
			Note:       fmt.Sprintf("session low touch, D=%.2f", d),
		}
	}

	return Hold(s.name, symbol)
}

// sessionBars filters the window to today's session in the strategy
// timezone.
func (s *SessionRangeReversal) sessionBars(bars []market.Bar, local time.Time) []market.Bar {
	today := local.Format("2006-01-02")
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		bt := b.Time.In(s.loc)
		if bt.Format("2006-01-02") != today {
			continue
		}
		if h := bt.Hour(); h >= s.cfg.SessionStartHour && h < s.cfg.SessionEndHour {
			out = append(out, b)
		}
	}
	return out
}

// clipOutlierWicks guards the range against flash wicks and bad ticks:
// a bar whose high-low range exceeds wickOutlierMultiplier times the
// median range is clipped to its open/close body. The bar itself is
// kept, so the count feeding the minimum-bar gate is unchanged.
func (s *SessionRangeReversal) clipOutlierWicks(bars []market.Bar) []market.Bar {
	if len(bars) < 3 {
		return bars
	}

	ranges := make([]float64, len(bars))
	for i, b := range bars {
		ranges[i] = b.Range()
	}
	median := indicators.Median(ranges)
	if median <= 0 {
		return bars
	}

	threshold := s.cfg.WickOutlierMultiplier * median
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	for i, b := range out {
		if b.Range() > threshold {
			bodyHigh, bodyLow := b.Body()
			log.Printf("[%s] outlier wick at %s: range %.2f > %.2f, clipped to body [%.2f, %.2f]",
				s.name, b.Time.Format(time.RFC3339), b.Range(), threshold, bodyLow, bodyHigh)
			out[i].High = bodyHigh
			out[i].Low = bodyLow
		}
	}
	return out
}

// DayState reports the current session state for a symbol, for status
// endpoints. Returns zero values before the first evaluation of the day.
func (s *SessionRangeReversal) DayState(symbol string) (state SessionState, high, low, atr float64, enabled bool) {
	day := s.days[symbol]
	if day == nil {
		return "", 0, 0, 0, false
	}
	return day.state, day.high, day.low, day.atr, day.dayEnabled
}

func extremes(bars []market.Bar) (high, low float64) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

func minuteClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
