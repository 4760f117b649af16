package backtest

import (
	"errors"
	"fmt"
	"log"
	"time"

	"session-trader/internal/broker"
	"session-trader/internal/market"
	"session-trader/internal/order"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
)

// Exit reason taxonomy recorded on closed trades.
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitEndOfData  = "end_of_data"
)

// Config wires a simulation run. Strategy and Gate are the same
// contracts the live engine drives; the simulator only swaps the data
// source and the clock.
type Config struct {
	Strategy    strategy.Strategy
	Gate        *risk.Gate
	Symbol      string
	Timeframe   market.Timeframe
	InitialCash float64
	Location    *time.Location
}

// Trade is one round trip recorded by the simulator.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Side       order.Side `json:"side"`
	Qty        float64    `json:"qty"`
	EntryTime  time.Time  `json:"entry_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	PnL        float64    `json:"pnl"`
	ExitReason string     `json:"exit_reason"`
}

// EquitySample is one point of the mark-to-market equity curve, taken
// at every bar close in bar order.
type EquitySample struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result is the full outcome of a simulation run.
type Result struct {
	Symbol      string         `json:"symbol"`
	Trades      []Trade        `json:"trades"`
	Equity      []EquitySample `json:"equity"`
	Rejections  int            `json:"rejections"`
	FinalEquity float64        `json:"final_equity"`
	Metrics     Metrics        `json:"metrics"`
}

// position is the simulator's single open position.
type position struct {
	side       order.Side
	qty        float64
	entryPrice float64
	entryTime  time.Time
	stopLoss   float64
	takeProfit float64
}

// pendingOrder is a gate-approved signal waiting for the next bar open.
type pendingOrder struct {
	side       order.Side
	qty        float64
	stopLoss   float64
	takeProfit float64
}

// Simulator replays a strategy over a historical bar series. A signal
// computed from bars [0..i] fills at the open of bar i+1; the strategy
// never sees a bar that has not closed yet.
type Simulator struct {
	cfg      Config
	loc      *time.Location
	interval time.Duration

	cash     float64
	pos      *position
	pending  *pendingOrder
	clock    time.Time

	trades     []Trade
	samples    []EquitySample
	rejections int
}

// New validates the config and builds a simulator. The gate's clock is
// rebound to simulated time so daily limits roll over with the data.
func New(cfg Config) (*Simulator, error) {
	if cfg.Strategy == nil {
		return nil, errors.New("backtest: strategy is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("backtest: risk gate is required")
	}
	if cfg.Symbol == "" {
		return nil, errors.New("backtest: symbol is required")
	}
	if cfg.InitialCash <= 0 {
		return nil, fmt.Errorf("backtest: initial cash %.2f must be positive", cfg.InitialCash)
	}
	interval, err := cfg.Timeframe.Duration()
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Simulator{
		cfg:      cfg,
		loc:      loc,
		interval: interval,
		cash:     cfg.InitialCash,
	}
	cfg.Gate.SetClock(func() time.Time { return s.clock })
	return s, nil
}

// Run replays the bar series in order and returns the full result.
// Bars must be sorted ascending by time.
func (s *Simulator) Run(bars []market.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, errors.New("backtest: no bars to replay")
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Time.After(bars[i-1].Time) {
			return nil, fmt.Errorf("backtest: bars out of order at index %d (%s !> %s)",
				i, bars[i].Time, bars[i-1].Time)
		}
	}

	log.Printf("[Simulator] replaying %d %s bars for %s (cash %.2f)",
		len(bars), s.cfg.Timeframe, s.cfg.Symbol, s.cash)

	for i := range bars {
		bar := bars[i]
		s.clock = bar.Time.Add(s.interval)

		// A pending order from the previous bar's signal fills at
		// this bar's open.
		if s.pending != nil {
			s.open(bar)
			s.pending = nil
		}

		if s.pos != nil {
			s.checkExit(bar)
		}

		// The quote hands the strategy this bar's intrabar extremes:
		// Bid carries the high, Ask the low. Touch detection then works
		// on historical data and the bid/ask spread is never positive.
		quote := market.Quote{
			Symbol: s.cfg.Symbol,
			Bid:    bar.High,
			Ask:    bar.Low,
			Time:   s.clock,
		}
		sig, err := s.cfg.Strategy.Compute(s.cfg.Symbol, bars[:i+1], quote, s.clock)
		if err != nil {
			return nil, fmt.Errorf("backtest: compute at bar %d: %w", i, err)
		}
		if sig.Action != strategy.ActionHold && s.pos == nil && s.pending == nil {
			s.submit(sig)
		}

		s.samples = append(s.samples, EquitySample{Time: bar.Time, Equity: s.equityAt(bar.Close)})
	}

	if s.pos != nil {
		last := bars[len(bars)-1]
		s.close(last.Close, last.Time, ExitEndOfData)
	}

	final := s.cash
	res := &Result{
		Symbol:      s.cfg.Symbol,
		Trades:      s.trades,
		Equity:      s.samples,
		Rejections:  s.rejections,
		FinalEquity: final,
		Metrics:     computeMetrics(s.trades, s.samples, s.cfg.InitialCash, s.loc),
	}
	log.Printf("[Simulator] done: %d trades, %d rejections, equity %.2f -> %.2f",
		len(res.Trades), res.Rejections, s.cfg.InitialCash, final)
	return res, nil
}

// submit runs the signal through the risk gate and, if approved,
// queues it for the next bar open.
func (s *Simulator) submit(sig strategy.Signal) {
	side := order.SideBuy
	if sig.Action == strategy.ActionSell {
		side = order.SideSell
	}
	price := sig.Entry
	if price <= 0 {
		return
	}

	eq := s.equityAt(price)
	acct := broker.Account{
		Equity:      eq,
		Cash:        s.cash,
		BuyingPower: s.cash,
	}
	check := s.cfg.Gate.Evaluate(risk.Proposal{
		Strategy: sig.Strategy,
		Symbol:   sig.Symbol,
		Side:     side,
		Price:    price,
		StopLoss: sig.StopLoss,
	}, acct)
	if !check.Approved {
		s.rejections++
		log.Printf("[Simulator] rejected %s %s: %s (%s)", side, sig.Symbol, check.Reason, check.Detail)
		return
	}

	s.pending = &pendingOrder{
		side:       side,
		qty:        check.Qty,
		stopLoss:   sig.StopLoss,
		takeProfit: sig.TakeProfit,
	}
}

// open fills the pending order at the bar's open price.
func (s *Simulator) open(bar market.Bar) {
	p := s.pending
	fill := bar.Open

	qty := p.qty
	if p.side == order.SideBuy && qty*fill > s.cash {
		qty = s.cash / fill
	}
	if qty <= 0 {
		return
	}

	if p.side == order.SideBuy {
		s.cash -= qty * fill
	} else {
		s.cash += qty * fill
	}
	s.pos = &position{
		side:       p.side,
		qty:        qty,
		entryPrice: fill,
		entryTime:  bar.Time,
		stopLoss:   p.stopLoss,
		takeProfit: p.takeProfit,
	}
	log.Printf("[Simulator] filled %s %.4f %s @ %.2f", p.side, qty, s.cfg.Symbol, fill)
}

// checkExit triggers the bracket intrabar. When the same bar touches
// both levels the stop wins; a gap through a level fills at the open.
func (s *Simulator) checkExit(bar market.Bar) {
	pos := s.pos
	if pos.side == order.SideBuy {
		if pos.stopLoss > 0 && bar.Low <= pos.stopLoss {
			s.close(gapFill(bar.Open, pos.stopLoss, true), bar.Time, ExitStopLoss)
			return
		}
		if pos.takeProfit > 0 && bar.High >= pos.takeProfit {
			s.close(gapFill(bar.Open, pos.takeProfit, false), bar.Time, ExitTakeProfit)
		}
		return
	}
	if pos.stopLoss > 0 && bar.High >= pos.stopLoss {
		s.close(gapFill(bar.Open, pos.stopLoss, false), bar.Time, ExitStopLoss)
		return
	}
	if pos.takeProfit > 0 && bar.Low <= pos.takeProfit {
		s.close(gapFill(bar.Open, pos.takeProfit, true), bar.Time, ExitTakeProfit)
	}
}

// gapFill returns the level, or the open when the bar opened already
// beyond it.
func gapFill(open, level float64, below bool) float64 {
	if below && open < level {
		return open
	}
	if !below && open > level {
		return open
	}
	return level
}

// close settles the open position at price and records the trade.
func (s *Simulator) close(price float64, at time.Time, reason string) {
	pos := s.pos
	var pnl float64
	if pos.side == order.SideBuy {
		s.cash += pos.qty * price
		pnl = (price - pos.entryPrice) * pos.qty
	} else {
		s.cash -= pos.qty * price
		pnl = (pos.entryPrice - price) * pos.qty
	}

	s.trades = append(s.trades, Trade{
		Symbol:     s.cfg.Symbol,
		Side:       pos.side,
		Qty:        pos.qty,
		EntryTime:  pos.entryTime,
		EntryPrice: pos.entryPrice,
		ExitTime:   at,
		ExitPrice:  price,
		PnL:        pnl,
		ExitReason: reason,
	})
	s.cfg.Gate.RecordPnL(pnl)
	s.pos = nil
	log.Printf("[Simulator] closed %s %.4f %s @ %.2f (%s, pnl %.2f)",
		pos.side, pos.qty, s.cfg.Symbol, price, reason, pnl)
}

// equityAt marks the account to the given price.
func (s *Simulator) equityAt(price float64) float64 {
	if s.pos == nil {
		return s.cash
	}
	if s.pos.side == order.SideBuy {
		return s.cash + s.pos.qty*price
	}
	return s.cash - s.pos.qty*price
}
