package risk

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"session-trader/internal/broker"
)

// Gate evaluates proposed orders against account-wide limits. The check
// chain runs in a fixed order and stops at the first failure:
//
//  1. daily realized loss (% of start-of-day equity)
//  2. trades per day (global, across strategies)
//  3. position size (% of equity)
//  4. concurrent open positions
//  5. minimum free buying power (% of equity)
//
// One Evaluate call is a single atomic evaluate-and-record unit: the
// mutex covers every read of shared daily state and, on approval, the
// trade-count increment. Two strategy cycles can never both pass the
// trade-count check against the same pre-update snapshot.
type Gate struct {
	mu     sync.Mutex
	limits Limits

	day              string
	dailyPnL         float64
	tradesToday      int
	equityStartOfDay float64

	now func() time.Time
}

// NewGate creates a gate with the given limits.
func NewGate(limits Limits) *Gate {
	g := &Gate{limits: limits, now: time.Now}
	log.Printf("[RiskGate] initialized: daily_loss=%.1f%% position_size=%.1f%% trades/day=%d open_positions=%d",
		limits.MaxDailyLossPct, limits.MaxPositionSizePct, limits.MaxTradesPerDay, limits.MaxOpenPositions)
	return g
}

// Evaluate runs the check chain against the account snapshot. On
// approval the daily trade counter is recorded in the same critical
// section.
func (g *Gate) Evaluate(p Proposal, acct broker.Account) CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.Price <= 0 || p.Symbol == "" {
		return reject(ReasonBadInput, fmt.Sprintf("price %.2f, symbol %q", p.Price, p.Symbol))
	}

	g.rolloverLocked(acct)

	qty := p.Qty
	if qty <= 0 {
		qty = g.positionSizeLocked(p, acct)
		if qty <= 0 {
			return reject(ReasonPositionSize, "computed position size rounds to zero")
		}
	}
	orderValue := qty * p.Price

	// 1. Daily loss.
	if g.limits.MaxDailyLossPct > 0 && g.equityStartOfDay > 0 {
		maxLoss := g.equityStartOfDay * g.limits.MaxDailyLossPct / 100
		loss := math.Max(-g.dailyPnL, 0)
		if loss >= maxLoss {
			return reject(ReasonDailyLoss,
				fmt.Sprintf("daily loss %.2f >= %.2f (%.1f%% of %.2f)", loss, maxLoss, g.limits.MaxDailyLossPct, g.equityStartOfDay))
		}
	}

	// 2. Trades per day.
	if g.limits.MaxTradesPerDay > 0 && g.tradesToday >= g.limits.MaxTradesPerDay {
		return reject(ReasonTradeLimit,
			fmt.Sprintf("trades today %d >= %d", g.tradesToday, g.limits.MaxTradesPerDay))
	}

	// 3. Position size, counting any existing exposure on the symbol.
	// With a stop attached the measure is risk exposure (qty x stop
	// distance), matching how the size is computed; otherwise notional.
	if g.limits.MaxPositionSizePct > 0 && acct.Equity > 0 {
		maxValue := acct.Equity * g.limits.MaxPositionSizePct / 100
		exposure := orderValue
		if stop := math.Abs(p.Price - p.StopLoss); p.StopLoss > 0 && stop > 0 {
			exposure = qty * stop
		}
		existing := symbolExposure(acct, p.Symbol)
		if existing+exposure > maxValue {
			return reject(ReasonPositionSize,
				fmt.Sprintf("exposure %.2f > %.2f (%.1f%% of equity)", existing+exposure, maxValue, g.limits.MaxPositionSizePct))
		}
	}

	// 4. Open positions.
	if g.limits.MaxOpenPositions > 0 && len(acct.Positions) >= g.limits.MaxOpenPositions {
		return reject(ReasonOpenPositions,
			fmt.Sprintf("open positions %d >= %d", len(acct.Positions), g.limits.MaxOpenPositions))
	}

	// 5. Buying power.
	if orderValue > acct.BuyingPower {
		return reject(ReasonBuyingPower,
			fmt.Sprintf("order value %.2f > buying power %.2f", orderValue, acct.BuyingPower))
	}
	if g.limits.MinBuyingPowerPct > 0 && acct.Equity > 0 {
		remainingPct := (acct.BuyingPower - orderValue) / acct.Equity * 100
		if remainingPct < g.limits.MinBuyingPowerPct {
			return reject(ReasonBuyingPower,
				fmt.Sprintf("remaining buying power %.1f%% < %.1f%%", remainingPct, g.limits.MinBuyingPowerPct))
		}
	}

	g.tradesToday++
	log.Printf("[RiskGate] approved %s %.4f %s @ %.2f (trade %d today)",
		p.Side, qty, p.Symbol, p.Price, g.tradesToday)
	return approve(qty)
}

// positionSizeLocked derives the quantity from the risk budget and the
// stop distance: budget = equity x MaxPositionSizePct, capped so the
// notional stays within 95% of buying power. Quantities below 0.01
// round to zero.
func (g *Gate) positionSizeLocked(p Proposal, acct broker.Account) float64 {
	if g.limits.MaxPositionSizePct <= 0 || acct.Equity <= 0 {
		return 0
	}
	budget := acct.Equity * g.limits.MaxPositionSizePct / 100

	var qty float64
	if stop := math.Abs(p.Price - p.StopLoss); p.StopLoss > 0 && stop > 0 {
		// Risk-based sizing: losing the full stop distance costs at
		// most the budget.
		qty = budget / stop
	} else {
		qty = budget / p.Price
	}

	if maxNotional := acct.BuyingPower * 0.95; qty*p.Price > maxNotional {
		qty = maxNotional / p.Price
	}

	qty = math.Floor(qty*10000) / 10000
	if qty < 0.01 {
		return 0
	}
	return qty
}

// SetClock overrides the gate's time source so day rollover follows
// simulated time instead of the wall clock.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now != nil {
		g.now = now
	}
}

// RecordPnL adds realized P&L to the daily counter.
func (g *Gate) RecordPnL(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailyPnL += pnl
}

// GetStatus returns a snapshot of limits and daily counters.
func (g *Gate) GetStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Limits:           g.limits,
		Date:             g.day,
		DailyPnL:         g.dailyPnL,
		TradesToday:      g.tradesToday,
		EquityStartOfDay: g.equityStartOfDay,
	}
}

// UpdateLimits replaces the limits at runtime.
func (g *Gate) UpdateLimits(limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
	log.Printf("[RiskGate] limits updated: %+v", limits)
}

// rolloverLocked resets the daily counters when the calendar day
// changes and pins the start-of-day equity reference.
func (g *Gate) rolloverLocked(acct broker.Account) {
	today := g.now().Format("2006-01-02")
	if g.day != today {
		if g.day != "" {
			log.Printf("[RiskGate] new trading day %s (prev pnl=%.2f trades=%d)", today, g.dailyPnL, g.tradesToday)
		}
		g.day = today
		g.dailyPnL = 0
		g.tradesToday = 0
		g.equityStartOfDay = 0
	}
	if g.equityStartOfDay <= 0 && acct.Equity > 0 {
		g.equityStartOfDay = acct.Equity
	}
}

func symbolExposure(acct broker.Account, symbol string) float64 {
	for _, pos := range acct.Positions {
		if pos.Symbol == symbol {
			return math.Abs(pos.Qty * pos.EntryPrice)
		}
	}
	return 0
}
