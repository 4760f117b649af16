package backtest

import (
	"math"
	"sort"
	"time"

	"session-trader/internal/market"
)

// tradingDaysPerYear scales the Sharpe ratio from daily returns.
const tradingDaysPerYear = 252

// Metrics summarizes a simulation run. Percentages are in percent
// (2.5 means 2.5%).
type Metrics struct {
	TotalPnL       float64            `json:"total_pnl"`
	TotalReturnPct float64            `json:"total_return_pct"`
	TradeCount     int                `json:"trade_count"`
	WinCount       int                `json:"win_count"`
	LossCount      int                `json:"loss_count"`
	WinRatePct     float64            `json:"win_rate_pct"`
	AvgWin         float64            `json:"avg_win"`
	AvgLoss        float64            `json:"avg_loss"`
	ProfitFactor   float64            `json:"profit_factor"`
	MaxDrawdown    float64            `json:"max_drawdown"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	Sharpe         float64            `json:"sharpe"`
	DailyPnL       map[string]float64 `json:"daily_pnl"`
}

func computeMetrics(trades []Trade, samples []EquitySample, initialCash float64, loc *time.Location) Metrics {
	m := Metrics{
		TradeCount: len(trades),
		DailyPnL:   make(map[string]float64),
	}

	var grossWin, grossLoss float64
	for _, t := range trades {
		m.TotalPnL += t.PnL
		m.DailyPnL[market.DayKey(t.ExitTime, loc)] += t.PnL
		if t.PnL > 0 {
			m.WinCount++
			grossWin += t.PnL
		} else if t.PnL < 0 {
			m.LossCount++
			grossLoss += -t.PnL
		}
	}
	if m.TradeCount > 0 {
		m.WinRatePct = float64(m.WinCount) / float64(m.TradeCount) * 100
	}
	if m.WinCount > 0 {
		m.AvgWin = grossWin / float64(m.WinCount)
	}
	if m.LossCount > 0 {
		m.AvgLoss = grossLoss / float64(m.LossCount)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	if initialCash > 0 {
		final := initialCash
		if len(samples) > 0 {
			final = samples[len(samples)-1].Equity
		}
		m.TotalReturnPct = (final/initialCash - 1) * 100
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(samples)
	m.Sharpe = sharpe(dailyEquity(samples, loc))
	return m
}

// maxDrawdown walks the equity curve tracking the running peak. The
// currency and percentage maxima are independent: the deepest currency
// decline and the deepest relative decline can happen at different
// points of the curve.
func maxDrawdown(samples []EquitySample) (currency, pct float64) {
	var peak float64
	for _, s := range samples {
		if s.Equity > peak {
			peak = s.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := peak - s.Equity
		if dd > currency {
			currency = dd
		}
		if p := dd / peak * 100; p > pct {
			pct = p
		}
	}
	return currency, pct
}

// dailyEquity collapses the equity curve to one closing value per
// calendar day, in day order.
func dailyEquity(samples []EquitySample, loc *time.Location) []float64 {
	byDay := make(map[string]float64)
	days := make([]string, 0)
	for _, s := range samples {
		key := market.DayKey(s.Time, loc)
		if _, seen := byDay[key]; !seen {
			days = append(days, key)
		}
		byDay[key] = s.Equity
	}
	sort.Strings(days)

	out := make([]float64, 0, len(days))
	for _, d := range days {
		out = append(out, byDay[d])
	}
	return out
}

// sharpe annualizes the mean/stddev of daily returns. Fewer than two
// days of data, or a flat curve, yields zero.
func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}
