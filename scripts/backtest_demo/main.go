package main

import (
	"flag"
	"log"

	"session-trader/internal/backtest"
	"session-trader/internal/data"
	"session-trader/internal/market"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
)

// backtest_demo replays the session range reversal strategy over a CSV
// bar file and prints the run metrics. It touches no database and no
// live broker.
//
// Usage (from the repo root):
//   go run ./scripts/backtest_demo -bars ./data/spy_5min.csv -symbol SPY

func main() {
	var (
		barsPath = flag.String("bars", "./data/bars.csv", "CSV file with time,open,high,low,close[,volume] rows")
		symbol   = flag.String("symbol", "SPY", "instrument symbol")
		tf       = flag.String("timeframe", "5Min", "bar timeframe")
		cash     = flag.Float64("cash", 10000, "starting cash")
	)
	flag.Parse()

	log.Println("=== backtest demo starting ===")

	bars, err := data.LoadBarsCSV(*barsPath)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	log.Printf("loaded %d bars from %s", len(bars), *barsPath)

	strat, err := strategy.NewSessionRangeReversal(
		"session_demo",
		[]string{*symbol},
		market.Timeframe(*tf),
		strategy.DefaultSessionRangeConfig(),
	)
	if err != nil {
		log.Fatalf("build strategy: %v", err)
	}

	gate := risk.NewGate(risk.DefaultLimits())

	sim, err := backtest.New(backtest.Config{
		Strategy:    strat,
		Gate:        gate,
		Symbol:      *symbol,
		Timeframe:   market.Timeframe(*tf),
		InitialCash: *cash,
	})
	if err != nil {
		log.Fatalf("build simulator: %v", err)
	}

	result, err := sim.Run(bars)
	if err != nil {
		log.Fatalf("run: %v", err)
	}

	m := result.Metrics
	log.Printf("trades:        %d (%d wins, %d losses)", m.TradeCount, m.WinCount, m.LossCount)
	log.Printf("win rate:      %.1f%%", m.WinRatePct)
	log.Printf("total pnl:     %.2f (%.2f%%)", m.TotalPnL, m.TotalReturnPct)
	log.Printf("avg win/loss:  %.2f / %.2f", m.AvgWin, m.AvgLoss)
	log.Printf("max drawdown:  %.2f (%.2f%%)", m.MaxDrawdown, m.MaxDrawdownPct)
	log.Printf("sharpe:        %.2f", m.Sharpe)
	log.Printf("final equity:  %.2f", result.FinalEquity)

	log.Println("=== backtest demo finished ===")
}
