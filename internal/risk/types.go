package risk

import (
	"session-trader/internal/order"
)

// Rejection reason taxonomy. Reasons identify the first failing check
// in the chain; they are decisions, not errors.
const (
	ReasonDailyLoss     = "daily_loss_limit"
	ReasonTradeLimit    = "daily_trade_limit"
	ReasonPositionSize  = "position_size_limit"
	ReasonOpenPositions = "open_positions_limit"
	ReasonBuyingPower   = "insufficient_buying_power"
	ReasonBadInput      = "invalid_proposal"
)

// Limits configures the gate's check chain. Percentage fields are in
// percent of equity (2.0 means 2%). A zero value disables that check,
// except MinBuyingPowerPct whose zero simply never rejects.
type Limits struct {
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct"`
	MaxPositionSizePct float64 `json:"max_position_size_pct"`
	MaxTradesPerDay    int     `json:"max_trades_per_day"`
	MaxOpenPositions   int     `json:"max_open_positions"`
	MinBuyingPowerPct  float64 `json:"min_buying_power_pct"`
}

// DefaultLimits mirrors the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:    2.0,
		MaxPositionSizePct: 5.0,
		MaxTradesPerDay:    10,
		MaxOpenPositions:   20,
		MinBuyingPowerPct:  10.0,
	}
}

// Proposal is an order candidate submitted to the gate. When Qty is
// zero the gate computes the position size itself from equity, the
// position-size limit and the stop distance.
type Proposal struct {
	Strategy string
	Symbol   string
	Side     order.Side
	Qty      float64
	Price    float64
	StopLoss float64
}

// CheckResult is the gate's decision. When approved, Qty carries the
// position size to dispatch.
type CheckResult struct {
	Approved bool    `json:"approved"`
	Reason   string  `json:"reason,omitempty"`
	Detail   string  `json:"detail,omitempty"`
	Qty      float64 `json:"qty,omitempty"`
}

func approve(qty float64) CheckResult {
	return CheckResult{Approved: true, Qty: qty}
}

func reject(reason, detail string) CheckResult {
	return CheckResult{Approved: false, Reason: reason, Detail: detail}
}

// Status is a snapshot of the gate's daily counters, served by the API.
type Status struct {
	Limits           Limits  `json:"limits"`
	Date             string  `json:"date"`
	DailyPnL         float64 `json:"daily_pnl"`
	TradesToday      int     `json:"trades_today"`
	EquityStartOfDay float64 `json:"equity_start_of_day"`
}
