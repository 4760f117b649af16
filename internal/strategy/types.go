package strategy

import (
	"errors"
	"time"

	"session-trader/internal/market"
)

// Action is the decision carried by a signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Signal is a decision emitted by a strategy for one symbol. BUY/SELL
// signals may carry protective levels; the engine attaches them to the
// order as a single bracket.
type Signal struct {
	Strategy   string  `json:"strategy"`
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Entry      float64 `json:"entry,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// Hold is the neutral signal for a symbol.
func Hold(name, symbol string) Signal {
	return Signal{Strategy: name, Symbol: symbol, Action: ActionHold}
}

// Descriptor is the immutable public description of a registered strategy.
type Descriptor struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Symbols         []string         `json:"symbols"`
	Timeframe       market.Timeframe `json:"timeframe"`
	Parameters      map[string]any   `json:"parameters"`
	SkipMarketCheck bool             `json:"skip_market_check"`
}

// Strategy is the capability contract every implementation satisfies.
// Compute is invoked once per cycle per symbol with the rolling bar
// window (oldest first), the current top-of-book quote and the cycle
// time. Implementations keep only their own per-symbol session state;
// they perform no I/O.
type Strategy interface {
	Describe() Descriptor
	Compute(symbol string, bars []market.Bar, quote market.Quote, now time.Time) (Signal, error)
}

// ErrConfigInvalid marks parameter validation failures at registration
// time. A strategy whose config fails validation is never started.
var ErrConfigInvalid = errors.New("invalid strategy configuration")

// ErrComputeFailed marks a signal computation failure on malformed
// input; the engine counts repeated occurrences toward the error state.
var ErrComputeFailed = errors.New("signal computation failed")
