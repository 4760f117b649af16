package broker

import (
	"context"
	"time"

	"session-trader/internal/market"
	"session-trader/internal/order"
)

// Position is an open position as reported by the broker. Bracket
// levels ride along when the opening order carried them.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss,omitempty"`
	TakeProfit float64   `json:"take_profit,omitempty"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Closure reports the round trip completed by a fill that reduced or
// flattened an opposite-side position. PnL is realized.
type Closure struct {
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	EntryTime  time.Time `json:"entry_time"`
	PnL        float64   `json:"pnl"`
}

// Account is a point-in-time snapshot of the trading account.
type Account struct {
	Equity      float64    `json:"equity"`
	Cash        float64    `json:"cash"`
	BuyingPower float64    `json:"buying_power"`
	Positions   []Position `json:"positions"`
}

// Receipt is the broker's acknowledgement of a submitted order.
// Closure is set when the fill closed out (part of) an opposite-side
// position, so the caller can account the realized result.
type Receipt struct {
	OrderID     string    `json:"order_id"`
	FilledPrice float64   `json:"filled_price,omitempty"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Closure     *Closure  `json:"closure,omitempty"`
}

// Broker is the capability contract consumed by the engine and the
// simulator. Concrete venue adapters implement it; the core never
// depends on a specific brokerage SDK.
type Broker interface {
	// GetBars returns up to limit most recent bars for the symbol,
	// oldest first.
	GetBars(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Bar, error)
	// GetQuote returns the current top-of-book bid/ask.
	GetQuote(ctx context.Context, symbol string) (market.Quote, error)
	// SubmitOrder dispatches the intent, with any protective levels
	// attached as one atomic bracket request.
	SubmitOrder(ctx context.Context, intent order.Intent) (Receipt, error)
	// GetAccount returns the current account snapshot.
	GetAccount(ctx context.Context) (Account, error)
	// IsMarketOpen reports whether the venue is currently trading.
	IsMarketOpen(ctx context.Context) (bool, error)
}
