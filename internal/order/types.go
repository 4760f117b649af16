package order

import "time"

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Time-in-force values accepted by the broker contract.
const (
	TIFDay = "DAY"
	TIFGTC = "GTC"
	TIFIOC = "IOC"
)

// Intent is a proposed order built from an approved signal. It is
// ephemeral: constructed per cycle, handed to the broker as a single
// bracket submission, never persisted by the core itself.
type Intent struct {
	ID          string
	Strategy    string
	Symbol      string
	Side        Side
	Qty         float64
	StopLoss    float64 // 0 means no stop attached
	TakeProfit  float64 // 0 means no target attached
	TimeInForce string
	CreatedAt   time.Time
}

// HasBracket reports whether protective levels are attached.
func (i Intent) HasBracket() bool {
	return i.StopLoss > 0 || i.TakeProfit > 0
}
