package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"session-trader/internal/market"
	"session-trader/internal/order"
)

// Paper is an in-memory broker used for dry runs and tests. Orders fill
// immediately at the current quote (or the quote midpoint when both sides
// are set); bracket levels are recorded on the position but not managed.
type Paper struct {
	mu         sync.RWMutex
	cash       float64
	positions  map[string]*Position
	bars       map[string][]market.Bar
	quotes     map[string]market.Quote
	marketOpen bool
}

// NewPaper creates a paper broker with the given starting cash.
func NewPaper(initialCash float64) *Paper {
	return &Paper{
		cash:       initialCash,
		positions:  make(map[string]*Position),
		bars:       make(map[string][]market.Bar),
		quotes:     make(map[string]market.Quote),
		marketOpen: true,
	}
}

// SetBars replaces the stored bar history for a symbol, oldest first.
func (p *Paper) SetBars(symbol string, bars []market.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[symbol] = bars
}

// SetQuote sets the current top-of-book for a symbol.
func (p *Paper) SetQuote(q market.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Symbol] = q
}

// SetMarketOpen toggles the venue open flag.
func (p *Paper) SetMarketOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marketOpen = open
}

func (p *Paper) GetBars(ctx context.Context, symbol string, tf market.Timeframe, limit int) ([]market.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars, ok := p.bars[symbol]
	if !ok || len(bars) == 0 {
		return nil, fmt.Errorf("no bar history for %s", symbol)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]market.Bar, len(bars))
	copy(out, bars)
	return out, nil
}

func (p *Paper) GetQuote(ctx context.Context, symbol string) (market.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return q, nil
}

func (p *Paper) SubmitOrder(ctx context.Context, intent order.Intent) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if intent.Qty <= 0 {
		return Receipt{}, fmt.Errorf("invalid qty %.4f", intent.Qty)
	}
	switch intent.TimeInForce {
	case "", order.TIFDay, order.TIFGTC, order.TIFIOC:
	default:
		return Receipt{}, fmt.Errorf("unsupported time in force %q", intent.TimeInForce)
	}

	price := 0.0
	if q, ok := p.quotes[intent.Symbol]; ok {
		switch intent.Side {
		case order.SideBuy:
			price = q.Ask
		case order.SideSell:
			price = q.Bid
		}
		if price <= 0 {
			price = q.Mid()
		}
	}
	if price <= 0 {
		return Receipt{}, fmt.Errorf("no price available for %s", intent.Symbol)
	}

	notional := price * intent.Qty
	if intent.Side == order.SideBuy && notional > p.cash {
		return Receipt{}, fmt.Errorf("insufficient cash: need %.2f, have %.2f", notional, p.cash)
	}

	closure := p.applyFill(intent, price)

	return Receipt{
		OrderID:     uuid.NewString(),
		FilledPrice: price,
		Status:      "filled",
		SubmittedAt: time.Now(),
		Closure:     closure,
	}, nil
}

// applyFill books the fill against cash and positions. When the fill is
// on the opposite side of an existing position it reduces that position
// and reports the closed round trip.
func (p *Paper) applyFill(intent order.Intent, price float64) *Closure {
	notional := price * intent.Qty
	if intent.Side == order.SideBuy {
		p.cash -= notional
	} else {
		p.cash += notional
	}

	pos, exists := p.positions[intent.Symbol]
	if !exists {
		newPos := &Position{
			Symbol:     intent.Symbol,
			Side:       string(intent.Side),
			Qty:        intent.Qty,
			EntryPrice: price,
			OpenedAt:   time.Now(),
		}
		if intent.HasBracket() {
			newPos.StopLoss = intent.StopLoss
			newPos.TakeProfit = intent.TakeProfit
		}
		p.positions[intent.Symbol] = newPos
		return nil
	}

	if strings.EqualFold(pos.Side, string(intent.Side)) {
		total := pos.Qty*pos.EntryPrice + intent.Qty*price
		pos.Qty += intent.Qty
		if pos.Qty > 0 {
			pos.EntryPrice = total / pos.Qty
		}
		return nil
	}

	closedQty := math.Min(intent.Qty, pos.Qty)
	pnl := (price - pos.EntryPrice) * closedQty
	if strings.EqualFold(pos.Side, string(order.SideSell)) {
		pnl = -pnl
	}
	closure := &Closure{
		Qty:        closedQty,
		EntryPrice: pos.EntryPrice,
		EntryTime:  pos.OpenedAt,
		PnL:        pnl,
	}

	pos.Qty -= intent.Qty
	if pos.Qty <= 0 {
		delete(p.positions, intent.Symbol)
	}
	return closure
}

func (p *Paper) GetAccount(ctx context.Context) (Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	equity := p.cash
	positions := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		mark := pos.EntryPrice
		if q, ok := p.quotes[pos.Symbol]; ok && q.Mid() > 0 {
			mark = q.Mid()
		}
		if strings.EqualFold(pos.Side, string(order.SideSell)) {
			// Short sale proceeds already sit in cash; the open
			// liability is the cost of buying the position back.
			equity -= pos.Qty * mark
		} else {
			equity += pos.Qty * mark
		}
		positions = append(positions, *pos)
	}

	return Account{
		Equity:      equity,
		Cash:        p.cash,
		BuyingPower: p.cash,
		Positions:   positions,
	}, nil
}

func (p *Paper) IsMarketOpen(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.marketOpen, nil
}
