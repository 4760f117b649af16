package journal

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"session-trader/internal/broker"
	"session-trader/internal/events"
	"session-trader/internal/order"
	"session-trader/pkg/db"
)

// Journal persists the engine's trading activity: submitted orders,
// equity samples and the event stream. It satisfies the engine's
// Recorder contract.
type Journal struct {
	db *db.Database
}

// New creates a journal over the given database.
func New(database *db.Database) *Journal {
	return &Journal{db: database}
}

// RecordOrder persists a submitted order with its broker receipt.
func (j *Journal) RecordOrder(ctx context.Context, intent order.Intent, receipt broker.Receipt) error {
	price := receipt.FilledPrice
	return j.db.CreateOrder(ctx, db.Order{
		ID:          intent.ID,
		Strategy:    intent.Strategy,
		Symbol:      intent.Symbol,
		Side:        string(intent.Side),
		Qty:         intent.Qty,
		Price:       price,
		StopLoss:    intent.StopLoss,
		TakeProfit:  intent.TakeProfit,
		TimeInForce: intent.TimeInForce,
		Status:      receipt.Status,
		CreatedAt:   intent.CreatedAt,
	})
}

// RecordTrade persists the round trip closed by the intent's fill. The
// trade direction is the side that opened the position, so it is the
// opposite of the closing intent.
func (j *Journal) RecordTrade(ctx context.Context, intent order.Intent, receipt broker.Receipt) error {
	if receipt.Closure == nil {
		return nil
	}
	return j.db.CreateTrade(ctx, db.Trade{
		ID:         uuid.NewString(),
		OrderID:    intent.ID,
		Strategy:   intent.Strategy,
		Symbol:     intent.Symbol,
		Side:       string(intent.Side.Opposite()),
		Qty:        receipt.Closure.Qty,
		EntryPrice: receipt.Closure.EntryPrice,
		ExitPrice:  receipt.FilledPrice,
		PnL:        receipt.Closure.PnL,
		ExitReason: "signal",
		EntryTime:  receipt.Closure.EntryTime,
		ExitTime:   receipt.SubmittedAt,
	})
}

// RecordEquity appends one equity curve sample.
func (j *Journal) RecordEquity(ctx context.Context, strategy string, equity float64, at time.Time) error {
	return j.db.InsertEquitySample(ctx, strategy, equity, at)
}

// Follow subscribes to the event bus and journals every event until
// ctx is cancelled. Run it in its own goroutine.
func (j *Journal) Follow(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.SubscribeAll(256)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(p)
			if err != nil {
				log.Printf("[Journal] marshal event %s: %v", p.Type, err)
				continue
			}
			if err := j.db.InsertEvent(ctx, string(p.Type), p.Strategy, string(payload)); err != nil {
				log.Printf("[Journal] persist event %s: %v", p.Type, err)
			}
		}
	}
}
