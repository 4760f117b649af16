package db

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return database
}

func TestOrderRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	order := Order{
		ID:          "ord-1",
		Strategy:    "session_eu",
		Symbol:      "SPY",
		Side:        "SELL",
		Qty:         10,
		Price:       450.25,
		StopLoss:    452.25,
		TakeProfit:  448.25,
		TimeInForce: "GTC",
		Status:      "SUBMITTED",
		CreatedAt:   time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	if err := d.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := d.UpdateOrderStatus(ctx, "ord-1", "FILLED"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	orders, err := d.ListOrders(ctx, 10)
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(orders))
	}
	got := orders[0]
	if got.Status != "FILLED" {
		t.Errorf("expected status FILLED, got %s", got.Status)
	}
	if got.StopLoss != 452.25 || got.TakeProfit != 448.25 {
		t.Errorf("bracket lost: stop=%.2f target=%.2f", got.StopLoss, got.TakeProfit)
	}
}

func TestTradeRoundTrip(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	entry := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	trade := Trade{
		ID:         "trd-1",
		OrderID:    "ord-1",
		Strategy:   "session_eu",
		Symbol:     "SPY",
		Side:       "BUY",
		Qty:        5,
		EntryPrice: 440,
		ExitPrice:  444,
		PnL:        20,
		ExitReason: "take_profit",
		EntryTime:  entry,
		ExitTime:   entry.Add(2 * time.Hour),
	}
	if err := d.CreateTrade(ctx, trade); err != nil {
		t.Fatalf("create trade: %v", err)
	}

	trades, err := d.ListTrades(ctx, 10)
	if err != nil {
		t.Fatalf("list trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].PnL != 20 {
		t.Errorf("expected pnl 20, got %.2f", trades[0].PnL)
	}
	if trades[0].ExitReason != "take_profit" {
		t.Errorf("expected exit reason take_profit, got %s", trades[0].ExitReason)
	}
}

func TestEquitySamplesOrdered(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, eq := range []float64{10000, 10050, 10025} {
		if err := d.InsertEquitySample(ctx, "session_eu", eq, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("insert sample %d: %v", i, err)
		}
	}

	samples, err := d.ListEquitySamples(ctx, "session_eu", 0)
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].SampledAt.Before(samples[i-1].SampledAt) {
			t.Errorf("samples out of order at %d", i)
		}
	}

	// Empty strategy matches all.
	all, err := d.ListEquitySamples(ctx, "", 0)
	if err != nil {
		t.Fatalf("list all samples: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 samples for empty strategy, got %d", len(all))
	}
}

func TestEngineEvents(t *testing.T) {
	d := newTestDB(t)
	ctx := context.Background()

	if err := d.InsertEvent(ctx, "strategy_started", "session_eu", `{"strategy":"session_eu"}`); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := d.InsertEvent(ctx, "order_submitted", "session_eu", `{"symbol":"SPY"}`); err != nil {
		t.Fatalf("insert event: %v", err)
	}

	events, err := d.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	// Newest first.
	if events[0].EventType != "order_submitted" {
		t.Errorf("expected order_submitted first, got %s", events[0].EventType)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	d := newTestDB(t)
	if err := ApplyMigrations(d); err != nil {
		t.Fatalf("second migration run: %v", err)
	}
}
