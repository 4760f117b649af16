package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Order is a submitted order row.
type Order struct {
	ID          string
	Strategy    string
	Symbol      string
	Side        string
	Qty         float64
	Price       float64
	StopLoss    float64
	TakeProfit  float64
	TimeInForce string
	Status      string
	CreatedAt   time.Time
}

// Trade is a completed round trip.
type Trade struct {
	ID         string
	OrderID    string
	Strategy   string
	Symbol     string
	Side       string
	Qty        float64
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	ExitReason string
	EntryTime  time.Time
	ExitTime   time.Time
}

// EquitySample is one point of the recorded equity curve.
type EquitySample struct {
	ID        int64
	Strategy  string
	Equity    float64
	SampledAt time.Time
}

// EngineEvent is a journaled lifecycle or trading event.
type EngineEvent struct {
	ID        int64
	EventType string
	Strategy  string
	Payload   string
	CreatedAt time.Time
}

// StrategyInstance is a configured strategy row synced from YAML.
type StrategyInstance struct {
	Name         string
	StrategyType string
	Symbols      string
	Timeframe    string
	Parameters   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// User is an application operator account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, strategy, symbol, side, qty, price, stop_loss, take_profit, time_in_force, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
	`,
		o.ID, o.Strategy, o.Symbol, o.Side, o.Qty, o.Price, o.StopLoss, o.TakeProfit, o.TimeInForce, o.Status, o.CreatedAt,
	)
	return err
}

// UpdateOrderStatus sets the status of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := d.DB.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status, id)
	return err
}

// ListOrders returns the most recent orders, newest first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, strategy, symbol, side, qty, price, stop_loss, take_profit, time_in_force, status, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Strategy, &o.Symbol, &o.Side, &o.Qty, &o.Price,
			&o.StopLoss, &o.TakeProfit, &o.TimeInForce, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// CreateTrade inserts a completed trade row.
func (d *Database) CreateTrade(ctx context.Context, t Trade) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO trades (
			id, order_id, strategy, symbol, side, qty, entry_price, exit_price, pnl, exit_reason, entry_time, exit_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.OrderID, t.Strategy, t.Symbol, t.Side, t.Qty, t.EntryPrice, t.ExitPrice, t.PnL, t.ExitReason, t.EntryTime, t.ExitTime,
	)
	return err
}

// ListTrades returns the most recent trades, newest exit first.
func (d *Database) ListTrades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, strategy, symbol, side, qty, entry_price, exit_price, pnl, exit_reason, entry_time, exit_time
		FROM trades
		ORDER BY exit_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Trade
	for rows.Next() {
		var t Trade
		if err := rows.Scan(&t.ID, &t.OrderID, &t.Strategy, &t.Symbol, &t.Side, &t.Qty,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.ExitReason, &t.EntryTime, &t.ExitTime); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// InsertEquitySample appends one equity curve point.
func (d *Database) InsertEquitySample(ctx context.Context, strategy string, equity float64, at time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO equity_samples (strategy, equity, sampled_at)
		VALUES (?, ?, ?)
	`, strategy, equity, at)
	return err
}

// ListEquitySamples returns samples for a strategy in time order. An
// empty strategy matches all.
func (d *Database) ListEquitySamples(ctx context.Context, strategy string, limit int) ([]EquitySample, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT id, strategy, equity, sampled_at FROM equity_samples
		WHERE (? = '' OR strategy = ?)
		ORDER BY sampled_at ASC
		LIMIT ?`
	rows, err := d.DB.QueryContext(ctx, query, strategy, strategy, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []EquitySample
	for rows.Next() {
		var s EquitySample
		if err := rows.Scan(&s.ID, &s.Strategy, &s.Equity, &s.SampledAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertEvent journals a lifecycle or trading event.
func (d *Database) InsertEvent(ctx context.Context, eventType, strategy, payload string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO engine_events (event_type, strategy, payload)
		VALUES (?, ?, ?)
	`, eventType, strategy, payload)
	return err
}

// ListEvents returns the most recent journaled events, newest first.
func (d *Database) ListEvents(ctx context.Context, limit int) ([]EngineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, event_type, strategy, payload, created_at FROM engine_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []EngineEvent
	for rows.Next() {
		var e EngineEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Strategy, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ListStrategyInstances returns the configured strategies.
func (d *Database) ListStrategyInstances(ctx context.Context) ([]StrategyInstance, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT name, strategy_type, symbols, timeframe, parameters, is_active, created_at, updated_at
		FROM strategy_instances
		ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []StrategyInstance
	for rows.Next() {
		var s StrategyInstance
		if err := rows.Scan(&s.Name, &s.StrategyType, &s.Symbols, &s.Timeframe,
			&s.Parameters, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
