package events

import "time"

// Event enumerates the engine's outbound event taxonomy.
type Event string

const (
	EventStrategyStarted Event = "strategy_started"
	EventStrategyStopped Event = "strategy_stopped"
	EventStrategyError   Event = "strategy_error"
	EventSignalGenerated Event = "signal_generated"
	EventOrderSubmitted  Event = "order_submitted"
	EventRiskRejected    Event = "risk_rejected"
	EventEngineError     Event = "engine_error"
	EventCycleCompleted  Event = "cycle_completed"
)

// Payload is the envelope carried by every published event. Fields beyond
// Strategy and Time are populated per event type.
type Payload struct {
	Type     Event     `json:"type"`
	Strategy string    `json:"strategy"`
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol,omitempty"`
	Side     string    `json:"side,omitempty"`
	Quantity float64   `json:"quantity,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}
