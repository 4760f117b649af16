package engine

import (
	"errors"
	"fmt"
	"time"
)

// Status is the engine-level lifecycle state.
type Status string

const (
	StatusStopped      Status = "STOPPED"
	StatusInitializing Status = "INITIALIZING"
	StatusRunning      Status = "RUNNING"
	StatusShuttingDown Status = "SHUTTING_DOWN"
	StatusError        Status = "ERROR"
)

// StrategyState is the per-strategy lifecycle state. An errored
// strategy is isolated: it never affects siblings or the engine state.
type StrategyState string

const (
	StrategyIdle    StrategyState = "idle"
	StrategyRunning StrategyState = "running"
	StrategyStopped StrategyState = "stopped"
	StrategyError   StrategyState = "error"
)

// Lifecycle errors returned by Start/Stop.
var (
	ErrNotFound       = errors.New("strategy not registered")
	ErrAlreadyRunning = errors.New("strategy already running")
	ErrNotRunning     = errors.New("strategy not running")
	ErrNotStarted     = errors.New("engine not running")
)

// FailureKind classifies recoverable cycle failures.
type FailureKind string

const (
	FailDataUnavailable FailureKind = "data_unavailable"
	FailBrokerDispatch  FailureKind = "broker_dispatch_failed"
	FailStrategyCompute FailureKind = "strategy_compute_failed"
)

// CycleError wraps a cycle failure with its taxonomy kind.
type CycleError struct {
	Kind FailureKind
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func cycleErr(kind FailureKind, format string, args ...any) *CycleError {
	return &CycleError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// RunState is the mutable per-strategy record. It is owned by the
// engine and mutated only from within that strategy's own cycle
// goroutine (plus start/stop transitions under the engine mutex).
type RunState struct {
	State         StrategyState `json:"state"`
	LastCycleAt   time.Time     `json:"last_cycle_at"`
	CycleCount    uint64        `json:"cycle_count"`
	SignalCount   uint64        `json:"signal_count"`
	OrderCount    uint64        `json:"order_count"`
	RejectCount   uint64        `json:"reject_count"`
	FailureStreak int           `json:"failure_streak"`
	LastError     string        `json:"last_error,omitempty"`
}
