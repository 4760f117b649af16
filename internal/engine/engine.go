package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"session-trader/internal/broker"
	"session-trader/internal/events"
	"session-trader/internal/market"
	"session-trader/internal/monitor"
	"session-trader/internal/order"
	"session-trader/internal/risk"
	"session-trader/internal/strategy"
)

// Recorder persists cycle outcomes. A nil recorder disables
// persistence; the engine never depends on it succeeding.
type Recorder interface {
	RecordOrder(ctx context.Context, intent order.Intent, receipt broker.Receipt) error
	RecordTrade(ctx context.Context, intent order.Intent, receipt broker.Receipt) error
	RecordEquity(ctx context.Context, strategyName string, equity float64, at time.Time) error
}

// Config wires the engine's collaborators.
type Config struct {
	Registry *strategy.Registry
	Broker   broker.Broker
	Gate     *risk.Gate
	Bus      *events.Bus
	Recorder Recorder
	Metrics  *monitor.EngineMetrics

	// MaxConsecutiveFailures is the failure streak that moves a
	// strategy to the error state. Defaults to 3.
	MaxConsecutiveFailures int
}

// Engine runs every active strategy on its own timed, cancellable
// cycle. Cycles within one strategy are strictly sequential; across
// strategies nothing is ordered or shared except the risk gate.
type Engine struct {
	registry    *strategy.Registry
	broker      broker.Broker
	gate        *risk.Gate
	bus         *events.Bus
	recorder    Recorder
	metrics     *monitor.EngineMetrics
	maxFailures int

	mu         sync.Mutex
	status     Status
	runners    map[string]*runner
	lastStates map[string]RunState // final state of stopped or errored runners
}

// runner is one strategy's scheduled cycle.
type runner struct {
	name     string
	strat    strategy.Strategy
	desc     strategy.Descriptor
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	state RunState
}

// New creates a stopped engine.
func New(cfg Config) *Engine {
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &Engine{
		registry:    cfg.Registry,
		broker:      cfg.Broker,
		gate:        cfg.Gate,
		bus:         cfg.Bus,
		recorder:    cfg.Recorder,
		metrics:     cfg.Metrics,
		maxFailures: maxFailures,
		status:      StatusStopped,
		runners:     make(map[string]*runner),
		lastStates:  make(map[string]RunState),
	}
}

// Init transitions STOPPED -> INITIALIZING -> RUNNING, probing the
// broker once. An unreachable broker is an unrecoverable init failure
// and lands the engine in ERROR.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.status != StatusStopped {
		e.mu.Unlock()
		return fmt.Errorf("cannot initialize engine in state %s", e.status)
	}
	e.status = StatusInitializing
	e.mu.Unlock()

	if _, err := e.broker.GetAccount(ctx); err != nil {
		e.mu.Lock()
		e.status = StatusError
		e.mu.Unlock()
		e.publish(events.EventEngineError, events.Payload{Error: err.Error()})
		return fmt.Errorf("broker unreachable during init: %w", err)
	}

	e.mu.Lock()
	e.status = StatusRunning
	e.mu.Unlock()
	log.Printf("[Engine] running")
	return nil
}

// Status returns the engine-level lifecycle state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Shutdown stops every running strategy and waits for their in-flight
// cycles, then transitions to STOPPED.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return
	}
	e.status = StatusShuttingDown
	running := make([]*runner, 0, len(e.runners))
	for _, r := range e.runners {
		running = append(running, r)
	}
	e.mu.Unlock()

	for _, r := range running {
		r.cancel()
	}
	for _, r := range running {
		<-r.done
	}

	e.mu.Lock()
	e.runners = make(map[string]*runner)
	e.status = StatusStopped
	e.mu.Unlock()
	log.Printf("[Engine] stopped")
}

// StartStrategy begins an independent periodic cycle for a registered
// strategy. Fails with ErrNotFound for unknown names and
// ErrAlreadyRunning for active ones; neither has side effects.
func (e *Engine) StartStrategy(name string) error {
	strat, ok := e.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	desc := strat.Describe()
	interval, err := desc.Timeframe.Duration()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, name, err)
	}

	e.mu.Lock()
	if e.status != StatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotStarted, e.status)
	}
	if _, active := e.runners[name]; active {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		name:     name,
		strat:    strat,
		desc:     desc,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    RunState{State: StrategyRunning},
	}
	e.runners[name] = r
	e.mu.Unlock()

	go e.runLoop(ctx, r)

	e.publish(events.EventStrategyStarted, events.Payload{Strategy: name})
	log.Printf("[Engine] strategy %s started (interval %s)", name, interval)
	return nil
}

// StopStrategy cancels the strategy's cycle and waits for any in-flight
// work, including a pending order dispatch, before reporting stopped.
// Fails with ErrNotRunning if the strategy has no active cycle.
func (e *Engine) StopStrategy(name string) error {
	if _, ok := e.registry.Get(name); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	e.mu.Lock()
	r, active := e.runners[name]
	if !active {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	delete(e.runners, name)
	e.mu.Unlock()

	r.cancel()
	<-r.done

	r.setState(func(s *RunState) {
		if s.State == StrategyRunning {
			s.State = StrategyStopped
		}
	})
	e.mu.Lock()
	e.lastStates[name] = r.snapshot()
	e.mu.Unlock()

	e.publish(events.EventStrategyStopped, events.Payload{Strategy: name})
	log.Printf("[Engine] strategy %s stopped", name)
	return nil
}

// StrategyStates returns a copy of every known strategy's run state,
// including registered-but-idle ones.
func (e *Engine) StrategyStates() map[string]RunState {
	e.mu.Lock()
	active := make(map[string]*runner, len(e.runners))
	for n, r := range e.runners {
		active[n] = r
	}
	last := make(map[string]RunState, len(e.lastStates))
	for n, s := range e.lastStates {
		last[n] = s
	}
	e.mu.Unlock()

	out := make(map[string]RunState)
	for _, name := range e.registry.Names() {
		switch {
		case active[name] != nil:
			out[name] = active[name].snapshot()
		default:
			if s, ok := last[name]; ok {
				out[name] = s
			} else {
				out[name] = RunState{State: StrategyIdle}
			}
		}
	}
	return out
}

// runLoop executes cycles back to back with the strategy's interval in
// between. Cycle n+1 never starts before cycle n finished all side
// effects.
func (e *Engine) runLoop(ctx context.Context, r *runner) {
	defer close(r.done)

	for {
		e.runCycle(ctx, r)

		r.mu.Lock()
		errored := r.state.State == StrategyError
		r.mu.Unlock()
		if errored {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// runCycle performs one evaluation pass. Failures are recovered here:
// they end the cycle early, surface as events and count toward the
// consecutive-failure threshold, but the schedule continues.
func (e *Engine) runCycle(ctx context.Context, r *runner) {
	if ctx.Err() != nil {
		return
	}

	var timer *monitor.Timer
	if e.metrics != nil {
		timer = monitor.NewTimer(e.metrics.CycleLatency)
		e.metrics.IncrementCycles()
	}

	err := e.evaluate(ctx, r)

	if timer != nil {
		timer.Stop()
	}

	r.setState(func(s *RunState) {
		s.CycleCount++
		s.LastCycleAt = time.Now()
		if err == nil {
			s.FailureStreak = 0
			s.LastError = ""
			return
		}
		s.FailureStreak++
		s.LastError = err.Error()
		if s.FailureStreak >= e.maxFailures {
			s.State = StrategyError
		}
	})

	if err != nil {
		if e.metrics != nil {
			e.metrics.IncrementErrors()
		}
		log.Printf("[Engine] strategy %s cycle failed: %v", r.name, err)
		e.publish(events.EventEngineError, events.Payload{Strategy: r.name, Error: err.Error()})

		if r.snapshot().State == StrategyError {
			log.Printf("[Engine] strategy %s halted after %d consecutive failures", r.name, e.maxFailures)
			e.publish(events.EventStrategyError, events.Payload{
				Strategy: r.name,
				Error:    fmt.Sprintf("halted after %d consecutive cycle failures: %v", e.maxFailures, err),
			})
			e.mu.Lock()
			delete(e.runners, r.name)
			e.lastStates[r.name] = r.snapshot()
			e.mu.Unlock()
		}
		return
	}

	e.publish(events.EventCycleCompleted, events.Payload{Strategy: r.name})
}

// evaluate is the per-cycle algorithm: market gate, fetch, compute,
// risk check, dispatch.
func (e *Engine) evaluate(ctx context.Context, r *runner) error {
	if !r.desc.SkipMarketCheck {
		open, err := e.broker.IsMarketOpen(ctx)
		if err != nil {
			return cycleErr(FailDataUnavailable, "market status: %v", err)
		}
		if !open {
			return nil // closed market, skip silently
		}
	}

	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		return cycleErr(FailDataUnavailable, "account snapshot: %v", err)
	}
	if e.recorder != nil {
		if rerr := e.recorder.RecordEquity(ctx, r.name, acct.Equity, time.Now()); rerr != nil {
			log.Printf("[Engine] equity sample not recorded: %v", rerr)
		}
	}

	now := time.Now()
	for _, symbol := range r.desc.Symbols {
		bars, err := e.broker.GetBars(ctx, symbol, r.desc.Timeframe, r.desc.Timeframe.BarLimit())
		if err != nil || len(bars) == 0 {
			return cycleErr(FailDataUnavailable, "bars for %s: %v", symbol, err)
		}
		quote, err := e.broker.GetQuote(ctx, symbol)
		if err != nil {
			return cycleErr(FailDataUnavailable, "quote for %s: %v", symbol, err)
		}

		sig, err := r.strat.Compute(symbol, bars, quote, now)
		if err != nil {
			return cycleErr(FailStrategyCompute, "compute for %s: %v", symbol, err)
		}
		if sig.Action == strategy.ActionHold {
			continue
		}

		r.setState(func(s *RunState) { s.SignalCount++ })
		if e.metrics != nil {
			e.metrics.IncrementSignals()
		}
		e.publish(events.EventSignalGenerated, events.Payload{
			Strategy: r.name,
			Symbol:   symbol,
			Side:     string(sig.Action),
			Price:    sig.Entry,
			Reason:   sig.Note,
		})

		if err := e.dispatch(ctx, r, sig, quote, acct); err != nil {
			return err
		}
	}

	return nil
}

// dispatch runs the risk gate and submits the approved order as one
// atomic bracket. The submission itself is not cancellable: once sent,
// stop waits for it rather than abandoning an ambiguous order.
func (e *Engine) dispatch(ctx context.Context, r *runner, sig strategy.Signal, quote market.Quote, acct broker.Account) error {
	price := sig.Entry
	if price <= 0 {
		price = quote.Mid()
	}

	decision := e.gate.Evaluate(risk.Proposal{
		Strategy: r.name,
		Symbol:   sig.Symbol,
		Side:     order.Side(sig.Action),
		Price:    price,
		StopLoss: sig.StopLoss,
	}, acct)

	if !decision.Approved {
		r.setState(func(s *RunState) { s.RejectCount++ })
		if e.metrics != nil {
			e.metrics.IncrementRejections()
		}
		e.publish(events.EventRiskRejected, events.Payload{
			Strategy: r.name,
			Symbol:   sig.Symbol,
			Side:     string(sig.Action),
			Price:    price,
			Reason:   decision.Reason,
		})
		return nil // a rejection is a decision, not a failure
	}

	intent := order.Intent{
		ID:          uuid.NewString(),
		Strategy:    r.name,
		Symbol:      sig.Symbol,
		Side:        order.Side(sig.Action),
		Qty:         decision.Qty,
		StopLoss:    sig.StopLoss,
		TakeProfit:  sig.TakeProfit,
		TimeInForce: order.TIFGTC,
		CreatedAt:   time.Now(),
	}

	var timer *monitor.Timer
	if e.metrics != nil {
		timer = monitor.NewTimer(e.metrics.DispatchLatency)
	}

	// Detached context: a stop request must wait for this call, never
	// interrupt it.
	receipt, err := e.broker.SubmitOrder(context.WithoutCancel(ctx), intent)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		return cycleErr(FailBrokerDispatch, "submit %s %s: %v", intent.Side, intent.Symbol, err)
	}

	r.setState(func(s *RunState) { s.OrderCount++ })
	if e.metrics != nil {
		e.metrics.IncrementOrders()
	}
	e.publish(events.EventOrderSubmitted, events.Payload{
		Strategy: r.name,
		Symbol:   intent.Symbol,
		Side:     string(intent.Side),
		Quantity: intent.Qty,
		Price:    receipt.FilledPrice,
		OrderID:  receipt.OrderID,
	})

	if e.recorder != nil {
		if rerr := e.recorder.RecordOrder(ctx, intent, receipt); rerr != nil {
			log.Printf("[Engine] order not journaled: %v", rerr)
		}
	}

	// A fill that closed an opposite-side position realized P&L; the
	// gate needs it for the daily loss limit and the journal keeps the
	// round trip.
	if receipt.Closure != nil {
		e.gate.RecordPnL(receipt.Closure.PnL)
		log.Printf("[Engine] strategy %s closed %.4f %s, pnl %.2f",
			r.name, receipt.Closure.Qty, intent.Symbol, receipt.Closure.PnL)
		if e.recorder != nil {
			if rerr := e.recorder.RecordTrade(ctx, intent, receipt); rerr != nil {
				log.Printf("[Engine] trade not journaled: %v", rerr)
			}
		}
	}
	return nil
}

func (e *Engine) publish(ev events.Event, p events.Payload) {
	if e.bus != nil {
		e.bus.Publish(ev, p)
	}
}

func (r *runner) setState(mutate func(*RunState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(&r.state)
}

func (r *runner) snapshot() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
