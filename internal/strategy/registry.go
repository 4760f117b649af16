package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"session-trader/internal/market"
)

// Factory builds a strategy from a loaded config entry. Factories must
// validate parameters and return ErrConfigInvalid on bad input.
type Factory func(cfg Config) (Strategy, error)

// Registry is the explicit in-process strategy registry: implementations
// are listed against their type name, instances are built from config
// and looked up by instance name. No dynamic discovery.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	strategies map[string]Strategy
}

// NewRegistry creates a registry with the built-in strategy types.
func NewRegistry() *Registry {
	r := &Registry{
		factories:  make(map[string]Factory),
		strategies: make(map[string]Strategy),
	}
	r.RegisterFactory("session_range_reversal", newSessionRangeFromConfig)
	r.RegisterFactory("ma_cross", newMACrossFromConfig)
	r.RegisterFactory("rsi_reversion", newRSIFromConfig)
	return r
}

// RegisterFactory lists a strategy type.
func (r *Registry) RegisterFactory(typeName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = f
}

// Add builds a strategy instance from config and stores it under its
// name. ConfigInvalid is fatal here: the instance is never registered.
func (r *Registry) Add(cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.Name == "" {
		return fmt.Errorf("%w: strategy name is required", ErrConfigInvalid)
	}
	if _, exists := r.strategies[cfg.Name]; exists {
		return fmt.Errorf("%w: strategy %q already registered", ErrConfigInvalid, cfg.Name)
	}
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return fmt.Errorf("%w: unknown strategy type %q", ErrConfigInvalid, cfg.Type)
	}

	s, err := factory(cfg)
	if err != nil {
		return err
	}
	r.strategies[cfg.Name] = s
	return nil
}

// Get returns the strategy instance registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns the descriptors of all registered strategies, sorted by
// name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered instance names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// decodeParams round-trips the loose YAML parameter map into a typed
// struct.
func decodeParams(params map[string]any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return nil
}

func newSessionRangeFromConfig(cfg Config) (Strategy, error) {
	p := DefaultSessionRangeConfig()
	if err := decodeParams(cfg.Parameters, &p); err != nil {
		return nil, err
	}
	return NewSessionRangeReversal(cfg.Name, cfg.Symbols, market.Timeframe(cfg.Timeframe), p)
}

func newMACrossFromConfig(cfg Config) (Strategy, error) {
	var p struct {
		Fast int `json:"fast_period"`
		Slow int `json:"slow_period"`
	}
	if err := decodeParams(cfg.Parameters, &p); err != nil {
		return nil, err
	}
	return NewMACross(cfg.Name, cfg.Symbols, market.Timeframe(cfg.Timeframe), p.Fast, p.Slow)
}

func newRSIFromConfig(cfg Config) (Strategy, error) {
	p := struct {
		Period     int     `json:"period"`
		Oversold   float64 `json:"oversold"`
		Overbought float64 `json:"overbought"`
	}{Period: 14, Oversold: 30, Overbought: 70}
	if err := decodeParams(cfg.Parameters, &p); err != nil {
		return nil, err
	}
	return NewRSIReversion(cfg.Name, cfg.Symbols, market.Timeframe(cfg.Timeframe), p.Period, p.Oversold, p.Overbought)
}
