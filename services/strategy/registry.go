package strategy

import (
	"fmt"
	"sort"

	"backtester/services/indicator"
)

// Evaluator is the capability every strategy variant implements.
// Evaluate must be a pure function of its arguments.
type Evaluator interface {
	Name() string
	Evaluate(snap *indicator.Snapshot, pos PositionState) []Signal
}

// Factory builds a validated evaluator from flat params.
type Factory func(p Params) (Evaluator, error)

var registry = map[string]Factory{}

// Register adds a strategy variant under its lookup name. Called from
// variant init functions; duplicate names panic at startup.
func Register(name string, f Factory) {
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = f
}

// New resolves the variant named in p.Strategy and builds it. Selection
// is a single map lookup keyed by name, never field sniffing.
func New(p Params) (Evaluator, error) {
	f, ok := registry[p.Strategy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", ErrInvalidConfig, p.Strategy, Names())
	}
	return f(p)
}

// Names lists registered strategy variants, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
