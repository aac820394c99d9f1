package migrate

import (
	"fmt"
	"sort"

	"github.com/park285/goban-state/internal/prefs"
)

// Step transforms persisted preferences in place so they match the format of
// the version it is registered for. factory holds the shipped defaults and
// must not be modified.
type Step func(d prefs.Dict, factory prefs.Dict) error

type registeredStep struct {
	name string
	fn   Step
}

// Ledger maps a preferences format version to the step that upgrades data
// from the previous version. Versions without a step need no transformation.
type Ledger struct {
	steps map[int]registeredStep
}

func NewLedger() *Ledger {
	return &Ledger{steps: make(map[int]registeredStep)}
}

// Register adds the step for version. Registering a version twice panics.
func (l *Ledger) Register(version int, name string, fn Step) {
	if version < 1 {
		panic(fmt.Sprintf("migrate: invalid step version %d", version))
	}
	if fn == nil {
		panic(fmt.Sprintf("migrate: nil step for version %d", version))
	}
	if prev, ok := l.steps[version]; ok {
		panic(fmt.Sprintf("migrate: version %d already registered as %q", version, prev.name))
	}
	l.steps[version] = registeredStep{name: name, fn: fn}
}

func (l *Ledger) lookup(version int) (registeredStep, bool) {
	s, ok := l.steps[version]
	return s, ok
}

// Versions lists the registered versions in ascending order.
func (l *Ledger) Versions() []int {
	out := make([]int, 0, len(l.steps))
	for v := range l.steps {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Name returns the name the step for version was registered under.
func (l *Ledger) Name(version int) (string, bool) {
	s, ok := l.steps[version]
	return s.name, ok
}
