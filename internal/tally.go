package internal

import (
	"sort"
	"sync"

	"github.com/chrisconley/accountant/specs"
)

// Tally keeps lifetime totals per unit. Unlike bucket quantities, these sums
// are unbounded, so a long-lived process can be reconciled against the sink.
type Tally struct {
	mu    sync.Mutex
	units map[string]*unitTally
}

type unitTally struct {
	drained   Decimal
	delivered Decimal
	dropped   Decimal
	clamped   Decimal
}

func NewTally() *Tally {
	return &Tally{units: make(map[string]*unitTally)}
}

func (t *Tally) AddDrained(unit string, amount int64) {
	t.add(unit, func(u *unitTally) { u.drained = u.drained.Add(NewDecimalFromInt64(amount)) })
}

func (t *Tally) AddDelivered(unit string, amount int64) {
	t.add(unit, func(u *unitTally) { u.delivered = u.delivered.Add(NewDecimalFromInt64(amount)) })
}

func (t *Tally) AddDropped(unit string, amount int64) {
	t.add(unit, func(u *unitTally) { u.dropped = u.dropped.Add(NewDecimalFromInt64(amount)) })
}

func (t *Tally) AddClamped(unit string, amount int64) {
	t.add(unit, func(u *unitTally) { u.clamped = u.clamped.Add(NewDecimalFromInt64(amount)) })
}

func (t *Tally) add(unit string, apply func(*unitTally)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.units[unit]
	if !ok {
		u = &unitTally{
			drained:   NewDecimalFromInt64(0),
			delivered: NewDecimalFromInt64(0),
			dropped:   NewDecimalFromInt64(0),
			clamped:   NewDecimalFromInt64(0),
		}
		t.units[unit] = u
	}
	apply(u)
}

// Units returns the units seen so far, sorted.
func (t *Tally) Units() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.units))
	for name := range t.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tally) ToSpec() map[string]specs.UnitStatsSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]specs.UnitStatsSpec, len(t.units))
	for name, u := range t.units {
		out[name] = specs.UnitStatsSpec{
			Drained:   u.drained.String(),
			Delivered: u.delivered.String(),
			Dropped:   u.dropped.String(),
			Clamped:   u.clamped.String(),
		}
	}
	return out
}
