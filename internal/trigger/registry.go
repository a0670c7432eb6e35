package trigger

import (
	"fmt"
)

// Registry holds a validated, immutable trigger vocabulary. All lookups are
// read-only after construction, so a Registry is safe for concurrent use.
type Registry struct {
	states   map[string]State
	triggers map[string]Trigger
	table    ReleaseTable

	stateOrder   []string
	triggerOrder []string
}

// NewRegistry builds a registry from a vocabulary and a release table.
// Every trigger referenced by the table must exist, as must every state the
// table keys on, so a typo in the wiring fails at startup instead of
// silently never releasing a message.
func NewRegistry(states []State, triggers []Trigger, table ReleaseTable) (*Registry, error) {
	r := &Registry{
		states:   make(map[string]State, len(states)),
		triggers: make(map[string]Trigger, len(triggers)),
		table:    make(ReleaseTable, len(table)),
	}

	for _, s := range states {
		if s.ID == "" {
			return nil, fmt.Errorf("state with empty id")
		}
		if _, dup := r.states[s.ID]; dup {
			return nil, fmt.Errorf("duplicate state %q", s.ID)
		}
		r.states[s.ID] = s
		r.stateOrder = append(r.stateOrder, s.ID)
	}

	for _, t := range triggers {
		if t.ID == "" {
			return nil, fmt.Errorf("trigger with empty id")
		}
		if _, dup := r.triggers[t.ID]; dup {
			return nil, fmt.Errorf("duplicate trigger %q", t.ID)
		}
		r.triggers[t.ID] = t
		r.triggerOrder = append(r.triggerOrder, t.ID)
	}

	for stateID, released := range table {
		if _, ok := r.states[stateID]; !ok {
			return nil, fmt.Errorf("release table references unknown state %q", stateID)
		}
		for _, triggerID := range released {
			if _, ok := r.triggers[triggerID]; !ok {
				return nil, fmt.Errorf("release table references unknown trigger %q", triggerID)
			}
		}
		r.table[stateID] = append([]string(nil), released...)
	}

	return r, nil
}

// NewDefaultRegistry builds a registry with the built-in vocabulary. It
// panics on error since the built-in tables are static.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultStates(), DefaultTriggers(), DefaultReleaseTable())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in trigger vocabulary: %v", err))
	}
	return r
}

// ValidState reports whether id names a known state.
func (r *Registry) ValidState(id string) bool {
	_, ok := r.states[id]
	return ok
}

// ValidTrigger reports whether id names a known trigger.
func (r *Registry) ValidTrigger(id string) bool {
	_, ok := r.triggers[id]
	return ok
}

// Trigger returns the trigger with the given id.
func (r *Registry) Trigger(id string) (Trigger, bool) {
	t, ok := r.triggers[id]
	return t, ok
}

// Released returns the triggers released by entering the given state. The
// returned slice is a copy the caller may keep.
func (r *Registry) Released(stateID string) []string {
	released := r.table[stateID]
	if len(released) == 0 {
		return nil
	}
	return append([]string(nil), released...)
}

// States returns the state vocabulary in declaration order.
func (r *Registry) States() []State {
	out := make([]State, 0, len(r.stateOrder))
	for _, id := range r.stateOrder {
		out = append(out, r.states[id])
	}
	return out
}

// Triggers returns the trigger vocabulary in declaration order.
func (r *Registry) Triggers() []Trigger {
	out := make([]Trigger, 0, len(r.triggerOrder))
	for _, id := range r.triggerOrder {
		out = append(out, r.triggers[id])
	}
	return out
}
