package state

import (
	"sync"

	"go.dedis.ch/statetree/id"
)

// Observation is one recorded (state, timestamp) report from a child.
// ChildRegistry keeps only the latest per child for the aggregate rule,
// but retains the full arrival-ordered history per child for
// diagnostics and tests; see DESIGN.md's Open Question decision.
type Observation struct {
	State     Kind
	Timestamp float64
}

type childEntry struct {
	known     bool
	state     Kind
	timestamp float64
	history   []Observation
}

// ChildRegistry is the ordered mapping from a node's direct children to
// their last-known state and notification timestamp. Entries are fixed
// at construction time, one per child, in child-index order.
type ChildRegistry struct {
	mu      sync.Mutex
	order   []id.NodeId
	entries map[id.NodeId]*childEntry
}

// NewChildRegistry creates a registry with one unknown (⊥) entry per
// child id, in the given order.
func NewChildRegistry(children []id.NodeId) *ChildRegistry {
	r := &ChildRegistry{
		order:   append([]id.NodeId(nil), children...),
		entries: make(map[id.NodeId]*childEntry, len(children)),
	}
	for _, c := range children {
		r.entries[c] = &childEntry{}
	}
	return r
}

// Len returns the number of children in the registry.
func (r *ChildRegistry) Len() int {
	return len(r.order)
}

// Children returns the children ids in construction order.
func (r *ChildRegistry) Children() []id.NodeId {
	return append([]id.NodeId(nil), r.order...)
}

// Update records a notification from child with the given state and
// timestamp. It returns true iff the notification was newer than the
// last one seen from that child (ts > last_ts), in which case the
// registry is mutated; a stale or unknown-sender notification returns
// false without mutating anything.
func (r *ChildRegistry) Update(child id.NodeId, s Kind, ts float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[child]
	if !ok {
		return false
	}
	if e.known && ts <= e.timestamp {
		return false
	}
	e.known = true
	e.state = s
	e.timestamp = ts
	e.history = append(e.history, Observation{State: s, Timestamp: ts})
	return true
}

// History returns every observation recorded for child, oldest first.
// It exists purely for diagnostics; Aggregate never consults it.
func (r *ChildRegistry) History(child id.NodeId) []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[child]
	if !ok {
		return nil
	}
	return append([]Observation(nil), e.history...)
}

// Latest returns the last-known state of child and whether it is known
// (false if no notification has ever arrived from it).
func (r *ChildRegistry) Latest(child id.NodeId) (Kind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[child]
	if !ok || !e.known {
		return 0, false
	}
	return e.state, true
}

// Aggregate reduces the latest state of every child to a single
// parent-facing state, per the priority rule: Error beats unknown beats
// Stopped beats Starting; Running only when every child is Running.
func (r *ChildRegistry) Aggregate() Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return Running
	}

	var errorCount, unknownCount, stoppedCount, startingCount, runningCount int
	for _, c := range r.order {
		e := r.entries[c]
		if !e.known {
			unknownCount++
			continue
		}
		switch e.state {
		case Error:
			errorCount++
		case Stopped:
			stoppedCount++
		case Starting:
			startingCount++
		case Running:
			runningCount++
		case Initialisation:
			unknownCount++
		}
	}

	switch {
	case errorCount > 0:
		return Error
	case unknownCount > 0:
		return Initialisation
	case stoppedCount > 0:
		return Stopped
	case startingCount > 0:
		return Starting
	case runningCount == len(r.order):
		return Running
	default:
		return Initialisation
	}
}
