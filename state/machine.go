package state

import (
	"math/rand"
	"sync"

	"go.dedis.ch/statetree/id"
	"golang.org/x/xerrors"
)

// Rand is the pseudo-random source consulted by the fail-roll. Tests
// inject a deterministic implementation; production nodes use a
// math/rand source seeded at construction.
type Rand interface {
	Float64() float64
}

// Clock supplies the "now" timestamp stamped on outgoing notifications.
// Production nodes use a wall-clock implementation; tests can inject a
// fixed or stepped clock.
type Clock interface {
	Now() float64
}

// EffectKind enumerates the side effects a Machine transition can
// demand of its caller. The Machine itself never performs I/O: it only
// describes what should happen, leaving the Transport dispatch to the
// supervisor.
type EffectKind int

const (
	// EffectNotifyParent asks the caller to send a Red notification of
	// NotifyState to the parent.
	EffectNotifyParent EffectKind = iota
	// EffectStartChildren asks the caller to send Orange(Running,
	// ChanceToFail) to every child.
	EffectStartChildren
	// EffectStopChildren asks the caller to send Orange(Stopped) to
	// every child.
	EffectStopChildren
	// EffectScheduleStartTimer asks the caller to invoke
	// ApplyStartTimer after the configured starting delay.
	EffectScheduleStartTimer
	// EffectScheduleTick asks the caller to invoke ApplyTick after the
	// configured running interval.
	EffectScheduleTick
)

// Effect is one outgoing side effect produced by a Machine transition.
type Effect struct {
	Kind         EffectKind
	NotifyState  Kind
	ChanceToFail float64
}

// Machine is the per-node finite-state machine. All mutation happens
// under its own lock so that a single input is processed atomically,
// and the registry observes a consistent view between inputs.
type Machine struct {
	mu sync.Mutex

	self         id.NodeId
	cur          Kind
	chanceToFail float64
	registry     *ChildRegistry
	isLeaf       bool

	rnd   Rand
	clock Clock
}

// New creates a Machine for self with the given children (empty for a
// leaf). rnd and clock may be nil, in which case a math/rand source of
// the Machine's own, seeded from self's port, and the real wall clock
// are used.
func New(self id.NodeId, children []id.NodeId, rnd Rand, clock Clock) *Machine {
	if rnd == nil {
		seed, _ := self.PortInt()
		rnd = rand.New(rand.NewSource(int64(seed) + 1))
	}
	if clock == nil {
		clock = wallClock{}
	}
	return &Machine{
		self:     self,
		cur:      Initialisation,
		registry: NewChildRegistry(children),
		isLeaf:   len(children) == 0,
		rnd:      rnd,
		clock:    clock,
	}
}

// State returns the node's current state.
func (m *Machine) State() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Registry exposes the child registry for diagnostics (e.g. History).
func (m *Machine) Registry() *ChildRegistry {
	return m.registry
}

// Ready processes the internal "ready" input emitted once the node's
// transport is listening. A leaf moves straight to Stopped; an interior
// node stays in Initialisation until its own children have all
// reported (Aggregate on an all-unknown registry stays Initialisation).
// Either way the node notifies its parent of its resulting state
// exactly once, seeding the parent's registry.
func (m *Machine) Ready() []Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isLeaf {
		m.cur = Stopped
	}
	return []Effect{{Kind: EffectNotifyParent, NotifyState: m.cur}}
}

// ErrInvalidTransition is returned for an input that the current state
// does not accept.
var ErrInvalidTransition = xerrors.New("invalid state transition")

// HandleStart processes StartCmd(p). Only Stopped accepts it.
func (m *Machine) HandleStart(p float64) ([]Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != Stopped {
		return nil, xerrors.Errorf("%w: start while %s", ErrInvalidTransition, m.cur)
	}
	m.cur = Starting
	m.chanceToFail = p
	return []Effect{{Kind: EffectScheduleStartTimer, ChanceToFail: p}}, nil
}

// HandleStop processes StopCmd. Stopped ignores it (already stopped);
// Running propagates Orange(Stopped) to children, or if it is a leaf,
// transitions straight to Stopped and notifies its parent.
func (m *Machine) HandleStop() ([]Effect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.cur {
	case Stopped:
		return nil, nil
	case Running, Starting:
		if m.isLeaf {
			m.cur = Stopped
			return []Effect{{Kind: EffectNotifyParent, NotifyState: m.cur}}, nil
		}
		// The parent's own state converges to Stopped once every
		// child notifies Stopped and Aggregate recomputes it, the
		// same way the Starting->Running convergence works; it is
		// not set here to avoid claiming "Stopped" before any child
		// has actually stopped.
		return []Effect{{Kind: EffectStopChildren}}, nil
	case Error:
		return nil, nil
	default:
		return nil, xerrors.Errorf("%w: stop while %s", ErrInvalidTransition, m.cur)
	}
}

// ApplyStartTimer fires transition_time after HandleStart. A leaf
// performs the fail-roll directly; an interior node dispatches
// Orange(Running, p) to every child and waits for their notifications
// to drive the aggregate.
func (m *Machine) ApplyStartTimer() []Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != Starting {
		return nil
	}
	if !m.isLeaf {
		return []Effect{{Kind: EffectStartChildren, ChanceToFail: m.chanceToFail}}
	}
	return m.failRollLocked()
}

// ApplyTick fires every running_interval while a leaf is Running,
// performing another fail-roll.
func (m *Machine) ApplyTick() []Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != Running || !m.isLeaf {
		return nil
	}
	return m.failRollLocked()
}

func (m *Machine) failRollLocked() []Effect {
	if m.rnd.Float64() < m.chanceToFail {
		m.cur = Error
		return []Effect{{Kind: EffectNotifyParent, NotifyState: m.cur}}
	}
	m.cur = Running
	return []Effect{
		{Kind: EffectNotifyParent, NotifyState: m.cur},
		{Kind: EffectScheduleTick},
	}
}

// HandleChildNotify processes a Red notification from a child. Stale or
// unknown-sender notifications are dropped by the registry itself.
// Error is sticky: once entered, further notifications are ignored.
func (m *Machine) HandleChildNotify(child id.NodeId, s Kind, ts float64) []Effect {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == Error {
		return nil
	}
	if !m.registry.Update(child, s, ts) {
		return nil
	}
	agg := m.registry.Aggregate()
	if agg == m.cur {
		return nil
	}
	m.cur = agg
	return []Effect{{Kind: EffectNotifyParent, NotifyState: m.cur}}
}

// Now returns the machine's clock reading, for stamping outgoing
// notifications.
func (m *Machine) Now() float64 {
	return m.clock.Now()
}

type wallClock struct{}

func (wallClock) Now() float64 {
	return nowSeconds()
}
