package supervisor

import (
	"time"

	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/log"
	"go.dedis.ch/statetree/state"
	"go.dedis.ch/statetree/transport"
)

// Node owns one process's state machine and transport, translating
// between the Machine's pure Effect values and the Transport's actual
// I/O. It is the transport.Receiver for inbound messages.
type Node struct {
	self      id.NodeId
	parent    id.NodeId
	hasParent bool
	children  []id.NodeId

	machine   *state.Machine
	transport transport.Transport
	cfg       Config
}

// NewNode builds a Node for self, with the given children (possibly
// none, for a leaf) and the parent id derived from self's own id.
func NewNode(self id.NodeId, children []id.NodeId, tp transport.Transport, cfg Config, rnd state.Rand, clock state.Clock) *Node {
	parent, hasParent := self.Parent()
	return &Node{
		self:      self,
		parent:    parent,
		hasParent: hasParent,
		children:  children,
		machine:   state.New(self, children, rnd, clock),
		transport: tp,
		cfg:       cfg,
	}
}

// Machine exposes the underlying state machine, mainly for diagnostics.
func (n *Node) Machine() *state.Machine { return n.machine }

// Start begins serving inbound transport traffic and then issues the
// one-time "ready" input.
func (n *Node) Start() error {
	if err := n.transport.Serve(n); err != nil {
		return err
	}
	n.dispatch(n.machine.Ready())
	return nil
}

// Stop releases the transport's held resources.
func (n *Node) Stop() error {
	return n.transport.Close()
}

// OnStart implements transport.Receiver.
func (n *Node) OnStart(p float64) bool {
	effects, err := n.machine.HandleStart(p)
	if err != nil {
		log.Lvl2("node ", n.self, ": ", err)
		return false
	}
	n.dispatch(effects)
	return true
}

// OnStop implements transport.Receiver.
func (n *Node) OnStop() bool {
	effects, err := n.machine.HandleStop()
	if err != nil {
		log.Lvl2("node ", n.self, ": ", err)
		return false
	}
	n.dispatch(effects)
	return true
}

// OnNotification implements transport.Receiver.
func (n *Node) OnNotification(sender id.NodeId, s state.Kind, ts float64) {
	n.dispatch(n.machine.HandleChildNotify(sender, s, ts))
}

// OnGetState implements transport.Receiver.
func (n *Node) OnGetState() state.Kind {
	return n.machine.State()
}

func (n *Node) dispatch(effects []state.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case state.EffectNotifyParent:
			if n.hasParent {
				n.transport.Notify(n.parent, n.self, e.NotifyState, n.machine.Now())
			}
		case state.EffectStartChildren:
			for _, c := range n.children {
				n.transport.SendStart(c, e.ChanceToFail)
			}
		case state.EffectStopChildren:
			for _, c := range n.children {
				child := c
				go func() {
					if err := n.transport.SendStop(child); err != nil {
						log.Warnf("node %s: stopping child %s: %v", n.self, child, err)
					}
				}()
			}
		case state.EffectScheduleStartTimer:
			time.AfterFunc(n.cfg.StartingDelay, func() {
				n.dispatch(n.machine.ApplyStartTimer())
			})
		case state.EffectScheduleTick:
			time.AfterFunc(n.cfg.RunningInterval, func() {
				n.dispatch(n.machine.ApplyTick())
			})
		}
	}
}
