// Package transport implements the two interchangeable ways nodes talk
// to each other: a direct HTTP request/response transport and a
// topic-exchange broker transport with an auxiliary RPC channel. The
// state machine only ever sees the Transport interface below; neither
// implementation leaks routing keys or URLs into package state.
package transport

import (
	"time"

	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/state"
)

// Receiver is implemented by the node that owns a Transport. Inbound
// messages are delivered to it; the Transport never touches the state
// machine directly.
type Receiver interface {
	// OnStart handles an inbound Orange(Running, p). accepted is false
	// when the current state does not accept a start; the direct
	// transport turns that into a 400, the broker transport just drops
	// it silently.
	OnStart(p float64) (accepted bool)
	// OnStop handles an inbound Orange(Stopped). accepted is false for
	// the same reason as OnStart's.
	OnStop() (accepted bool)
	// OnNotification handles an inbound Red from a child.
	OnNotification(sender id.NodeId, s state.Kind, ts float64)
	// OnGetState answers an inbound White; the transport applies the
	// configured response delay around this call.
	OnGetState() state.Kind
}

// Transport is the capability surface exposed to the state machine and
// its owning node: send a start/stop command, send a notification
// upward, or query a peer's state. Both SendStart and Notify are
// fire-and-forget from the caller's perspective; SendStop is awaited.
type Transport interface {
	// SendStart dispatches Orange(Running, p) to dst in the background.
	SendStart(dst id.NodeId, p float64)
	// SendStop sends Orange(Stopped) to dst and waits for delivery.
	SendStop(dst id.NodeId) error
	// Notify sends a Red notification toward dst (normally the parent)
	// in the background.
	Notify(dst id.NodeId, sender id.NodeId, s state.Kind, ts float64)
	// GetState queries dst's current state. ok is false on timeout or
	// any delivery failure; the caller treats that as "unknown".
	GetState(dst id.NodeId) (s state.Kind, ok bool)
	// Serve starts the transport's receivers, delivering inbound
	// messages to recv until Close is called.
	Serve(recv Receiver) error
	// Close stops all receivers and releases any held connections.
	Close() error
}

// RetryPolicy governs the direct transport's delivery discipline: retry
// with a fixed backoff up to Attempts times before dropping with a
// warning.
type RetryPolicy struct {
	Backoff  time.Duration
	Attempts int
}

// DefaultRetryPolicy is a 1-second backoff for up to 3 attempts.
var DefaultRetryPolicy = RetryPolicy{Backoff: time.Second, Attempts: 3}
