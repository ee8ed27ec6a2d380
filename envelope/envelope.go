// Package envelope defines the four wire message kinds exchanged
// between nodes — White (GetState request), Blue (GetState reply),
// Orange (start/stop input) and Red (child notification) — and their
// text and binary codecs.
package envelope

import (
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/state"
	"golang.org/x/xerrors"
)

// Kind tags which of the four envelope shapes a message carries.
type Kind string

const (
	// White is a GetState request.
	White Kind = "White"
	// Blue is a GetState reply.
	Blue Kind = "Blue"
	// Orange is a ChangeState input (start or stop).
	Orange Kind = "Orange"
	// Red is a ChildNotification.
	Red Kind = "Red"
)

// Envelope is the tagged sum of the four message shapes. Exactly one of
// the pointer fields matching Tag is populated.
type Envelope struct {
	Tag Kind

	WhiteMsg  *WhiteMsg
	BlueMsg   *BlueMsg
	OrangeMsg *OrangeMsg
	RedMsg    *RedMsg
}

// WhiteMsg requests the current state of the receiver.
type WhiteMsg struct {
	Action string // always "get_state"
}

// BlueMsg carries the receiver's current state in reply to a White.
type BlueMsg struct {
	State string // "State.<name>"
}

// OrangeMsg is a start or stop command.
type OrangeMsg struct {
	Name         string // "Running" or "Stopped"
	ChanceToFail float64
}

// RedMsg is a child-to-parent notification of a state change.
type RedMsg struct {
	Sender  string // dotted routing key
	ToState string // "State.<name>"
	Ts      float64
}

// NewWhite builds a White envelope.
func NewWhite() Envelope {
	return Envelope{Tag: White, WhiteMsg: &WhiteMsg{Action: "get_state"}}
}

// NewBlue builds a Blue envelope carrying s.
func NewBlue(s state.Kind) Envelope {
	return Envelope{Tag: Blue, BlueMsg: &BlueMsg{State: "State." + s.String()}}
}

// NewOrangeStart builds an Orange(Running, p) envelope.
func NewOrangeStart(p float64) Envelope {
	return Envelope{Tag: Orange, OrangeMsg: &OrangeMsg{Name: "Running", ChanceToFail: p}}
}

// NewOrangeStop builds an Orange(Stopped) envelope.
func NewOrangeStop() Envelope {
	return Envelope{Tag: Orange, OrangeMsg: &OrangeMsg{Name: "Stopped"}}
}

// NewRed builds a Red(to_state, sender, ts) envelope.
func NewRed(sender id.NodeId, to state.Kind, ts float64) Envelope {
	return Envelope{Tag: Red, RedMsg: &RedMsg{
		Sender:  sender.RoutingKey(),
		ToState: "State." + to.String(),
		Ts:      ts,
	}}
}

// ErrValidation marks every envelope validation failure.
var ErrValidation = xerrors.New("envelope validation failed")

// PortRange bounds the numeric port a Red sender's routing key must
// resolve to: Min inclusive, Max exclusive.
type PortRange struct {
	Min, Max int
}

// Validate checks the fields of e for its tag. portRange is
// only consulted for Red envelopes.
func Validate(e Envelope, portRange PortRange) error {
	switch e.Tag {
	case White:
		if e.WhiteMsg == nil || e.WhiteMsg.Action != "get_state" {
			return xerrors.Errorf("%w: White.action must be \"get_state\"", ErrValidation)
		}
	case Blue:
		if e.BlueMsg == nil {
			return xerrors.Errorf("%w: Blue missing body", ErrValidation)
		}
		if _, err := state.Parse(e.BlueMsg.State); err != nil {
			return xerrors.Errorf("%w: Blue.state %q: %v", ErrValidation, e.BlueMsg.State, err)
		}
	case Orange:
		if e.OrangeMsg == nil {
			return xerrors.Errorf("%w: Orange missing body", ErrValidation)
		}
		if e.OrangeMsg.Name != "Running" && e.OrangeMsg.Name != "Stopped" {
			return xerrors.Errorf("%w: Orange.name must be Running or Stopped, got %q", ErrValidation, e.OrangeMsg.Name)
		}
		if e.OrangeMsg.Name == "Running" {
			p := e.OrangeMsg.ChanceToFail
			if p < 0 || p > 1 {
				return xerrors.Errorf("%w: Orange.chance_to_fail %v out of [0,1]", ErrValidation, p)
			}
		}
	case Red:
		if e.RedMsg == nil {
			return xerrors.Errorf("%w: Red missing body", ErrValidation)
		}
		sender, err := id.FromRoutingKey(e.RedMsg.Sender)
		if err != nil {
			return xerrors.Errorf("%w: Red.sender %q: %v", ErrValidation, e.RedMsg.Sender, err)
		}
		port, err := sender.PortInt()
		if err != nil {
			return xerrors.Errorf("%w: Red.sender %q has non-numeric port: %v", ErrValidation, e.RedMsg.Sender, err)
		}
		if port < portRange.Min || port >= portRange.Max {
			return xerrors.Errorf("%w: Red.sender port %d out of [%d,%d)", ErrValidation, port, portRange.Min, portRange.Max)
		}
		if _, err := state.Parse(e.RedMsg.ToState); err != nil {
			return xerrors.Errorf("%w: Red.to_state %q: %v", ErrValidation, e.RedMsg.ToState, err)
		}
	default:
		return xerrors.Errorf("%w: unknown envelope tag %q", ErrValidation, e.Tag)
	}
	return nil
}
