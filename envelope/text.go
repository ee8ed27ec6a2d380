package envelope

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// textWire is the JSON shape shared by all four kinds; unused fields
// for a given Tag are simply omitted on the wire.
type textWire struct {
	Tag          Kind    `json:"tag"`
	Action       string  `json:"action,omitempty"`
	State        string  `json:"State,omitempty"`
	Name         string  `json:"name,omitempty"`
	ChanceToFail float64 `json:"chance_to_fail,omitempty"`
	Sender       string  `json:"sender,omitempty"`
	ToState      string  `json:"to_state,omitempty"`
	Ts           float64 `json:"ts,omitempty"`
}

// EncodeText serialises e to its JSON wire form.
func EncodeText(e Envelope) ([]byte, error) {
	w := textWire{Tag: e.Tag}
	switch e.Tag {
	case White:
		if e.WhiteMsg != nil {
			w.Action = e.WhiteMsg.Action
		}
	case Blue:
		if e.BlueMsg != nil {
			w.State = e.BlueMsg.State
		}
	case Orange:
		if e.OrangeMsg != nil {
			w.Name = e.OrangeMsg.Name
			w.ChanceToFail = e.OrangeMsg.ChanceToFail
		}
	case Red:
		if e.RedMsg != nil {
			w.Sender = e.RedMsg.Sender
			w.ToState = e.RedMsg.ToState
			w.Ts = e.RedMsg.Ts
		}
	default:
		return nil, xerrors.Errorf("encode text: unknown tag %q", e.Tag)
	}
	return json.Marshal(w)
}

// DecodeText parses the JSON wire form produced by EncodeText.
func DecodeText(b []byte) (Envelope, error) {
	var w textWire
	if err := json.Unmarshal(b, &w); err != nil {
		return Envelope{}, xerrors.Errorf("decode text: %w", err)
	}
	switch w.Tag {
	case White:
		return Envelope{Tag: White, WhiteMsg: &WhiteMsg{Action: w.Action}}, nil
	case Blue:
		return Envelope{Tag: Blue, BlueMsg: &BlueMsg{State: w.State}}, nil
	case Orange:
		return Envelope{Tag: Orange, OrangeMsg: &OrangeMsg{Name: w.Name, ChanceToFail: w.ChanceToFail}}, nil
	case Red:
		return Envelope{Tag: Red, RedMsg: &RedMsg{Sender: w.Sender, ToState: w.ToState, Ts: w.Ts}}, nil
	default:
		return Envelope{}, xerrors.Errorf("decode text: unknown tag %q", w.Tag)
	}
}
