package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/state"
)

var testPortRange = PortRange{Min: 20000, Max: 24000}

func sampleEnvelopes(t *testing.T) []Envelope {
	t.Helper()
	sender, err := id.New("21100")
	require.NoError(t, err)
	return []Envelope{
		NewWhite(),
		NewBlue(state.Running),
		NewOrangeStart(0.3),
		NewOrangeStop(),
		NewRed(sender, state.Error, 12.5),
	}
}

func TestTextRoundTrip(t *testing.T) {
	for _, e := range sampleEnvelopes(t) {
		b, err := EncodeText(e)
		require.NoError(t, err, "EncodeText(%v)", e.Tag)

		got, err := DecodeText(b)
		require.NoError(t, err, "DecodeText(%v)", e.Tag)

		assert.NoError(t, Validate(got, testPortRange), "Validate round-tripped %v", e.Tag)
		assertEqual(t, e, got)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, e := range sampleEnvelopes(t) {
		b, err := EncodeBinary(e)
		require.NoError(t, err, "EncodeBinary(%v)", e.Tag)

		got, err := DecodeBinary(b)
		require.NoError(t, err, "DecodeBinary(%v)", e.Tag)

		assert.NoError(t, Validate(got, testPortRange), "Validate round-tripped %v", e.Tag)
		assertEqual(t, e, got)
	}
}

func assertEqual(t *testing.T, a, b Envelope) {
	t.Helper()
	require.Equal(t, a.Tag, b.Tag)
	switch a.Tag {
	case White:
		assert.Equal(t, *a.WhiteMsg, *b.WhiteMsg)
	case Blue:
		assert.Equal(t, *a.BlueMsg, *b.BlueMsg)
	case Orange:
		assert.Equal(t, *a.OrangeMsg, *b.OrangeMsg)
	case Red:
		assert.Equal(t, *a.RedMsg, *b.RedMsg)
	}
}

func TestValidateRejectsOutOfRangeChance(t *testing.T) {
	e := NewOrangeStart(1.5)
	assert.Error(t, Validate(e, testPortRange), "expected validation error for chance_to_fail > 1")
}

func TestValidateRejectsBadOrangeName(t *testing.T) {
	e := Envelope{Tag: Orange, OrangeMsg: &OrangeMsg{Name: "Bogus"}}
	assert.Error(t, Validate(e, testPortRange), "expected validation error for unknown Orange.name")
}

func TestValidateRejectsOutOfRangeSenderPort(t *testing.T) {
	sender, err := id.New("29999")
	require.NoError(t, err)
	e := NewRed(sender, state.Running, 1)
	assert.Error(t, Validate(e, testPortRange), "expected validation error for sender port out of range")
}

func TestValidateRejectsMalformedSender(t *testing.T) {
	e := Envelope{Tag: Red, RedMsg: &RedMsg{Sender: "not.a.valid.key", ToState: "State.Running"}}
	assert.Error(t, Validate(e, testPortRange), "expected validation error for malformed sender routing key")
}

func TestValidateRejectsUnknownBlueState(t *testing.T) {
	e := Envelope{Tag: Blue, BlueMsg: &BlueMsg{State: "State.Bogus"}}
	assert.Error(t, Validate(e, testPortRange), "expected validation error for unknown Blue.state")
}
