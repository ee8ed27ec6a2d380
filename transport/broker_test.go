package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/envelope"
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/state"
)

func TestEncodeDecodeRoundTripBothFormats(t *testing.T) {
	sender, err := id.New("21100")
	require.NoError(t, err)
	e := envelope.NewRed(sender, state.Error, 7.0)

	for _, format := range []EnvelopeFormat{FormatText, FormatBinary} {
		body, err := encode(format, e)
		require.NoError(t, err, "encode(%s)", format)

		got, err := decode(format, body)
		require.NoError(t, err, "decode(%s)", format)

		assert.Equal(t, envelope.Red, got.Tag, "format %s", format)
		assert.Equal(t, e.RedMsg.Sender, got.RedMsg.Sender, "format %s", format)
	}
}

func TestRPCQueueName(t *testing.T) {
	n, err := id.New("21300")
	require.NoError(t, err)
	assert.Equal(t, "rpc_queue:2.1.3.0.0", rpcQueueName(n))
}

func TestDispatchOrangeAndRed(t *testing.T) {
	recv := newFakeReceiver()
	b := &Broker{cfg: BrokerConfig{Format: FormatText}}

	b.dispatch(envelope.NewOrangeStart(0.4), recv)
	select {
	case p := <-recv.started:
		assert.Equal(t, 0.4, p)
	default:
		t.Fatal("expected OnStart to be called")
	}

	b.dispatch(envelope.NewOrangeStop(), recv)
	select {
	case <-recv.stopped:
	default:
		t.Fatal("expected OnStop to be called")
	}

	sender, err := id.New("22100")
	require.NoError(t, err)
	b.dispatch(envelope.NewRed(sender, state.Running, 3.0), recv)
	select {
	case n := <-recv.notified:
		assert.Equal(t, sender, n.sender)
		assert.Equal(t, state.Running, n.s)
		assert.Equal(t, 3.0, n.ts)
	default:
		t.Fatal("expected OnNotification to be called")
	}
}

func TestDispatchDropsMalformedSender(t *testing.T) {
	recv := newFakeReceiver()
	b := &Broker{cfg: BrokerConfig{Format: FormatText}}

	bad := envelope.Envelope{Tag: envelope.Red, RedMsg: &envelope.RedMsg{
		Sender:  "not.a.key",
		ToState: "State.Running",
	}}
	b.dispatch(bad, recv)
	select {
	case n := <-recv.notified:
		t.Fatalf("expected malformed sender to be dropped, got %+v", n)
	default:
	}
}
