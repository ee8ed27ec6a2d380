package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/state"
)

type fakeReceiver struct {
	started  chan float64
	stopped  chan struct{}
	notified chan notifyCall
	state    state.Kind
}

type notifyCall struct {
	sender id.NodeId
	s      state.Kind
	ts     float64
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		started:  make(chan float64, 1),
		stopped:  make(chan struct{}, 1),
		notified: make(chan notifyCall, 1),
		state:    state.Running,
	}
}

func (f *fakeReceiver) OnStart(p float64) bool { f.started <- p; return true }
func (f *fakeReceiver) OnStop() bool           { f.stopped <- struct{}{}; return true }
func (f *fakeReceiver) OnNotification(sender id.NodeId, s state.Kind, ts float64) {
	f.notified <- notifyCall{sender, s, ts}
}
func (f *fakeReceiver) OnGetState() state.Kind { return f.state }

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func startDirect(t *testing.T, self id.NodeId, recv Receiver) (*Direct, string) {
	t.Helper()
	addr := freePort(t)
	d := NewDirect(self, addr, func(id.NodeId) id.NetAddress {
		host, port, _ := net.SplitHostPort(addr)
		return id.NetAddress{Host: host, Port: port}
	}, DefaultEndpoints, RetryPolicy{Attempts: 2, Backoff: 10 * time.Millisecond}, 0)
	require.NoError(t, d.Serve(recv))
	time.Sleep(20 * time.Millisecond)
	return d, addr
}

func TestDirectSendStartAndStop(t *testing.T) {
	self, err := id.New("21100")
	require.NoError(t, err)
	recv := newFakeReceiver()
	d, _ := startDirect(t, self, recv)
	defer d.Close()

	d.SendStart(self, 0.25)
	select {
	case p := <-recv.started:
		require.Equal(t, 0.25, p)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SendStart delivery")
	}

	require.NoError(t, d.SendStop(self))
	select {
	case <-recv.stopped:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SendStop delivery")
	}
}

func TestDirectNotifyAndGetState(t *testing.T) {
	self, err := id.New("21100")
	require.NoError(t, err)
	sender, err := id.New("22100")
	require.NoError(t, err)
	recv := newFakeReceiver()
	d, _ := startDirect(t, self, recv)
	defer d.Close()

	d.Notify(self, sender, state.Error, 42.5)
	select {
	case n := <-recv.notified:
		require.Equal(t, sender, n.sender)
		require.Equal(t, state.Error, n.s)
		require.Equal(t, 42.5, n.ts)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Notify delivery")
	}

	got, ok := d.GetState(self)
	require.True(t, ok)
	require.Equal(t, state.Running, got)
}

func TestParseSenderForms(t *testing.T) {
	want, err := id.New("21100")
	require.NoError(t, err)

	for _, form := range []string{"2.1.1.0.0", "127.0.0.1:21100", "21100"} {
		got, err := parseSender(form)
		require.NoError(t, err, "parseSender(%q)", form)
		require.Equal(t, want, got, "parseSender(%q)", form)
	}

	_, err = parseSender("not.a.key")
	require.Error(t, err, "expected malformed sender to be rejected")
}

func TestDirectGetStateUnreachable(t *testing.T) {
	self, err := id.New("21100")
	require.NoError(t, err)
	unreachable, err := id.New("29999")
	require.NoError(t, err)
	recv := newFakeReceiver()
	d, _ := startDirect(t, self, recv)
	defer d.Close()

	d2 := NewDirect(self, "127.0.0.1:1", func(id.NodeId) id.NetAddress {
		return id.NetAddress{Host: "127.0.0.1", Port: "1"}
	}, DefaultEndpoints, RetryPolicy{Attempts: 1, Backoff: time.Millisecond}, 0)
	_, ok := d2.GetState(unreachable)
	require.False(t, ok, "expected GetState against a closed port to fail")
}
