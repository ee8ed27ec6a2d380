package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/id"
)

type fixedRand struct{ v float64 }

func (f fixedRand) Float64() float64 { return f.v }

type stepClock struct{ t float64 }

func (c *stepClock) Now() float64 {
	c.t++
	return c.t
}

func effectKinds(effects []Effect) []EffectKind {
	out := make([]EffectKind, len(effects))
	for i, e := range effects {
		out[i] = e.Kind
	}
	return out
}

func hasEffect(effects []Effect, k EffectKind) bool {
	for _, e := range effects {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func TestLeafNeverFailsWhenChanceZero(t *testing.T) {
	self := mustID(t, "20000")
	m := New(self, nil, fixedRand{v: 0.5}, &stepClock{})

	m.Ready()
	require.Equal(t, Stopped, m.State())

	_, err := m.HandleStart(0)
	require.NoError(t, err)
	require.Equal(t, Starting, m.State())

	effects := m.ApplyStartTimer()
	assert.Equal(t, Running, m.State())
	assert.True(t, hasEffect(effects, EffectScheduleTick), "expected EffectScheduleTick, got %v", effectKinds(effects))
}

func TestLeafAlwaysFailsWhenChanceOne(t *testing.T) {
	self := mustID(t, "20000")
	m := New(self, nil, fixedRand{v: 0.999999}, &stepClock{})
	m.Ready()
	_, err := m.HandleStart(1)
	require.NoError(t, err)
	m.ApplyStartTimer()
	assert.Equal(t, Error, m.State())
}

func TestErrorIsSticky(t *testing.T) {
	self := mustID(t, "20000")
	m := New(self, nil, fixedRand{v: 0.5}, &stepClock{})
	m.Ready()
	_, err := m.HandleStart(1)
	require.NoError(t, err)
	m.ApplyStartTimer()
	require.Equal(t, Error, m.State())

	// Further inputs must not move the state away from Error.
	_, err = m.HandleStart(0)
	assert.Error(t, err, "expected HandleStart to reject once in Error")
	assert.Equal(t, Error, m.State(), "Error must remain sticky")
}

func TestStopWhileStoppedIsIgnored(t *testing.T) {
	self := mustID(t, "20000")
	m := New(self, nil, fixedRand{v: 0}, &stepClock{})
	m.Ready()
	effects, err := m.HandleStop()
	require.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, Stopped, m.State())
}

func TestInteriorNodeStartDispatchesToChildren(t *testing.T) {
	self := mustID(t, "21000")
	children := []id.NodeId{mustID(t, "21100"), mustID(t, "21200"), mustID(t, "21300")}
	m := New(self, children, fixedRand{v: 0}, &stepClock{})

	m.Ready()
	require.Equal(t, Initialisation, m.State(), "interior node should stay Initialisation until children report")

	// Boot: every child reports Stopped, which settles the parent.
	for _, c := range children {
		m.HandleChildNotify(c, Stopped, 1)
	}
	require.Equal(t, Stopped, m.State())

	_, err := m.HandleStart(0.2)
	require.NoError(t, err)
	effects := m.ApplyStartTimer()
	require.Len(t, effects, 1)
	require.Equal(t, EffectStartChildren, effects[0].Kind)

	for _, c := range children {
		m.HandleChildNotify(c, Running, 2)
	}
	assert.Equal(t, Running, m.State())
}

func TestChildErrorPropagatesToParent(t *testing.T) {
	self := mustID(t, "21000")
	children := []id.NodeId{mustID(t, "21100"), mustID(t, "21200"), mustID(t, "21300")}
	m := New(self, children, fixedRand{v: 0}, &stepClock{})
	m.Ready()
	for _, c := range children {
		m.HandleChildNotify(c, Stopped, 1)
	}
	_, err := m.HandleStart(0)
	require.NoError(t, err)
	m.ApplyStartTimer()

	m.HandleChildNotify(children[0], Error, 2)
	require.Equal(t, Error, m.State(), "state should become Error once any child errors")

	effects := m.HandleChildNotify(children[1], Running, 3)
	assert.Empty(t, effects, "Error must stay sticky even as other children report Running")
}

func TestStaleChildNotifyDoesNotChangeAggregate(t *testing.T) {
	self := mustID(t, "21000")
	children := []id.NodeId{mustID(t, "21100")}
	m := New(self, children, fixedRand{v: 0}, &stepClock{})
	m.Ready()

	m.HandleChildNotify(children[0], Stopped, 5)
	require.Equal(t, Stopped, m.State())

	effects := m.HandleChildNotify(children[0], Running, 3)
	assert.Empty(t, effects, "stale notification must not produce any effect")
	assert.Equal(t, Stopped, m.State(), "state after stale notify must remain Stopped")
}
