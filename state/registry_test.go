package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/id"
)

func mustID(t *testing.T, s string) id.NodeId {
	t.Helper()
	n, err := id.New(s)
	require.NoError(t, err)
	return n
}

func TestChildRegistryStaleIgnored(t *testing.T) {
	c1 := mustID(t, "21100")
	r := NewChildRegistry([]id.NodeId{c1})

	require.True(t, r.Update(c1, Stopped, 5), "expected first update to apply")
	assert.False(t, r.Update(c1, Running, 3), "stale update (ts=3 <= last ts=5) must be ignored")

	s, ok := r.Latest(c1)
	require.True(t, ok)
	assert.Equal(t, Stopped, s)
}

func TestChildRegistryEqualTimestampIgnored(t *testing.T) {
	c1 := mustID(t, "21100")
	r := NewChildRegistry([]id.NodeId{c1})
	r.Update(c1, Stopped, 5)
	assert.False(t, r.Update(c1, Running, 5), "ts == last_ts must be treated as stale")
}

func TestChildRegistryUnknownSenderIgnored(t *testing.T) {
	c1 := mustID(t, "21100")
	other := mustID(t, "21200")
	r := NewChildRegistry([]id.NodeId{c1})
	assert.False(t, r.Update(other, Running, 1), "unknown sender must not mutate the registry")
}

func TestAggregatePriority(t *testing.T) {
	c1, c2, c3 := mustID(t, "21100"), mustID(t, "21200"), mustID(t, "21300")
	children := []id.NodeId{c1, c2, c3}

	cases := []struct {
		name   string
		states map[id.NodeId]Kind
		want   Kind
	}{
		{"all unknown", nil, Initialisation},
		{"one error wins", map[id.NodeId]Kind{c1: Running, c2: Error, c3: Running}, Error},
		{"one unknown beats stopped", map[id.NodeId]Kind{c1: Stopped, c2: Stopped}, Initialisation},
		{"stopped beats starting", map[id.NodeId]Kind{c1: Stopped, c2: Starting, c3: Running}, Stopped},
		{"starting beats running", map[id.NodeId]Kind{c1: Starting, c2: Running, c3: Running}, Starting},
		{"all running", map[id.NodeId]Kind{c1: Running, c2: Running, c3: Running}, Running},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewChildRegistry(children)
			ts := 1.0
			for _, c := range children {
				if s, ok := tc.states[c]; ok {
					r.Update(c, s, ts)
					ts++
				}
			}
			assert.Equal(t, tc.want, r.Aggregate())
		})
	}
}

func TestChildRegistryHistoryRetainsAllButAggregateUsesLatest(t *testing.T) {
	c1 := mustID(t, "21100")
	r := NewChildRegistry([]id.NodeId{c1})
	r.Update(c1, Starting, 1)
	r.Update(c1, Running, 2)
	r.Update(c1, Error, 3)

	hist := r.History(c1)
	require.Len(t, hist, 3)
	assert.Equal(t, Error, r.Aggregate(), "Aggregate() must reflect the latest observation only")
}
