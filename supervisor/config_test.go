package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/statetree/config"
	"go.dedis.ch/statetree/transport"
)

type mapSource struct {
	m         map[string]string
	namespace string
}

func newMapSource(kv map[string]string) *mapSource {
	return &mapSource{m: kv}
}

func (m *mapSource) Defined(key string) bool {
	_, ok := m.m[m.fullKey(key)]
	return ok
}
func (m *mapSource) String(key string) string { return m.m[m.fullKey(key)] }
func (m *mapSource) Sub(key string) config.Source {
	return &mapSource{m: m.m, namespace: m.fullKey(key)}
}
func (m *mapSource) fullKey(k string) string {
	if m.namespace != "" {
		return m.namespace + "." + k
	}
	return k
}

func TestLoadValidConfig(t *testing.T) {
	s := newMapSource(map[string]string{
		"port":         "21100",
		"levels":       "2",
		"children":     "3",
		"architecture": "direct",
	})
	hub := config.NewSourceHub(s)

	cfg, err := Load(hub)
	require.NoError(t, err)
	assert.Equal(t, 21100, cfg.Port)
	assert.Equal(t, 2, cfg.Levels)
	assert.Equal(t, 3, cfg.Children)
	assert.Equal(t, Direct, cfg.Architecture)
	assert.Equal(t, "127.0.0.1", cfg.Host, "expected default host")
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	s := newMapSource(map[string]string{
		"port":         "99999",
		"levels":       "0",
		"children":     "3",
		"architecture": "direct",
	})
	hub := config.NewSourceHub(s)
	_, err := Load(hub)
	assert.Error(t, err, "expected an error for an out-of-range port")
}

func TestLoadRejectsUnknownArchitecture(t *testing.T) {
	s := newMapSource(map[string]string{
		"port":         "20000",
		"levels":       "0",
		"children":     "3",
		"architecture": "carrier-pigeon",
	})
	hub := config.NewSourceHub(s)
	_, err := Load(hub)
	assert.Error(t, err, "expected an error for an unknown architecture")
}

func TestLoadPicksUpConfigPath(t *testing.T) {
	s := newMapSource(map[string]string{
		"port":         "20000",
		"levels":       "0",
		"children":     "3",
		"architecture": "direct",
		"config":       "/etc/statenode/statenode.toml",
	})
	hub := config.NewSourceHub(s)

	cfg, err := Load(hub)
	require.NoError(t, err)
	assert.Equal(t, "/etc/statenode/statenode.toml", cfg.ConfigPath)
}

func TestSplitHostPort(t *testing.T) {
	host, port, err := splitHostPort("127.0.0.1:20000")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, "20000", port)

	_, _, err = splitHostPort("no-port-here")
	assert.Error(t, err)
}

func TestNewDerivesIdAndChildren(t *testing.T) {
	cfg := Config{
		Port:         21000,
		Levels:       2,
		Children:     3,
		Architecture: Direct,
		Host:         "127.0.0.1",
		Retry:        transport.RetryPolicy{Backoff: time.Second, Attempts: 1},
	}
	sup, err := New(cfg)
	require.NoError(t, err)
	assert.Len(t, sup.Node().children, 3)
}
