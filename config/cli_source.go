package config

import (
	"github.com/urfave/cli"
)

// CliSource is a Source backed by the flags this binary actually
// declares: --port, --levels, --children, --parent, --architecture,
// --config, --debug. Flags are always flat (there is no
// "--node.port"), so CliSource never namespaces a lookup the way a
// TOML-backed Source does; Sub is still implemented to satisfy the
// Source interface, but it is a no-op for this source.
type CliSource struct {
	c *cli.Context
}

// NewCliSource returns a new CliSource out of the given cli.Context.
// Note that the cli.Context must be the one from the actual command
// which is run, otherwise only the global flags will be detected.
func NewCliSource(c *cli.Context) Source {
	return &CliSource{c}
}

// Defined reports whether key was set on the command line, either as a
// global flag or as a flag on the running command.
func (c *CliSource) Defined(key string) bool {
	_, ok := c.value(key)
	return ok
}

// String returns the flag value for key, or "" if it was never set.
func (c *CliSource) String(key string) string {
	s, _ := c.value(key)
	return s
}

// Sub returns c unchanged: the CLI's flags have no nested namespace to
// narrow into.
func (c *CliSource) Sub(key string) Source {
	return c
}

func (c *CliSource) value(key string) (string, bool) {
	if c.c.GlobalIsSet(key) {
		return c.c.GlobalString(key), true
	}
	if c.c.IsSet(key) {
		return c.c.String(key), true
	}
	return "", false
}
