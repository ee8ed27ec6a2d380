package id

import "fmt"

// NetAddress is the (host, port) pair a node listens on. The port is
// always the node's id in its digit form; only the host is configured
// externally.
type NetAddress struct {
	Host string
	Port string
}

// NewNetAddress builds a NetAddress for n on the given host.
func NewNetAddress(n NodeId, host string) NetAddress {
	return NetAddress{Host: host, Port: n.Port()}
}

// String returns the "host:port" form.
func (a NetAddress) String() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}
