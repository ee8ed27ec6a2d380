package supervisor

import (
	"go.dedis.ch/statetree/id"
	"go.dedis.ch/statetree/transport"
	"golang.org/x/xerrors"
)

// buildTransport constructs the Transport selected by cfg.Architecture
// for self, resolving peer addresses against cfg.Host except for the
// parent, whose address was handed to this process on the command line.
func buildTransport(self id.NodeId, cfg Config) (transport.Transport, error) {
	switch cfg.Architecture {
	case Direct:
		resolver := func(dst id.NodeId) id.NetAddress {
			if cfg.Parent != "" {
				if parent, ok := self.Parent(); ok && dst == parent {
					host, port, err := splitHostPort(cfg.Parent)
					if err == nil {
						return id.NetAddress{Host: host, Port: port}
					}
				}
			}
			return id.NewNetAddress(dst, cfg.Host)
		}
		listenAddr := id.NewNetAddress(self, cfg.Host).String()
		return transport.NewDirect(self, listenAddr, resolver, cfg.Endpoints, cfg.Retry, cfg.GetDelay), nil
	case Broker:
		return transport.NewBroker(self, transport.BrokerConfig{
			URL:         cfg.BrokerURL,
			RPCTimeout:  cfg.RPCTimeout,
			Format:      cfg.BrokerFormat,
			Validation:  cfg.Validation,
			PortRange:   cfg.PortRange(),
			RetryPolicy: cfg.Retry,
			GetDelay:    cfg.GetDelay,
		})
	default:
		return nil, xerrors.Errorf("%w: unknown architecture %q", ErrInvalidConfig, cfg.Architecture)
	}
}

func splitHostPort(addr string) (host, port string, err error) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:], nil
		}
	}
	return "", "", xerrors.Errorf("%w: %q is not a host:port pair", ErrInvalidConfig, addr)
}
