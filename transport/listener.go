package transport

import (
	"fmt"
	"net"
	"os"

	reuseport "github.com/kavu/go_reuseport"
)

// Listen opens a listener on options.Address. Stale unix socket files left
// behind by a previous process are removed first.
func Listen(options Options) (net.Listener, error) {
	addr, err := ParseAddress(options.Address)
	if err != nil {
		return nil, err
	}

	switch addr.Network {
	case "tcp":
		if options.Reuseport {
			return reuseport.Listen("tcp", addr.Address)
		}
		return net.Listen("tcp", addr.Address)

	case "unix":
		if err := removeStaleSocket(addr.Address); err != nil {
			return nil, err
		}
		return net.Listen("unix", addr.Address)

	default:
		return nil, fmt.Errorf("Failed to listen on %s: unsupported network", addr)
	}
}

// ListenerAddress formats a listener's address in the form ParseAddress accepts.
func ListenerAddress(l net.Listener) string {
	return Address{Network: l.Addr().Network(), Address: l.Addr().String()}.String()
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("Failed to listen on %s: file exists and is not a socket", path)
	}

	return os.Remove(path)
}
