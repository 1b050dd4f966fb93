package transport

import (
	"errors"
	"fmt"
	"strings"
)

const (
	unixScheme = "unix://"
	tcpScheme  = "tcp://"
)

var ErrEmptyAddress = errors.New("Socket address is empty")

// Address is a parsed socket address.
type Address struct {
	Network string
	Address string
}

func (a Address) String() string {
	return a.Network + "://" + a.Address
}

// ParseAddress accepts `unix:///path/to.sock`, `tcp://host:port`, or a bare
// filesystem path which is treated as a unix socket.
func ParseAddress(s string) (Address, error) {
	switch {
	case s == "":
		return Address{}, ErrEmptyAddress

	case strings.HasPrefix(s, unixScheme):
		path := strings.TrimPrefix(s, unixScheme)
		if path == "" {
			return Address{}, fmt.Errorf("Failed to parse '%s': %w", s, ErrEmptyAddress)
		}
		return Address{Network: "unix", Address: path}, nil

	case strings.HasPrefix(s, tcpScheme):
		hostPort := strings.TrimPrefix(s, tcpScheme)
		if hostPort == "" {
			return Address{}, fmt.Errorf("Failed to parse '%s': %w", s, ErrEmptyAddress)
		}
		return Address{Network: "tcp", Address: hostPort}, nil

	case strings.Contains(s, "://"):
		return Address{}, fmt.Errorf("Failed to parse '%s': unsupported scheme", s)

	default:
		return Address{Network: "unix", Address: s}, nil
	}
}
