package control

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/core-tools/hsu-procmaster/pkg/errors"
)

const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
)

// Endpoint is where the control server listens: a TCP address or a Unix domain socket path
type Endpoint struct {
	Network string
	Address string

	// FileMode applies to Unix domain sockets; 0 means owner only
	FileMode os.FileMode
}

// ParseEndpoint accepts unix:///path, unix:path, tcp://host:port and plain host:port
func ParseEndpoint(s string) (Endpoint, error) {
	switch {
	case s == "":
		return Endpoint{}, errors.NewValidationError("empty control endpoint", nil)
	case strings.HasPrefix(s, "unix://"):
		return unixEndpoint(s[len("unix://"):])
	case strings.HasPrefix(s, "unix:"):
		return unixEndpoint(s[len("unix:"):])
	case strings.HasPrefix(s, "tcp://"):
		return tcpEndpoint(s[len("tcp://"):])
	case strings.Contains(s, "://"):
		return Endpoint{}, errors.NewValidationError("unsupported control endpoint scheme", nil).WithContext("endpoint", s)
	default:
		return tcpEndpoint(s)
	}
}

func unixEndpoint(path string) (Endpoint, error) {
	if path == "" {
		return Endpoint{}, errors.NewValidationError("empty socket path", nil)
	}
	if runtime.GOOS == "windows" {
		return Endpoint{}, errors.NewValidationError("Unix domain sockets are not supported on Windows, use TCP instead", nil)
	}
	return Endpoint{Network: NetworkUnix, Address: path}, nil
}

func tcpEndpoint(address string) (Endpoint, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return Endpoint{}, errors.NewValidationError("invalid TCP address", err).WithContext("address", address)
	}
	return Endpoint{Network: NetworkTCP, Address: address}, nil
}

// TCPEndpoint listens on the loopback interface; port 0 picks a free port
func TCPEndpoint(port int) Endpoint {
	return Endpoint{Network: NetworkTCP, Address: fmt.Sprintf("127.0.0.1:%d", port)}
}

func (e Endpoint) String() string {
	return e.Network + "://" + e.Address
}

// Target is the gRPC dial target of the endpoint
func (e Endpoint) Target() string {
	if e.Network == NetworkUnix {
		if filepath.IsAbs(e.Address) {
			return "unix://" + e.Address
		}
		return "unix:" + e.Address
	}
	return e.Address
}

// Listen opens the endpoint. A stale socket file left by a previous run is replaced.
func (e Endpoint) Listen() (net.Listener, error) {
	switch e.Network {
	case NetworkTCP:
		listener, err := net.Listen(NetworkTCP, e.Address)
		if err != nil {
			return nil, errors.NewIOError("failed to create TCP listener", err).WithContext("address", e.Address)
		}
		return listener, nil

	case NetworkUnix:
		if err := os.Remove(e.Address); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewIOError("failed to remove existing socket file", err).WithContext("path", e.Address)
		}
		if dir := filepath.Dir(e.Address); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.NewIOError("failed to create socket directory", err).WithContext("path", dir)
			}
		}

		listener, err := net.Listen(NetworkUnix, e.Address)
		if err != nil {
			return nil, errors.NewIOError("failed to create Unix domain socket listener", err).WithContext("path", e.Address)
		}

		fileMode := e.FileMode
		if fileMode == 0 {
			fileMode = 0600
		}
		if err := os.Chmod(e.Address, fileMode); err != nil {
			listener.Close()
			return nil, errors.NewIOError("failed to set socket file permissions", err).WithContext("path", e.Address)
		}
		return listener, nil

	default:
		return nil, errors.NewValidationError("invalid endpoint network", nil).WithContext("network", e.Network)
	}
}
