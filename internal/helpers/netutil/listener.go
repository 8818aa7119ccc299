package netutil

import (
	"errors"
	"fmt"
	"net"

	"github.com/eleven-am/gridboot/internal/domain"
)

// ListenTCP creates a TCP listener on the specified address and port.
// If port is 0, the OS will automatically assign an available port.
// Returns the listener and the actual port number used.
func ListenTCP(host string, port int) (net.Listener, int, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, 0, domain.NewNetworkError(
			fmt.Sprintf("failed to bind %s", addr),
			err,
			domain.WithComponent("helpers.netutil.ListenTCP"),
			domain.WithContextDetail("address", addr),
		)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port
	return listener, actualPort, nil
}

// ListenTCPInRange binds the first free port of [base, base+portRange].
func ListenTCPInRange(host string, base, portRange int) (net.Listener, int, error) {
	var listener net.Listener
	port, err := TryPorts(base, portRange, func(p int) error {
		l, _, err := ListenTCP(host, p)
		if err != nil {
			return err
		}
		listener = l
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return listener, port, nil
}

// TryPorts calls bind for each port of the inclusive window until one succeeds
// and returns that port. The error of every failed attempt is kept.
func TryPorts(base, portRange int, bind func(port int) error) (int, error) {
	if portRange < 0 {
		portRange = 0
	}

	var errs []error
	for port := base; port <= base+portRange; port++ {
		err := bind(port)
		if err == nil {
			return port, nil
		}
		errs = append(errs, err)
	}

	return 0, domain.NewNetworkError(
		fmt.Sprintf("failed to bind any port in %d-%d", base, base+portRange),
		errors.Join(errs...),
		domain.WithComponent("helpers.netutil.TryPorts"),
		domain.WithContextDetail("base", base),
		domain.WithContextDetail("range", portRange),
	)
}
