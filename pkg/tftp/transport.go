package tftp

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// transport is the engine's seam onto the network: send, a readiness wait
// with a timeout, receive, and a monotonic clock (spec.md §4.3). The real
// implementation wraps a *net.UDPConn; tests substitute a scriptedTransport
// (transport_test.go), the same role pkg/can/virtual.Bus plays for the
// teacher's SDO client tests.
type transport interface {
	Send(buf []byte, addr *net.UDPAddr) error
	WaitReadable(timeout time.Duration) (bool, error)
	Recv(buf []byte) (int, *net.UDPAddr, error)
	Now() time.Time
}

// udpTransport is the production transport adapter.
type udpTransport struct {
	conn *net.UDPConn
	log  *logrus.Entry
}

func newUDPTransport(conn *net.UDPConn, log *logrus.Entry) *udpTransport {
	return &udpTransport{conn: conn, log: log}
}

// Send writes one datagram. UDP sends are all-or-nothing, so any non-error
// return is a complete send (spec.md §4.3).
func (t *udpTransport) Send(buf []byte, addr *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(buf, addr)
	if err != nil {
		t.log.WithError(err).Warn("send failed")
	}
	return err
}

// Recv reads one datagram and the sender's address.
func (t *udpTransport) Recv(buf []byte) (int, *net.UDPAddr, error) {
	n, addr, err := t.conn.ReadFromUDP(buf)
	return n, addr, err
}

func (t *udpTransport) Now() time.Time {
	return time.Now()
}

// WaitReadable blocks up to timeout for the socket to have a datagram
// available, implemented with unix.Poll over the connection's raw fd —
// the concrete realization of the "readiness-based wait primitive" spec.md
// §4.3 calls for, grounded on pkg/can/socketcanv3's direct
// golang.org/x/sys/unix socket handling.
func (t *udpTransport) WaitReadable(timeout time.Duration) (bool, error) {
	rawConn, err := t.conn.SyscallConn()
	if err != nil {
		return false, err
	}

	var ready bool
	var pollErr error
	ctlErr := rawConn.Control(func(fd uintptr) {
		ready, pollErr = pollReadable(int(fd), timeout)
	})
	if ctlErr != nil {
		return false, ctlErr
	}
	return ready, pollErr
}

func pollReadable(fd int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		ms := int(remaining / time.Millisecond)
		if remaining > 0 && ms == 0 {
			ms = 1
		}
		if ms < 0 {
			ms = 0
		}
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			if time.Now().After(deadline) {
				return false, nil
			}
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
	}
}

// dialRemote resolves host:port to a concrete endpoint and opens an
// unconnected datagram socket, trying candidates in the order the resolver
// returns them so either address family can win (spec.md §4.5, §6).
func dialRemote(host, port string) (*net.UDPConn, *net.UDPAddr, error) {
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, nil, err
	}
	var lastErr error
	for _, a := range addrs {
		remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(a, port))
		if err != nil {
			lastErr = err
			continue
		}
		conn, err := net.ListenUDP(remote.Network(), nil)
		if err != nil {
			lastErr = err
			continue
		}
		return conn, remote, nil
	}
	if lastErr == nil {
		lastErr = ErrNoEndpoint
	}
	return nil, nil, lastErr
}
