package worker

import (
	"net"
	"time"
)

// Transport opens the sockets a task sends subqueries over. Production code
// uses netTransport; tests substitute a fake so Step's state machine can be
// exercised without touching a real network.
type Transport interface {
	// DialUDP opens a connected UDP socket to addr:port, suitable for one
	// leader task's retransmissions.
	DialUDP(addr net.IP, port int) (net.Conn, error)
	// DialTCP opens a TCP connection to addr:port with the given connect
	// timeout.
	DialTCP(addr net.IP, port int, timeout time.Duration) (net.Conn, error)
}

// netTransport is the real, production Transport.
type netTransport struct{}

// NewNetTransport returns the production Transport backed by net.Dial.
func NewNetTransport() Transport { return netTransport{} }

func (netTransport) DialUDP(addr net.IP, port int) (net.Conn, error) {
	return net.Dial("udp", (&net.UDPAddr{IP: addr, Port: port}).String())
}

func (netTransport) DialTCP(addr net.IP, port int, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", (&net.TCPAddr{IP: addr, Port: port}).String(), timeout)
}
