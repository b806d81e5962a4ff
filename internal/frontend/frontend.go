// Package frontend adapts the teacher's SO_REUSEPORT UDP/TCP listener
// pattern (internal/server) to feed internal/worker's event-loop task
// machine instead of a synchronous resolvers.Resolver chain: a query is
// parsed here, handed to a Worker as a fire-and-forget NewQuery call, and
// the worker's onComplete callback writes the response back to the
// originating socket whenever resolution actually finishes.
package frontend

import (
	"net"
	"net/netip"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/pool"
)

// sharedBufferPool reduces allocations for incoming packets, sized for the
// largest DNS message this daemon accepts. Mirrors internal/server's
// bufferPool/lenBufPool pattern (internal/pool.Pool[T] from the same
// teacher).
var sharedBufferPool = pool.New(func() *[]byte {
	buf := make([]byte, dns.MaxIncomingDNSMessageSize)
	return &buf
})

// copyRequest takes a pool-owned receive buffer and returns an
// independently-owned copy safe to retain for the lifetime of a Task,
// which may outlive the socket read that produced it by many round trips.
func copyRequest(buf []byte) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out
}

// netipAddrFromUDPAddr extracts a netip.Addr from a net.UDPAddr without
// allocation, for rate limiter lookups.
func netipAddrFromUDPAddr(addr *net.UDPAddr) (netip.Addr, bool) {
	if addr == nil {
		return netip.Addr{}, false
	}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

func remoteIPString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err == nil {
		return host
	}
	return addr.String()
}
