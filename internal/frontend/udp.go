package frontend

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/server"
	"github.com/jroosing/resolverd/internal/worker"
)

// Socket buffer sizes for high throughput.
const (
	udpRecvBufferSize = 4 * 1024 * 1024
	udpSendBufferSize = 4 * 1024 * 1024
)

// UDPFrontend handles DNS-over-UDP by handing each parsed query to a
// Worker and letting the worker's own event loop decide when (and
// whether) a response comes back, rather than resolving it synchronously
// inline on the receive goroutine.
//
// Features, unchanged from the teacher:
//   - Multiple sockets with SO_REUSEPORT for kernel-level load balancing
//   - Fixed worker-goroutine pool per socket, buffer pooling
//   - Non-blocking receive path (drops packets under worker pressure)
//   - Rate limiting per source IP
//   - EDNS-aware response truncation
//   - Graceful shutdown with timeout
// UDPFrontend binds one SO_REUSEPORT socket per Worker shard, so each
// socket's receive and dispatch goroutines only ever touch that shard's
// own Worker — the one-cooperative-loop-per-shard model stays intact end
// to end, rather than funneling every socket into a single shared Worker.
type UDPFrontend struct {
	Logger           *slog.Logger
	Workers          []*worker.Worker
	Limiter          *server.RateLimiter
	Stats            *server.DNSStats
	WorkersPerSocket int

	conns []*net.UDPConn
	wg    sync.WaitGroup
}

type udpPacket struct {
	bufPtr *[]byte
	n      int
	peer   *net.UDPAddr
}

// DefaultWorkersPerSocket mirrors internal/server.DefaultWorkersPerSocket;
// these are parse-and-dispatch goroutines, not resolution goroutines (the
// Worker's own shard loop does the actual resolving), so the same high
// fan-out is safe.
const DefaultWorkersPerSocket = 1024

// Run starts the UDP frontend with one SO_REUSEPORT socket per CPU core.
// Socket i is bound to Workers[i%len(Workers)] for its whole lifetime, so a
// given Worker shard only ever sees traffic from its own sockets.
func (f *UDPFrontend) Run(ctx context.Context, addr string) error {
	if f.WorkersPerSocket <= 0 {
		f.WorkersPerSocket = DefaultWorkersPerSocket
	}
	if len(f.Workers) == 0 {
		return errors.New("udp frontend: no worker shards configured")
	}

	socketCount := runtime.NumCPU()
	f.conns = make([]*net.UDPConn, 0, socketCount)

	for i := range socketCount {
		conn, err := listenUDPReusePort(addr)
		if err != nil {
			for _, c := range f.conns {
				_ = c.Close()
			}
			return err
		}
		_ = conn.SetReadBuffer(udpRecvBufferSize)
		_ = conn.SetWriteBuffer(udpSendBufferSize)
		f.conns = append(f.conns, conn)

		packetCh := make(chan udpPacket, f.WorkersPerSocket*2)
		c := conn
		ch := packetCh
		shard := f.Workers[i%len(f.Workers)]

		f.wg.Go(func() {
			f.recvLoop(ctx, c, ch)
		})
		for range f.WorkersPerSocket {
			f.wg.Go(func() {
				f.workerLoop(ctx, c, ch, shard)
			})
		}
	}

	<-ctx.Done()
	return f.Stop(5 * time.Second)
}

func (f *UDPFrontend) recvLoop(ctx context.Context, conn *net.UDPConn, out chan<- udpPacket) {
	for {
		bufPtr := sharedBufferPool.Get()
		buf := *bufPtr

		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			sharedBufferPool.Put(bufPtr)
			return
		}

		if f.Limiter != nil {
			ip, ok := netipAddrFromUDPAddr(peer)
			if !ok || !f.Limiter.AllowAddr(ip) {
				sharedBufferPool.Put(bufPtr)
				continue
			}
		}

		select {
		case out <- udpPacket{bufPtr, n, peer}:
		default:
			sharedBufferPool.Put(bufPtr)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (f *UDPFrontend) workerLoop(ctx context.Context, conn *net.UDPConn, in <-chan udpPacket, shard *worker.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			f.dispatch(conn, pkt, shard)
		}
	}
}

func (f *UDPFrontend) dispatch(conn *net.UDPConn, p udpPacket, shard *worker.Worker) {
	raw := copyRequest((*p.bufPtr)[:p.n])
	sharedBufferPool.Put(p.bufPtr)

	if f.Stats != nil {
		f.Stats.RecordQuery("udp")
	}

	query, err := dns.ParseRequestBounded(raw)
	if err != nil {
		if resp := server.BuildParseErrorResponse(raw); resp != nil {
			_, _ = conn.WriteToUDP(resp, p.peer)
		}
		if f.Stats != nil {
			f.Stats.RecordError()
		}
		return
	}

	start := time.Now()
	peer := p.peer
	shard.NewQuery(worker.Source{Addr: peer, Transport: "udp"}, query, raw, func(resp []byte, state layer.State) {
		f.writeResponse(conn, peer, query, resp, state, start)
	})
}

func (f *UDPFrontend) writeResponse(conn *net.UDPConn, peer *net.UDPAddr, query dns.Packet, resp []byte, state layer.State, start time.Time) {
	if len(resp) == 0 {
		return
	}
	if f.Stats != nil {
		f.Stats.RecordLatency(time.Since(start).Nanoseconds())
		if state == layer.StateFail {
			f.Stats.RecordError()
		} else if rcodeOf(resp) == uint16(dns.RCodeNXDomain) {
			f.Stats.RecordNXDOMAIN()
		}
	}

	maxSize := min(dns.ClientMaxUDPSize(query), dns.EDNSMaxUDPPayloadSize)
	out := server.TruncateUDPResponse(resp, maxSize)
	_, _ = conn.WriteToUDP(out, peer)
}

// rcodeOf reads the low 4 bits of the flags word (bytes 2-3) of a wire-
// format DNS message.
func rcodeOf(msg []byte) uint16 {
	if len(msg) < 4 {
		return 0
	}
	return (uint16(msg[2])<<8 | uint16(msg[3])) & 0x000F
}

// Stop gracefully shuts down the UDP frontend.
func (f *UDPFrontend) Stop(timeout time.Duration) error {
	for _, c := range f.conns {
		_ = c.Close()
	}
	if timeout <= 0 {
		f.wg.Wait()
		return nil
	}
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("udp frontend: timeout waiting for goroutines to exit")
	}
}

func listenUDPReusePort(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}

	return pc.(*net.UDPConn), nil
}
