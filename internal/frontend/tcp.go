package frontend

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/pool"
	"github.com/jroosing/resolverd/internal/server"
	"github.com/jroosing/resolverd/internal/worker"
)

// lenBufPool mirrors internal/server's lenBufPool: a pool of 2-byte
// buffers for the DNS-over-TCP length prefix.
var lenBufPool = pool.New(func() *[]byte {
	buf := make([]byte, 2)
	return &buf
})

// TCP frontend configuration.
const (
	tcpMaxMessageSize        = 65535
	tcpReadTimeout           = 10 * time.Second
	tcpConnectionIdleTimeout = 30 * time.Second
	tcpMaxConnectionsPerIP   = 10
	tcpMaxQueriesPerConn     = 100
)

// TCPFrontend handles DNS-over-TCP with SO_REUSEPORT listeners, per-IP
// connection limits, and pipelining; each query blocks only its own
// connection's handler goroutine while waiting on the Worker's onComplete
// callback, rather than calling a synchronous resolver chain.
// TCPFrontend, like UDPFrontend, binds one SO_REUSEPORT listener per Worker
// shard so each shard only ever handles the connections from its own
// listener.
type TCPFrontend struct {
	Logger  *slog.Logger
	Workers []*worker.Worker
	Stats   *server.DNSStats

	listeners []net.Listener
	wg        sync.WaitGroup

	mu        sync.Mutex
	connPerIP map[string]int
}

// Run starts the TCP frontend with one SO_REUSEPORT listener per CPU core.
func (f *TCPFrontend) Run(ctx context.Context, addr string) error {
	if len(f.Workers) == 0 {
		return errors.New("tcp frontend: no worker shards configured")
	}

	socketCount := runtime.NumCPU()
	f.listeners = make([]net.Listener, 0, socketCount)

	f.mu.Lock()
	if f.connPerIP == nil {
		f.connPerIP = map[string]int{}
	}
	f.mu.Unlock()

	for i := range socketCount {
		ln, err := listenTCPReusePort(ctx, addr)
		if err != nil {
			for _, l := range f.listeners {
				_ = l.Close()
			}
			return err
		}
		f.listeners = append(f.listeners, ln)

		listener := ln
		shard := f.Workers[i%len(f.Workers)]
		f.wg.Go(func() {
			f.acceptLoop(ctx, listener, shard)
		})
	}

	<-ctx.Done()
	return f.Stop(5 * time.Second)
}

func (f *TCPFrontend) acceptLoop(ctx context.Context, ln net.Listener, shard *worker.Worker) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return
		}

		remoteIP := remoteIPString(c.RemoteAddr())
		if !f.tryAcquireConn(remoteIP) {
			if f.Logger != nil {
				f.Logger.WarnContext(ctx, "tcp connection limit exceeded", "ip", remoteIP)
			}
			_ = c.Close()
			continue
		}

		conn := c
		ip := remoteIP
		f.wg.Go(func() {
			f.handleConnection(ctx, conn, ip, shard)
		})
	}
}

func (f *TCPFrontend) handleConnection(ctx context.Context, conn net.Conn, ip string, shard *worker.Worker) {
	defer f.releaseConn(ip)
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))

	for range tcpMaxQueriesPerConn {
		if ctx.Err() != nil {
			return
		}

		msg, ok := readTCPMessage(conn)
		if !ok {
			return
		}
		if len(msg) == 0 {
			continue
		}

		_ = conn.SetDeadline(time.Now().Add(tcpConnectionIdleTimeout))

		resp, ok := f.resolveOverTCP(ctx, conn, msg, shard)
		if !ok {
			return
		}
		if len(resp) == 0 {
			continue
		}
		if !writeTCPMessage(conn, resp) {
			return
		}
	}
}

// resolveOverTCP parses msg, dispatches it to the Worker, and blocks this
// connection's own goroutine (never the Worker's shard goroutine) until
// the Worker's onComplete callback fires or ctx is cancelled. The
// connection's deadlines apply only to reads and writes and do not end
// this wait.
func (f *TCPFrontend) resolveOverTCP(ctx context.Context, conn net.Conn, msg []byte, shard *worker.Worker) ([]byte, bool) {
	if f.Stats != nil {
		f.Stats.RecordQuery("tcp")
	}

	query, err := dns.ParseRequestBounded(msg)
	if err != nil {
		if f.Stats != nil {
			f.Stats.RecordError()
		}
		return server.BuildParseErrorResponse(msg), true
	}

	start := time.Now()
	result := make(chan []byte, 1)
	shard.NewQuery(worker.Source{Addr: conn.RemoteAddr(), Transport: "tcp"}, query, copyRequest(msg), func(resp []byte, state layer.State) {
		if f.Stats != nil {
			f.Stats.RecordLatency(time.Since(start).Nanoseconds())
			if state == layer.StateFail {
				f.Stats.RecordError()
			} else if rcodeOf(resp) == uint16(dns.RCodeNXDomain) {
				f.Stats.RecordNXDOMAIN()
			}
		}
		result <- resp
	})

	select {
	case resp := <-result:
		return resp, true
	case <-ctx.Done():
		return nil, false
	}
}

func readTCPMessage(conn net.Conn) ([]byte, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	lenBufPtr := lenBufPool.Get()
	lenBuf := *lenBufPtr
	_, err := io.ReadFull(conn, lenBuf)
	if err != nil {
		lenBufPool.Put(lenBufPtr)
		return nil, false
	}
	msgLen := int(binary.BigEndian.Uint16(lenBuf))
	lenBufPool.Put(lenBufPtr)

	if msgLen == 0 {
		return nil, true
	}
	if msgLen > tcpMaxMessageSize {
		return nil, false
	}

	_ = conn.SetReadDeadline(time.Now().Add(tcpReadTimeout))
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, false
	}
	return msg, true
}

func writeTCPMessage(conn net.Conn, response []byte) bool {
	respLen := len(response)
	if respLen > tcpMaxMessageSize {
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(tcpReadTimeout))

	lenBufPtr := lenBufPool.Get()
	lenBuf := *lenBufPtr
	binary.BigEndian.PutUint16(lenBuf, uint16(respLen))

	bufs := net.Buffers{lenBuf, response}
	_, err := bufs.WriteTo(conn)

	lenBufPool.Put(lenBufPtr)
	return err == nil
}

// Stop gracefully shuts down the TCP frontend.
func (f *TCPFrontend) Stop(timeout time.Duration) error {
	for _, ln := range f.listeners {
		_ = ln.Close()
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
		return errors.New("tcp frontend: timeout waiting for connections")
	}
}

func listenTCPReusePort(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}

func (f *TCPFrontend) tryAcquireConn(ip string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.connPerIP[ip]
	if cur >= tcpMaxConnectionsPerIP {
		return false
	}
	f.connPerIP[ip] = cur + 1
	return true
}

func (f *TCPFrontend) releaseConn(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.connPerIP[ip]
	if cur <= 1 {
		delete(f.connPerIP, ip)
		return
	}
	f.connPerIP[ip] = cur - 1
}
