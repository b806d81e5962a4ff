package worker

import (
	"net"
	"time"

	"github.com/jroosing/resolverd/internal/cache"
	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
)

// sendUDP implements the UDP path of Step: compute the fingerprint, join
// (or lead) the outstanding table, and if leading, dial and send.
func (t *Task) sendUDP() {
	addr := t.addrList[t.addrTurn%len(t.addrList)]
	lf, _ := cache.LookupName(currentQName(t.req))
	t.fingerprint = outstandingKey{
		qname:  string(lf),
		qtype:  currentQType(t.req),
		qclass: currentQClass(t.req),
	}

	if !t.w.outstanding.join(t.fingerprint, t) {
		// Became a follower; the leader will wake us via subreqFinalize.
		return
	}
	t.isLeader = true

	conn, err := t.w.transport.DialUDP(addr, 53)
	if err != nil {
		t.w.reputations.Penalize(addr)
		t.subreqFinalize()
		t.step(nil, nil)
		return
	}
	t.conn = conn
	t.armRetry()
	t.armTimeout()
	t.writeAndRead(conn)
}

// sendTCP implements the TCP path: dial, and on failure immediately
// re-enter Step to try the next candidate. TCP subqueries are never
// coalesced.
func (t *Task) sendTCP() {
	addr := t.addrList[t.addrTurn%len(t.addrList)]
	conn, err := t.w.transport.DialTCP(addr, 53, ConnRTTMax)
	if err != nil {
		t.w.reputations.Penalize(addr)
		t.step(nil, nil)
		return
	}
	t.conn = conn
	t.armTimeout()
	t.writeAndRead(conn)
}

// writeAndRead sends pktbuf and spawns a reader goroutine that posts the
// response (or a timeout-equivalent nil packet on read error) back onto
// the worker's event channel via enqueueConsume. The reader goroutine only
// reads fields the shard loop no longer mutates once I/O is in flight
// (addrList/addrTurn/sendTime); the actual task-state transition happens
// back on the shard loop when step() runs.
func (t *Task) writeAndRead(conn net.Conn) {
	buf := make([]byte, len(t.pktbuf))
	copy(buf, t.pktbuf)
	framed := buf
	if t.sockType == "tcp" {
		framed = frameTCP(buf)
	}
	if _, err := conn.Write(framed); err != nil {
		t.w.enqueueConsume(t, nil, nil)
		return
	}
	t.sendTime = time.Now()

	task := t
	if t.sockType == "tcp" {
		go task.readTCP(conn)
		return
	}
	go task.readUDP(conn)
}

// readUDP reads a single datagram and parses it whole: UDP never splits a
// message across reads.
func (t *Task) readUDP(conn net.Conn) {
	resp := make([]byte, dns.MaxIncomingDNSMessageSize)
	n, err := conn.Read(resp)
	if err != nil {
		t.w.enqueueConsume(t, nil, nil)
		return
	}
	t.finishRead(conn, resp[:n])
}

// tcpReadChunkSize is the buffer size for each conn.Read call while
// reassembling a TCP response; it need not match the message size, only be
// large enough to make reasonable progress per read.
const tcpReadChunkSize = 4096

// readTCP loops conn.Read into a tcpAssembler until a whole length-prefixed
// message is reassembled, since a single Read may return the length prefix
// and payload split across arbitrarily many segments.
func (t *Task) readTCP(conn net.Conn) {
	assembler := newTCPAssembler(dns.MaxIncomingDNSMessageSize*16 + 2)
	for {
		chunk := make([]byte, tcpReadChunkSize)
		n, err := conn.Read(chunk)
		if err != nil {
			t.w.enqueueConsume(t, nil, nil)
			return
		}
		msgs, ferr := assembler.Feed(chunk[:n])
		if ferr != nil {
			t.w.enqueueConsume(t, nil, nil)
			return
		}
		if len(msgs) > 0 {
			t.finishRead(conn, msgs[0])
			return
		}
	}
}

// finishRead parses payload (no length prefix) as a whole DNS message,
// updates the nameserver's reputation, and resumes the task with the
// result.
func (t *Task) finishRead(conn net.Conn, payload []byte) {
	pkt, perr := dns.ParsePacket(payload)
	if perr != nil {
		t.w.enqueueConsume(t, nil, nil)
		return
	}
	t.w.reputations.Update(t.addrList[t.addrTurn%len(t.addrList)], time.Since(t.sendTime))
	t.w.enqueueConsume(t, conn.RemoteAddr(), &pkt)
}

func frameTCP(msg []byte) []byte {
	out := make([]byte, 2+len(msg))
	out[0] = byte(len(msg) >> 8)
	out[1] = byte(len(msg))
	copy(out[2:], msg)
	return out
}

// armRetry starts the repeating UDP retransmit timer.
func (t *Task) armRetry() {
	t.retryTimer = time.AfterFunc(ConnRetry, func() {
		t.w.enqueueRetry(t)
	})
}

// armTimeout starts the one-shot overall timeout.
func (t *Task) armTimeout() {
	t.timeoutTimer = time.AfterFunc(ConnRTTMax, func() {
		t.w.enqueueTimeout(t)
	})
}

// onRetry fires from the shard loop (never directly from the timer
// goroutine): round-robins to the next address and resends.
func (t *Task) onRetry() {
	if t.finished || t.conn == nil {
		return
	}
	t.addrTurn = (t.addrTurn + 1) % len(t.addrList)
	addr := t.addrList[t.addrTurn]
	conn, err := t.w.transport.DialUDP(addr, 53)
	if err != nil {
		return
	}
	t.conn.Close()
	t.conn = conn
	t.armRetry()
	t.writeAndRead(conn)
}

// onTimeout fires from the shard loop: penalizes every tried address and
// re-enters Step to let the iterator re-elect or give up.
func (t *Task) onTimeout() {
	if t.finished {
		return
	}
	for _, addr := range t.addrList {
		t.w.reputations.Penalize(addr)
	}
	t.w.Stats.timeouts.Add(1)
	t.step(nil, nil)
}

func currentQName(req *layer.Request) string {
	if q := req.Plan.Current(); q != nil {
		return q.SName
	}
	return ""
}

func currentQType(req *layer.Request) uint16 {
	if q := req.Plan.Current(); q != nil {
		return q.SType
	}
	return 0
}

func currentQClass(req *layer.Request) uint16 {
	if q := req.Plan.Current(); q != nil {
		return q.SClass
	}
	return 0
}
