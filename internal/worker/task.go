package worker

import (
	"net"
	"time"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/rplan"
)

// IterLimit bounds how many times Produce may run for one task before
// resolution is aborted with SERVFAIL (KR_ITER_LIMIT in the original).
const IterLimit = 50

// ConnRetry is the UDP retransmission interval (KR_CONN_RETRY).
const ConnRetry = 300 * time.Millisecond

// ConnRTTMax is the overall per-subquery timeout (KR_CONN_RTT_MAX).
const ConnRTTMax = 4 * time.Second

// Source identifies the client socket a task's final answer is written
// back to.
type Source struct {
	Addr      net.Addr
	Transport string // "udp" or "tcp"
}

// Task drives one client query through the layer pipeline. All Task fields
// are mutated only by the owning Worker's shard goroutine; nothing here is
// safe for concurrent access from outside it.
type Task struct {
	w        *Worker
	source   Source
	req      *layer.Request
	iterCount int
	finished bool
	refcount int

	addrList []net.IP
	addrTurn int
	sockType string
	pktbuf   []byte

	conn       net.Conn
	isLeader   bool
	fingerprint outstandingKey
	sendTime   time.Time

	retryTimer   *time.Timer
	timeoutTimer *time.Timer

	onComplete func(resp []byte, state layer.State)
}

// newTask allocates a task for a freshly parsed client query.
func newTask(w *Worker, src Source, query dns.Packet, queryBytes []byte, onComplete func([]byte, layer.State)) *Task {
	return &Task{
		w:      w,
		source: src,
		req: &layer.Request{
			ClientAddr: src.Addr,
			QueryBytes: queryBytes,
			Query:      query,
			Plan:       rplan.New(),
		},
		onComplete: onComplete,
	}
}

// begin runs once, right after creation: pushes the root query and runs
// the pipeline's Begin hooks. A layer answering immediately (hints/zones/
// policy/cache, all via LayerBegin) finalizes the task without ever
// reaching Step's I/O machinery.
func (t *Task) begin() {
	if len(t.req.Query.Questions) > 0 {
		q := t.req.Query.Questions[0]
		t.req.Plan.Push(nil, q.Name, q.Class, q.Type)
	}
	state := t.w.pipeline.Begin(t.req)
	switch state {
	case layer.StateDone, layer.StateFail:
		t.finalize(state)
	default:
		t.step(nil, nil)
	}
}

// step is the state machine described in SPEC_FULL.md §4.4: subreqFinalize,
// Consume once, Produce while PRODUCE (bounded by IterLimit), then either
// finalize, immediately retry, or issue the next subquery's I/O.
func (t *Task) step(srcAddr net.Addr, pkt *dns.Packet) {
	if t.finished {
		return
	}
	t.subreqFinalize()

	state := t.w.pipeline.Consume(t.req, srcAddr, pkt)
	for state == layer.StateProduce {
		if t.iterCount >= IterLimit {
			t.w.Stats.iterLimit.Add(1)
			t.finalize(layer.StateFail)
			return
		}
		t.iterCount++
		prod := &layer.Production{}
		state = t.w.pipeline.Produce(t.req, prod)
		if state == layer.StateProduce {
			t.addrList = prod.AddrList
			t.sockType = prod.SockType
			t.pktbuf = prod.PktBuf
			break
		}
	}

	switch state {
	case layer.StateDone, layer.StateFail:
		t.finalize(state)
		return
	}

	if len(t.addrList) == 0 {
		t.step(nil, nil)
		return
	}

	if t.sockType == "tcp" {
		t.sendTCP()
	} else {
		t.sendUDP()
	}
}

// subreqFinalize stops both timers, clears the outstanding-table entry if
// this task was a leader, and wakes any followers with whatever packet
// just arrived (nil on first entry). Mirrors the original's
// subreq_finalize, generalized to Go timers/maps.
func (t *Task) subreqFinalize() {
	if t.retryTimer != nil {
		t.retryTimer.Stop()
		t.retryTimer = nil
	}
	if t.timeoutTimer != nil {
		t.timeoutTimer.Stop()
		t.timeoutTimer = nil
	}
	if !t.isLeader {
		return
	}
	t.isLeader = false
	followers := t.w.outstanding.finalize(t.fingerprint)
	t.w.Stats.coalesced.Add(uint64(len(followers)))
	for _, f := range followers {
		f.alignToLeader(t)
		t.w.enqueueConsume(f, nil, nil)
	}
}

// alignToLeader copies the leader's resolved answer view into a follower
// so the follower's own Consume sees the same response the leader did.
// The original aligns DNS id and 0x20 case-randomization secret before
// replaying; this port, lacking 0x20 encoding, only needs to align the
// plan state, since both tasks share the same question by construction.
func (f *Task) alignToLeader(leader *Task) {
	f.req.Answer = leader.req.Answer
}

func (t *Task) finalize(state layer.State) {
	if t.finished {
		return
	}
	t.finished = true
	final := t.w.pipeline.Finish(t.req, state)

	var resp []byte
	if final == layer.StateFail || len(t.req.Answer.Questions) == 0 {
		resp, _ = buildServfail(t.req.Query).Marshal()
	} else if b, err := t.req.Answer.Marshal(); err == nil {
		resp = b
	} else {
		resp, _ = buildServfail(t.req.Query).Marshal()
	}

	t.w.Stats.completed.Add(1)
	t.w.Stats.concurrent.Add(-1)
	if t.conn != nil {
		t.conn.Close()
	}
	if t.onComplete != nil {
		t.onComplete(resp, final)
	}
}

func buildServfail(req dns.Packet) dns.Packet {
	flags := uint16(1 << 15)
	flags |= req.Header.Flags & 0x7800
	if req.Header.RecursionDesired() {
		flags |= dns.RDFlag | dns.RAFlag
	}
	flags |= uint16(dns.RCodeServFail)
	return dns.Packet{
		Header:    dns.Header{ID: req.Header.ID, Flags: flags},
		Questions: req.Questions,
	}
}
