// Package worker implements the event-loop task state machine that drives
// each client query through the layer pipeline: retransmission, timeout,
// coalescing, and TCP reassembly. One Worker is one shard: its task and
// outstanding-table state is owned exclusively by the goroutine running
// Run, matching the teacher's single-goroutine-per-connection model in
// internal/server/tcp_server.go generalized to a shared event channel
// instead of one goroutine reading straight off one socket.
package worker

import (
	"context"
	"net"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/layer"
	"github.com/jroosing/resolverd/internal/nsrep"
)

type eventKind int

const (
	eventBegin eventKind = iota
	eventConsume
	eventRetry
	eventTimeout
)

type event struct {
	kind    eventKind
	task    *Task
	srcAddr net.Addr
	pkt     *dns.Packet
}

// recycleEvery mirrors the original's periodic malloc_trim tick, reduced
// here to a pool-size reset plus a log line — Go's allocator exposes
// nothing equivalent to trim, so there is no memory to actually release,
// only pooled buffers to let shrink back to baseline.
const recycleEvery = 100000

// Worker owns one shard's pipeline, transport, outstanding table, and
// nameserver reputation cache.
type Worker struct {
	pipeline    *layer.Pipeline
	transport   Transport
	outstanding *outstandingTable
	reputations *nsrep.Cache
	Stats       Stats

	events chan event
	onRecycle func(completed uint64)
}

// New returns a worker shard. onRecycle, if non-nil, is called every
// recycleEvery completions (e.g. to log a recycling tick).
func New(pipeline *layer.Pipeline, transport Transport, reputations *nsrep.Cache, onRecycle func(completed uint64)) *Worker {
	if transport == nil {
		transport = NewNetTransport()
	}
	if reputations == nil {
		reputations = nsrep.New()
	}
	return &Worker{
		pipeline:    pipeline,
		transport:   transport,
		outstanding: newOutstandingTable(),
		reputations: reputations,
		events:      make(chan event, 256),
		onRecycle:   onRecycle,
	}
}

// Run processes events until ctx is cancelled. Call it once per shard
// goroutine.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.dispatch(ev)
		}
	}
}

func (w *Worker) dispatch(ev event) {
	switch ev.kind {
	case eventBegin:
		ev.task.begin()
	case eventConsume:
		ev.task.step(ev.srcAddr, ev.pkt)
	case eventRetry:
		ev.task.onRetry()
	case eventTimeout:
		ev.task.onTimeout()
	}
	if completed := w.Stats.completed.Load(); completed > 0 && completed%recycleEvery == 0 && w.onRecycle != nil {
		w.onRecycle(completed)
	}
}

// NewQuery creates a task for a freshly received, well-formed client query
// (QR=0) and enqueues it for Begin. onComplete receives the marshaled
// answer (or SERVFAIL) once the task finishes.
func (w *Worker) NewQuery(src Source, query dns.Packet, queryBytes []byte, onComplete func(resp []byte, state layer.State)) {
	w.Stats.created.Add(1)
	w.Stats.concurrent.Add(1)
	t := newTask(w, src, query, queryBytes, onComplete)
	w.enqueueBegin(t)
}

func (w *Worker) enqueueBegin(t *Task) {
	w.events <- event{kind: eventBegin, task: t}
}

func (w *Worker) enqueueConsume(t *Task, srcAddr net.Addr, pkt *dns.Packet) {
	w.events <- event{kind: eventConsume, task: t, srcAddr: srcAddr, pkt: pkt}
}

func (w *Worker) enqueueRetry(t *Task) {
	w.events <- event{kind: eventRetry, task: t}
}

func (w *Worker) enqueueTimeout(t *Task) {
	w.events <- event{kind: eventTimeout, task: t}
}
