// Package layer implements the fixed, ordered stage pipeline applied to
// each request: a small capability-set contract ({Begin, Consume, Produce,
// Finish, Reset}) that lets independent concerns (local overrides,
// authoritative zones, policy, iterative resolution, cache) compose without
// any one of them knowing about the others.
package layer

import (
	"net"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/rplan"
)

// State is the outcome of running a stage.
type State int

const (
	// StateNoop means the stage made no decision; the dispatcher falls
	// through to the next stage.
	StateNoop State = iota
	// StateConsume means the request is waiting to absorb a response.
	StateConsume
	// StateProduce means the stage wants to generate (or let a later
	// stage generate) the next outbound query.
	StateProduce
	// StateDone means the current query is fully resolved; pop it.
	StateDone
	// StateFail aborts resolution for this request.
	StateFail
)

// Production is populated by Produce to describe the next outbound
// subquery.
type Production struct {
	AddrList []net.IP
	SockType string // "udp" or "tcp"
	PktBuf   []byte
}

// Request carries everything the pipeline needs for one client query: the
// parsed query, the plan of sub-queries issued so far, and the answer being
// assembled.
type Request struct {
	ClientAddr net.Addr
	QueryBytes []byte
	Query      dns.Packet
	Plan       *rplan.Plan
	Answer     dns.Packet
	Options    uint32
}

// Stage is implemented by every pipeline stage. Stages only implement the
// sub-interfaces below for the hooks they care about; the pipeline uses a
// type assertion to find which hooks a given stage supports, the same
// capability-set pattern the teacher's Resolver interface uses for a single
// hook (Resolve) generalized to five.
type Stage interface {
	Name() string
}

// BeginStage runs once when a new client query starts.
type BeginStage interface {
	Stage
	LayerBegin(req *Request) State
}

// ConsumeStage absorbs a received packet (nil on timeout).
type ConsumeStage interface {
	Stage
	LayerConsume(req *Request, srcAddr net.Addr, pkt *dns.Packet) State
}

// ProduceStage generates the next outbound subquery.
type ProduceStage interface {
	Stage
	LayerProduce(req *Request, out *Production) State
}

// FinishStage runs when pending empties or state is DONE/FAIL, and composes
// into the final answer.
type FinishStage interface {
	Stage
	LayerFinish(req *Request, state State) State
}

// ResetStage clears any per-stage scratch state so a Pipeline/Stage can be
// reused across requests.
type ResetStage interface {
	Stage
	LayerReset(req *Request) State
}
