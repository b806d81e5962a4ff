package layer

import (
	"net"

	"github.com/jroosing/resolverd/internal/dns"
)

// Pipeline composes an ordered list of stages and dispatches the five
// capability hooks across whichever stages implement them.
//
// Dispatch order matters: hints/zones/policy stages are expected to sit
// ahead of the core iterator/cache stages so they can answer (or block)
// before recursion is attempted, returning StateDone to short-circuit the
// stages behind them, or StateNoop to fall through.
type Pipeline struct {
	stages []Stage
}

// New builds a pipeline over stages in the given order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Begin runs LayerBegin on every stage that implements BeginStage, in
// order. The first StateDone or StateFail ends the walk and is returned;
// otherwise the result is StateNoop.
func (p *Pipeline) Begin(req *Request) State {
	for _, s := range p.stages {
		bs, ok := s.(BeginStage)
		if !ok {
			continue
		}
		if st := bs.LayerBegin(req); st == StateDone || st == StateFail {
			return st
		}
	}
	return StateNoop
}

// Consume feeds pkt (possibly nil, on timeout) through ConsumeStages in
// order. The first stage to return StateDone or StateFail short-circuits
// the rest; StateNoop falls through to the next stage. If every stage
// passes through, the result is StateProduce, handing control to the
// core iterator to generate the next subquery.
func (p *Pipeline) Consume(req *Request, srcAddr net.Addr, pkt *dns.Packet) State {
	for _, s := range p.stages {
		cs, ok := s.(ConsumeStage)
		if !ok {
			continue
		}
		st := cs.LayerConsume(req, srcAddr, pkt)
		switch st {
		case StateDone, StateFail:
			return st
		case StateNoop:
			continue
		default:
			return st
		}
	}
	return StateProduce
}

// Produce calls LayerProduce on ProduceStages in order until one claims the
// production (returns anything other than StateNoop).
func (p *Pipeline) Produce(req *Request, out *Production) State {
	for _, s := range p.stages {
		ps, ok := s.(ProduceStage)
		if !ok {
			continue
		}
		if st := ps.LayerProduce(req, out); st != StateNoop {
			return st
		}
	}
	return StateFail
}

// Finish runs LayerFinish on every stage that implements FinishStage, in
// order, each able to adjust the final answer.
func (p *Pipeline) Finish(req *Request, state State) State {
	final := state
	for _, s := range p.stages {
		fs, ok := s.(FinishStage)
		if !ok {
			continue
		}
		final = fs.LayerFinish(req, final)
	}
	return final
}

// Reset runs LayerReset on every stage that implements ResetStage.
func (p *Pipeline) Reset(req *Request) {
	for _, s := range p.stages {
		rs, ok := s.(ResetStage)
		if !ok {
			continue
		}
		rs.LayerReset(req)
	}
}
