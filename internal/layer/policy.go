package layer

import (
	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/filtering"
)

// PolicyLayer evaluates the query name against a filtering policy before any
// other stage runs. Unlike the teacher's FilteringResolver, which wraps a
// next Resolver and calls it directly on allow/log, this layer only ever
// returns StateDone (blocked) or StateNoop (allow/log) and lets the
// pipeline's own fallthrough carry the request to the next stage.
type PolicyLayer struct {
	policy *filtering.PolicyEngine
}

// NewPolicyLayer wraps a policy engine as a pipeline stage.
func NewPolicyLayer(p *filtering.PolicyEngine) *PolicyLayer {
	return &PolicyLayer{policy: p}
}

func (l *PolicyLayer) Name() string { return "policy" }

// LayerBegin blocks the query immediately if policy says so, building the
// NXDOMAIN answer in place; ActionLog and ActionAllow both fall through.
func (l *PolicyLayer) LayerBegin(req *Request) State {
	if l.policy == nil || len(req.Query.Questions) == 0 {
		return StateNoop
	}
	qname := req.Query.Questions[0].Name
	result := l.policy.Evaluate(qname)
	if result.Action != filtering.ActionBlock {
		return StateNoop
	}
	req.Answer = dns.Packet{
		Header:    dns.Header{ID: req.Query.Header.ID, Flags: blockedFlags(req.Query.Header.Flags)},
		Questions: req.Query.Questions,
	}
	return StateDone
}

// blockedFlags builds response flags for a blocked query: QR set, opcode
// copied, RD/RA mirrored when the client asked for recursion, RCODE set to
// NXDOMAIN. Mirrors resolvers.buildBlockedFlags, duplicated here rather than
// exported across package boundaries for a single three-line helper.
func blockedFlags(reqFlags uint16) uint16 {
	flags := uint16(1 << 15)
	flags |= reqFlags & 0x7800
	if reqFlags&(1<<8) != 0 {
		flags |= 1 << 8
		flags |= 1 << 7
	}
	flags |= uint16(dns.RCodeNXDomain)
	return flags
}
