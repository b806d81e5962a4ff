package layer

import (
	"context"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/resolvers"
)

// HintsLayer answers from locally configured host/CNAME overrides before any
// recursion is attempted. It adapts resolvers.CustomDNSResolver, whose
// no-match convention (a non-nil error, empty Result) maps directly onto
// StateNoop here.
type HintsLayer struct {
	resolver *resolvers.CustomDNSResolver
}

// NewHintsLayer wraps a configured CustomDNSResolver as a pipeline stage.
func NewHintsLayer(r *resolvers.CustomDNSResolver) *HintsLayer {
	return &HintsLayer{resolver: r}
}

func (l *HintsLayer) Name() string { return "hints" }

// LayerBegin answers req.Query against configured hosts/CNAMEs. A match
// parses straight into req.Answer and returns StateDone, short-circuiting
// every later stage (zones, policy, the iterator). No match returns
// StateNoop so the pipeline falls through.
func (l *HintsLayer) LayerBegin(req *Request) State {
	if l.resolver == nil {
		return StateNoop
	}
	result, err := l.resolver.Resolve(context.Background(), req.Query, req.QueryBytes)
	if err != nil {
		return StateNoop
	}
	answer, err := dns.ParsePacket(result.ResponseBytes)
	if err != nil {
		return StateNoop
	}
	req.Answer = answer
	return StateDone
}
