package layer

import (
	"context"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/resolvers"
)

// ZonesLayer answers authoritatively from locally configured zone files,
// adapting resolvers.ZoneResolver the same way HintsLayer adapts
// CustomDNSResolver: no matching zone returns an error, which this layer
// treats as StateNoop.
type ZonesLayer struct {
	resolver *resolvers.ZoneResolver
}

// NewZonesLayer wraps a configured ZoneResolver as a pipeline stage.
func NewZonesLayer(r *resolvers.ZoneResolver) *ZonesLayer {
	return &ZonesLayer{resolver: r}
}

func (l *ZonesLayer) Name() string { return "zones" }

func (l *ZonesLayer) LayerBegin(req *Request) State {
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
