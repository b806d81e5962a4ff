package layer

import "github.com/jroosing/resolverd/internal/dns"

// ValidateLayer is the DNSSEC validation stage. Full chain-of-trust
// validation is out of scope (see SPEC_FULL.md Non-goals); this stage only
// decides whether the upstream answer's AD bit survives: it is kept when
// the query has CheckingDisabled set and cleared otherwise. The DO bit is
// not consulted.
type ValidateLayer struct{}

// NewValidateLayer returns the AD-clearing validation stage.
func NewValidateLayer() *ValidateLayer { return &ValidateLayer{} }

func (l *ValidateLayer) Name() string { return "validate" }

// LayerFinish clears AD unless the client disabled checking and the answer
// already carries it (conservative default: never assert validation this
// layer did not perform).
func (l *ValidateLayer) LayerFinish(req *Request, state State) State {
	if req.Query.Header.CheckingDisabled() {
		return state
	}
	req.Answer.Header.Flags &^= dns.ADFlag
	return state
}
