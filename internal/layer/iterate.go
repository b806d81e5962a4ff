package layer

import (
	"net"
	"strings"
	"time"

	"github.com/jroosing/resolverd/internal/dns"
	"github.com/jroosing/resolverd/internal/nsrep"
	"github.com/jroosing/resolverd/internal/rplan"
)

// IterateLayer is the recursive core: it elects a nameserver from the
// current zone cut, resolves that nameserver's address when missing,
// follows referrals deeper, and recognizes a final answer. It implements
// ConsumeStage and ProduceStage; hints/zones/policy/cache all precede it
// and answer via LayerBegin, short-circuiting this layer entirely on a
// hit.
//
// Grounded on lib/resolve.c's iterate()/ns_resolve_addr(): elect the best
// NS via RTT score, park the query with AWAIT_ADDR and push a dependent
// A lookup when the elected NS has no known address, and pop the query
// when QUERY_RESOLVED. internal/nsrep stands in for kr_nsrep_elect/score.
type IterateLayer struct {
	roots       []net.IP
	reputations *nsrep.Cache
}

// NewIterateLayer returns an iterator seeded with the root hint addresses.
func NewIterateLayer(roots []net.IP, reputations *nsrep.Cache) *IterateLayer {
	if reputations == nil {
		reputations = nsrep.New()
	}
	return &IterateLayer{roots: roots, reputations: reputations}
}

func (l *IterateLayer) Name() string { return "iterate" }

// LayerConsume absorbs the response (or timeout-nil) to the subquery this
// layer last produced: mismatched/off-question replies are retried,
// truncated UDP replies are resent over TCP, referrals narrow the zone
// cut, and anything else is either a resolved dependent address (resumes
// the parked parent) or the final answer for the whole plan.
func (l *IterateLayer) LayerConsume(req *Request, srcAddr net.Addr, pkt *dns.Packet) State {
	q := req.Plan.Current()
	if q == nil {
		return StateFail
	}
	if pkt == nil {
		return StateProduce
	}
	if !matchesQuestion(q, req.Query.Header.ID, pkt) {
		return StateProduce
	}
	if pkt.Header.Truncated() && q.Flags&rplan.FlagTCP == 0 {
		q.Flags |= rplan.FlagTCP
		return StateProduce
	}

	if cut, ok := extractReferral(q, pkt); ok {
		q.ZoneCut = cut
		q.NS = rplan.NSCandidate{}
		return StateProduce
	}

	req.Plan.Pop(q)
	if parent := req.Plan.Current(); parent != nil && parent.Flags&rplan.FlagAwaitAddr != 0 &&
		normalizeDNSName(parent.NS.Name) == normalizeDNSName(q.SName) {
		if parent.ZoneCut.Glue == nil {
			parent.ZoneCut.Glue = map[string][]net.IP{}
		}
		parent.ZoneCut.Glue[normalizeDNSName(q.SName)] = extractAddrs(pkt)
		parent.Flags &^= rplan.FlagAwaitAddr
		return StateProduce
	}

	req.Answer = *pkt
	return StateDone
}

// LayerProduce elects the next subquery, looping internally (rather than
// returning StateNoop) whenever electing a nameserver requires pushing a
// dependent address lookup first, so the caller always gets back either a
// ready Production or a terminal state.
func (l *IterateLayer) LayerProduce(req *Request, out *Production) State {
	if len(req.Query.Questions) == 0 {
		return StateFail
	}
	qclass := req.Query.Questions[0].Class

	for {
		q := req.Plan.Current()
		if q == nil {
			return StateFail
		}

		if len(q.ZoneCut.NSSet) == 0 {
			if len(l.roots) == 0 {
				return StateFail
			}
			q.ZoneCut.Name = "."
			buf, err := buildSubquery(q, req.Query.Header.ID)
			if err != nil {
				return StateFail
			}
			out.AddrList = append([]net.IP(nil), l.roots...)
			out.SockType = sockTypeFor(q)
			out.PktBuf = buf
			return StateProduce
		}

		name, addrs, valid := l.elect(q)
		if !valid {
			req.Plan.Pop(q)
			if req.Plan.Empty() {
				return StateFail
			}
			continue
		}

		if len(addrs) == 0 {
			if q.Flags&rplan.FlagAwaitAddr != 0 || rplan.Satisfies(q, name, qclass, uint16(dns.TypeA)) {
				// Dependency loop or already parked: dead end.
				req.Plan.Pop(q)
				if req.Plan.Empty() {
					return StateFail
				}
				continue
			}
			q.NS.Name = name
			q.Flags |= rplan.FlagAwaitAddr
			req.Plan.Push(q, name, qclass, uint16(dns.TypeA))
			continue
		}

		q.NS = rplan.NSCandidate{Name: name, Addrs: addrs}
		buf, err := buildSubquery(q, req.Query.Header.ID)
		if err != nil {
			return StateFail
		}
		out.AddrList = addrs
		out.SockType = sockTypeFor(q)
		out.PktBuf = buf
		return StateProduce
	}
}

// elect picks the best-scoring NS name from q.ZoneCut.NSSet. A name with no
// known glue address scores nsrep.NSValid, the same as an untried address;
// a name with glue scores its lowest-scoring address (nsrep.Cache.Elect).
// The lowest score wins, and on a tie the earlier name in NSSet is kept.
// A nameserver that keeps timing out is never
// excluded outright here — it is simply deprioritized behind faster peers
// every subsequent election — so the IterLimit check in worker.Task.step
// is what ultimately bounds a plan stuck retrying one bad NS.
func (l *IterateLayer) elect(q *rplan.Query) (name string, addrs []net.IP, valid bool) {
	bestScore := time.Duration(-1)
	for _, nsName := range q.ZoneCut.NSSet {
		glue := q.ZoneCut.Glue[normalizeDNSName(nsName)]
		var score time.Duration
		if len(glue) == 0 {
			score = nsrep.NSValid
		} else if addr, ok := l.reputations.Elect(glue); ok {
			score = l.reputations.Score(addr)
		}
		if bestScore < 0 || score < bestScore {
			bestScore, name, addrs = score, nsName, glue
		}
	}
	if name == "" {
		return "", nil, false
	}
	return name, addrs, true
}

func sockTypeFor(q *rplan.Query) string {
	if q.Flags&rplan.FlagTCP != 0 {
		return "tcp"
	}
	return "udp"
}

// buildSubquery marshals a non-recursive query for q's (sname, sclass,
// stype): subqueries to authoritative servers never set RD, since this
// layer does its own iteration rather than asking the upstream to recurse.
func buildSubquery(q *rplan.Query, id uint16) ([]byte, error) {
	pkt := dns.Packet{
		Header:    dns.Header{ID: id},
		Questions: []dns.Question{{Name: q.SName, Type: q.SType, Class: q.SClass}},
	}
	return pkt.Marshal()
}

// matchesQuestion guards against off-path answers and late/duplicate
// retransmits: the response must carry the transaction ID we sent and
// answer the question we actually asked.
func matchesQuestion(q *rplan.Query, id uint16, pkt *dns.Packet) bool {
	if !pkt.Header.QueryResponse() || pkt.Header.ID != id {
		return false
	}
	if len(pkt.Questions) != 1 {
		return false
	}
	got := pkt.Questions[0]
	return got.Type == q.SType && got.Class == q.SClass && normalizeDNSName(got.Name) == normalizeDNSName(q.SName)
}

// extractReferral reads pkt as a delegation: an empty answer section plus
// an NS set in authority that narrows past the query's current zone cut.
// Glue addresses are pulled from additional A/AAAA records keyed by NS
// name, mirroring kr_zonecut_add's name-to-address attachment.
func extractReferral(q *rplan.Query, pkt *dns.Packet) (rplan.ZoneCut, bool) {
	if len(pkt.Answers) > 0 {
		return rplan.ZoneCut{}, false
	}

	var cutName string
	nsSet := map[string]struct{}{}
	for _, rr := range pkt.Authorities {
		ns, ok := rr.(*dns.NameRecord)
		if !ok || ns.Type() != dns.TypeNS {
			continue
		}
		if cutName == "" {
			cutName = rr.Header().Name
		}
		nsSet[ns.Target] = struct{}{}
	}
	if len(nsSet) == 0 || normalizeDNSName(cutName) == normalizeDNSName(q.ZoneCut.Name) {
		return rplan.ZoneCut{}, false
	}

	glue := map[string][]net.IP{}
	for _, rr := range pkt.Additionals {
		ip, ok := rr.(*dns.IPRecord)
		if !ok {
			continue
		}
		key := normalizeDNSName(rr.Header().Name)
		glue[key] = append(glue[key], ip.Addr)
	}

	names := make([]string, 0, len(nsSet))
	for n := range nsSet {
		names = append(names, n)
	}
	return rplan.ZoneCut{Name: cutName, NSSet: names, Glue: glue}, true
}

func extractAddrs(pkt *dns.Packet) []net.IP {
	var addrs []net.IP
	for _, rr := range pkt.Answers {
		if ip, ok := rr.(*dns.IPRecord); ok {
			addrs = append(addrs, ip.Addr)
		}
	}
	return addrs
}

func normalizeDNSName(s string) string {
	return strings.ToLower(strings.TrimSuffix(s, "."))
}
