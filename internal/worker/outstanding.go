package worker

import "sync"

// outstandingKey is the fingerprint of one in-flight UDP subquery:
// (qname, qtype, qclass) in lookup form, with no address or client message
// ID component, so that concurrent tasks from different clients asking the
// identical question land on the same entry and coalesce into one outbound
// subrequest.
type outstandingKey struct {
	qname  string // lookup-form bytes (cache.LookupName), as a string
	qtype  uint16
	qclass uint16
}

// outstandingEntry is the leader task for a fingerprint, plus any followers
// parked waiting for its answer.
type outstandingEntry struct {
	leader    *Task
	followers []*Task
}

// outstandingTable coalesces concurrent tasks asking the same upstream the
// same question, generalizing the teacher's ForwardingResolver inflight map
// (github.com/jroosing/resolverd/internal/resolvers/forwarding_resolver.go)
// from "one inflight call per cache key, N waiters on a channel" to
// "one leader task per fingerprint, N follower tasks resumed through their
// own state machine" — followers need to re-enter Step, not just receive a
// []byte, so a channel broadcast doesn't fit here.
type outstandingTable struct {
	mu      sync.Mutex
	entries map[outstandingKey]*outstandingEntry
}

func newOutstandingTable() *outstandingTable {
	return &outstandingTable{entries: make(map[outstandingKey]*outstandingEntry)}
}

// join registers t as the leader for key if none exists yet, or as a
// follower of the existing leader. Returns true if t became the leader.
func (o *outstandingTable) join(key outstandingKey, t *Task) (leader bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[key]; ok {
		e.followers = append(e.followers, t)
		return false
	}
	o.entries[key] = &outstandingEntry{leader: t}
	return true
}

// finalize removes key's entry and returns the followers who were waiting
// on it, so the caller can resume each one with the leader's response.
func (o *outstandingTable) finalize(key outstandingKey) []*Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[key]
	if !ok {
		return nil
	}
	delete(o.entries, key)
	return e.followers
}

// len reports how many fingerprints are currently outstanding (for tests
// and stats).
func (o *outstandingTable) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
