package layer

import (
	"encoding/binary"
	"time"

	"github.com/jroosing/resolverd/internal/cache"
	"github.com/jroosing/resolverd/internal/dns"
)

// CacheReaderLayer answers the current query straight from the persistent
// cache when a fresh-enough RRset is already on hand, short-circuiting the
// iterator. It never writes; the iterator (or a future cache-writer stage)
// is responsible for Insert after a subquery resolves.
type CacheReaderLayer struct {
	c   *cache.Cache
	now func() uint32
}

// NewCacheReaderLayer wraps an open cache as a pipeline stage. now defaults
// to the current unix time if nil.
func NewCacheReaderLayer(c *cache.Cache, now func() uint32) *CacheReaderLayer {
	if now == nil {
		now = func() uint32 { return uint32(time.Now().Unix()) }
	}
	return &CacheReaderLayer{c: c, now: now}
}

func (l *CacheReaderLayer) Name() string { return "cache" }

// LayerBegin peeks the cache for the root query's RRset. A fresh hit
// assembles a minimal answer and returns StateDone; a miss or stale entry
// returns StateNoop so the iterator runs.
func (l *CacheReaderLayer) LayerBegin(req *Request) State {
	if l.c == nil || len(req.Query.Questions) == 0 {
		return StateNoop
	}
	q := req.Query.Questions[0]

	txn, err := l.c.TxnBegin(false)
	if err != nil {
		return StateNoop
	}
	defer txn.Abort()

	entry, drift, err := cache.PeekRR(txn, q.Name, q.Type, l.now())
	if err != nil {
		return StateNoop
	}
	items, err := cache.Materialize(entry.Data, entry.Header.Count, drift)
	if err != nil || len(items) == 0 {
		return StateNoop
	}

	answers := make([]dns.Record, 0, len(items))
	for _, it := range items {
		rec, err := decodeCachedRecord(q.Name, dns.RecordClass(q.Class), dns.RecordType(q.Type), it.TTL, it.RData)
		if err != nil {
			return StateNoop
		}
		answers = append(answers, rec)
	}

	req.Answer = dns.Packet{
		Header:    dns.Header{ID: req.Query.Header.ID, Flags: answerFlags(req.Query.Header.Flags)},
		Questions: []dns.Question{q},
		Answers:   answers,
	}
	return StateDone
}

// decodeCachedRecord rebuilds a Record from the cache's packed (ttl, rdata)
// pair by synthesizing the wire form (name, type, class, ttl, rdlen, rdata)
// and handing it to dns.ParseRecord, rather than duplicating ParseRecord's
// per-type switch here.
func decodeCachedRecord(name string, class dns.RecordClass, rtype dns.RecordType, ttl uint32, rdata []byte) (dns.Record, error) {
	nameWire, err := dns.EncodeName(name)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(nameWire)+10+len(rdata))
	buf = append(buf, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(rtype))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(class))
	binary.BigEndian.PutUint32(fixed[4:8], ttl)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	buf = append(buf, fixed...)
	buf = append(buf, rdata...)

	off := 0
	return dns.ParseRecord(buf, &off)
}

func answerFlags(reqFlags uint16) uint16 {
	flags := uint16(1 << 15)
	flags |= reqFlags & 0x7800
	if reqFlags&(1<<8) != 0 {
		flags |= 1 << 8
		flags |= 1 << 7
	}
	return flags
}
