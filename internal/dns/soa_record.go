package dns

import (
	"encoding/binary"
	"fmt"
)

// SOARecord represents a DNS SOA (start of authority) record (RFC 1035
// Section 3.3.13). RDATA is kept as an already-encoded wire blob rather than
// split into MNAME/RNAME/serial/refresh/retry/expire/minimum fields, since
// nothing in this resolver rewrites SOA content — it is only ever copied
// from a zone file or a cached upstream answer.
type SOARecord struct {
	H     RRHeader
	RData []byte
}

// NewSOARecord creates a new SOA record from pre-encoded RDATA.
func NewSOARecord(h RRHeader, rdata []byte) *SOARecord {
	return &SOARecord{H: h, RData: rdata}
}

// Type returns TypeSOA.
func (r *SOARecord) Type() RecordType { return TypeSOA }

// Header returns the record header.
func (r *SOARecord) Header() RRHeader { return r.H }

// SetHeader sets the record header.
func (r *SOARecord) SetHeader(h RRHeader) { r.H = h }

// MarshalRData returns the pre-encoded RDATA unchanged.
func (r *SOARecord) MarshalRData() ([]byte, error) {
	return r.RData, nil
}

// ParseSOARData parses SOA record RDATA from wire format, keeping the raw
// bytes (names inside SOA RDATA may use compression pointers relative to the
// full message, so they are re-encoded verbatim rather than decompressed).
func ParseSOARData(msg []byte, off *int, start, rdlen int) (*SOARecord, error) {
	if start+rdlen > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading SOA rdata", ErrDNSError)
	}
	b := make([]byte, rdlen)
	copy(b, msg[start:start+rdlen])
	*off = start + rdlen
	return &SOARecord{RData: b}, nil
}

// Minimum extracts the MINIMUM field (last 4 bytes of RFC 1035-encoded SOA
// RDATA) used as the default negative-caching TTL per RFC 2308. Returns
// false if RDATA is too short to contain it.
func (r *SOARecord) Minimum() (uint32, bool) {
	if len(r.RData) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(r.RData[len(r.RData)-4:]), true
}
