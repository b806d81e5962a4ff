package dns

import (
	"encoding/binary"
	"fmt"
)

// RRHeader holds the fields common to every resource record: owner name,
// class, and TTL. Type is carried separately by each Record implementation
// since some types imply it (IPRecord picks A vs AAAA from address family).
type RRHeader struct {
	Name  string
	Class RecordClass
	TTL   uint32
}

// NewRRHeader builds an RRHeader for the given owner name, class, and TTL.
func NewRRHeader(name string, class RecordClass, ttl uint32) RRHeader {
	return RRHeader{Name: name, Class: class, TTL: ttl}
}

// Record is a single resource record. Each DNS record type (A, AAAA, CNAME,
// NS, MX, ...) implements this interface with its own concrete type rather
// than sharing one generic struct.
type Record interface {
	Type() RecordType
	Header() RRHeader
	SetHeader(RRHeader)
	MarshalRData() ([]byte, error)
}

// MarshalRecord serializes a Record to DNS wire format: name, type, class,
// ttl, rdlength, rdata (RFC 1035 Section 4.1.3). The OPT pseudo-record
// (RFC 6891) always uses the root name regardless of its header.
func MarshalRecord(rr Record) ([]byte, error) {
	h := rr.Header()
	t := rr.Type()

	nameWire := []byte{0}
	if t != TypeOPT {
		b, err := EncodeName(h.Name)
		if err != nil {
			return nil, err
		}
		nameWire = b
	}

	rdata, err := rr.MarshalRData()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], uint16(t))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(h.Class))
	binary.BigEndian.PutUint32(fixed[4:8], h.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	out = append(out, rdata...)
	return out, nil
}

// ParseRecord parses a single resource record from msg at *off, advancing
// *off past it, and dispatches to the concrete Record implementation for
// its type.
func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return nil, err
	}
	if *off+10 > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType := RecordType(binary.BigEndian.Uint16(msg[*off : *off+2]))
	rrClass := RecordClass(binary.BigEndian.Uint16(msg[*off+2 : *off+4]))
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return nil, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	h := RRHeader{Name: name, Class: rrClass, TTL: ttl}

	var rr Record
	switch rrType {
	case TypeA, TypeAAAA:
		rr, err = ParseIPRData(msg, off, int(rdlen))
	case TypeCNAME, TypeNS, TypePTR:
		rr, err = ParseNameRData(msg, off, start, int(rdlen), rrType)
	case TypeMX:
		rr, err = ParseMXRData(msg, off, start, int(rdlen))
	case TypeSOA:
		rr, err = ParseSOARData(msg, off, start, int(rdlen))
	case TypeTXT:
		rr, err = ParseTXTRData(msg, off, int(rdlen))
	default:
		rr, err = ParseOpaqueRData(msg, off, int(rdlen), rrType)
	}
	if err != nil {
		return nil, err
	}
	rr.SetHeader(h)
	return rr, nil
}

// marshalTXT serializes TXT record RDATA (one or more length-prefixed
// character-strings, RFC 1035 Section 3.3.14). Shared by TXTRecord.
func marshalTXT(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return marshalTXTString(t), nil
	case []string:
		totalLen := 0
		for _, s := range t {
			totalLen += 1 + len(s)
		}
		out := make([]byte, 0, totalLen)
		for _, s := range t {
			b := []byte(s)
			if len(b) > 255 {
				return nil, fmt.Errorf("%w: TXT character-string cannot exceed 255 bytes", ErrDNSError)
			}
			out = append(out, byte(len(b)))
			out = append(out, b...)
		}
		return out, nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("%w: TXT record data must be string, []string, or []byte", ErrDNSError)
	}
}

func marshalTXTString(s string) []byte {
	b := []byte(s)
	if len(b) <= 255 {
		out := make([]byte, 1+len(b))
		out[0] = byte(len(b))
		copy(out[1:], b)
		return out
	}
	numChunks := (len(b) + 254) / 255
	out := make([]byte, 0, len(b)+numChunks)
	for i := 0; i < len(b); i += 255 {
		chunk := b[i:]
		if len(chunk) > 255 {
			chunk = chunk[:255]
		}
		out = append(out, byte(len(chunk)))
		out = append(out, chunk...)
	}
	return out
}
