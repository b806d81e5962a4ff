package cache

import (
	"encoding/binary"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// RRSetItem is one rdata record within a cached RRset, with its own TTL as
// stored on the wire (RFC 2181 asks senders to keep these uniform within an
// RRset, but the cache does not assume it).
type RRSetItem struct {
	TTL   uint32
	RData []byte
}

// EncodeRRSet packs items into the opaque Data blob stored in a cache entry,
// and returns the maximum TTL across items (the value stored in the entry
// header for the coarse staleness check in Peek).
func EncodeRRSet(items []RRSetItem) ([]byte, uint32) {
	var maxTTL uint32
	size := 0
	for _, it := range items {
		if it.TTL > maxTTL {
			maxTTL = it.TTL
		}
		size += 4 + 2 + len(it.RData)
	}
	buf := make([]byte, 0, size)
	for _, it := range items {
		var hdr [6]byte
		binary.BigEndian.PutUint32(hdr[0:4], it.TTL)
		binary.BigEndian.PutUint16(hdr[4:6], uint16(len(it.RData)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, it.RData...)
	}
	return buf, maxTTL
}

// DecodeRRSet unpacks count items previously packed by EncodeRRSet.
func DecodeRRSet(data []byte, count uint16) ([]RRSetItem, error) {
	items := make([]RRSetItem, 0, count)
	off := 0
	for i := uint16(0); i < count; i++ {
		if off+6 > len(data) {
			return nil, rerrors.ErrBackend
		}
		ttl := binary.BigEndian.Uint32(data[off : off+4])
		rdlen := int(binary.BigEndian.Uint16(data[off+4 : off+6]))
		off += 6
		if off+rdlen > len(data) {
			return nil, rerrors.ErrBackend
		}
		rdata := make([]byte, rdlen)
		copy(rdata, data[off:off+rdlen])
		off += rdlen
		items = append(items, RRSetItem{TTL: ttl, RData: rdata})
	}
	return items, nil
}

// Materialize decodes a cached RRset and keeps only rdata whose TTL is
// strictly greater than drift, decrementing each surviving TTL by drift.
// This is the standard way to convert a "cache-time" entry into an
// "answer-time" RRset. A record whose remaining life would be exactly zero
// is dropped (see DESIGN.md).
func Materialize(data []byte, count uint16, drift uint32) ([]RRSetItem, error) {
	all, err := DecodeRRSet(data, count)
	if err != nil {
		return nil, err
	}
	out := make([]RRSetItem, 0, len(all))
	for _, it := range all {
		if it.TTL > drift {
			out = append(out, RRSetItem{TTL: it.TTL - drift, RData: it.RData})
		}
	}
	return out, nil
}
