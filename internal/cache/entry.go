package cache

import (
	"encoding/binary"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// entryHeaderSize is the fixed-size prefix of every stored cache value.
const entryHeaderSize = 4 + 4 + 2 + 1 + 1

// EntryHeader precedes the opaque rdata blob in every stored value.
type EntryHeader struct {
	Timestamp uint32 // absolute seconds when the entry was cached
	TTL       uint32 // maximum of the contained records' TTLs
	Count     uint16 // number of rdata records packed into Data
	Rank      Rank   // trust level
	Flags     uint8
}

// Entry is a cache value as returned by Peek: header plus the raw rdata blob.
type Entry struct {
	Header EntryHeader
	Data   []byte
}

// marshalEntry serializes header||data into one buffer for Put. Unlike the
// C original's reserve-then-write into an mmap page, there is no backend
// here that benefits from writing the header and data separately: bbolt's
// Put copies the value it is given, so staging once is strictly simpler
// and no slower.
func marshalEntry(h EntryHeader, data []byte) []byte {
	buf := make([]byte, entryHeaderSize+len(data))
	binary.BigEndian.PutUint32(buf[0:4], h.Timestamp)
	binary.BigEndian.PutUint32(buf[4:8], h.TTL)
	binary.BigEndian.PutUint16(buf[8:10], h.Count)
	buf[10] = byte(h.Rank)
	buf[11] = h.Flags
	copy(buf[entryHeaderSize:], data)
	return buf
}

// unmarshalEntry splits a stored value back into header and data. The
// returned Data aliases buf and must be copied by the caller if it is kept
// past the enclosing transaction.
func unmarshalEntry(buf []byte) (Entry, error) {
	if len(buf) < entryHeaderSize {
		return Entry{}, rerrors.ErrBackend
	}
	h := EntryHeader{
		Timestamp: binary.BigEndian.Uint32(buf[0:4]),
		TTL:       binary.BigEndian.Uint32(buf[4:8]),
		Count:     binary.BigEndian.Uint16(buf[8:10]),
		Rank:      Rank(buf[10]),
		Flags:     buf[11],
	}
	return Entry{Header: h, Data: buf[entryHeaderSize:]}, nil
}
