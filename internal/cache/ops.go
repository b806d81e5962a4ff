package cache

import (
	"fmt"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// Peek looks up the entry for (tag, name, type). On a hit it rewrites the
// entry's Timestamp field to the computed drift (seconds since the entry
// was cached) so the caller can derive answer-side TTLs directly, and
// returns that same drift as the second value.
//
// Drift is saturating: if timestamp is earlier than the entry's cached
// timestamp (clock skew, or a record "cached in the future"), drift is
// reported as zero rather than underflowing.
func Peek(txn *Txn, tag Tag, name string, rtype uint16, timestamp uint32) (Entry, uint32, error) {
	key, err := BuildKey(tag, name, rtype)
	if err != nil {
		return Entry{}, 0, err
	}
	b, err := txn.bucket()
	if err != nil {
		return Entry{}, 0, err
	}
	raw := b.Get(key)
	if raw == nil {
		txn.cache.Stats.miss.Add(1)
		return Entry{}, 0, rerrors.ErrNotFound
	}
	// Copy out of the mmap'd page: raw is only valid for the life of txn.
	owned := make([]byte, len(raw))
	copy(owned, raw)
	entry, err := unmarshalEntry(owned)
	if err != nil {
		return Entry{}, 0, err
	}

	var drift uint32
	if timestamp > entry.Header.Timestamp {
		drift = timestamp - entry.Header.Timestamp
	}
	if drift <= entry.Header.TTL {
		entry.Header.Timestamp = drift
		txn.cache.Stats.hit.Add(1)
		return entry, drift, nil
	}
	txn.cache.Stats.miss.Add(1)
	return Entry{}, 0, rerrors.ErrStale
}

// PeekRR is Peek specialized to tag 'R'.
func PeekRR(txn *Txn, name string, rtype uint16, timestamp uint32) (Entry, uint32, error) {
	return Peek(txn, TagRecord, name, rtype, timestamp)
}

// PeekRRSig is Peek specialized to tag 'G', keyed under the type the
// signature covers (not TypeRRSIG itself).
func PeekRRSig(txn *Txn, name string, coveredType uint16, timestamp uint32) (Entry, uint32, error) {
	return Peek(txn, TagRRSIG, name, coveredType, timestamp)
}

// Insert writes header||data under the key for (tag, name, type). An
// empty data blob with zero Count is a no-op, not an error, so callers
// never need to special-case an empty RRset before calling Insert.
func Insert(txn *Txn, tag Tag, name string, rtype uint16, header EntryHeader, data []byte) error {
	if header.Count == 0 && len(data) == 0 {
		return nil
	}
	key, err := BuildKey(tag, name, rtype)
	if err != nil {
		return err
	}
	b, err := txn.bucket()
	if err != nil {
		return err
	}
	value := marshalEntry(header, data)
	if err := b.Put(key, value); err != nil {
		return fmt.Errorf("%w: put: %v", rerrors.ErrBackend, err)
	}
	txn.cache.Stats.insert.Add(1)
	return nil
}

// InsertRR encodes items and inserts them under tag 'R', with the entry's
// TTL set to the maximum TTL across items.
func InsertRR(txn *Txn, name string, rtype uint16, items []RRSetItem, rank Rank, flags uint8, timestamp uint32) error {
	if len(items) == 0 {
		return nil
	}
	data, maxTTL := EncodeRRSet(items)
	header := EntryHeader{Timestamp: timestamp, TTL: maxTTL, Count: uint16(len(items)), Rank: rank, Flags: flags}
	return Insert(txn, TagRecord, name, rtype, header, data)
}

// InsertRRSig is InsertRR for tag 'G', keyed under the type the signature
// set covers.
func InsertRRSig(txn *Txn, name string, coveredType uint16, items []RRSetItem, rank Rank, flags uint8, timestamp uint32) error {
	if len(items) == 0 {
		return nil
	}
	data, maxTTL := EncodeRRSet(items)
	header := EntryHeader{Timestamp: timestamp, TTL: maxTTL, Count: uint16(len(items)), Rank: rank, Flags: flags}
	return Insert(txn, TagRRSIG, name, coveredType, header, data)
}

// Remove deletes the entry for (tag, name, type), if any.
func Remove(txn *Txn, tag Tag, name string, rtype uint16) error {
	key, err := BuildKey(tag, name, rtype)
	if err != nil {
		return err
	}
	b, err := txn.bucket()
	if err != nil {
		return err
	}
	if err := b.Delete(key); err != nil {
		return fmt.Errorf("%w: delete: %v", rerrors.ErrBackend, err)
	}
	txn.cache.Stats.delete.Add(1)
	return nil
}

// Clear truncates the entire store, including the version marker; the next
// Open will re-stamp it.
func Clear(txn *Txn) error {
	b, err := txn.bucket()
	if err != nil {
		return err
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return fmt.Errorf("%w: clear: %v", rerrors.ErrBackend, err)
		}
	}
	return nil
}
