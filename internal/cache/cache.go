// Package cache implements the persistent, transactional, TTL-aware record
// cache. It stores RRsets, RRSIGs, and whole-packet answers keyed by owner
// name and type, and backs every read with a consistent MVCC snapshot.
//
// The backend is go.etcd.io/bbolt: the spec's invariant that a cache
// permits at most one write transaction and many concurrent read
// transactions is bbolt's native DB.Begin(writable) contract, so the KV
// surface here is deliberately thin rather than abstracted behind a
// storage-agnostic interface (see DESIGN.md).
package cache

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// bucketName is the single bucket holding all tagged entries, including the
// version marker. Clear truncates this one bucket, which is equivalent to
// truncating "all buckets" since the cache keeps only one.
var bucketName = []byte("kr_cache")

// versionKey stores the ABI version tag. versionValue is its expected content.
var (
	versionKey   = []byte{'V', 2}
	versionValue = []byte{1}
)

// Cache holds a handle to the backing store plus operation statistics.
type Cache struct {
	db    *bbolt.DB
	Stats Stats
}

// Open opens (creating if necessary) a cache backed by a bbolt file at path.
//
// On open it runs the version check: begin a write transaction, look up the
// version key. If present, the store is left untouched. Otherwise, if the
// store is non-empty, it is cleared; then the version key is inserted and
// the transaction committed. If any step fails, the backing store is closed
// and Open returns the error; no cache handle is returned.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open cache file: %v", rerrors.ErrBackend, err)
	}
	c := &Cache{db: db}
	if err := c.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) checkVersion() error {
	c.Stats.txnWrite.Add(1)
	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return fmt.Errorf("%w: create bucket: %v", rerrors.ErrBackend, err)
		}
		if v := b.Get(versionKey); v != nil && bytes.Equal(v, versionValue) {
			return nil
		}
		// Version missing or mismatched: if the bucket holds anything,
		// drop it all before re-stamping the version.
		if b.Stats().KeyN > 0 {
			if err := tx.DeleteBucket(bucketName); err != nil {
				return fmt.Errorf("%w: clear stale bucket: %v", rerrors.ErrBackend, err)
			}
			b, err = tx.CreateBucketIfNotExists(bucketName)
			if err != nil {
				return fmt.Errorf("%w: recreate bucket: %v", rerrors.ErrBackend, err)
			}
		}
		return b.Put(versionKey, versionValue)
	})
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.db.Close()
}
