package cache

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/jroosing/resolverd/internal/rerrors"
)

// Txn is a borrowed transaction over the cache's backing store. It carries
// read-only vs read-write intent and a back-reference to the owning cache
// so operations can update statistics.
//
// Invariant: at most one write Txn may be open on a Cache at a time; many
// read Txns may be open concurrently. This is enforced by bbolt itself
// (DB.Begin(true) blocks until any other writer commits or aborts).
type Txn struct {
	tx       *bbolt.Tx
	cache    *Cache
	writable bool
}

// TxnBegin starts a new transaction. Pass writable=true for a read-write
// transaction, false for read-only.
func (c *Cache) TxnBegin(writable bool) (*Txn, error) {
	tx, err := c.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %v", rerrors.ErrBackend, err)
	}
	if writable {
		c.Stats.txnWrite.Add(1)
	} else {
		c.Stats.txnRead.Add(1)
	}
	return &Txn{tx: tx, cache: c, writable: writable}, nil
}

// Commit commits the transaction. On failure the underlying transaction is
// already rolled back by bbolt; this just surfaces the error.
func (t *Txn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", rerrors.ErrBackend, err)
	}
	return nil
}

// Abort releases the transaction without applying its writes.
func (t *Txn) Abort() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("%w: abort transaction: %v", rerrors.ErrBackend, err)
	}
	return nil
}

func (t *Txn) bucket() (*bbolt.Bucket, error) {
	b := t.tx.Bucket(bucketName)
	if b == nil {
		return nil, fmt.Errorf("%w: cache bucket missing", rerrors.ErrBackend)
	}
	return b, nil
}
