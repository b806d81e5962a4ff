package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/resolverd/internal/rerrors"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	require.NoError(t, err, "Open failed")
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenStampsVersion(t *testing.T) {
	c := openTestCache(t)

	txn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer txn.Abort()

	b, err := txn.bucket()
	require.NoError(t, err)
	assert.Equal(t, versionValue, b.Get(versionKey))
}

func TestInsertPeekRoundTrip(t *testing.T) {
	c := openTestCache(t)

	items := []RRSetItem{{TTL: 300, RData: []byte{1, 2, 3, 4}}}

	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, wtxn.Commit())

	rtxn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer rtxn.Abort()

	entry, drift, err := PeekRR(rtxn, "example.com", 1, 1000)
	require.NoError(t, err, "expected peek to hit")
	assert.Equal(t, uint32(0), drift, "round trip at the same timestamp should have zero drift")
	assert.Equal(t, uint32(0), entry.Header.Timestamp, "entry timestamp should be rewritten to drift")
	assert.Equal(t, uint16(1), entry.Header.Count)
	assert.Equal(t, RankAuth, entry.Header.Rank)

	decoded, err := DecodeRRSet(entry.Data, entry.Header.Count)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, []byte{1, 2, 3, 4}, decoded[0].RData)
}

func TestPeekMiss(t *testing.T) {
	c := openTestCache(t)

	txn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer txn.Abort()

	_, _, err = PeekRR(txn, "missing.example.com", 1, 1000)
	assert.ErrorIs(t, err, rerrors.ErrNotFound)
}

func TestPeekTTLMonotonicity(t *testing.T) {
	c := openTestCache(t)

	items := []RRSetItem{{TTL: 300, RData: []byte{1}}}
	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, wtxn.Commit())

	tests := []struct {
		name    string
		atTime  uint32
		wantOk  bool
		wantDft uint32
	}{
		{"still fresh", 1200, true, 200},
		{"exactly at ttl edge", 1300, true, 300},
		{"just past ttl", 1301, false, 0},
		{"clock skew into the past", 500, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtxn, err := c.TxnBegin(false)
			require.NoError(t, err)
			defer rtxn.Abort()

			entry, drift, err := PeekRR(rtxn, "example.com", 1, tt.atTime)
			if !tt.wantOk {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDft, drift)
			assert.Equal(t, tt.wantDft, entry.Header.Timestamp)
		})
	}
}

func TestInsertEmptyRRSetIsNoOp(t *testing.T) {
	c := openTestCache(t)

	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "example.com", 1, nil, RankAuth, 0, 1000))
	require.NoError(t, wtxn.Commit())

	rtxn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer rtxn.Abort()

	_, _, err = PeekRR(rtxn, "example.com", 1, 1000)
	assert.Error(t, err, "expected miss since insert of empty rrset is a no-op")
}

func TestRemove(t *testing.T) {
	c := openTestCache(t)

	items := []RRSetItem{{TTL: 300, RData: []byte{9}}}
	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, wtxn.Commit())

	wtxn2, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, Remove(wtxn2, TagRecord, "example.com", 1))
	require.NoError(t, wtxn2.Commit())

	rtxn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer rtxn.Abort()
	_, _, err = PeekRR(rtxn, "example.com", 1, 1000)
	assert.Error(t, err, "expected miss after remove")
}

func TestClear(t *testing.T) {
	c := openTestCache(t)

	items := []RRSetItem{{TTL: 300, RData: []byte{9}}}
	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "a.example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, InsertRR(wtxn, "b.example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, Clear(wtxn))
	require.NoError(t, wtxn.Commit())

	rtxn, err := c.TxnBegin(false)
	require.NoError(t, err)
	defer rtxn.Abort()
	_, _, err = PeekRR(rtxn, "a.example.com", 1, 1000)
	assert.Error(t, err)
	_, _, err = PeekRR(rtxn, "b.example.com", 1, 1000)
	assert.Error(t, err)
}

func TestKeyDeterminism(t *testing.T) {
	k1, err := BuildKey(TagRecord, "WWW.Example.COM", 1)
	require.NoError(t, err)
	k2, err := BuildKey(TagRecord, "www.example.com.", 1)
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "keys must be case- and trailing-dot-insensitive")
}

func TestKeyTypeFieldIsLittleEndian(t *testing.T) {
	k, err := BuildKey(TagRecord, "a", 0x0102)
	require.NoError(t, err)
	trailer := k[len(k)-2:]
	assert.Equal(t, []byte{0x02, 0x01}, trailer, "type field must be packed little-endian")
}

func TestMaterializeDropsExpiredAndEqual(t *testing.T) {
	items := []RRSetItem{
		{TTL: 100, RData: []byte{1}},
		{TTL: 50, RData: []byte{2}},
		{TTL: 50, RData: []byte{3}},
	}
	data, _ := EncodeRRSet(items)

	out, err := Materialize(data, uint16(len(items)), 50)
	require.NoError(t, err)
	require.Len(t, out, 1, "ttl == drift must be dropped (strict > threshold)")
	assert.Equal(t, uint32(50), out[0].TTL)
	assert.Equal(t, []byte{1}, out[0].RData)

	out, err = Materialize(data, uint16(len(items)), 49)
	require.NoError(t, err)
	require.Len(t, out, 3, "every record with ttl > 49 should survive drift=49")
	assert.Equal(t, uint32(51), out[0].TTL)
	assert.Equal(t, uint32(1), out[1].TTL)
	assert.Equal(t, uint32(1), out[2].TTL)

	out, err = Materialize(data, uint16(len(items)), 51)
	require.NoError(t, err)
	require.Len(t, out, 1, "only the ttl=100 record should survive drift=51")
}

func TestStatsTrackOperations(t *testing.T) {
	c := openTestCache(t)
	items := []RRSetItem{{TTL: 300, RData: []byte{1}}}

	wtxn, err := c.TxnBegin(true)
	require.NoError(t, err)
	require.NoError(t, InsertRR(wtxn, "example.com", 1, items, RankAuth, 0, 1000))
	require.NoError(t, wtxn.Commit())

	rtxn, err := c.TxnBegin(false)
	require.NoError(t, err)
	_, _, _ = PeekRR(rtxn, "example.com", 1, 1000)
	_, _, _ = PeekRR(rtxn, "missing.com", 1, 1000)
	rtxn.Abort()

	snap := c.Stats.Snapshot()
	assert.GreaterOrEqual(t, snap.Insert, uint64(1))
	assert.GreaterOrEqual(t, snap.Hit, uint64(1))
	assert.GreaterOrEqual(t, snap.Miss, uint64(1))
	assert.GreaterOrEqual(t, snap.TxnWrite, uint64(2))
	assert.GreaterOrEqual(t, snap.TxnRead, uint64(1))
}
