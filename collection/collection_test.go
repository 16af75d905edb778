package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rob-gra/osd-target/bstore"
	"github.com/rob-gra/osd-target/clog"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	bs, err := bstore.Open(bstore.Options{RootPath: t.TempDir(), FormatOnMissingDB: true}, clog.NewLogger("test"))
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return New(bs, clog.NewLogger("test"))
}

func TestInsertAndMembers(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 1))
	require.NoError(t, idx.Insert(1, 500, 101, 1))

	members, err := idx.Members(1, 500)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{100, 101}, members)
}

func TestGetCIDRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 3))

	cid, err := idx.GetCID(1, 100, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 500, cid)
}

func TestGetCIDNotFound(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.GetCID(1, 100, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesBothIndexes(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 3))

	require.NoError(t, idx.Delete(1, 500, 100))

	_, err := idx.GetCID(1, 100, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := idx.Members(1, 500)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestDeleteIsIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	assert.NoError(t, idx.Delete(1, 500, 100))
}

func TestCollectionsOf(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 1))
	require.NoError(t, idx.Insert(1, 600, 100, 2))

	mships, err := idx.CollectionsOf(1, 100)
	require.NoError(t, err)
	assert.Len(t, mships, 2)

	var cids []uint64
	for _, m := range mships {
		cids = append(cids, m.CID)
	}
	assert.ElementsMatch(t, []uint64{500, 600}, cids)
}

func TestDeleteAllForCID(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 1))
	require.NoError(t, idx.Insert(1, 500, 101, 1))

	require.NoError(t, idx.DeleteAllForCID(1, 500))

	members, err := idx.Members(1, 500)
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = idx.GetCID(1, 100, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAllForOID(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 1))
	require.NoError(t, idx.Insert(1, 600, 100, 2))

	require.NoError(t, idx.DeleteAllForOID(1, 100))

	mships, err := idx.CollectionsOf(1, 100)
	require.NoError(t, err)
	assert.Empty(t, mships)

	members, err := idx.Members(1, 500)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestIsEmpty(t *testing.T) {
	idx := newTestIndex(t)
	empty, err := idx.IsEmpty(1, 500)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, idx.Insert(1, 500, 100, 1))
	empty, err = idx.IsEmpty(1, 500)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestCopyMembersPreservesNumbers(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 7))
	require.NoError(t, idx.Insert(1, 500, 101, 9))

	require.NoError(t, idx.CopyMembers(1, 500, 600))

	cid, err := idx.GetCID(1, 100, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 600, cid)

	cid, err = idx.GetCID(1, 101, 9)
	require.NoError(t, err)
	assert.EqualValues(t, 600, cid)

	members, err := idx.Members(1, 600)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{100, 101}, members)
}

func TestPartitionsAreIsolated(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Insert(1, 500, 100, 1))

	_, err := idx.GetCID(2, 100, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	members, err := idx.Members(2, 500)
	require.NoError(t, err)
	assert.Empty(t, members)
}
