package bstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/rob-gra/osd-target/clog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(Options{RootPath: dir, FormatOnMissingDB: true}, clog.NewLogger("test"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesRootLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{RootPath: dir, FormatOnMissingDB: true}, clog.NewLogger("test"))
	require.NoError(t, err)
	defer s.Close()

	for _, sub := range []string{"dfiles", "stranded", "md"} {
		assert.DirExists(t, filepath.Join(dir, sub))
	}
	assert.FileExists(t, filepath.Join(dir, "osd.db"))
}

func TestOpenCreatesTopBuckets(t *testing.T) {
	s := openTestStore(t)
	err := s.View(func(tx *bolt.Tx) error {
		for _, name := range topBuckets {
			if tx.Bucket([]byte(name)) == nil {
				t.Fatalf("missing top-level bucket %s", name)
			}
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestOpenRejectsMissingDBWithoutFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(Options{RootPath: dir, FormatOnMissingDB: false}, clog.NewLogger("test"))
	assert.Error(t, err)
}

func TestOpenRequiresRootPath(t *testing.T) {
	_, err := Open(Options{}, clog.NewLogger("test"))
	assert.Error(t, err)
}

func TestUpdateAndViewRoundTrip(t *testing.T) {
	s := openTestStore(t)
	err := s.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketMeta)).Put([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	var got []byte
	err = s.View(func(tx *bolt.Tx) error {
		got = tx.Bucket([]byte(BucketMeta)).Get([]byte("k"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestPartitionBucketNamePreservesNumericOrder(t *testing.T) {
	a := PartitionBucketName(1)
	b := PartitionBucketName(2)
	c := PartitionBucketName(256)
	assert.Len(t, a, 8)
	assert.True(t, string(a) < string(b))
	assert.True(t, string(b) < string(c))
}
