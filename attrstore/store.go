// Package attrstore is the three-level attribute key/value map of
// section 4.3: (pid, oid, page, number) -> bytes, plus the derived
// directory-page query and the well-known-attribute façade of section
// 4.10. It is grounded on the original source's attr.c/pan_attr.c
// prepared-statement table, re-expressed per section 9 as a KV
// interface over a single bbolt file shared with registry and
// collection (package bstore).
package attrstore

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rob-gra/osd-target/bstore"
	"github.com/rob-gra/osd-target/clog"
	"github.com/rob-gra/osd-target/osdtype"
)

// ErrNotFound is returned by GetOne when the attribute cell does not
// exist.
var ErrNotFound = errors.New("attrstore: attribute not found")

// Store is the attribute key/value map.
type Store struct {
	bs  *bstore.Store
	log clog.Clog
}

// New wraps an opened bstore.Store as an attribute store.
func New(bs *bstore.Store, log clog.Clog) *Store {
	return &Store{bs: bs, log: log}
}

func cellKey(page osdtype.Page, number osdtype.Number) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint32(k[0:4], uint32(page))
	binary.BigEndian.PutUint32(k[4:8], uint32(number))
	return k
}

func decodeCellKey(k []byte) (osdtype.Page, osdtype.Number) {
	return osdtype.Page(binary.BigEndian.Uint32(k[0:4])), osdtype.Number(binary.BigEndian.Uint32(k[4:8]))
}

func oidKey(oid osdtype.ObjectID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(oid))
	return k
}

// objectBucket returns the (possibly newly created) bucket holding all
// attribute cells of (pid, oid), or nil if create is false and it does
// not exist.
func objectBucket(tx *bolt.Tx, pid osdtype.PartitionID, oid osdtype.ObjectID, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(bstore.BucketAttrs))
	partBucketName := bstore.PartitionBucketName(uint64(pid))
	var partBucket *bolt.Bucket
	var err error
	if create {
		partBucket, err = root.CreateBucketIfNotExists(partBucketName)
		if err != nil {
			return nil, err
		}
		return partBucket.CreateBucketIfNotExists(oidKey(oid))
	}
	partBucket = root.Bucket(partBucketName)
	if partBucket == nil {
		return nil, nil
	}
	return partBucket.Bucket(oidKey(oid)), nil
}

// Set upserts (pid,oid,page,number) = value. value with length 0
// deletes the attribute (section 3 invariant).
func (s *Store) Set(pid osdtype.PartitionID, oid osdtype.ObjectID, page osdtype.Page, number osdtype.Number, value []byte) error {
	if len(value) == 0 {
		return s.Delete(pid, oid, page, number)
	}
	if number == osdtype.NumberUnmodifiable {
		return errors.New("attrstore: attribute number 0xFFFFFFFF is unmodifiable")
	}
	return s.bs.Update(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, true)
		if err != nil {
			return err
		}
		return b.Put(cellKey(page, number), value)
	})
}

// Delete removes (pid,oid,page,number). Idempotent.
func (s *Store) Delete(pid osdtype.PartitionID, oid osdtype.ObjectID, page osdtype.Page, number osdtype.Number) error {
	return s.bs.Update(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, false)
		if err != nil || b == nil {
			return err
		}
		return b.Delete(cellKey(page, number))
	})
}

// DeleteAll removes every attribute of (pid, oid).
func (s *Store) DeleteAll(pid osdtype.PartitionID, oid osdtype.ObjectID) error {
	return s.bs.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketAttrs))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		if partBucket == nil {
			return nil
		}
		return partBucket.DeleteBucket(oidKey(oid))
	})
}

// GetOne fetches a single attribute value, returning ErrNotFound if
// absent. The returned slice is a copy safe to use after the call.
func (s *Store) GetOne(pid osdtype.PartitionID, oid osdtype.ObjectID, page osdtype.Page, number osdtype.Number) ([]byte, error) {
	var out []byte
	err := s.bs.View(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, false)
		if err != nil || b == nil {
			return nil
		}
		v := b.Get(cellKey(page, number))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNotFound
	}
	return out, nil
}

// GetPage returns every attribute on (pid,oid,page), ordered by number
// ascending.
func (s *Store) GetPage(pid osdtype.PartitionID, oid osdtype.ObjectID, page osdtype.Page) ([]osdtype.Attr, error) {
	var out []osdtype.Attr
	err := s.bs.View(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, false)
		if err != nil || b == nil {
			return err
		}
		c := b.Cursor()
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, uint32(page))
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			p, n := decodeCellKey(k)
			out = append(out, osdtype.Attr{Page: p, Number: n, Value: append([]byte(nil), v...)})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, err
}

// GetForAllPages returns the attribute at `number` on every page that
// defines it.
func (s *Store) GetForAllPages(pid osdtype.PartitionID, oid osdtype.ObjectID, number osdtype.Number) ([]osdtype.Attr, error) {
	var out []osdtype.Attr
	err := s.bs.View(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			p, n := decodeCellKey(k)
			if n == number {
				out = append(out, osdtype.Attr{Page: p, Number: n, Value: append([]byte(nil), v...)})
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out, err
}

// GetAll returns every attribute of (pid, oid).
func (s *Store) GetAll(pid osdtype.PartitionID, oid osdtype.ObjectID) ([]osdtype.Attr, error) {
	var out []osdtype.Attr
	err := s.bs.View(func(tx *bolt.Tx) error {
		b, err := objectBucket(tx, pid, oid, false)
		if err != nil || b == nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			p, n := decodeCellKey(k)
			out = append(out, osdtype.Attr{Page: p, Number: n, Value: append([]byte(nil), v...)})
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		return out[i].Number < out[j].Number
	})
	return out, err
}
