// Package registry is the object registry of section 4.4: presence,
// kind, next-id allocation and id enumeration for partitions, user
// objects and collections. It shares the single bbolt file opened by
// package bstore, grounded on the original source's pan_obj.c /
// object-collection.c table of (pid, oid) -> type rows.
package registry

import (
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rob-gra/osd-target/bstore"
	"github.com/rob-gra/osd-target/clog"
	"github.com/rob-gra/osd-target/osdtype"
)

// ErrNotFound is returned when a (pid, oid) pair or partition is not
// present.
var ErrNotFound = errors.New("registry: not present")

// ErrNotEmpty is returned by DeletePartition when the partition still
// has objects or collections.
var ErrNotEmpty = errors.New("registry: partition not empty")

// Registry is the object/partition presence and allocation table.
type Registry struct {
	bs  *bstore.Store
	log clog.Clog
}

// New wraps an opened bstore.Store as an object registry.
func New(bs *bstore.Store, log clog.Clog) *Registry {
	return &Registry{bs: bs, log: log}
}

func oidKey(oid osdtype.ObjectID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(oid))
	return k
}

func pidKey(pid osdtype.PartitionID) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(pid))
	return k
}

// objectRecord is [kind(1)][createdMs(8)].
func encodeObjectRecord(kind osdtype.Kind, createdMs uint64) []byte {
	b := make([]byte, 9)
	b[0] = byte(kind)
	binary.BigEndian.PutUint64(b[1:], createdMs)
	return b
}

func decodeObjectRecord(b []byte) (osdtype.Kind, uint64) {
	return osdtype.Kind(b[0]), binary.BigEndian.Uint64(b[1:9])
}

// partitionRecord is [createdMs(8)][nextOidCounter(8)].
func encodePartitionRecord(createdMs, nextOid uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], createdMs)
	binary.BigEndian.PutUint64(b[8:16], nextOid)
	return b
}

func decodePartitionRecord(b []byte) (createdMs, nextOid uint64) {
	return binary.BigEndian.Uint64(b[0:8]), binary.BigEndian.Uint64(b[8:16])
}

// CreatePartition inserts pid as a present partition, seeding its next
// oid counter at osdtype.MinUserID. Returns a plain (non-sentinel)
// error if pid already exists.
func (r *Registry) CreatePartition(pid osdtype.PartitionID, createdMs uint64) error {
	return r.bs.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bstore.BucketPartitions))
		if b.Get(pidKey(pid)) != nil {
			return errors.Errorf("registry: partition %#x already exists", uint64(pid))
		}
		return b.Put(pidKey(pid), encodePartitionRecord(createdMs, osdtype.MinUserID))
	})
}

// IsPresentPartition reports whether pid exists.
func (r *Registry) IsPresentPartition(pid osdtype.PartitionID) (bool, error) {
	var present bool
	err := r.bs.View(func(tx *bolt.Tx) error {
		present = tx.Bucket([]byte(bstore.BucketPartitions)).Get(pidKey(pid)) != nil
		return nil
	})
	return present, err
}

// PartitionCreatedMs returns the creation time of pid, for the
// capability time-version check (section 4.7).
func (r *Registry) PartitionCreatedMs(pid osdtype.PartitionID) (uint64, error) {
	var created uint64
	var found bool
	err := r.bs.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bstore.BucketPartitions)).Get(pidKey(pid))
		if v == nil {
			return nil
		}
		found = true
		created, _ = decodePartitionRecord(v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return created, nil
}

// IsEmptyPartition reports whether pid has no user objects or
// collections.
func (r *Registry) IsEmptyPartition(pid osdtype.PartitionID) (bool, error) {
	empty := true
	err := r.bs.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		if partBucket == nil {
			return nil
		}
		c := partBucket.Cursor()
		if k, _ := c.First(); k != nil {
			empty = false
		}
		return nil
	})
	return empty, err
}

// DeletePartition removes pid. Fails with ErrNotEmpty if it still has
// objects or collections (section 4.4/4.5 ownership rule).
func (r *Registry) DeletePartition(pid osdtype.PartitionID) error {
	empty, err := r.IsEmptyPartition(pid)
	if err != nil {
		return err
	}
	if !empty {
		return ErrNotEmpty
	}
	return r.bs.Update(func(tx *bolt.Tx) error {
		objRoot := tx.Bucket([]byte(bstore.BucketObjects))
		_ = objRoot.DeleteBucket(bstore.PartitionBucketName(uint64(pid)))
		attrRoot := tx.Bucket([]byte(bstore.BucketAttrs))
		_ = attrRoot.DeleteBucket(bstore.PartitionBucketName(uint64(pid)))
		collRoot := tx.Bucket([]byte(bstore.BucketCollections))
		_ = collRoot.DeleteBucket(bstore.PartitionBucketName(uint64(pid)))
		return tx.Bucket([]byte(bstore.BucketPartitions)).Delete(pidKey(pid))
	})
}

// NextOID allocates num consecutive ids in pid starting at the
// partition's current high-water mark and advances the mark by num.
// Consecutive calls within a partition, absent intervening deletions,
// return strictly increasing ids >= osdtype.MinUserID (section 8,
// creation monotonicity).
func (r *Registry) NextOID(pid osdtype.PartitionID, num uint64) (osdtype.ObjectID, error) {
	if num == 0 {
		num = 1
	}
	var start uint64
	err := r.bs.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bstore.BucketPartitions))
		v := b.Get(pidKey(pid))
		if v == nil {
			return ErrNotFound
		}
		created, next := decodePartitionRecord(v)
		start = next
		return b.Put(pidKey(pid), encodePartitionRecord(created, next+num))
	})
	return osdtype.ObjectID(start), err
}

// Insert registers (pid, oid) as kind, created at createdMs.
func (r *Registry) Insert(pid osdtype.PartitionID, oid osdtype.ObjectID, kind osdtype.Kind, createdMs uint64) error {
	return r.bs.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket, err := root.CreateBucketIfNotExists(bstore.PartitionBucketName(uint64(pid)))
		if err != nil {
			return err
		}
		return partBucket.Put(oidKey(oid), encodeObjectRecord(kind, createdMs))
	})
}

// Delete removes (pid, oid) from the registry. It does not touch
// collection membership; callers remove membership rows separately
// (section 4.9 REMOVE body orders this explicitly).
func (r *Registry) Delete(pid osdtype.PartitionID, oid osdtype.ObjectID) error {
	return r.bs.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		if partBucket == nil {
			return nil
		}
		return partBucket.Delete(oidKey(oid))
	})
}

// IsPresent reports whether (pid, oid) is a registered user object or
// collection.
func (r *Registry) IsPresent(pid osdtype.PartitionID, oid osdtype.ObjectID) (bool, error) {
	_, _, err := r.lookup(pid, oid)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Kind returns the kind of (pid, oid).
func (r *Registry) Kind(pid osdtype.PartitionID, oid osdtype.ObjectID) (osdtype.Kind, error) {
	k, _, err := r.lookup(pid, oid)
	return k, err
}

// CreatedMs returns the creation time of (pid, oid), used by the
// capability time-version check.
func (r *Registry) CreatedMs(pid osdtype.PartitionID, oid osdtype.ObjectID) (uint64, error) {
	_, created, err := r.lookup(pid, oid)
	return created, err
}

func (r *Registry) lookup(pid osdtype.PartitionID, oid osdtype.ObjectID) (osdtype.Kind, uint64, error) {
	var kind osdtype.Kind
	var created uint64
	found := false
	err := r.bs.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		if partBucket == nil {
			return nil
		}
		v := partBucket.Get(oidKey(oid))
		if v == nil {
			return nil
		}
		found = true
		kind, created = decodeObjectRecord(v)
		return nil
	})
	if err != nil {
		return osdtype.KindUnknown, 0, err
	}
	if !found {
		return osdtype.KindUnknown, 0, ErrNotFound
	}
	return kind, created, nil
}

// Page is a page of ids plus an opaque continuation cursor; an empty
// Cursor means enumeration is complete.
type Page struct {
	IDs    []uint64
	Cursor uint64
}

// listIDs returns up to limit ids >= cursor in partBucket, filtered to
// entries matching wantKind when wantKind != osdtype.KindUnknown.
func listIDs(partBucket *bolt.Bucket, cursor uint64, limit int, wantKind osdtype.Kind) Page {
	if partBucket == nil {
		return Page{}
	}
	c := partBucket.Cursor()
	var ids []uint64
	var next uint64
	k, v := c.Seek(oidKey(osdtype.ObjectID(cursor)))
	for ; k != nil; k, v = c.Next() {
		if wantKind != osdtype.KindUnknown {
			kind, _ := decodeObjectRecord(v)
			if kind != wantKind {
				continue
			}
		}
		if len(ids) == limit {
			next = binary.BigEndian.Uint64(k)
			break
		}
		ids = append(ids, binary.BigEndian.Uint64(k))
	}
	return Page{IDs: ids, Cursor: next}
}

// ListOIDs returns a page of user-object ids in pid starting at
// cursor, up to limit entries.
func (r *Registry) ListOIDs(pid osdtype.PartitionID, cursor uint64, limit int) (Page, error) {
	var page Page
	err := r.bs.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		page = listIDs(partBucket, cursor, limit, osdtype.KindUserObject)
		return nil
	})
	return page, err
}

// ListCIDs returns a page of collection ids in pid starting at cursor.
func (r *Registry) ListCIDs(pid osdtype.PartitionID, cursor uint64, limit int) (Page, error) {
	var page Page
	err := r.bs.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bstore.BucketObjects))
		partBucket := root.Bucket(bstore.PartitionBucketName(uint64(pid)))
		page = listIDs(partBucket, cursor, limit, osdtype.KindCollection)
		return nil
	})
	return page, err
}

// ListPIDs returns a page of partition ids starting at cursor.
func (r *Registry) ListPIDs(cursor uint64, limit int) (Page, error) {
	var page Page
	err := r.bs.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bstore.BucketPartitions))
		c := b.Cursor()
		var ids []uint64
		var next uint64
		k, _ := c.Seek(pidKey(osdtype.PartitionID(cursor)))
		for ; k != nil; k, _ = c.Next() {
			if len(ids) == limit {
				next = binary.BigEndian.Uint64(k)
				break
			}
			ids = append(ids, binary.BigEndian.Uint64(k))
		}
		page = Page{IDs: ids, Cursor: next}
		return nil
	})
	return page, err
}
