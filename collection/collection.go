// Package collection is the many-to-many collection index of section
// 4.5: which user objects belong to which collections, and at what
// attribute number each membership is recorded in the member's
// collection-attributes page. It is grounded on the original source's
// object-collection.c table (pid, cid, oid, number), re-expressed as
// two bbolt indexes over the same rows so both directions (members of
// a collection, collections of a member) are cheap cursor scans.
package collection

import (
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/rob-gra/osd-target/bstore"
	"github.com/rob-gra/osd-target/clog"
	"github.com/rob-gra/osd-target/osdtype"
)

// ErrNotFound is returned when a membership row is absent.
var ErrNotFound = errors.New("collection: membership not found")

const (
	bucketByCID = "byCid"
	bucketByOID = "byOid"
)

// Index is the collection membership index.
type Index struct {
	bs  *bstore.Store
	log clog.Clog
}

// New wraps an opened bstore.Store as a collection index.
func New(bs *bstore.Store, log clog.Clog) *Index {
	return &Index{bs: bs, log: log}
}

func u64Key(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func u32Val(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// partitionBuckets returns (byCid, byOid) for pid, creating them (and
// the partition sub-bucket) if create is true.
func partitionBuckets(tx *bolt.Tx, pid osdtype.PartitionID, create bool) (byCid, byOid *bolt.Bucket, err error) {
	root := tx.Bucket([]byte(bstore.BucketCollections))
	name := bstore.PartitionBucketName(uint64(pid))
	var part *bolt.Bucket
	if create {
		part, err = root.CreateBucketIfNotExists(name)
		if err != nil {
			return nil, nil, err
		}
		byCid, err = part.CreateBucketIfNotExists([]byte(bucketByCID))
		if err != nil {
			return nil, nil, err
		}
		byOid, err = part.CreateBucketIfNotExists([]byte(bucketByOID))
		return byCid, byOid, err
	}
	part = root.Bucket(name)
	if part == nil {
		return nil, nil, nil
	}
	return part.Bucket([]byte(bucketByCID)), part.Bucket([]byte(bucketByOID)), nil
}

// Insert records that oid is a member of cid, with the collection's
// membership recorded at attribute `number` in oid's collection
// attributes page.
func (idx *Index) Insert(pid osdtype.PartitionID, cid, oid osdtype.ObjectID, number osdtype.Number) error {
	return idx.bs.Update(func(tx *bolt.Tx) error {
		byCid, byOid, err := partitionBuckets(tx, pid, true)
		if err != nil {
			return err
		}
		cidSub, err := byCid.CreateBucketIfNotExists(u64Key(uint64(cid)))
		if err != nil {
			return err
		}
		if err := cidSub.Put(u64Key(uint64(oid)), u32Val(uint32(number))); err != nil {
			return err
		}
		oidSub, err := byOid.CreateBucketIfNotExists(u64Key(uint64(oid)))
		if err != nil {
			return err
		}
		return oidSub.Put(u32Val(uint32(number)), u64Key(uint64(cid)))
	})
}

// Delete removes the (cid, oid) membership row, regardless of which
// attribute number it was recorded under.
func (idx *Index) Delete(pid osdtype.PartitionID, cid, oid osdtype.ObjectID) error {
	return idx.bs.Update(func(tx *bolt.Tx) error {
		byCid, byOid, err := partitionBuckets(tx, pid, false)
		if err != nil || byCid == nil {
			return err
		}
		cidSub := byCid.Bucket(u64Key(uint64(cid)))
		if cidSub == nil {
			return nil
		}
		numberVal := cidSub.Get(u64Key(uint64(oid)))
		if numberVal == nil {
			return nil
		}
		if err := cidSub.Delete(u64Key(uint64(oid))); err != nil {
			return err
		}
		if oidSub := byOid.Bucket(u64Key(uint64(oid))); oidSub != nil {
			if err := oidSub.Delete(numberVal); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAllForCID removes every membership row for cid, used when a
// collection object is removed (section 4.9 REMOVE_COLLECTION).
func (idx *Index) DeleteAllForCID(pid osdtype.PartitionID, cid osdtype.ObjectID) error {
	oids, err := idx.Members(pid, cid)
	if err != nil {
		return err
	}
	return idx.bs.Update(func(tx *bolt.Tx) error {
		byCid, byOid, err := partitionBuckets(tx, pid, false)
		if err != nil || byCid == nil {
			return err
		}
		for _, oid := range oids {
			if oidSub := byOid.Bucket(u64Key(oid)); oidSub != nil {
				c := oidSub.Cursor()
				for k, v := c.First(); k != nil; k, v = c.Next() {
					if binary.BigEndian.Uint64(v) == uint64(cid) {
						_ = oidSub.Delete(k)
						break
					}
				}
			}
		}
		return byCid.DeleteBucket(u64Key(uint64(cid)))
	})
}

// DeleteAllForOID removes every membership row for oid, used when a
// user object is removed (section 4.9 REMOVE body: membership is
// cleared before the object itself is deregistered).
func (idx *Index) DeleteAllForOID(pid osdtype.PartitionID, oid osdtype.ObjectID) error {
	cids, err := idx.CollectionsOf(pid, oid)
	if err != nil {
		return err
	}
	return idx.bs.Update(func(tx *bolt.Tx) error {
		byCid, byOid, err := partitionBuckets(tx, pid, false)
		if err != nil || byCid == nil {
			return err
		}
		for _, m := range cids {
			if cidSub := byCid.Bucket(u64Key(m.CID)); cidSub != nil {
				_ = cidSub.Delete(u64Key(uint64(oid)))
			}
		}
		return byOid.DeleteBucket(u64Key(uint64(oid)))
	})
}

// IsEmpty reports whether cid has no members, true also when cid is
// absent from the index entirely.
func (idx *Index) IsEmpty(pid osdtype.PartitionID, cid osdtype.ObjectID) (bool, error) {
	empty := true
	err := idx.bs.View(func(tx *bolt.Tx) error {
		byCid, _, err := partitionBuckets(tx, pid, false)
		if err != nil || byCid == nil {
			return err
		}
		cidSub := byCid.Bucket(u64Key(uint64(cid)))
		if cidSub == nil {
			return nil
		}
		if k, _ := cidSub.Cursor().First(); k != nil {
			empty = false
		}
		return nil
	})
	return empty, err
}

// GetCID returns the collection recorded at attribute `number` in
// oid's collection attributes page.
func (idx *Index) GetCID(pid osdtype.PartitionID, oid osdtype.ObjectID, number osdtype.Number) (osdtype.ObjectID, error) {
	var cid uint64
	found := false
	err := idx.bs.View(func(tx *bolt.Tx) error {
		_, byOid, err := partitionBuckets(tx, pid, false)
		if err != nil || byOid == nil {
			return err
		}
		oidSub := byOid.Bucket(u64Key(uint64(oid)))
		if oidSub == nil {
			return nil
		}
		v := oidSub.Get(u32Val(uint32(number)))
		if v == nil {
			return nil
		}
		found = true
		cid = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return osdtype.ObjectID(cid), nil
}

// Members returns every user object currently in cid.
func (idx *Index) Members(pid osdtype.PartitionID, cid osdtype.ObjectID) ([]uint64, error) {
	var out []uint64
	err := idx.bs.View(func(tx *bolt.Tx) error {
		byCid, _, err := partitionBuckets(tx, pid, false)
		if err != nil || byCid == nil {
			return err
		}
		cidSub := byCid.Bucket(u64Key(uint64(cid)))
		if cidSub == nil {
			return nil
		}
		return cidSub.ForEach(func(k, _ []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

// Membership is a single collection an object belongs to, along with
// the attribute number that membership is recorded at.
type Membership struct {
	CID    uint64
	Number osdtype.Number
}

// CollectionsOf returns every collection oid currently belongs to,
// used to synthesize oid's collection attributes page (section 4.10).
func (idx *Index) CollectionsOf(pid osdtype.PartitionID, oid osdtype.ObjectID) ([]Membership, error) {
	var out []Membership
	err := idx.bs.View(func(tx *bolt.Tx) error {
		_, byOid, err := partitionBuckets(tx, pid, false)
		if err != nil || byOid == nil {
			return err
		}
		oidSub := byOid.Bucket(u64Key(uint64(oid)))
		if oidSub == nil {
			return nil
		}
		return oidSub.ForEach(func(k, v []byte) error {
			out = append(out, Membership{
				CID:    binary.BigEndian.Uint64(v),
				Number: osdtype.Number(binary.BigEndian.Uint32(k)),
			})
			return nil
		})
	})
	return out, err
}

// CopyMembers copies every membership row of srcCID to dstCID,
// keeping each member's recorded attribute number unchanged; used by
// the supplemented CREATE_USER_TRACKING_COLLECTION / collection-clone
// paths (section 4.5 supplemented features).
func (idx *Index) CopyMembers(pid osdtype.PartitionID, srcCID, dstCID osdtype.ObjectID) error {
	members, err := idx.Members(pid, srcCID)
	if err != nil {
		return err
	}
	for _, oid := range members {
		cids, err := idx.CollectionsOf(pid, osdtype.ObjectID(oid))
		if err != nil {
			return err
		}
		var number osdtype.Number
		for _, m := range cids {
			if m.CID == uint64(srcCID) {
				number = m.Number
				break
			}
		}
		if err := idx.Insert(pid, dstCID, osdtype.ObjectID(oid), number); err != nil {
			return err
		}
	}
	return nil
}
