// Package osdtype holds the OSD-2 data model: partition, object and
// page identifiers, the page-range taxonomy of section 3, and the
// small value types shared by every other package in this module. It
// is the one place where the wire's numeric namespace gets typed
// names.
package osdtype

import "fmt"

// PartitionID identifies a partition. The device/root scope is PartitionID(0).
type PartitionID uint64

// ObjectID identifies a user object or collection within a partition,
// or (together with PartitionID(0)) the root object.
type ObjectID uint64

// RootPartitionID and RootObjectID name the (0,0) root pair.
const (
	RootPartitionID PartitionID = 0
	RootObjectID    ObjectID    = 0
)

// MinUserID is the smallest legal partition id and the smallest legal
// user-object/collection id within a partition.
const MinUserID = 0x10000

// IsRootPair reports whether (pid, oid) names the device/root object.
func IsRootPair(pid PartitionID, oid ObjectID) bool {
	return pid == RootPartitionID && oid == RootObjectID
}

// IsPartitionObject reports whether (pid, oid) names a partition object
// itself, i.e. oid == 0 with a valid, non-root partition id.
func IsPartitionObject(pid PartitionID, oid ObjectID) bool {
	return pid >= MinUserID && oid == RootObjectID
}

// ValidPartitionID reports whether pid is in the legal partition range.
func ValidPartitionID(pid PartitionID) bool {
	return pid == RootPartitionID || uint64(pid) >= MinUserID
}

// ValidObjectID reports whether oid is in the legal user-object/
// collection range (the root object id 0 is valid only with pid 0,
// checked separately by callers).
func ValidObjectID(oid ObjectID) bool {
	return uint64(oid) >= MinUserID
}

// Kind is the type of entity an (pid, oid) pair names in the object
// registry.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUserObject
	KindCollection
	KindPartition
)

func (k Kind) String() string {
	switch k {
	case KindUserObject:
		return "user-object"
	case KindCollection:
		return "collection"
	case KindPartition:
		return "partition"
	default:
		return "unknown"
	}
}

// Page is the u32 attribute page number. Its high bits select the
// scope (user object, partition, collection, root, ...) per section 3.
type Page uint32

// Page range boundaries, section 3.
const (
	PageUserMax        Page = 0x2FFF_FFFF
	PagePartitionMin   Page = 0x3000_0000
	PagePartitionMax   Page = 0x5FFF_FFFF
	PageCollectionMin  Page = 0x6000_0000
	PageCollectionMax  Page = 0x8FFF_FFFF
	PageRootMin        Page = 0x9000_0000
	PageRootMax        Page = 0xBFFF_FFFF
	PageReservedMin    Page = 0xC000_0000
	PageReservedMax    Page = 0xEFFF_FFFF
	PageWildcardMin    Page = 0xF000_0000
	PageWildcardMax    Page = 0xFFFF_FFFD
	PageCurrentCommand Page = 0xFFFF_FFFE
	PageGetAll         Page = 0xFFFF_FFFF
)

// Number is the u32 attribute number within a page.
type Number uint32

// NumberUnmodifiable is the attribute number that can never be set
// (section 3 invariant).
const NumberUnmodifiable Number = 0xFFFF_FFFF

// InfoNumber is the reserved attribute number (0) carrying each page's
// 40-byte human-readable name / information attribute.
const InfoNumber Number = 0

// InfoAttrLen is the fixed length of an information attribute value.
const InfoAttrLen = 40

// Settable reports whether page is a page on which SET_ATTRIBUTES may
// write, per the section 3 invariant table.
func (p Page) Settable() bool {
	switch {
	case p <= 0xFFFF:
		return true
	case p >= 0x10000 && p <= 0x1FFF_FFFF:
		return true
	case p >= 0x2000_0000 && p < PageReservedMin:
		return true
	case p >= PageReservedMin && p <= PageReservedMax:
		return false
	case p >= PageWildcardMin:
		return true
	default:
		return true
	}
}

// Scope returns the name of the section 3 page range that p falls in
// ("user", "partition", "collection", "root", "reserved", "wildcard",
// "current-command" or "get-all").
func (p Page) Scope() string {
	switch {
	case p <= PageUserMax:
		return "user"
	case p >= PagePartitionMin && p <= PagePartitionMax:
		return "partition"
	case p >= PageCollectionMin && p <= PageCollectionMax:
		return "collection"
	case p >= PageRootMin && p <= PageRootMax:
		return "root"
	case p >= PageReservedMin && p <= PageReservedMax:
		return "reserved"
	case p >= PageWildcardMin && p <= PageWildcardMax:
		return "wildcard"
	case p == PageCurrentCommand:
		return "current-command"
	case p == PageGetAll:
		return "get-all"
	default:
		return "unknown"
	}
}

// Key identifies a single attribute cell (pid, oid, page, number).
type Key struct {
	PID    PartitionID
	OID    ObjectID
	Page   Page
	Number Number
}

func (k Key) String() string {
	return fmt.Sprintf("(%#x,%#x,%#x,%#x)", uint64(k.PID), uint64(k.OID), uint32(k.Page), uint32(k.Number))
}

// Attr is a single attribute cell value returned from enumeration
// queries; Value is nil to represent "not present" only in error
// paths, never in a successful stream.
type Attr struct {
	Page   Page
	Number Number
	Value  []byte
}
