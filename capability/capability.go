// Package capability parses and checks the security capability
// embedded in each CDB (section 4.7): object-type bitfield, permission
// mask, descriptor-type nibble, expiry, creation time-version binding
// and allowed data range. Grounded on the original source's cap.c/
// cap.h/cap_subr.c field set and on section 4.7's own field table,
// which lays the same fields out to byte 104 -- the same size as the
// original's osd_v2_capability. Section 4.8's CDB offset table only
// leaves room for 80 (offsets 80-159, with security parameters filling
// 160-199 of a fixed 200-byte CDB), so this port compacts the 104-byte
// layout to fit: allowed_attributes_access and policy_access_tag (8
// bytes) are dropped since nothing in this target consults them, the
// 20-byte audit field is kept at 12, and the 5-byte permission mask is
// kept at 2 bytes -- one byte for each permission bit this target's
// action table actually reads (section 4.7's selected-rows table never
// names a bit outside APPEND/OBJ_MGMT/REMOVE/CREATE/SET_ATTR/GET_ATTR/
// WRITE/READ and GBL_REM/QUERY/M_OBJECT/POL_SEC/GLOBAL/DEV_MGMT).
// cap_check_time_version and cap_passes_basic_tests do not compile as
// written in the original (an undeclared `number`, a shadowed `ret`,
// unreachable code after an early brace) and cap_check never actually
// compares the capability's allowed partition/object id against the
// object being accessed, so this port keeps their intent (expiry,
// creation time binding) but tightens the object-identity check the
// original silently dropped.
package capability

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rob-gra/osd-target/osdtype"
)

// ErrDenied is wrapped by every capability rejection reason so
// callers can distinguish authorization failures from I/O errors.
var ErrDenied = errors.New("capability: access denied")

// Size is the fixed length of the embedded capability.
const Size = 80

// Capability field layout within the 80-byte buffer.
const (
	offFormat         = 0  // format/integrity-algorithm/key-version/security-method
	offExpiration     = 4  // 6 bytes
	offObjectCreated  = 10 // 6 bytes
	offBootEpoch      = 16 // 2 bytes
	offObjectType     = 18 // 1 byte
	offPermByte0      = 20 // 1 byte
	offPermByte1      = 21 // 1 byte
	offDescriptorType = 22 // 1 byte, high nibble
	offAllowedPID     = 24 // 8 bytes
	offAllowedOID     = 32 // 8 bytes
	offAllowedStart   = 40 // 8 bytes
	offAllowedLength  = 48 // 8 bytes
	offDiscriminator  = 56 // 12 bytes
	offAudit          = 68 // 12 bytes
)

// Capability is a parsed OSD-2 security capability.
type Capability struct {
	Format             uint8
	IntegrityAlgorithm uint8
	KeyVersion         uint8
	SecurityMethod     uint8
	ExpirationMs       uint64
	ObjectCreatedMs    uint64
	BootEpoch          uint16
	ObjectType         osdtype.ObjectTypeBit
	PermissionsByte0   osdtype.PermBit
	PermissionsByte1   osdtype.PermBit
	DescriptorType     osdtype.DescBit
	AllowedPID         osdtype.PartitionID
	AllowedOID         osdtype.ObjectID
	AllowedRangeStart  uint64
	AllowedRangeLength uint64
	Discriminator      [12]byte
	Audit              [12]byte
}

func get48(b []byte) uint64 {
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Parse decodes an 80-byte capability.
func Parse(buf []byte) (*Capability, error) {
	if len(buf) != Size {
		return nil, errors.Errorf("capability: buffer must be %d bytes, got %d", Size, len(buf))
	}
	c := &Capability{
		Format:             buf[offFormat] & 0x0F,
		IntegrityAlgorithm: buf[offFormat+1] >> 4,
		KeyVersion:         buf[offFormat+1] & 0x0F,
		SecurityMethod:     buf[offFormat+2],
		ExpirationMs:       get48(buf[offExpiration : offExpiration+6]),
		ObjectCreatedMs:    get48(buf[offObjectCreated : offObjectCreated+6]),
		BootEpoch:          binary.BigEndian.Uint16(buf[offBootEpoch : offBootEpoch+2]),
		ObjectType:         osdtype.ObjectTypeBit(buf[offObjectType]),
		PermissionsByte0:   osdtype.PermBit(buf[offPermByte0]),
		PermissionsByte1:   osdtype.PermBit(buf[offPermByte1]),
		DescriptorType:     osdtype.DescBit(buf[offDescriptorType] >> 4),
		AllowedPID:         osdtype.PartitionID(binary.BigEndian.Uint64(buf[offAllowedPID : offAllowedPID+8])),
		AllowedOID:         osdtype.ObjectID(binary.BigEndian.Uint64(buf[offAllowedOID : offAllowedOID+8])),
		AllowedRangeStart:  binary.BigEndian.Uint64(buf[offAllowedStart : offAllowedStart+8]),
		AllowedRangeLength: binary.BigEndian.Uint64(buf[offAllowedLength : offAllowedLength+8]),
	}
	copy(c.Discriminator[:], buf[offDiscriminator:offDiscriminator+12])
	copy(c.Audit[:], buf[offAudit:offAudit+12])
	return c, nil
}

// permEntry is one row of the per-action permission table (section
// 4.7's selected-rows table, translated from cap.c's cap_perm_table /
// _perm macro calls). objType and desc match by intersection (the
// table's "∣" rows: any named bit suffices); perm0/perm1 match by
// containment (the table's "∧" rows: every named bit must be set) so
// that e.g. LIST's "READ ∧ M_OBJECT" requires both bits, not either.
type permEntry struct {
	objType osdtype.ObjectTypeBit
	perm0   osdtype.PermBit
	perm1   osdtype.PermBit
	desc    osdtype.DescBit
}

var anyObjType = osdtype.ObjTypeRoot | osdtype.ObjTypePartition | osdtype.ObjTypeCollection | osdtype.ObjTypeUser
var anyAttrDesc = osdtype.DescObject | osdtype.DescPartition | osdtype.DescCollection

var permTable = map[osdtype.Action]permEntry{
	osdtype.ActionCreate:                      {osdtype.ObjTypeUser, osdtype.PermCreate, 0, osdtype.DescObject},
	osdtype.ActionCreateAndWrite:              {osdtype.ObjTypeUser, osdtype.PermCreate | osdtype.PermWrite, 0, osdtype.DescObject},
	osdtype.ActionCreateCollection:            {osdtype.ObjTypeCollection, osdtype.PermCreate, 0, osdtype.DescCollection},
	osdtype.ActionCreatePartition:             {osdtype.ObjTypePartition, osdtype.PermCreate, 0, osdtype.DescPartition},
	osdtype.ActionCreateUserTrackingCollection: {osdtype.ObjTypeCollection, osdtype.PermCreate | osdtype.PermRead | osdtype.PermWrite, 0, osdtype.DescCollection},
	osdtype.ActionFlush:                       {osdtype.ObjTypeUser, osdtype.PermObjMgmt, 0, osdtype.DescObject},
	osdtype.ActionFlushCollection:             {osdtype.ObjTypeCollection, osdtype.PermObjMgmt, 0, osdtype.DescCollection},
	osdtype.ActionFlushOSD:                    {osdtype.ObjTypeRoot, osdtype.PermObjMgmt, 0, osdtype.DescPartition},
	osdtype.ActionFlushPartition:              {osdtype.ObjTypePartition, osdtype.PermObjMgmt, 0, osdtype.DescPartition},
	osdtype.ActionFormatOSD:                   {osdtype.ObjTypeRoot, osdtype.PermObjMgmt, osdtype.PermGlobal, osdtype.DescPartition},
	osdtype.ActionGetAttributes:               {anyObjType, osdtype.PermGetAttr, 0, anyAttrDesc},
	osdtype.ActionGetMemberAttributes:         {anyObjType, osdtype.PermGetAttr, 0, anyAttrDesc},
	osdtype.ActionList:                        {osdtype.ObjTypeRoot, osdtype.PermRead, osdtype.PermMObject, osdtype.DescPartition},
	osdtype.ActionListCollection:              {osdtype.ObjTypeCollection, osdtype.PermRead, osdtype.PermMObject, osdtype.DescCollection},
	osdtype.ActionPunch:                       {osdtype.ObjTypeUser, osdtype.PermWrite, 0, osdtype.DescObject},
	osdtype.ActionQuery:                       {osdtype.ObjTypeCollection, osdtype.PermWrite, osdtype.PermQuery, osdtype.DescCollection},
	osdtype.ActionRead:                        {osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject},
	osdtype.ActionRemove:                      {osdtype.ObjTypeUser, osdtype.PermRemove, 0, osdtype.DescObject},
	osdtype.ActionRemoveCollection:            {osdtype.ObjTypeCollection, osdtype.PermRemove, 0, osdtype.DescCollection},
	osdtype.ActionRemoveMemberObjects:         {osdtype.ObjTypeCollection, osdtype.PermRemove, 0, osdtype.DescCollection},
	osdtype.ActionRemovePartition:             {osdtype.ObjTypePartition, osdtype.PermRemove, osdtype.PermGblRem, osdtype.DescPartition},
	osdtype.ActionSetAttributes:               {anyObjType, osdtype.PermSetAttr, 0, anyAttrDesc},
	osdtype.ActionSetMemberAttributes:         {osdtype.ObjTypeCollection, osdtype.PermSetAttr, 0, osdtype.DescCollection},
	osdtype.ActionWrite:                       {osdtype.ObjTypeUser, osdtype.PermWrite, 0, osdtype.DescObject},
	osdtype.ActionAppend:                      {osdtype.ObjTypeUser, osdtype.PermAppend, 0, osdtype.DescObject},
}

// Check runs the full authorization sequence of section 4.7 for a
// single action against (pid, oid): expiry, boot-epoch, (unless action
// is a CREATE) the object-identity and creation-time binding, then the
// per-action permission-table lookup. nowMs and createdMs are both
// milliseconds since the Unix epoch, matching the capability's own
// timestamp encoding; deviceBootEpoch is the target's current boot
// epoch attribute.
func Check(cap *Capability, action osdtype.Action, pid osdtype.PartitionID, oid osdtype.ObjectID, nowMs, createdMs uint64, deviceBootEpoch uint16, isCreate bool) error {
	if nowMs > cap.ExpirationMs {
		return errors.Wrap(ErrDenied, "capability expired")
	}
	if cap.BootEpoch != 0 && cap.BootEpoch != deviceBootEpoch {
		return errors.Wrap(ErrDenied, "capability boot epoch mismatch")
	}

	if !isCreate {
		if cap.AllowedPID != pid {
			return errors.Wrap(ErrDenied, "capability scoped to a different partition")
		}
		if cap.AllowedOID != oid {
			return errors.Wrap(ErrDenied, "capability scoped to a different object")
		}
		if cap.ObjectCreatedMs != 0 && cap.ObjectCreatedMs != createdMs {
			return errors.Wrap(ErrDenied, "capability creation time does not match object")
		}
	}

	perms, ok := permTable[action]
	if !ok {
		return errors.Wrapf(ErrDenied, "no permission table entry for action %#x", uint16(action))
	}
	byte0OK := cap.PermissionsByte0&perms.perm0 == perms.perm0
	byte1OK := cap.PermissionsByte1&perms.perm1 == perms.perm1
	if perms.objType&cap.ObjectType == 0 || !byte0OK || !byte1OK ||
		perms.desc&cap.DescriptorType == 0 {
		return errors.Wrapf(ErrDenied, "action %#x not permitted by capability (type %#x perm %#x/%#x desc %#x)",
			uint16(action), uint8(cap.ObjectType), uint8(cap.PermissionsByte0), uint8(cap.PermissionsByte1), uint8(cap.DescriptorType))
	}
	return nil
}

// NewAuditDiscriminator mints a fresh 12-byte audit tag for a
// capability-rejection log line, so repeated denials for the same
// request can be correlated across log lines without ever echoing the
// capability's own (security-sensitive) discriminator field. Not part
// of wire verification -- MAC checking is out of scope.
func NewAuditDiscriminator() [12]byte {
	var tag [12]byte
	id := uuid.New()
	copy(tag[:], id[:12])
	return tag
}

// permitsDataRange is cap_permits_data_range: whether a capability
// scoped to [capOffset, capOffset+capLength) authorizes an access to
// [datOffset, datOffset+datLength).
func permitsDataRange(capOffset, capLength, datOffset, datLength uint64) bool {
	if capOffset > datOffset {
		return false
	}
	if capLength == 0 && capOffset == 0 {
		return true
	}
	if capLength == math.MaxUint64 {
		return true
	}
	return capLength >= datLength && (capLength-datLength) >= (datOffset-capOffset)
}

// CheckDataRange authorizes a read/write of [startAddr, startAddr+
// length) against the capability's allowed range. The check is a
// no-op for a partition/device-scope capability (oid 0) and whenever
// the capability carries no range restriction (AllowedRangeLength
// 0); otherwise the requested range must lie entirely inside
// [AllowedRangeStart, AllowedRangeStart+AllowedRangeLength).
func CheckDataRange(cap *Capability, oid osdtype.ObjectID, startAddr, length uint64) error {
	if oid != 0 && cap.AllowedRangeLength != 0 {
		if !permitsDataRange(cap.AllowedRangeStart, cap.AllowedRangeLength, startAddr, length) {
			return errors.Wrap(ErrDenied, "data range out of bounds for capability")
		}
	}
	return nil
}
