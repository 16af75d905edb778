package capability

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rob-gra/osd-target/osdtype"
)

// buildCapability hand-packs an 80-byte capability buffer at the
// offsets capability.go documents, the way a real CDB would carry one
// embedded at bytes 80-159.
func buildCapability(t *testing.T, objType osdtype.ObjectTypeBit, perm0, perm1 osdtype.PermBit, desc osdtype.DescBit, pid osdtype.PartitionID, oid osdtype.ObjectID, expirationMs, objectCreatedMs uint64, bootEpoch uint16) []byte {
	t.Helper()
	buf := make([]byte, Size)
	putUint48(buf[offExpiration:offExpiration+6], expirationMs)
	putUint48(buf[offObjectCreated:offObjectCreated+6], objectCreatedMs)
	binary.BigEndian.PutUint16(buf[offBootEpoch:offBootEpoch+2], bootEpoch)
	buf[offObjectType] = byte(objType)
	buf[offPermByte0] = byte(perm0)
	buf[offPermByte1] = byte(perm1)
	buf[offDescriptorType] = byte(desc) << 4
	binary.BigEndian.PutUint64(buf[offAllowedPID:offAllowedPID+8], uint64(pid))
	binary.BigEndian.PutUint64(buf[offAllowedOID:offAllowedOID+8], uint64(oid))
	return buf
}

func putUint48(b []byte, v uint64) {
	for i := 5; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func TestParseRoundTrip(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 7, 42, 1000, 500, 3)
	cap, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, osdtype.ObjTypeUser, cap.ObjectType)
	assert.Equal(t, osdtype.PermRead, cap.PermissionsByte0)
	assert.Equal(t, osdtype.DescObject, cap.DescriptorType)
	assert.Equal(t, osdtype.PartitionID(7), cap.AllowedPID)
	assert.Equal(t, osdtype.ObjectID(42), cap.AllowedOID)
	assert.EqualValues(t, 1000, cap.ExpirationMs)
	assert.EqualValues(t, 500, cap.ObjectCreatedMs)
	assert.EqualValues(t, 3, cap.BootEpoch)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse(make([]byte, Size-1))
	assert.Error(t, err)
}

func TestCheckRejectsExpired(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 1, 2000, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckRejectsWrongPartition(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 2, 1, 500, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

// TestCheckRejectsWrongObject exercises the object-identity binding: a
// capability scoped to one object must not authorize access to a
// different object in the same partition.
func TestCheckRejectsWrongObject(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 2, 500, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckSkipsObjectBindingOnCreate(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermCreate, 0, osdtype.DescObject, 1, 0, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	// oid is not yet known at CREATE time, so a mismatch must not deny.
	err = Check(cap, osdtype.ActionCreate, 1, 999, 500, 0, 0, true)
	assert.NoError(t, err)
}

func TestCheckRejectsCreationTimeMismatch(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 777, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 1, 500, 778, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckRejectsBootEpochMismatch(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 5)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 1, 500, 0, 6, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckRejectsMissingPermissionBit(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, 0, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 1, 500, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckAllowsMatchingCapability(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionRead, 1, 1, 500, 0, 0, false)
	assert.NoError(t, err)
}

// TestCheckPermissionByte1Containment exercises LIST's "READ ∧
// M_OBJECT" row: both bits must be set, neither alone suffices.
func TestCheckPermissionByte1Containment(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeRoot, osdtype.PermRead, 0, osdtype.DescPartition, 0, 0, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionList, 0, 0, 500, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)

	buf = buildCapability(t, osdtype.ObjTypeRoot, osdtype.PermRead, osdtype.PermMObject, osdtype.DescPartition, 0, 0, 1000, 0, 0)
	cap, err = Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.ActionList, 0, 0, 500, 0, 0, false)
	assert.NoError(t, err)
}

func TestCheckUnknownActionDenied(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	err = Check(cap, osdtype.Action(0xDEAD), 1, 1, 500, 0, 0, false)
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCheckDataRangeAppliesOnlyToRealObjects(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)
	binary.BigEndian.PutUint64(buf[offAllowedStart:offAllowedStart+8], 100)
	binary.BigEndian.PutUint64(buf[offAllowedLength:offAllowedLength+8], 50)
	cap, err = Parse(buf)
	require.NoError(t, err)

	// oid == 0 (partition/device scope): the capability's range
	// restriction never applies.
	assert.NoError(t, CheckDataRange(cap, 0, 0, 1_000_000))

	// oid != 0 (a real object): the range restriction applies.
	assert.NoError(t, CheckDataRange(cap, 1, 100, 50))
	assert.Error(t, CheckDataRange(cap, 1, 0, 10))
	assert.Error(t, CheckDataRange(cap, 1, 120, 40))
}

func TestCheckDataRangeNoOpWhenCapabilityCarriesNoRange(t *testing.T) {
	buf := buildCapability(t, osdtype.ObjTypeUser, osdtype.PermRead, 0, osdtype.DescObject, 1, 1, 1000, 0, 0)
	cap, err := Parse(buf)
	require.NoError(t, err)

	assert.NoError(t, CheckDataRange(cap, 1, 0, 1_000_000))
}

func TestPermitsDataRange(t *testing.T) {
	assert.True(t, permitsDataRange(0, 0, 500, 10))
	assert.True(t, permitsDataRange(10, 20, 15, 5))
	assert.False(t, permitsDataRange(10, 20, 5, 5))
	assert.False(t, permitsDataRange(10, 20, 25, 10))
}

func TestNewAuditDiscriminatorUnique(t *testing.T) {
	a := NewAuditDiscriminator()
	b := NewAuditDiscriminator()
	assert.NotEqual(t, a, b)
}
