package sense

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHeaderOnly(t *testing.T) {
	buf := New(KeyIllegalRequest, ASCQInvalidFieldInCDB).Build()
	assert.Len(t, buf, headerLen)
	assert.Equal(t, ResponseCurrent, buf[0])
	assert.Equal(t, byte(KeyIllegalRequest), buf[1])
	assert.EqualValues(t, ASCQInvalidFieldInCDB, binary.BigEndian.Uint16(buf[4:6]))
	assert.Equal(t, byte(0), buf[7], "no descriptors means additional sense length is 0")
}

func TestBuildDeferred(t *testing.T) {
	buf := New(KeyNotReady, ASCQFormatInProgress).Deferred().Build()
	assert.Equal(t, ResponseDeferred, buf[0])
}

func TestBuildWithCSI(t *testing.T) {
	buf := New(KeyRecoveredError, ASCQReadPastEndOfObject).WithCSI(4096).Build()
	assert.Greater(t, len(buf), headerLen)
	assert.Equal(t, byte(8), buf[headerLen+1], "csi descriptor carries 8 bytes")
	assert.EqualValues(t, 4096, binary.BigEndian.Uint64(buf[headerLen+2:headerLen+10]))
}

func TestBuildWithErrorID(t *testing.T) {
	buf := New(KeyIllegalRequest, ASCQInvalidFieldInCDB).
		WithErrorID(1, 2, 10, 20).Build()
	descStart := headerLen
	assert.Equal(t, descOSDErrorID, buf[descStart])
	pid := binary.BigEndian.Uint64(buf[descStart+16 : descStart+24])
	oid := binary.BigEndian.Uint64(buf[descStart+24 : descStart+32])
	assert.EqualValues(t, 10, pid)
	assert.EqualValues(t, 20, oid)
}

func TestBuildWithMultipleAttrIDs(t *testing.T) {
	buf := New(KeyIllegalRequest, ASCQInvalidFieldInParamList).
		WithAttrID(1, 2).
		WithAttrID(3, 4).
		Build()
	descStart := headerLen
	assert.Equal(t, descOSDAttrID, buf[descStart])
	body := buf[descStart+2:]
	assert.EqualValues(t, 1, binary.BigEndian.Uint32(body[4:8]))
	assert.EqualValues(t, 2, binary.BigEndian.Uint32(body[8:12]))
	assert.EqualValues(t, 3, binary.BigEndian.Uint32(body[12:16]))
	assert.EqualValues(t, 4, binary.BigEndian.Uint32(body[16:20]))
}

func TestErrWrapsBuilder(t *testing.T) {
	err := New(KeyIllegalRequest, ASCQInvalidFieldInCDB).Err("bad field")
	senseErr, ok := err.(*Err)
	if !ok {
		t.Fatalf("expected *Err, got %T", err)
	}
	assert.Equal(t, "bad field", senseErr.Error())
	assert.NotNil(t, senseErr.Builder)
}

func TestAdditionalSenseLengthReflectsAllDescriptors(t *testing.T) {
	buf := New(KeyRecoveredError, ASCQReadPastEndOfObject).
		WithCSI(1).
		WithErrorID(0, 0, 1, 1).
		WithAttrID(1, 1).
		Build()
	assert.Equal(t, len(buf)-headerLen, int(buf[7]))
}
