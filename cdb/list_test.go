package cdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rob-gra/osd-target/osdtype"
)

func TestListHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, ListHeaderLen)
	require.NoError(t, WriteListHeader(buf, ListTypeSetAttr, 128))
	typ, total, err := ReadListHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, ListTypeSetAttr, typ)
	assert.EqualValues(t, 128, total)
}

func TestReadListHeaderTruncated(t *testing.T) {
	_, _, err := ReadListHeader(make([]byte, 4))
	assert.Error(t, err)
}

func TestSetAttrEntryRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	value := []byte("hello world")
	n, err := PackSetAttrEntry(buf, osdtype.UserInfoPage, 5, value)
	require.NoError(t, err)
	assert.Equal(t, 0, n%8, "entries must be 8-byte aligned")

	attr, consumed, err := DecodeSetAttrEntry(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.Equal(t, osdtype.UserInfoPage, attr.Page)
	assert.Equal(t, osdtype.Number(5), attr.Number)
	assert.Equal(t, value, attr.Value)
}

func TestSetAttrEntryZeroLengthValue(t *testing.T) {
	buf := make([]byte, 16)
	n, err := PackSetAttrEntry(buf, osdtype.UserInfoPage, 1, nil)
	require.NoError(t, err)
	attr, _, err := DecodeSetAttrEntry(buf[:n])
	require.NoError(t, err)
	assert.Empty(t, attr.Value)
}

func TestSetAttrEntryOverflow(t *testing.T) {
	buf := make([]byte, 4)
	_, err := PackSetAttrEntry(buf, osdtype.UserInfoPage, 1, []byte("too long for this buffer"))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestGetAttrRequestRoundTrip(t *testing.T) {
	buf := make([]byte, getAttrEntryLen)
	req := GetAttrRequest{Page: osdtype.RootInfoPage, Number: 3, MaxLen: 64}
	n, err := PackGetAttrRequest(buf, req)
	require.NoError(t, err)
	assert.Equal(t, getAttrEntryLen, n)

	got, consumed, err := DecodeGetAttrRequest(buf)
	require.NoError(t, err)
	assert.Equal(t, getAttrEntryLen, consumed)
	assert.Equal(t, req, got)
}

func TestMultiObjectSetAttrEntryRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	n, err := PackMultiObjectSetAttrEntry(buf, osdtype.ObjectID(99), osdtype.UserInfoPage, 2, []byte("x"))
	require.NoError(t, err)

	oid, attr, consumed, err := DecodeMultiObjectSetAttrEntry(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, n, consumed)
	assert.Equal(t, osdtype.ObjectID(99), oid)
	assert.Equal(t, osdtype.UserInfoPage, attr.Page)
	assert.Equal(t, []byte("x"), attr.Value)
}

func TestOIDListRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	oids := []uint64{10, 20, 30}
	packed, used, err := PackOIDList(buf, ListTypeMultiObject, oids)
	require.NoError(t, err)
	assert.Equal(t, 3, packed)
	assert.Equal(t, oidListHeaderLen+3*8, used)
	assert.Equal(t, ListTypeMultiObject, buf[0])
}

func TestOIDListTruncatesWhenBufferTooSmall(t *testing.T) {
	buf := make([]byte, oidListHeaderLen+8) // room for only one oid
	packed, _, err := PackOIDList(buf, ListTypeMultiObject, []uint64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, packed)
}
