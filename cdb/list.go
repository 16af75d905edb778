package cdb

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rob-gra/osd-target/osdtype"
)

// ErrOverflow is returned by the Pack* functions when the destination
// buffer has no room for another entry, section 4.1's packer
// contract ("-EOVERFLOW").
var ErrOverflow = errors.New("cdb: insufficient room to pack entry")

// List header, section 4.1: list-type, reserved[3], total-length(u32).
const ListHeaderLen = 8

// List-type byte values for the general attribute list header. The
// original's ATTR_* type constants aren't reproduced verbatim since
// no header in the retrieved source enumerates them; these are this
// port's own values, named by role.
const (
	ListTypeSetAttr      byte = 0x1 // set-attr list entries (page,number,length,value)
	ListTypeGetAttr      byte = 0x2 // get-attr list entries (page,number,maxlen)
	ListTypeMultiObject  byte = 0x3 // multi-object entries (oid prepended)
)

func align8(n int) int { return (n + 7) &^ 7 }

// WriteListHeader writes the 8-byte list header at buf[0:8].
func WriteListHeader(buf []byte, listType byte, totalLen uint32) error {
	if len(buf) < ListHeaderLen {
		return ErrOverflow
	}
	buf[0] = listType
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.BigEndian.PutUint32(buf[4:8], totalLen)
	return nil
}

// ReadListHeader parses the 8-byte list header.
func ReadListHeader(buf []byte) (listType byte, totalLen uint32, err error) {
	if len(buf) < ListHeaderLen {
		return 0, 0, errors.New("cdb: list header truncated")
	}
	return buf[0], binary.BigEndian.Uint32(buf[4:8]), nil
}

// PackSetAttrEntry packs one (page, number, value) set-attribute list
// entry into buf, returning the number of bytes written (8-byte
// aligned). Returns ErrOverflow if buf is too small.
func PackSetAttrEntry(buf []byte, page osdtype.Page, number osdtype.Number, value []byte) (int, error) {
	if len(value) > 0xFFFF {
		return 0, errors.New("cdb: attribute value too long for a list entry")
	}
	need := align8(10 + len(value))
	if len(buf) < need {
		return 0, ErrOverflow
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(page))
	binary.BigEndian.PutUint32(buf[4:8], uint32(number))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(value)))
	copy(buf[10:10+len(value)], value)
	for i := 10 + len(value); i < need; i++ {
		buf[i] = 0
	}
	return need, nil
}

// DecodeSetAttrEntry decodes one set-attribute list entry from buf,
// returning the attribute and the 8-byte-aligned entry length
// consumed.
func DecodeSetAttrEntry(buf []byte) (osdtype.Attr, int, error) {
	if len(buf) < 10 {
		return osdtype.Attr{}, 0, errors.New("cdb: set-attr entry truncated")
	}
	page := osdtype.Page(binary.BigEndian.Uint32(buf[0:4]))
	number := osdtype.Number(binary.BigEndian.Uint32(buf[4:8]))
	length := int(binary.BigEndian.Uint16(buf[8:10]))
	need := align8(10 + length)
	if len(buf) < need {
		return osdtype.Attr{}, 0, errors.New("cdb: set-attr entry value truncated")
	}
	value := append([]byte(nil), buf[10:10+length]...)
	return osdtype.Attr{Page: page, Number: number, Value: value}, need, nil
}

// GetAttrRequest is a decoded get-attribute list entry: one attribute
// the caller wants returned, bounded to maxLen bytes.
type GetAttrRequest struct {
	Page   osdtype.Page
	Number osdtype.Number
	MaxLen uint16
}

// getAttrEntryLen is the fixed size of a get-attribute list entry:
// page(4) + number(4) + maxlen(2) + reserved(6), already 8-aligned.
const getAttrEntryLen = 16

// PackGetAttrRequest packs one get-attribute list entry.
func PackGetAttrRequest(buf []byte, req GetAttrRequest) (int, error) {
	if len(buf) < getAttrEntryLen {
		return 0, ErrOverflow
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(req.Page))
	binary.BigEndian.PutUint32(buf[4:8], uint32(req.Number))
	binary.BigEndian.PutUint16(buf[8:10], req.MaxLen)
	for i := 10; i < getAttrEntryLen; i++ {
		buf[i] = 0
	}
	return getAttrEntryLen, nil
}

// DecodeGetAttrRequest decodes one fixed-size get-attribute list
// entry.
func DecodeGetAttrRequest(buf []byte) (GetAttrRequest, int, error) {
	if len(buf) < getAttrEntryLen {
		return GetAttrRequest{}, 0, errors.New("cdb: get-attr entry truncated")
	}
	return GetAttrRequest{
		Page:   osdtype.Page(binary.BigEndian.Uint32(buf[0:4])),
		Number: osdtype.Number(binary.BigEndian.Uint32(buf[4:8])),
		MaxLen: binary.BigEndian.Uint16(buf[8:10]),
	}, getAttrEntryLen, nil
}

// PackMultiObjectSetAttrEntry packs one multi-object set-attribute
// entry: a u64 oid prepended to the plain set-attr entry fields.
func PackMultiObjectSetAttrEntry(buf []byte, oid osdtype.ObjectID, page osdtype.Page, number osdtype.Number, value []byte) (int, error) {
	if len(value) > 0xFFFF {
		return 0, errors.New("cdb: attribute value too long for a list entry")
	}
	need := align8(8 + 10 + len(value))
	if len(buf) < need {
		return 0, ErrOverflow
	}
	binary.BigEndian.PutUint64(buf[0:8], uint64(oid))
	n, err := PackSetAttrEntry(buf[8:], page, number, value)
	if err != nil {
		return 0, err
	}
	return 8 + n, nil
}

// DecodeMultiObjectSetAttrEntry decodes one multi-object set-attr
// entry.
func DecodeMultiObjectSetAttrEntry(buf []byte) (osdtype.ObjectID, osdtype.Attr, int, error) {
	if len(buf) < 8 {
		return 0, osdtype.Attr{}, 0, errors.New("cdb: multi-object entry truncated")
	}
	oid := osdtype.ObjectID(binary.BigEndian.Uint64(buf[0:8]))
	attr, n, err := DecodeSetAttrEntry(buf[8:])
	return oid, attr, 8 + n, err
}

// oidListHeaderLen is the 5-byte descriptor header section 4.9's
// QUERY/LIST bodies prepend to a plain list of matching object ids:
// list-type(1) + reserved(4), distinct from the general 8-byte
// attribute-list header because this list carries no attribute
// payload to size.
const oidListHeaderLen = 5

// WriteOIDListHeader writes the 5-byte OID-list header.
func WriteOIDListHeader(buf []byte, listType byte) error {
	if len(buf) < oidListHeaderLen {
		return ErrOverflow
	}
	buf[0] = listType
	buf[1], buf[2], buf[3], buf[4] = 0, 0, 0, 0
	return nil
}

// PackOIDList packs the 5-byte header followed by one 8-byte
// big-endian oid per entry, placed directly after the header with no
// padding, so each entry is 8 bytes long. Truncates (and reports how many of oids it
// packed) rather than overflowing buf, so callers implementing the
// "alloc_len" truncation of LIST/QUERY can detect a continuation is
// needed.
func PackOIDList(buf []byte, listType byte, oids []uint64) (packed int, used int, err error) {
	if err := WriteOIDListHeader(buf, listType); err != nil {
		return 0, 0, err
	}
	pos := oidListHeaderLen
	for _, oid := range oids {
		if pos+8 > len(buf) {
			break
		}
		binary.BigEndian.PutUint64(buf[pos:pos+8], oid)
		pos += 8
		packed++
	}
	return packed, pos, nil
}
