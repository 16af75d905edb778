// Package cdb decodes the 200-byte variable-length OSD-2 command
// descriptor block (section 4.8): the fixed envelope (opcode, action,
// identifiers, embedded capability) and the get/set-attribute
// directive that rides along with every command. It is the single
// place that turns a flat wire buffer into typed fields.
package cdb

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rob-gra/osd-target/capability"
	"github.com/rob-gra/osd-target/osdtype"
)

// Size is the fixed CDB length.
const Size = 200

// Fixed offsets, section 4.8.
const (
	offOpcode       = 0
	offAddlLen      = 7
	offAction       = 8
	offFlushScope   = 10
	offFormat       = 11
	offPID          = 16
	offOID          = 24
	offDirectiveA   = 32 // get-page (page format) / set-list offset (list format)
	offLength       = 36
	offOffset       = 44
	offSetNumber    = 52
	offDirectiveB   = 56 // set-page (page format) / set-list length (list format)
	offDirectiveC   = 60 // set-value offset (page format) / get-list offset (list format)
	offDirectiveD   = 64 // set-value length (page format) / get-list length (list format)
	offGetAllocLen  = 68
	offCapability   = 80
	offSecurityPara = 160
)

// Opcode is the fixed variable-length-CDB opcode at byte 0.
const Opcode = 0x7f

// AdditionalLength is the fixed value of the additional-CDB-length
// field: the CDB is 200 bytes total, 8 bytes of which are the
// fixed SCSI varlen header.
const AdditionalLength = Size - 8

// Format selector values at offset 11. FormatScatterGather and
// FormatStrided aren't in the original wire table; they give READ/WRITE
// a way to select the section 4.6 scatter-gather and strided I/O shapes
// instead of a plain contiguous transfer, since nothing in the fixed
// CDB envelope otherwise distinguishes the three.
const (
	FormatPageValue     byte = 0x20
	FormatListList      byte = 0x30
	FormatScatterGather byte = 0x40
	FormatStrided       byte = 0x50
)

// Directive carries the decoded embedded get/set-attribute request,
// section 4.8's two shapes unified into one struct; callers branch on
// Format to know which fields are meaningful.
type Directive struct {
	Format byte

	// FormatPageValue fields.
	GetPage     osdtype.Page
	SetPage     osdtype.Page
	SetNumber   osdtype.Number
	SetValueOff uint32
	SetValueLen uint32

	// FormatListList fields: byte ranges within the data-out buffer.
	SetListOff uint32
	SetListLen uint32
	GetListOff uint32
	GetListLen uint32

	// FormatScatterGather/FormatStrided fields: the byte range within
	// the data-out buffer carrying the packed extent list or strided
	// parameters doRead/doWrite decode (see target/io.go).
	IOParamsOff uint32
	IOParamsLen uint32

	// GetAllocLen bounds how much of the data-in buffer the embedded
	// GET may fill, valid in every format.
	GetAllocLen uint32
}

// CDB is a decoded command descriptor block.
type CDB struct {
	Action     osdtype.Action
	FlushScope byte
	PID        osdtype.PartitionID
	OID        osdtype.ObjectID
	Length     uint64
	Offset     uint64
	Directive  Directive

	CapabilityBytes [capability.Size]byte
	SecurityParams  [40]byte
}

// Decode validates and parses a 200-byte CDB.
func Decode(raw []byte) (*CDB, error) {
	if len(raw) != Size {
		return nil, errors.Errorf("cdb: must be %d bytes, got %d", Size, len(raw))
	}
	if raw[offOpcode] != Opcode {
		return nil, errors.Errorf("cdb: unexpected opcode %#x", raw[offOpcode])
	}
	if raw[offAddlLen] != AdditionalLength {
		return nil, errors.Errorf("cdb: unexpected additional length %d", raw[offAddlLen])
	}

	c := &CDB{
		Action:     osdtype.Action(binary.BigEndian.Uint16(raw[offAction : offAction+2])),
		FlushScope: raw[offFlushScope],
		PID:        osdtype.PartitionID(binary.BigEndian.Uint64(raw[offPID : offPID+8])),
		OID:        osdtype.ObjectID(binary.BigEndian.Uint64(raw[offOID : offOID+8])),
		Length:     binary.BigEndian.Uint64(raw[offLength : offLength+8]),
		Offset:     binary.BigEndian.Uint64(raw[offOffset : offOffset+8]),
	}

	format := raw[offFormat]
	d := Directive{
		Format:      format,
		SetNumber:   osdtype.Number(binary.BigEndian.Uint32(raw[offSetNumber : offSetNumber+4])),
		GetAllocLen: binary.BigEndian.Uint32(raw[offGetAllocLen : offGetAllocLen+4]),
	}
	switch format {
	case FormatPageValue:
		d.GetPage = osdtype.Page(binary.BigEndian.Uint32(raw[offDirectiveA : offDirectiveA+4]))
		d.SetPage = osdtype.Page(binary.BigEndian.Uint32(raw[offDirectiveB : offDirectiveB+4]))
		d.SetValueOff = binary.BigEndian.Uint32(raw[offDirectiveC : offDirectiveC+4])
		d.SetValueLen = binary.BigEndian.Uint32(raw[offDirectiveD : offDirectiveD+4])
	case FormatListList:
		d.SetListOff = binary.BigEndian.Uint32(raw[offDirectiveA : offDirectiveA+4])
		d.SetListLen = binary.BigEndian.Uint32(raw[offDirectiveB : offDirectiveB+4])
		d.GetListOff = binary.BigEndian.Uint32(raw[offDirectiveC : offDirectiveC+4])
		d.GetListLen = binary.BigEndian.Uint32(raw[offDirectiveD : offDirectiveD+4])
	case FormatScatterGather, FormatStrided:
		d.IOParamsOff = binary.BigEndian.Uint32(raw[offDirectiveA : offDirectiveA+4])
		d.IOParamsLen = binary.BigEndian.Uint32(raw[offDirectiveB : offDirectiveB+4])
	default:
		return nil, errors.Errorf("cdb: unknown get/set format selector %#x", format)
	}
	c.Directive = d

	copy(c.CapabilityBytes[:], raw[offCapability:offCapability+capability.Size])
	copy(c.SecurityParams[:], raw[offSecurityPara:offSecurityPara+40])

	return c, nil
}

// ParseCapability decodes the embedded capability.
func (c *CDB) ParseCapability() (*capability.Capability, error) {
	return capability.Parse(c.CapabilityBytes[:])
}
