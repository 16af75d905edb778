// Package sense builds descriptor-format SCSI sense buffers (section
// 4.2): an 8-byte header followed by zero or more type/length/value
// descriptors. It is the OSD target's only way of reporting an error or
// a recovered-warning back across the transport boundary.
package sense

import "encoding/binary"

// Response code, byte 0 of the sense header.
const (
	ResponseCurrent  byte = 0x72
	ResponseDeferred byte = 0x73
)

// Key is the SCSI sense key (byte 1).
type Key byte

const (
	KeyNoSense        Key = 0x00
	KeyRecoveredError Key = 0x01
	KeyNotReady       Key = 0x02
	KeyHardwareError  Key = 0x04
	KeyIllegalRequest Key = 0x05
	KeyAbortedCommand Key = 0x0B
	KeyDataProtect    Key = 0x07
)

// ASCQ is a 16-bit (ASC<<8|ASCQ) additional sense code pair.
type ASCQ uint16

// Canonical ASC/ASCQ pairs used by this target (section 4.2, section 7).
const (
	ASCQReadPastEndOfObject        ASCQ = 0x3B17
	ASCQFormatInProgress           ASCQ = 0x0404
	ASCQInvalidFieldInCDB          ASCQ = 0x2400
	ASCQInvalidFieldInParamList    ASCQ = 0x2600
	ASCQParamListLengthError       ASCQ = 0x1A00
	ASCQNonceNotUnique             ASCQ = 0x2406
	ASCQCapabilityExpired          ASCQ = 0x2A04
	ASCQSystemResourceFailure      ASCQ = 0x5500
	ASCQPartitionContainsObjects   ASCQ = 0x2C0A
	ASCQQuotaError                 ASCQ = 0x5507
	ASCQInvalidCommandOperationCde ASCQ = 0x2000
)

// descriptor type codes, section 4.2.
const (
	descCommandSpecificInfo byte = 0x01
	descOSDErrorID          byte = 0x06
	descOSDAttrID           byte = 0x08
)

// Descriptor-format sense header layout (section 4.2, 8 bytes):
//
//	0       response code
//	1       sense key
//	2       reserved
//	3       reserved
//	4-5     ASC/ASCQ (big endian u16)
//	6       reserved
//	7       additional sense length (length of descriptors that follow)
const headerLen = 8

// maxLen is the largest sense buffer Build produces (section 6,
// MAX_SENSE_LEN).
const maxLen = 252

// Builder accumulates descriptors for one sense response.
type Builder struct {
	deferred    bool
	key         Key
	ascq        ASCQ
	csi         []byte
	errID       *errIDDescriptor
	attrIDs     []attrIDEntry
}

type errIDDescriptor struct {
	notInitiated uint32
	completed    uint32
	pid          uint64
	oid          uint64
}

type attrIDEntry struct {
	page   uint32
	number uint32
}

// New starts a sense builder for the given key and ASC/ASCQ pair.
func New(key Key, ascq ASCQ) *Builder {
	return &Builder{key: key, ascq: ascq}
}

// Deferred marks the response as deferred-error format (0x73) instead
// of current-error format (0x72, the default).
func (b *Builder) Deferred() *Builder {
	b.deferred = true
	return b
}

// WithCSI attaches an 8-byte command-specific-information descriptor
// carrying value (e.g. the actual bytes returned by a short read).
func (b *Builder) WithCSI(value uint64) *Builder {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	b.csi = buf
	return b
}

// WithErrorID attaches the OSD error-identification descriptor naming
// the offending pid/oid and the not-initiated/completed command-
// function bitmaps.
func (b *Builder) WithErrorID(notInitiated, completed uint32, pid, oid uint64) *Builder {
	b.errID = &errIDDescriptor{notInitiated, completed, pid, oid}
	return b
}

// WithAttrID appends an offending (page, number) pair to the OSD
// attribute-identification descriptor.
func (b *Builder) WithAttrID(page, number uint32) *Builder {
	b.attrIDs = append(b.attrIDs, attrIDEntry{page, number})
	return b
}

// Build serializes the sense buffer. The result never exceeds 252
// bytes (section 6, MAX_SENSE_LEN): attribute-identification entries
// that would not fit are left out, keeping the earliest ones added.
func (b *Builder) Build() []byte {
	var descs []byte

	if b.csi != nil {
		descs = append(descs, descCommandSpecificInfo, byte(len(b.csi)))
		descs = append(descs, b.csi...)
	}
	if b.errID != nil {
		d := make([]byte, 2+6+4+4+8+8)
		d[0] = descOSDErrorID
		d[1] = byte(len(d) - 2)
		binary.BigEndian.PutUint32(d[8:12], b.errID.notInitiated)
		binary.BigEndian.PutUint32(d[12:16], b.errID.completed)
		binary.BigEndian.PutUint64(d[16:24], b.errID.pid)
		binary.BigEndian.PutUint64(d[24:32], b.errID.oid)
		descs = append(descs, d...)
	}
	attrIDs := b.attrIDs
	if room := (maxLen - headerLen - len(descs) - 2 - 4) / 8; len(attrIDs) > room {
		attrIDs = attrIDs[:room]
	}
	if len(attrIDs) > 0 {
		body := make([]byte, 4+8*len(attrIDs))
		for i, e := range attrIDs {
			off := 4 + i*8
			binary.BigEndian.PutUint32(body[off:off+4], e.page)
			binary.BigEndian.PutUint32(body[off+4:off+8], e.number)
		}
		d := make([]byte, 2+len(body))
		d[0] = descOSDAttrID
		d[1] = byte(len(body))
		copy(d[2:], body)
		descs = append(descs, d...)
	}

	out := make([]byte, headerLen+len(descs))
	if b.deferred {
		out[0] = ResponseCurrent + 1
	} else {
		out[0] = ResponseCurrent
	}
	out[1] = byte(b.key)
	binary.BigEndian.PutUint16(out[4:6], uint16(b.ascq))
	out[7] = byte(len(descs))
	copy(out[headerLen:], descs)
	return out
}

// Err is an error value that wraps a sense builder so command handlers
// can return a single Go error and the dispatcher can still recover
// the full descriptor-format sense buffer.
type Err struct {
	Builder *Builder
	Msg     string
}

func (e *Err) Error() string { return e.Msg }

// Err wraps b as an error with msg as the
// Go-level description (never transmitted on the wire).
func (b *Builder) Err(msg string) error {
	return &Err{Builder: b, Msg: msg}
}
