package osdtype

// Action is the OSD-2 CDB action code carried at CDB offset 8-9.
// Numeric values follow T10 OSD-2 (osd_cmds.h in the original source);
// only the actions this core implements are enumerated.
type Action uint16

// Action codes, see original_source/osd_initiator/osd_cmds.h.
const (
	ActionFormatOSD                     Action = 0x8801
	ActionCreate                        Action = 0x8802
	ActionCreateAndWrite                Action = 0x8803
	ActionCreateCollection              Action = 0x8805
	ActionCreatePartition               Action = 0x880B
	ActionCreateUserTrackingCollection  Action = 0x8806
	ActionFlush                         Action = 0x8808
	ActionFlushCollection               Action = 0x880A
	ActionFlushOSD                      Action = 0x8807
	ActionFlushPartition                Action = 0x8809
	ActionGetAttributes                 Action = 0x880E
	ActionGetMemberAttributes           Action = 0x880F
	ActionList                          Action = 0x8841
	ActionListCollection                Action = 0x8842
	ActionPunch                         Action = 0x8815
	ActionQuery                         Action = 0x8860
	ActionRead                          Action = 0x8811
	ActionRemove                        Action = 0x8825
	ActionRemoveCollection              Action = 0x8827
	ActionRemoveMemberObjects           Action = 0x8828
	ActionRemovePartition               Action = 0x882B
	ActionSetAttributes                 Action = 0x8812
	ActionSetMemberAttributes           Action = 0x8813
	ActionWrite                         Action = 0x8821
	ActionAppend                        Action = 0x8823
)

// ObjectTypeBit is the capability's object-type bitfield (section 4.7).
type ObjectTypeBit uint8

const (
	ObjTypeRoot       ObjectTypeBit = 0x01
	ObjTypePartition  ObjectTypeBit = 0x02
	ObjTypeCollection ObjectTypeBit = 0x40
	ObjTypeUser       ObjectTypeBit = 0x80
)

// PermBit is a single permission bit within one byte of the
// capability's two-byte permission mask. The constants below are the
// bits of byte 0; the extended bits of byte 1 follow. The per-action
// check consults both bytes.
type PermBit uint8

const (
	PermAppend  PermBit = 1 << 0
	PermObjMgmt PermBit = 1 << 1
	PermRemove  PermBit = 1 << 2
	PermCreate  PermBit = 1 << 3
	PermSetAttr PermBit = 1 << 4
	PermGetAttr PermBit = 1 << 5
	PermWrite   PermBit = 1 << 6
	PermRead    PermBit = 1 << 7
)

// Extended permission bits, carried in byte 1 of the mask in this
// implementation's layout (the original spreads GBL_REM, QUERY,
// M_OBJECT, POL_SEC, GLOBAL and DEV_MGMT across the same 5-byte mask;
// we keep them distinct named bits of a second byte for clarity).
const (
	PermGblRem  PermBit = 1 << 0
	PermQuery   PermBit = 1 << 1
	PermMObject PermBit = 1 << 2
	PermPolSec  PermBit = 1 << 3
	PermGlobal  PermBit = 1 << 4
	PermDevMgmt PermBit = 1 << 5
)

// DescBit is the capability's object-descriptor-type bitfield
// (section 4.7; carried in the high nibble of byte 22 of this port's
// 80-byte capability layout, here represented as a bitmask
// so a permission row can require more than one descriptor type).
type DescBit uint8

const (
	DescNone       DescBit = 0x0
	DescObject     DescBit = 0x1
	DescPartition  DescBit = 0x2
	DescCollection DescBit = 0x4
)
