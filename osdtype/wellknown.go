package osdtype

// Well-known pages and attribute numbers synthesized by the attribute
// façade (section 4.10). Numbering follows the shape of the T10 OSD-2
// "current command" and "root/user information" pages; this core only
// implements the handful named here.
const (
	// UserInfoPage carries read-only per-object information attributes.
	UserInfoPage Page = 0x1
	// RootInfoPage carries read-only device-wide information attributes.
	RootInfoPage Page = PageRootMin | 0x1
)

// User object information page attribute numbers (UIAP_*).
const (
	UIAPPID           Number = 1
	UIAPOID           Number = 2
	UIAPUsedCapacity  Number = 3
	UIAPLogicalLen    Number = 4
	UIAPUsername      Number = 9
)

// Root information page attribute numbers.
const (
	RIAPVendorID       Number = 1
	RIAPProductID      Number = 2
	RIAPProductModel   Number = 3
	RIAPProductRev     Number = 4
	RIAPSerialNumber   Number = 5
	RIAPTotalCapacity  Number = 6
	RIAPUsedCapacity   Number = 7
	RIAPNumPartitions  Number = 8
	RIAPClock          Number = 9
	RIAPSystemID       Number = 10
	RIAPOSDName        Number = 11
	RIAPBootEpoch      Number = 12
)

// InfoPageName returns the fixed 40-byte name of a well-known
// information attribute (attribute number 0 of the page), per section
// 4.10.
func InfoPageName(page Page) []byte {
	switch page {
	case UserInfoPage:
		return pad40("INCITS  T10 User Object Information")
	case RootInfoPage:
		return pad40("INCITS  T10 Root Information")
	case PageCollectionMin:
		return pad40("INCITS  T10 Collection Attributes Page")
	default:
		return nil
	}
}

func pad40(s string) []byte {
	b := make([]byte, InfoAttrLen)
	copy(b, s)
	return b
}
