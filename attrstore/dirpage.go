package attrstore

import (
	"bytes"

	"github.com/rob-gra/osd-target/osdtype"
)

// unidentifiedPageName is the 40-byte sentinel name synthesized for a
// page with no name attribute at (page, 0) (section 3).
var unidentifiedPageName = []byte("        unidentified attributes page   \x00")

func init() {
	if len(unidentifiedPageName) != osdtype.InfoAttrLen {
		panic("attrstore: unidentifiedPageName must be exactly 40 bytes")
	}
}

// GetDirPage computes the directory page for (pid, oid): one entry per
// distinct page the object defines, named by that page's information
// attribute (number 0) if present and exactly 40 bytes, else the
// unidentified-page sentinel. Each entry is returned with Page 0 and
// Number set to the defined page; section 3 defines exactly one
// directory page per object scope, so no directory page is taken as
// an argument.
func (s *Store) GetDirPage(pid osdtype.PartitionID, oid osdtype.ObjectID) ([]osdtype.Attr, error) {
	all, err := s.GetAll(pid, oid)
	if err != nil {
		return nil, err
	}

	seen := make(map[osdtype.Page][]byte)
	var order []osdtype.Page
	for _, a := range all {
		if _, ok := seen[a.Page]; !ok {
			seen[a.Page] = nil
			order = append(order, a.Page)
		}
		if a.Number == osdtype.InfoNumber && len(a.Value) == osdtype.InfoAttrLen {
			seen[a.Page] = a.Value
		}
	}

	out := make([]osdtype.Attr, 0, len(order))
	for _, p := range order {
		name := seen[p]
		if name == nil {
			name = append([]byte(nil), unidentifiedPageName...)
		}
		out = append(out, osdtype.Attr{Page: 0, Number: osdtype.Number(p), Value: name})
	}
	return out, nil
}

// IsUnidentifiedName reports whether name is the sentinel page name,
// useful for tests asserting dir-page contents (section 8 scenario 6).
func IsUnidentifiedName(name []byte) bool {
	return bytes.Equal(name, unidentifiedPageName)
}
