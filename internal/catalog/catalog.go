// Package catalog loads table and association declarations from CUE files.
//
// A catalog directory holds one CUE package. Tables live under "table" and
// associations under "association":
//
//	table: parcels: fields: {
//		objectid: {type: "integer", identity: true}
//		name:     "text"
//		shape:    "geometry"
//	}
//	association: zone_parcels: foreign_key: {
//		referenced: "zones", primary_key: "objectid"
//		referencing: "parcels", foreign_key: "zone_id"
//	}
//
// Field declaration order is preserved; it becomes the projection order.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/reljoin/internal/ir"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Catalog is the set of tables and associations declared in a directory.
type Catalog struct {
	Tables       []ir.Table
	Associations []ir.Association
	FileCount    int // Number of CUE files found
}

// Table looks up a table by name.
func (c *Catalog) Table(name string) (ir.Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return ir.Table{}, false
}

// Association looks up an association by name.
func (c *Catalog) Association(name string) (ir.Association, error) {
	for _, a := range c.Associations {
		if ir.AssociationName(a) == name {
			return a, nil
		}
	}
	names := c.AssociationNames()
	sort.Strings(names)
	return nil, &LoadError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("association %q not found (declared: %s)", name, strings.Join(names, ", ")),
	}
}

// AssociationNames returns association names in declaration order.
func (c *Catalog) AssociationNames() []string {
	names := make([]string, len(c.Associations))
	for i, a := range c.Associations {
		names[i] = ir.AssociationName(a)
	}
	return names
}
