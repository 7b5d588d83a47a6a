package compiler

import (
	"fmt"

	"github.com/roach88/reljoin/internal/ir"
)

// Identity names the field that identifies rows of a joined relation.
// The zero value means no field is safe to use.
type Identity struct {
	Table string
	Field string
}

// IsNone reports whether no identity was resolved.
func (i Identity) IsNone() bool {
	return i.Table == ""
}

func (i Identity) String() string {
	if i.IsNone() {
		return "none"
	}
	return i.Table + "." + i.Field
}

// ResolveIdentity decides which field, if any, is unique across the joined
// relation:
//
//	foreign key, inner                    → referencing identity
//	foreign key, outer keeping referencing → referencing identity
//	foreign key, outer keeping referenced  → referenced identity if one-to-one
//	many-to-many, inner                   → bridge identity
//	many-to-many, outer                   → none
//
// A table without an identity field yields none.
func ResolveIdentity(def *JoinDefinition) (Identity, error) {
	switch a := def.Association.(type) {
	case ir.ForeignKey:
		if !def.JoinType.IsOuter() {
			return identityOf(a.Referencing), nil
		}
		switch def.PreservedTable() {
		case a.Referencing.Name:
			return identityOf(a.Referencing), nil
		case a.Referenced.Name:
			// A referenced row can match many referencing rows unless the
			// relationship is one-to-one.
			if a.IsOneToOne {
				return identityOf(a.Referenced), nil
			}
			return Identity{}, nil
		default:
			return Identity{}, fmt.Errorf("preserved table %q is not an endpoint", def.PreservedTable())
		}
	case ir.ManyToMany:
		if def.JoinType.IsOuter() {
			return Identity{}, nil
		}
		return identityOf(a.Bridge), nil
	default:
		return Identity{}, fmt.Errorf("unknown association type: %T", def.Association)
	}
}

func identityOf(t ir.Table) Identity {
	f, ok := t.Identity()
	if !ok {
		return Identity{}
	}
	return Identity{Table: t.Name, Field: f.Name}
}
