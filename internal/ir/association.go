package ir

import (
	"fmt"
	"strings"
)

// JoinType selects which rows of an association survive the join.
//
// The requested join type is relative to the driving table: Left keeps every
// driving row, Right keeps every row of the other side and leaves the driving
// side nullable, Inner keeps matched pairs only.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
)

// ValidJoinTypes lists the accepted join types.
var ValidJoinTypes = []JoinType{JoinInner, JoinLeft, JoinRight}

// ParseJoinType parses inner|left|right (case-insensitive).
func ParseJoinType(s string) (JoinType, error) {
	jt := JoinType(strings.ToLower(strings.TrimSpace(s)))
	switch jt {
	case JoinInner, JoinLeft, JoinRight:
		return jt, nil
	default:
		return "", fmt.Errorf("invalid join type %q (valid: inner, left, right)", s)
	}
}

// IsOuter reports whether the join preserves unmatched rows of one side.
func (j JoinType) IsOuter() bool {
	return j == JoinLeft || j == JoinRight
}

// Mirror swaps Left and Right. Inner is its own mirror.
func (j JoinType) Mirror() JoinType {
	switch j {
	case JoinLeft:
		return JoinRight
	case JoinRight:
		return JoinLeft
	default:
		return j
	}
}

// Cardinality of an association.
type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "one_to_one"
	CardinalityOneToMany  Cardinality = "one_to_many"
	CardinalityManyToMany Cardinality = "many_to_many"
)

// Association is a sealed interface describing how two tables relate.
// Only ForeignKey and ManyToMany implement it.
type Association interface {
	association() // Sealed - only these types implement it
	Validate() error
}

// ForeignKey relates Referencing.ForeignKey to Referenced.PrimaryKey.
type ForeignKey struct {
	Name        string `json:"name"`
	Referenced  Table  `json:"referenced"`
	PrimaryKey  string `json:"primary_key"`
	Referencing Table  `json:"referencing"`
	ForeignKey  string `json:"foreign_key"`
	IsOneToOne  bool   `json:"is_one_to_one,omitempty"`
}

func (ForeignKey) association() {}

// Validate checks that both tables are well formed, distinct and declare
// the key fields. PrimaryKey must be the referenced table's identity, so a
// referencing row matches at most one referenced row.
func (fk ForeignKey) Validate() error {
	if err := fk.Referenced.Validate(); err != nil {
		return fmt.Errorf("referenced: %w", err)
	}
	if err := fk.Referencing.Validate(); err != nil {
		return fmt.Errorf("referencing: %w", err)
	}
	if fk.Referenced.Name == fk.Referencing.Name {
		return fmt.Errorf("referenced and referencing tables must differ, both are %q", fk.Referenced.Name)
	}
	if !fk.Referenced.HasField(fk.PrimaryKey) {
		return fmt.Errorf("primary key %q not found in table %q", fk.PrimaryKey, fk.Referenced.Name)
	}
	if err := requireIdentityKey("primary key", fk.Referenced, fk.PrimaryKey); err != nil {
		return err
	}
	if !fk.Referencing.HasField(fk.ForeignKey) {
		return fmt.Errorf("foreign key %q not found in table %q", fk.ForeignKey, fk.Referencing.Name)
	}
	return nil
}

// ManyToMany relates Table1 and Table2 through a bridge table holding one
// foreign key to each side: Bridge.BridgeKey1 -> Table1.Key1 and
// Bridge.BridgeKey2 -> Table2.Key2.
type ManyToMany struct {
	Name       string `json:"name"`
	Table1     Table  `json:"table1"`
	Key1       string `json:"key1"`
	Table2     Table  `json:"table2"`
	Key2       string `json:"key2"`
	Bridge     Table  `json:"bridge"`
	BridgeKey1 string `json:"bridge_key1"`
	BridgeKey2 string `json:"bridge_key2"`
}

func (ManyToMany) association() {}

// Validate checks tables, distinctness, key fields and the bridge identity.
// Key1 and Key2 must be the identities of their tables.
func (m ManyToMany) Validate() error {
	for _, t := range []struct {
		role  string
		table Table
	}{{"table1", m.Table1}, {"table2", m.Table2}, {"bridge", m.Bridge}} {
		if err := t.table.Validate(); err != nil {
			return fmt.Errorf("%s: %w", t.role, err)
		}
	}
	if m.Table1.Name == m.Table2.Name {
		return fmt.Errorf("endpoint tables must differ, both are %q", m.Table1.Name)
	}
	if m.Bridge.Name == m.Table1.Name || m.Bridge.Name == m.Table2.Name {
		return fmt.Errorf("bridge table %q must differ from both endpoints", m.Bridge.Name)
	}
	if !m.Table1.HasField(m.Key1) {
		return fmt.Errorf("key %q not found in table %q", m.Key1, m.Table1.Name)
	}
	if !m.Table2.HasField(m.Key2) {
		return fmt.Errorf("key %q not found in table %q", m.Key2, m.Table2.Name)
	}
	if err := requireIdentityKey("key1", m.Table1, m.Key1); err != nil {
		return err
	}
	if err := requireIdentityKey("key2", m.Table2, m.Key2); err != nil {
		return err
	}
	if !m.Bridge.HasField(m.BridgeKey1) {
		return fmt.Errorf("bridge key %q not found in table %q", m.BridgeKey1, m.Bridge.Name)
	}
	if !m.Bridge.HasField(m.BridgeKey2) {
		return fmt.Errorf("bridge key %q not found in table %q", m.BridgeKey2, m.Bridge.Name)
	}
	if m.BridgeKey1 == m.BridgeKey2 {
		return fmt.Errorf("bridge keys must differ, both are %q", m.BridgeKey1)
	}
	if _, ok := m.Bridge.Identity(); !ok {
		return fmt.Errorf("bridge table %q must declare an identity field", m.Bridge.Name)
	}
	return nil
}

// requireIdentityKey checks that a referenced key is its table's identity.
// Any other field may repeat, letting one row match several.
func requireIdentityKey(role string, t Table, key string) error {
	id, ok := t.Identity()
	if !ok {
		return fmt.Errorf("%s %q: table %q must declare an identity field", role, key, t.Name)
	}
	if id.Name != key {
		return fmt.Errorf("%s %q must be the identity field %q of table %q", role, key, id.Name, t.Name)
	}
	return nil
}

// Legs splits the association into the bridge's two foreign keys:
// Bridge.BridgeKey1 -> Table1.Key1 and Bridge.BridgeKey2 -> Table2.Key2.
func (m ManyToMany) Legs() (ForeignKey, ForeignKey) {
	leg1 := ForeignKey{
		Name:        m.Name + "/" + m.Table1.Name,
		Referenced:  m.Table1,
		PrimaryKey:  m.Key1,
		Referencing: m.Bridge,
		ForeignKey:  m.BridgeKey1,
	}
	leg2 := ForeignKey{
		Name:        m.Name + "/" + m.Table2.Name,
		Referenced:  m.Table2,
		PrimaryKey:  m.Key2,
		Referencing: m.Bridge,
		ForeignKey:  m.BridgeKey2,
	}
	return leg1, leg2
}

// Other returns the endpoint opposite to name, or false when name is not
// one of the foreign key's tables.
func (fk ForeignKey) Other(name string) (Table, bool) {
	switch name {
	case fk.Referencing.Name:
		return fk.Referenced, true
	case fk.Referenced.Name:
		return fk.Referencing, true
	default:
		return Table{}, false
	}
}

// KeyOf returns the join key field of the named table.
func (fk ForeignKey) KeyOf(name string) (string, bool) {
	switch name {
	case fk.Referencing.Name:
		return fk.ForeignKey, true
	case fk.Referenced.Name:
		return fk.PrimaryKey, true
	default:
		return "", false
	}
}

// AssociationName returns the association's declared name.
func AssociationName(a Association) string {
	switch v := a.(type) {
	case ForeignKey:
		return v.Name
	case *ForeignKey:
		return v.Name
	case ManyToMany:
		return v.Name
	case *ManyToMany:
		return v.Name
	default:
		return ""
	}
}

// CardinalityOf derives the cardinality of an association.
func CardinalityOf(a Association) (Cardinality, error) {
	switch v := a.(type) {
	case ForeignKey:
		if v.IsOneToOne {
			return CardinalityOneToOne, nil
		}
		return CardinalityOneToMany, nil
	case *ForeignKey:
		return CardinalityOf(*v)
	case ManyToMany:
		return CardinalityManyToMany, nil
	case *ManyToMany:
		return CardinalityManyToMany, nil
	default:
		return "", fmt.Errorf("unknown association type: %T", a)
	}
}

// Endpoints returns the two joined tables: referencing then referenced for
// a foreign key, Table1 then Table2 for a many-to-many.
func Endpoints(a Association) (Table, Table, error) {
	switch v := a.(type) {
	case ForeignKey:
		return v.Referencing, v.Referenced, nil
	case *ForeignKey:
		return v.Referencing, v.Referenced, nil
	case ManyToMany:
		return v.Table1, v.Table2, nil
	case *ManyToMany:
		return v.Table1, v.Table2, nil
	default:
		return Table{}, Table{}, fmt.Errorf("unknown association type: %T", a)
	}
}

// Tables returns every participant: the endpoints plus the bridge, if any.
func Tables(a Association) ([]Table, error) {
	switch v := a.(type) {
	case ForeignKey:
		return []Table{v.Referencing, v.Referenced}, nil
	case *ForeignKey:
		return Tables(*v)
	case ManyToMany:
		return []Table{v.Table1, v.Table2, v.Bridge}, nil
	case *ManyToMany:
		return Tables(*v)
	default:
		return nil, fmt.Errorf("unknown association type: %T", a)
	}
}

// TableNamed finds a participant table by name.
func TableNamed(a Association, name string) (Table, bool) {
	tables, err := Tables(a)
	if err != nil {
		return Table{}, false
	}
	for _, t := range tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Deref returns the value form of a pointer association so callers can
// switch on ForeignKey and ManyToMany only.
func Deref(a Association) Association {
	switch v := a.(type) {
	case *ForeignKey:
		if v == nil {
			return nil
		}
		return *v
	case *ManyToMany:
		if v == nil {
			return nil
		}
		return *v
	default:
		return a
	}
}
