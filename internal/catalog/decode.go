package catalog

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/reljoin/internal/ir"
)

// CompileTable parses a CUE table declaration. The table name is the
// value's last path selector.
func CompileTable(v cue.Value) (ir.Table, error) {
	if err := v.Err(); err != nil {
		return ir.Table{}, formatCUEError(ErrCodeBuildFailed, err)
	}

	t := ir.Table{Name: label(v)}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return ir.Table{}, newError(ErrCodeNoFields, v.Pos(), "table %q: fields are required", t.Name)
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return ir.Table{}, formatCUEError(ErrCodeBuildFailed, err)
	}
	for iter.Next() {
		f, err := compileField(iter.Label(), iter.Value())
		if err != nil {
			return ir.Table{}, err
		}
		t.Fields = append(t.Fields, f)
	}
	if len(t.Fields) == 0 {
		return ir.Table{}, newError(ErrCodeNoFields, fieldsVal.Pos(), "table %q: at least one field is required", t.Name)
	}

	identity, pos, ok, err := optionalString(v, "identity")
	if err != nil {
		return ir.Table{}, err
	}
	if ok {
		t.IdentityField = identity
		if !t.HasField(identity) {
			return ir.Table{}, newError(ErrCodeInvalidTable, pos, "table %q: identity field %q is not declared", t.Name, identity)
		}
	}

	scan, pos, ok, err := optionalString(v, "scan")
	if err != nil {
		return ir.Table{}, err
	}
	if ok {
		switch scan {
		case "keyed":
			t.Scan = ir.ScanKeyed
		case "sequential":
			t.Scan = ir.ScanSequential
		default:
			return ir.Table{}, newError(ErrCodeInvalidScan, pos, "table %q: scan must be \"keyed\" or \"sequential\", got %q", t.Name, scan)
		}
	}

	if err := t.Validate(); err != nil {
		return ir.Table{}, newError(ErrCodeInvalidTable, v.Pos(), "%v", err)
	}
	return t, nil
}

// compileField accepts the short form (name: "text") or the struct form
// (name: {type: "integer", identity: true}).
func compileField(name string, v cue.Value) (ir.Field, error) {
	f := ir.Field{Name: name}

	var typeName string
	var typePos token.Pos
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return ir.Field{}, formatCUEError(ErrCodeBuildFailed, err)
		}
		typeName, typePos = s, v.Pos()
	case cue.StructKind:
		s, pos, ok, err := optionalString(v, "type")
		if err != nil {
			return ir.Field{}, err
		}
		if !ok {
			return ir.Field{}, newError(ErrCodeMissingAttribute, v.Pos(), "field %q: type is required", name)
		}
		typeName, typePos = s, pos

		if f.IsIdentity, err = optionalBool(v, "identity"); err != nil {
			return ir.Field{}, err
		}
		if f.IsMeasurement, err = optionalBool(v, "measurement"); err != nil {
			return ir.Field{}, err
		}
	default:
		return ir.Field{}, newError(ErrCodeInvalidType, v.Pos(), "field %q: expected a type name or a struct, got %v", name, v.IncompleteKind())
	}

	ft, err := ir.ParseFieldType(typeName)
	if err != nil {
		return ir.Field{}, newError(ErrCodeInvalidType, typePos, "field %q: %v", name, err)
	}
	f.Type = ft
	return f, nil
}

// CompileAssociation parses a CUE association declaration, resolving table
// names against tables.
func CompileAssociation(v cue.Value, tables map[string]ir.Table) (ir.Association, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, err)
	}
	name := label(v)

	fkVal := v.LookupPath(cue.ParsePath("foreign_key"))
	mnVal := v.LookupPath(cue.ParsePath("many_to_many"))

	var assoc ir.Association
	var err error
	switch {
	case fkVal.Exists() && mnVal.Exists():
		return nil, newError(ErrCodeAssociationKind, v.Pos(), "association %q: declare foreign_key or many_to_many, not both", name)
	case fkVal.Exists():
		assoc, err = compileForeignKey(name, fkVal, tables)
	case mnVal.Exists():
		assoc, err = compileManyToMany(name, mnVal, tables)
	default:
		return nil, newError(ErrCodeAssociationKind, v.Pos(), "association %q: foreign_key or many_to_many is required", name)
	}
	if err != nil {
		return nil, err
	}

	if err := assoc.Validate(); err != nil {
		return nil, newError(ErrCodeInvalidAssoc, v.Pos(), "association %q: %v", name, err)
	}
	return assoc, nil
}

func compileForeignKey(name string, v cue.Value, tables map[string]ir.Table) (ir.Association, error) {
	fk := ir.ForeignKey{Name: name}
	var err error
	if fk.Referenced, err = tableAttr(v, "referenced", tables); err != nil {
		return nil, err
	}
	if fk.PrimaryKey, err = requiredString(v, "primary_key"); err != nil {
		return nil, err
	}
	if fk.Referencing, err = tableAttr(v, "referencing", tables); err != nil {
		return nil, err
	}
	if fk.ForeignKey, err = requiredString(v, "foreign_key"); err != nil {
		return nil, err
	}
	if fk.IsOneToOne, err = optionalBool(v, "one_to_one"); err != nil {
		return nil, err
	}
	return fk, nil
}

func compileManyToMany(name string, v cue.Value, tables map[string]ir.Table) (ir.Association, error) {
	m := ir.ManyToMany{Name: name}
	var err error
	if m.Table1, err = tableAttr(v, "table1", tables); err != nil {
		return nil, err
	}
	if m.Key1, err = requiredString(v, "key1"); err != nil {
		return nil, err
	}
	if m.Table2, err = tableAttr(v, "table2", tables); err != nil {
		return nil, err
	}
	if m.Key2, err = requiredString(v, "key2"); err != nil {
		return nil, err
	}
	if m.Bridge, err = tableAttr(v, "bridge", tables); err != nil {
		return nil, err
	}
	if m.BridgeKey1, err = requiredString(v, "bridge_key1"); err != nil {
		return nil, err
	}
	if m.BridgeKey2, err = requiredString(v, "bridge_key2"); err != nil {
		return nil, err
	}
	return m, nil
}

func tableAttr(v cue.Value, attr string, tables map[string]ir.Table) (ir.Table, error) {
	name, err := requiredString(v, attr)
	if err != nil {
		return ir.Table{}, err
	}
	t, ok := tables[name]
	if !ok {
		pos := v.LookupPath(cue.ParsePath(attr)).Pos()
		return ir.Table{}, newError(ErrCodeUnknownTable, pos, "%s: table %q is not declared", attr, name)
	}
	return t, nil
}

func requiredString(v cue.Value, attr string) (string, error) {
	s, _, ok, err := optionalString(v, attr)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", newError(ErrCodeMissingAttribute, v.Pos(), "%s is required", attr)
	}
	return s, nil
}

func optionalString(v cue.Value, attr string) (string, token.Pos, bool, error) {
	val := v.LookupPath(cue.ParsePath(attr))
	if !val.Exists() {
		return "", token.NoPos, false, nil
	}
	s, err := val.String()
	if err != nil {
		return "", val.Pos(), false, formatCUEError(ErrCodeBuildFailed, err)
	}
	return s, val.Pos(), true, nil
}

func optionalBool(v cue.Value, attr string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(attr))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(ErrCodeBuildFailed, err)
	}
	return b, nil
}

// label returns the last path selector, unquoted.
func label(v cue.Value) string {
	sels := v.Path().Selectors()
	if len(sels) == 0 {
		return ""
	}
	sel := sels[len(sels)-1]
	if sel.IsString() {
		return sel.Unquoted()
	}
	return sel.String()
}
