package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldType is the declared type of a table field.
type FieldType string

const (
	FieldInteger  FieldType = "integer"
	FieldReal     FieldType = "real"
	FieldText     FieldType = "text"
	FieldBool     FieldType = "bool"
	FieldBlob     FieldType = "blob"
	FieldDate     FieldType = "date"
	FieldGeometry FieldType = "geometry"
)

// ValidFieldTypes lists every accepted FieldType, in declaration order.
var ValidFieldTypes = []FieldType{
	FieldInteger, FieldReal, FieldText, FieldBool, FieldBlob, FieldDate, FieldGeometry,
}

// ParseFieldType parses a field type name (case-insensitive).
func ParseFieldType(s string) (FieldType, error) {
	ft := FieldType(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range ValidFieldTypes {
		if ft == valid {
			return ft, nil
		}
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// SQLType returns the column type used when materializing the field in SQL.
func (t FieldType) SQLType() string {
	switch t {
	case FieldInteger:
		return "INTEGER"
	case FieldReal:
		return "REAL"
	case FieldBool:
		return "BOOLEAN"
	case FieldBlob, FieldGeometry:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// Field describes one column of a table.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`

	// IsIdentity marks the table's row identifier.
	IsIdentity bool `json:"is_identity,omitempty"`

	// IsMeasurement marks fields derived from geometry (shape length, area).
	// They describe one geometry and are never carried into a join.
	IsMeasurement bool `json:"is_measurement,omitempty"`
}

// ScanCapability tells a store how rows of a table can be reached.
type ScanCapability int

const (
	// ScanSequential tables only support full scans.
	ScanSequential ScanCapability = iota
	// ScanKeyed tables support equality lookups on key fields.
	ScanKeyed
)

func (s ScanCapability) String() string {
	if s == ScanKeyed {
		return "keyed"
	}
	return "sequential"
}

// Table describes a participant table of an association.
type Table struct {
	Name          string         `json:"name"`
	Fields        []Field        `json:"fields"`
	IdentityField string         `json:"identity_field,omitempty"`
	Scan          ScanCapability `json:"scan"`
}

// Field looks up a field by name.
func (t Table) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the table declares a field named name.
func (t Table) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// Identity returns the identity field, if the table has one.
// IdentityField wins; otherwise the first field flagged IsIdentity is used.
func (t Table) Identity() (Field, bool) {
	if t.IdentityField != "" {
		return t.Field(t.IdentityField)
	}
	for _, f := range t.Fields {
		if f.IsIdentity {
			return f, true
		}
	}
	return Field{}, false
}

// GeometryField returns the table's geometry field, if any.
func (t Table) GeometryField() (Field, bool) {
	for _, f := range t.Fields {
		if f.Type == FieldGeometry {
			return f, true
		}
	}
	return Field{}, false
}

// HasGeometry reports whether the table carries geometry.
func (t Table) HasGeometry() bool {
	_, ok := t.GeometryField()
	return ok
}

// FieldNames returns field names in declaration order.
func (t Table) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks the table's structural invariants.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("table %q: at least one field is required", t.Name)
	}

	seen := make(map[string]bool, len(t.Fields))
	geometries := 0
	identities := 0
	for _, f := range t.Fields {
		if f.Name == "" {
			return fmt.Errorf("table %q: field name is required", t.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %q: duplicate field %q", t.Name, f.Name)
		}
		seen[f.Name] = true
		if _, err := ParseFieldType(string(f.Type)); err != nil {
			return fmt.Errorf("table %q field %q: %w", t.Name, f.Name, err)
		}
		if f.Type == FieldGeometry {
			geometries++
		}
		if f.IsIdentity {
			identities++
		}
	}
	if geometries > 1 {
		return fmt.Errorf("table %q: at most one geometry field is allowed, got %d", t.Name, geometries)
	}
	if identities > 1 {
		return fmt.Errorf("table %q: at most one identity field is allowed, got %d", t.Name, identities)
	}
	if t.IdentityField != "" {
		f, ok := t.Field(t.IdentityField)
		if !ok {
			return fmt.Errorf("table %q: identity field %q is not declared", t.Name, t.IdentityField)
		}
		if identities == 1 && !f.IsIdentity {
			return fmt.Errorf("table %q: identity field %q disagrees with field flags", t.Name, t.IdentityField)
		}
	}
	return nil
}

// Coerce normalizes a value to the representation reljoin uses for a field
// type, so rows read back from different stores compare equal. Drivers hand
// back bools as integers, integral reals as integers and text as bytes;
// Coerce undoes that. Values that cannot be represented are returned as is.
func Coerce(v Value, t FieldType) Value {
	if IsNull(v) {
		return Null{}
	}
	switch t {
	case FieldInteger:
		if r, ok := v.(Real); ok {
			if i, ok := RealToInt(float64(r)); ok {
				return Int(i)
			}
		}
	case FieldReal:
		if i, ok := v.(Int); ok {
			return Real(float64(i))
		}
	case FieldBool:
		switch b := v.(type) {
		case Int:
			return Bool(b != 0)
		case Text:
			if parsed, err := strconv.ParseBool(string(b)); err == nil {
				return Bool(parsed)
			}
		}
	case FieldText, FieldDate:
		if b, ok := v.(Blob); ok {
			return Text(string(b))
		}
	case FieldBlob, FieldGeometry:
		if s, ok := v.(Text); ok {
			return Blob([]byte(s))
		}
	}
	return v
}

// CoerceRecord applies Coerce to every declared field present in rec.
func (t Table) CoerceRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if f, ok := t.Field(k); ok {
			out[k] = Coerce(v, f.Type)
			continue
		}
		out[k] = v
	}
	return out
}
