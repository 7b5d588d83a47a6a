package compiler

import (
	"strings"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// FieldQualifier names joined output fields.
type FieldQualifier interface {
	QualifyFieldName(table, field string) string
}

// projection collects fields into their final slots.
type projection struct {
	attributes       []queryir.JoinedSubfield
	identity         *queryir.JoinedSubfield
	geometryIdentity *queryir.JoinedSubfield
	geometry         *queryir.JoinedSubfield
}

func (p *projection) fields() []queryir.JoinedSubfield {
	out := append([]queryir.JoinedSubfield(nil), p.attributes...)
	for _, f := range []*queryir.JoinedSubfield{p.identity, p.geometryIdentity, p.geometry} {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// Project builds the collision-free projection of a joined relation:
// attributes in collection order, then the relation identity, then the
// geometry table's own identity, then the geometry field.
//
// The bridge contributes nothing but its identity, and only when it is
// the identity table. Measurement fields never survive a join.
func Project(q FieldQualifier, def *JoinDefinition, identity Identity, opts Options) ([]queryir.JoinedSubfield, error) {
	requested, err := resolveRequested(q, def, identity, opts)
	if err != nil {
		return nil, err
	}

	p := &projection{}
	for _, t := range def.Tables {
		tableIdentity, hasIdentity := t.Identity()

		if t.Name == def.Bridge {
			if t.Name == identity.Table && hasIdentity {
				f := subfield(q, t, tableIdentity, true)
				p.identity = &f
			}
			continue
		}

		for _, field := range t.Fields {
			if field.IsMeasurement {
				continue
			}
			isIdentity := hasIdentity && field.Name == tableIdentity.Name

			switch {
			case field.Type == ir.FieldGeometry:
				if t.Name != def.GeometryTable || opts.ExcludeGeometryField {
					continue
				}
				f := subfield(q, t, field, false)
				p.geometry = &f
			case isIdentity && t.Name == identity.Table:
				f := subfield(q, t, field, true)
				p.identity = &f
			case isIdentity && opts.ExclusiveIdentity:
				continue
			case isIdentity && t.Name == def.GeometryTable:
				f := subfield(q, t, field, false)
				p.geometryIdentity = &f
			default:
				if opts.IncludeOnlyIdentityFields {
					continue
				}
				if requested != nil && !requested[ref(t.Name, field.Name)] {
					continue
				}
				p.attributes = append(p.attributes, subfield(q, t, field, false))
			}
		}
	}

	fields := p.fields()
	if len(fields) == 0 {
		return nil, newError(ErrCodeEmptyProjection, "", "", "no fields left to project")
	}
	return fields, nil
}

func subfield(q FieldQualifier, t ir.Table, f ir.Field, isIdentity bool) queryir.JoinedSubfield {
	return queryir.JoinedSubfield{
		QualifiedName:   q.QualifyFieldName(t.Name, f.Name),
		Table:           t.Name,
		Field:           f.Name,
		Type:            f.Type,
		IsIdentityField: isIdentity,
	}
}

func ref(table, field string) string {
	return table + "\x00" + field
}

// resolveRequested maps Options.Fields onto participant fields. Names may be
// qualified through q or written as table.field. It returns nil when no
// subset was requested.
func resolveRequested(q FieldQualifier, def *JoinDefinition, identity Identity, opts Options) (map[string]bool, error) {
	if len(opts.Fields) == 0 {
		return nil, nil
	}

	byName := make(map[string]string)
	fieldsByRef := make(map[string]struct {
		table ir.Table
		field ir.Field
	})
	for _, t := range def.Tables {
		for _, f := range t.Fields {
			key := ref(t.Name, f.Name)
			byName[q.QualifyFieldName(t.Name, f.Name)] = key
			byName[t.Name+"."+f.Name] = key
			fieldsByRef[key] = struct {
				table ir.Table
				field ir.Field
			}{t, f}
		}
	}

	requested := make(map[string]bool, len(opts.Fields))
	for _, name := range opts.Fields {
		key, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, newError(ErrCodeUnrelatedField, "", name, "field is not part of association %q", ir.AssociationName(def.Association))
		}
		entry := fieldsByRef[key]
		t, f := entry.table, entry.field
		tableIdentity, hasIdentity := t.Identity()
		isIdentity := hasIdentity && tableIdentity.Name == f.Name

		switch {
		case f.IsMeasurement:
			return nil, newError(ErrCodeUnrelatedField, t.Name, f.Name, "measurement fields describe one geometry and cannot be joined")
		case t.Name == def.Bridge && !(isIdentity && identity.Table == t.Name):
			return nil, newError(ErrCodeUnrelatedField, t.Name, f.Name, "bridge table %q only contributes its identity", t.Name)
		case f.Type == ir.FieldGeometry && t.Name != def.GeometryTable:
			return nil, newError(ErrCodeUnrelatedField, t.Name, f.Name, "geometry comes from %q only", def.GeometryTable)
		}
		requested[key] = true
	}
	return requested, nil
}
