package compiler

import (
	"log/slog"

	"github.com/roach88/reljoin/internal/ir"
	"github.com/roach88/reljoin/internal/queryir"
)

// Target is the store surface the compiler needs: field naming and join
// capability. Compilation never performs I/O.
type Target interface {
	FieldQualifier
	GetJoinCapability() queryir.JoinCapability
}

// Options tune a single compilation.
type Options struct {
	// DrivingTable designates the table that supplies the relation.
	DrivingTable string

	// Fields restricts the projected attributes. Identity and geometry
	// positions are always filled.
	Fields []string

	IncludeOnlyIdentityFields bool
	ExcludeGeometryField      bool

	// GuaranteeUniqueIdentity forces virtual evaluation over bridge rows
	// for many-to-many joins.
	GuaranteeUniqueIdentity bool

	// ExclusiveIdentity drops every identity field except the relation's.
	ExclusiveIdentity bool
}

// QueryCompiler turns associations into joined relation descriptors.
// It is stateless; one instance can serve concurrent callers.
type QueryCompiler struct {
	target Target
	logger *slog.Logger
}

// New creates a compiler for a target store.
func New(target Target) *QueryCompiler {
	return &QueryCompiler{target: target, logger: slog.Default()}
}

// WithLogger returns a copy of the compiler that logs to logger.
func (c *QueryCompiler) WithLogger(logger *slog.Logger) *QueryCompiler {
	cp := *c
	cp.logger = logger
	return &cp
}

// Compile produces a descriptor for joining the association.
//
// Errors are *CompileError values; see ErrorCode for the categories.
func (c *QueryCompiler) Compile(assoc ir.Association, joinType ir.JoinType, opts Options) (queryir.Descriptor, error) {
	def, err := DefineJoin(assoc, joinType, opts.DrivingTable)
	if err != nil {
		return queryir.Descriptor{}, err
	}

	identity, err := ResolveIdentity(def)
	if err != nil {
		return queryir.Descriptor{}, newError(ErrCodeInternal, "", "", "resolve identity: %v", err)
	}

	includeAssociationRows := false
	if opts.GuaranteeUniqueIdentity {
		switch {
		case def.Cardinality == ir.CardinalityManyToMany && def.JoinType.IsOuter():
			return queryir.Descriptor{}, newError(ErrCodeUnsupportedCardinality, "", "",
				"unique identity cannot be guaranteed for an outer many-to-many join")
		case def.Cardinality == ir.CardinalityManyToMany:
			includeAssociationRows = true
		case identity.IsNone():
			return queryir.Descriptor{}, newError(ErrCodeUnsupportedCardinality, def.PreservedTable(), "",
				"a %s %s join keeping the referenced side has no unique identity", def.Cardinality, def.RequestedJoinType)
		}
	}

	fields, err := Project(c.target, def, identity, opts)
	if err != nil {
		return queryir.Descriptor{}, err
	}

	desc := queryir.Descriptor{
		Association:            def.Association,
		Cardinality:            def.Cardinality,
		RequestedJoinType:      def.RequestedJoinType,
		JoinType:               def.JoinType,
		Tables:                 def.Tables,
		Fields:                 fields,
		GeometryTable:          def.GeometryTable,
		DrivingTable:           def.Driving.Name,
		IncludeAssociationRows: includeAssociationRows,
	}
	if !identity.IsNone() {
		desc.IdentityField = c.target.QualifyFieldName(identity.Table, identity.Field)
		desc.IdentityTable = identity.Table
	}

	desc.Mode = queryir.ModePushDown
	if identity.IsNone() || includeAssociationRows {
		desc.Mode = queryir.ModeVirtual
	}

	desc.Strategy = queryir.StrategyPredicate
	if def.JoinType.IsOuter() && !c.target.GetJoinCapability().SupportsPredicateOuterJoin {
		desc.Strategy = queryir.StrategyStatement
	}
	switch desc.Strategy {
	case queryir.StrategyPredicate:
		desc.Predicate = def.Predicate()
	case queryir.StrategyStatement:
		desc.Statement = def.Statement()
	}

	if err := queryir.Validate(desc).Err(); err != nil {
		return queryir.Descriptor{}, newError(ErrCodeInternal, "", "", "compiled descriptor is invalid: %v", err)
	}

	c.logger.Debug("compiled join",
		"association", ir.AssociationName(def.Association),
		"join", def.RequestedJoinType,
		"positional", def.JoinType,
		"tables", desc.TableNames(),
		"strategy", desc.Strategy,
		"mode", desc.Mode,
		"identity", identity.String(),
	)
	return desc, nil
}
