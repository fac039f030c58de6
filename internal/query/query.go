// Package query provides the structured read request passed between the
// HTTP adapter, the handlers, the local store and the partner gateway.
package query

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidQuery is returned for query options that cannot be parsed or rendered.
var ErrInvalidQuery = errors.New("invalid query")

// Wildcard selects every column of an entity.
const Wildcard = "*"

// Column is one entry of a projection list.
// A column with a non-nil Expand asks for the related entity at Ref to be embedded.
type Column struct {
	Ref    []string `json:"ref"`
	Expand []Column `json:"expand,omitempty"`
}

// Ref returns a plain column for the given path.
func Ref(path ...string) Column {
	return Column{Ref: path}
}

// Expand returns an expand column for the association, selecting cols
// (all columns when none are given).
func Expand(assoc string, cols ...Column) Column {
	if len(cols) == 0 {
		cols = []Column{Ref(Wildcard)}
	}
	return Column{Ref: []string{assoc}, Expand: cols}
}

// IsExpand reports whether the column is an expand directive.
func (c Column) IsExpand() bool {
	return c.Expand != nil
}

// Name returns the first ref segment, or "" for an empty ref.
func (c Column) Name() string {
	if len(c.Ref) == 0 {
		return ""
	}
	return c.Ref[0]
}

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpIn Op = "in"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGe, OpLt, OpLe, OpIn:
		return true
	}
	return false
}

// Predicate compares a field against a value.
// OpIn uses Values, every other operator uses Value.
type Predicate struct {
	Field  string `json:"field"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// Eq returns field eq v.
func Eq(field string, v any) Predicate { return Predicate{Field: field, Op: OpEq, Value: v} }

// Ne returns field ne v.
func Ne(field string, v any) Predicate { return Predicate{Field: field, Op: OpNe, Value: v} }

// In returns field in (values...).
func In(field string, values ...any) Predicate {
	return Predicate{Field: field, Op: OpIn, Values: values}
}

// Validate checks the predicate is well formed.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("%w: predicate without field", ErrInvalidQuery)
	}
	if !p.Op.valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, p.Op)
	}
	if p.Op == OpIn && len(p.Values) == 0 {
		return fmt.Errorf("%w: %s in () needs at least one value", ErrInvalidQuery, p.Field)
	}
	return nil
}

// Order sorts by a field.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Select is a read request against one entity.
// A nil Columns means no projection was requested.
// Where predicates are conjunctive.
type Select struct {
	From    string      `json:"from"`
	Columns []Column    `json:"columns,omitempty"`
	Where   []Predicate `json:"where,omitempty"`
	OrderBy []Order     `json:"orderBy,omitempty"`
	Limit   int         `json:"limit,omitempty"`
	Offset  int         `json:"offset,omitempty"`
}

// From starts a query against the entity.
func From(entity string) *Select {
	return &Select{From: entity}
}

// Select sets the projection list.
func (s *Select) Select(cols ...Column) *Select {
	s.Columns = cols
	return s
}

// And conjoins predicates onto the filter.
func (s *Select) And(preds ...Predicate) *Select {
	s.Where = append(s.Where, preds...)
	return s
}

// FindExpand returns the index of the first expand column on assoc, or -1.
func (s *Select) FindExpand(assoc string) int {
	return slices.IndexFunc(s.Columns, func(c Column) bool {
		return c.IsExpand() && c.Name() == assoc
	})
}

// RemoveColumn drops the column at index i.
func (s *Select) RemoveColumn(i int) {
	s.Columns = slices.Delete(s.Columns, i, i+1)
}

// HasRef reports whether any column's ref path contains name.
func (s *Select) HasRef(name string) bool {
	return slices.ContainsFunc(s.Columns, func(c Column) bool {
		return slices.Contains(c.Ref, name)
	})
}

// AddColumn appends a plain column.
func (s *Select) AddColumn(path ...string) {
	s.Columns = append(s.Columns, Ref(path...))
}

// Validate checks all predicates and paging options.
func (s *Select) Validate() error {
	if s.From == "" {
		return fmt.Errorf("%w: missing entity", ErrInvalidQuery)
	}
	if s.Limit < 0 || s.Offset < 0 {
		return fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}
	for _, p := range s.Where {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the query.
func (s *Select) Clone() *Select {
	c := *s
	if s.Columns != nil {
		c.Columns = cloneColumns(s.Columns)
	}
	c.Where = slices.Clone(s.Where)
	for i := range c.Where {
		c.Where[i].Values = slices.Clone(c.Where[i].Values)
	}
	c.OrderBy = slices.Clone(s.OrderBy)
	return &c
}

func cloneColumns(cols []Column) []Column {
	out := make([]Column, len(cols))
	for i, col := range cols {
		out[i] = Column{Ref: slices.Clone(col.Ref)}
		if col.Expand != nil {
			out[i].Expand = cloneColumns(col.Expand)
		}
	}
	return out
}
