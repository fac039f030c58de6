package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
)

// riskColumn maps an entity field to its risks table column.
type riskColumn struct {
	field   string
	column  string
	dest    func(r *domain.Risk) any
	decimal bool
}

// compareExpr is the SQL used to filter and sort on the column.
// SQLite keeps decimals as text, so they are cast before comparing.
func (c riskColumn) compareExpr(driver string) string {
	if c.decimal && driver != "postgres" {
		return "CAST(" + c.column + " AS REAL)"
	}
	return c.column
}

var riskColumns = []riskColumn{
	{domain.RiskFieldID, "id", func(r *domain.Risk) any { return &r.ID }, false},
	{"title", "title", func(r *domain.Risk) any { return textDest{&r.Title} }, false},
	{"owner", "owner", func(r *domain.Risk) any { return textDest{&r.Owner} }, false},
	{"descr", "descr", func(r *domain.Risk) any { return textDest{&r.Descr} }, false},
	{domain.RiskFieldPrioCode, "prio_code", func(r *domain.Risk) any { return textDest{&r.PrioCode} }, false},
	{domain.RiskFieldImpact, "impact", func(r *domain.Risk) any { return &r.Impact }, true},
	{domain.RiskFieldPartnerKey, "bp_business_partner", func(r *domain.Risk) any { return textDest{&r.BusinessPartnerID} }, false},
	{"createdAt", "created_at", func(r *domain.Risk) any { return &r.CreatedAt }, false},
	{"modifiedAt", "modified_at", func(r *domain.Risk) any { return &r.ModifiedAt }, false},
}

// virtualFields are computed after the read and have no column.
var virtualFields = map[string]bool{
	domain.RiskFieldCriticality:     true,
	domain.RiskFieldPrioCriticality: true,
}

func lookupColumn(field string) (riskColumn, bool) {
	for _, c := range riskColumns {
		if c.field == field {
			return c, true
		}
	}
	return riskColumn{}, false
}

// projection resolves the columns to read. No projection or a wildcard
// selects everything; the key column is always included.
func projection(cols []query.Column) ([]riskColumn, error) {
	if len(cols) == 0 {
		return riskColumns, nil
	}

	picked := map[string]bool{domain.RiskFieldID: true}
	wildcard := false
	for _, c := range cols {
		if c.IsExpand() {
			return nil, fmt.Errorf("%w: cannot expand %q in the risk store", ErrInvalidInput, strings.Join(c.Ref, "/"))
		}
		if len(c.Ref) != 1 {
			return nil, fmt.Errorf("%w: unsupported column path %q", ErrInvalidInput, strings.Join(c.Ref, "/"))
		}

		name := c.Ref[0]
		switch {
		case name == query.Wildcard:
			wildcard = true
			continue
		case virtualFields[name]:
			continue
		}
		if _, ok := lookupColumn(name); !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrInvalidInput, name)
		}
		picked[name] = true
	}

	if wildcard {
		return riskColumns, nil
	}

	// Keep table order so the SELECT list is stable
	out := make([]riskColumn, 0, len(picked))
	for _, c := range riskColumns {
		if picked[c.field] {
			out = append(out, c)
		}
	}
	return out, nil
}

var sqlOperators = map[query.Op]string{
	query.OpEq: "=",
	query.OpNe: "<>",
	query.OpGt: ">",
	query.OpGe: ">=",
	query.OpLt: "<",
	query.OpLe: "<=",
}

// whereClause renders conjunctive predicates with ? placeholders.
// eq/ne against null become IS NULL / IS NOT NULL.
func whereClause(preds []query.Predicate, driver string) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	terms := make([]string, 0, len(preds))
	var args []any
	for _, p := range preds {
		col, ok := lookupColumn(p.Field)
		if !ok {
			return "", nil, fmt.Errorf("%w: cannot filter on %q", ErrInvalidInput, p.Field)
		}

		expr := col.compareExpr(driver)
		if p.Op == query.OpIn {
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(p.Values)), ", ")
			terms = append(terms, expr+" IN ("+marks+")")
			args = append(args, p.Values...)
			continue
		}

		if p.Value == nil {
			switch p.Op {
			case query.OpEq:
				terms = append(terms, col.column+" IS NULL")
			case query.OpNe:
				terms = append(terms, col.column+" IS NOT NULL")
			default:
				return "", nil, fmt.Errorf("%w: %s %s null", ErrInvalidInput, p.Field, p.Op)
			}
			continue
		}

		terms = append(terms, expr+" "+sqlOperators[p.Op]+" ?")
		args = append(args, p.Value)
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

func orderClause(orders []query.Order, driver string) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		col, ok := lookupColumn(o.Field)
		if !ok {
			return "", fmt.Errorf("%w: cannot order by %q", ErrInvalidInput, o.Field)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts = append(parts, col.compareExpr(driver)+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// textDest scans a nullable text column into a plain string.
type textDest struct {
	dst *string
}

func (t textDest) Scan(src any) error {
	var ns sql.NullString
	if err := ns.Scan(src); err != nil {
		return err
	}
	*t.dst = ns.String
	return nil
}
