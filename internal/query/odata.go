package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Filter renders the predicates as an OData $filter expression.
// OData v2 has no in operator, so OpIn becomes a parenthesised eq/or chain.
func (s *Select) Filter() (string, error) {
	terms := make([]string, 0, len(s.Where))
	for _, p := range s.Where {
		if err := p.Validate(); err != nil {
			return "", err
		}
		if p.Op == OpIn {
			alts := make([]string, 0, len(p.Values))
			for _, v := range p.Values {
				lit, err := formatLiteral(v)
				if err != nil {
					return "", err
				}
				alts = append(alts, p.Field+" eq "+lit)
			}
			terms = append(terms, "("+strings.Join(alts, " or ")+")")
			continue
		}
		lit, err := formatLiteral(p.Value)
		if err != nil {
			return "", err
		}
		terms = append(terms, p.Field+" "+string(p.Op)+" "+lit)
	}
	return strings.Join(terms, " and "), nil
}

// Values renders the query as OData system query options.
func (s *Select) Values() (url.Values, error) {
	v := url.Values{}

	filter, err := s.Filter()
	if err != nil {
		return nil, err
	}
	if filter != "" {
		v.Set("$filter", filter)
	}

	var selects, expands []string
	wildcard := false
	for _, c := range s.Columns {
		switch {
		case c.IsExpand():
			expands = append(expands, strings.Join(c.Ref, "/"))
		case c.Name() == Wildcard:
			wildcard = true
		default:
			selects = append(selects, strings.Join(c.Ref, "/"))
		}
	}
	if len(selects) > 0 && !wildcard {
		v.Set("$select", strings.Join(selects, ","))
	}
	if len(expands) > 0 {
		v.Set("$expand", strings.Join(expands, ","))
	}

	if len(s.OrderBy) > 0 {
		orders := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			orders[i] = o.Field
			if o.Desc {
				orders[i] += " desc"
			}
		}
		v.Set("$orderby", strings.Join(orders, ","))
	}
	if s.Limit > 0 {
		v.Set("$top", strconv.Itoa(s.Limit))
	}
	if s.Offset > 0 {
		v.Set("$skip", strconv.Itoa(s.Offset))
	}
	return v, nil
}

func formatLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("%w: unsupported literal %T", ErrInvalidQuery, v)
	}
}

// Parse builds a query from OData v4 system query options.
// Supported: $select, $expand (optionally with a nested $select), $filter
// (comparisons and in, joined with and), $orderby, $top and $skip.
func Parse(entity string, params url.Values) (*Select, error) {
	q := From(entity)

	if raw, ok := params["$select"]; ok {
		cols, err := parseSelect(strings.Join(raw, ","))
		if err != nil {
			return nil, err
		}
		q.Columns = cols
	}

	if raw := params.Get("$expand"); raw != "" {
		expands, err := parseExpand(raw)
		if err != nil {
			return nil, err
		}
		if q.Columns == nil {
			q.Columns = []Column{Ref(Wildcard)}
		}
		q.Columns = append(q.Columns, expands...)
	}

	if raw := params.Get("$filter"); raw != "" {
		preds, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		q.Where = preds
	}

	if raw := params.Get("$orderby"); raw != "" {
		orders, err := parseOrderBy(raw)
		if err != nil {
			return nil, err
		}
		q.OrderBy = orders
	}

	var err error
	if q.Limit, err = parseCount(params, "$top"); err != nil {
		return nil, err
	}
	if q.Offset, err = parseCount(params, "$skip"); err != nil {
		return nil, err
	}

	return q, nil
}

func parseSelect(raw string) ([]Column, error) {
	cols := []Column{}
	for _, item := range strings.Split(raw, ",") {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		if name != Wildcard && !isIdent(name) {
			return nil, fmt.Errorf("%w: bad $select item %q", ErrInvalidQuery, name)
		}
		cols = append(cols, Ref(name))
	}
	return cols, nil
}

func parseExpand(raw string) ([]Column, error) {
	var cols []Column
	for _, item := range splitTopLevel(raw, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, opts := item, ""
		if i := strings.IndexByte(item, '('); i >= 0 {
			if !strings.HasSuffix(item, ")") {
				return nil, fmt.Errorf("%w: unbalanced $expand item %q", ErrInvalidQuery, item)
			}
			name, opts = strings.TrimSpace(item[:i]), item[i+1:len(item)-1]
		}
		if !isIdent(name) {
			return nil, fmt.Errorf("%w: bad $expand item %q", ErrInvalidQuery, item)
		}

		var sub []Column
		for _, opt := range splitTopLevel(opts, ';') {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				continue
			}
			key, val, ok := strings.Cut(opt, "=")
			if !ok || strings.TrimSpace(key) != "$select" {
				return nil, fmt.Errorf("%w: unsupported $expand option %q", ErrInvalidQuery, opt)
			}
			parsed, err := parseSelect(val)
			if err != nil {
				return nil, err
			}
			sub = parsed
		}
		cols = append(cols, Expand(name, sub...))
	}
	return cols, nil
}

func parseOrderBy(raw string) ([]Order, error) {
	var orders []Order
	for _, item := range strings.Split(raw, ",") {
		fields := strings.Fields(item)
		if len(fields) == 0 || len(fields) > 2 || !isIdent(fields[0]) {
			return nil, fmt.Errorf("%w: bad $orderby item %q", ErrInvalidQuery, item)
		}
		o := Order{Field: fields[0]}
		if len(fields) == 2 {
			switch strings.ToLower(fields[1]) {
			case "asc":
			case "desc":
				o.Desc = true
			default:
				return nil, fmt.Errorf("%w: bad sort direction %q", ErrInvalidQuery, fields[1])
			}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func parseCount(params url.Values, key string) (int, error) {
	raw := params.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidQuery, key)
	}
	return n, nil
}

// splitTopLevel splits s on sep, ignoring separators inside parentheses.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
