package query

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == '\'':
			var b strings.Builder
			start := i
			i++
			for {
				if i >= len(s) {
					return nil, fmt.Errorf("%w: unterminated string at %d", ErrInvalidQuery, start)
				}
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			toks = append(toks, token{tokString, b.String(), start})
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i], start})
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			start := i
			for i < len(s) && (s[i] == '_' || (s[i] >= 'a' && s[i] <= 'z') || (s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= '0' && s[i] <= '9')) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start})
		default:
			return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidQuery, c, i)
		}
	}
	return toks, nil
}

type filterParser struct {
	toks []token
	pos  int
}

// parseFilter parses a conjunction of comparisons:
//
//	term ("and" term)*
//	term = field op literal | field "in" "(" literal ("," literal)* ")"
func parseFilter(raw string) ([]Predicate, error) {
	toks, err := lex(raw)
	if err != nil {
		return nil, err
	}
	p := &filterParser{toks: toks}

	var preds []Predicate
	for {
		pred, err := p.term()
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)

		if p.done() {
			return preds, nil
		}
		if !p.keyword("and") {
			return nil, p.errorf("expected and")
		}
	}
}

func (p *filterParser) done() bool {
	return p.pos >= len(p.toks)
}

func (p *filterParser) next() (token, bool) {
	if p.done() {
		return token{}, false
	}
	t := p.toks[p.pos]
	p.pos++
	return t, true
}

func (p *filterParser) keyword(word string) bool {
	if p.done() {
		return false
	}
	t := p.toks[p.pos]
	if t.kind == tokIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *filterParser) errorf(format string, args ...any) error {
	at := "end of input"
	if !p.done() {
		at = fmt.Sprintf("position %d", p.toks[p.pos].pos)
	}
	return fmt.Errorf("%w: %s at %s", ErrInvalidQuery, fmt.Sprintf(format, args...), at)
}

func (p *filterParser) term() (Predicate, error) {
	field, ok := p.next()
	if !ok || field.kind != tokIdent {
		return Predicate{}, p.errorf("expected field name")
	}

	opTok, ok := p.next()
	if !ok || opTok.kind != tokIdent {
		return Predicate{}, p.errorf("expected operator after %s", field.text)
	}
	op := Op(strings.ToLower(opTok.text))
	if !op.valid() {
		return Predicate{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, opTok.text)
	}

	if op != OpIn {
		v, err := p.literal()
		if err != nil {
			return Predicate{}, err
		}
		return Predicate{Field: field.text, Op: op, Value: v}, nil
	}

	if t, ok := p.next(); !ok || t.kind != tokLParen {
		return Predicate{}, p.errorf("expected ( after in")
	}
	var values []any
	for {
		v, err := p.literal()
		if err != nil {
			return Predicate{}, err
		}
		values = append(values, v)

		t, ok := p.next()
		if !ok {
			return Predicate{}, p.errorf("expected ) to close in list")
		}
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return Predicate{}, p.errorf("expected , or )")
		}
	}
	return Predicate{Field: field.text, Op: OpIn, Values: values}, nil
}

func (p *filterParser) literal() (any, error) {
	t, ok := p.next()
	if !ok {
		return nil, p.errorf("expected literal")
	}
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		if strings.Contains(t.text, ".") {
			f, err := strconv.ParseFloat(t.text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrInvalidQuery, t.text)
			}
			return f, nil
		}
		n, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrInvalidQuery, t.text)
		}
		return n, nil
	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrInvalidQuery, t.text, t.pos)
}
