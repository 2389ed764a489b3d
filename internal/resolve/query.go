package resolve

import (
	"errors"
	"strings"
)

// Kind is the query syntax a selector resolves to.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
)

func (k Kind) String() string {
	switch k {
	case KindXPath:
		return "xpath"
	default:
		return "css"
	}
}

var ErrEmptySelector = errors.New("empty selector")

// Query is a selector after syntax dispatch.
type Query struct {
	Selector string // as configured
	Kind     Kind
	Expr     string // trimmed expression handed to frames
}

// ParseQuery dispatches a selector: a leading "/" or "(" means an XPath
// expression, anything else is handed over as a CSS selector.
func ParseQuery(selector string) (Query, error) {
	expr := strings.TrimSpace(selector)
	if expr == "" {
		return Query{}, ErrEmptySelector
	}
	q := Query{Selector: selector, Kind: KindCSS, Expr: expr}
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(") {
		q.Kind = KindXPath
	}
	return q, nil
}

func (q Query) String() string {
	if q.Kind == KindXPath {
		return "xpath=" + q.Expr
	}
	return q.Expr
}
