// Package jsonpath filters JSON-shaped values with JSONPath expressions.
package jsonpath

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ohler55/ojg/jp"
)

var (
	ErrPathParse     = errors.New("invalid json path")
	ErrInvalidNumber = errors.New("number fits neither int64 nor float64")
)

// Path is a compiled JSONPath expression. A nil *Path matches the whole value.
type Path struct {
	src  string
	expr jp.Expr
}

func Parse(expr string) (*Path, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrPathParse, expr, err)
	}
	return &Path{src: expr, expr: x}, nil
}

// ParseOptional returns a nil path for the empty expression.
func ParseOptional(expr string) (*Path, error) {
	if expr == "" {
		return nil, nil
	}
	return Parse(expr)
}

func (p *Path) String() string {
	if p == nil {
		return ""
	}
	return p.src
}

// Match evaluates p against v, a generic JSON tree as produced by ToValue.
// No matches yields (nil, false). One match is returned as is. More than one
// is returned as a []any in document order.
func Match(p *Path, v any) (any, bool) {
	if p == nil {
		return v, true
	}
	got := p.expr.Get(v)
	switch len(got) {
	case 0:
		return nil, false
	case 1:
		return got[0], true
	default:
		return got, true
	}
}

// Filter converts x with ToValue and matches it against p.
func Filter(p *Path, x any) (any, bool, error) {
	v, err := ToValue(x)
	if err != nil {
		return nil, false, err
	}
	out, ok := Match(p, v)
	return out, ok, nil
}

// ToValue turns any JSON-marshalable value into a generic tree of
// map[string]any, []any, string, bool, nil, int64 and float64. Integers are
// kept as int64 when representable.
func ToValue(x any) (any, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Decode parses raw JSON into the same generic tree as ToValue.
func Decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v)
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		return number(t)
	case map[string]any:
		for k, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, e := range t {
			n, err := normalize(e)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	default:
		return v, nil
	}
}

func number(n json.Number) (any, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNumber, n)
	}
	return f, nil
}
