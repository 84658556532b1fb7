// Package columnar packs homogeneous records into typed columns with an
// inferred schema. Nested objects are flattened into dotted field names and
// arrays are kept as JSON text.
package columnar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"demoreel/internal/jsonpath"
)

var (
	ErrNotObject = errors.New("record is not a JSON object")
	ErrNullField = errors.New("null field")
)

// Type is a column type. Types form a chain; merging two observations
// yields the larger one.
type Type uint8

const (
	Null Type = iota
	Bool
	Int
	Float
	String
)

func (t Type) String() string {
	switch t {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int64"
	case Float:
		return "float64"
	case String:
		return "string"
	}
	return "unknown"
}

type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

type Schema struct {
	Fields []Field
}

func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

type Options struct {
	// AllowNullFields permits null or missing values. Without it any such
	// value is an error.
	AllowNullFields bool
}

// Column holds the values of one field. Only the slice matching Type is
// populated; Valid marks non-null rows.
type Column struct {
	Field
	Bools   []bool
	Ints    []int64
	Floats  []float64
	Strings []string
	Valid   []bool
}

// Value returns row i as a Go value, nil when null.
func (c *Column) Value(i int) any {
	if !c.Valid[i] {
		return nil
	}
	switch c.Type {
	case Bool:
		return c.Bools[i]
	case Int:
		return c.Ints[i]
	case Float:
		return c.Floats[i]
	case String:
		return c.Strings[i]
	}
	return nil
}

type Table struct {
	Schema  Schema
	Columns []*Column
	Rows    int
}

// Row returns row i keyed by field name.
func (t *Table) Row(i int) map[string]any {
	out := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		out[c.Name] = c.Value(i)
	}
	return out
}

// Infer computes the schema of records without building columns.
func Infer(records []any, opts Options) (Schema, error) {
	_, schema, err := flattenAll(records, opts)
	return schema, err
}

func Build(records []any, opts Options) (*Table, error) {
	rows, schema, err := flattenAll(records, opts)
	if err != nil {
		return nil, err
	}
	t := &Table{Schema: schema, Rows: len(rows)}
	for _, f := range schema.Fields {
		c := &Column{Field: f, Valid: make([]bool, len(rows))}
		switch f.Type {
		case Bool:
			c.Bools = make([]bool, len(rows))
		case Int:
			c.Ints = make([]int64, len(rows))
		case Float:
			c.Floats = make([]float64, len(rows))
		case String, Null:
			c.Strings = make([]string, len(rows))
		}
		for i, row := range rows {
			v, ok := row[f.Name]
			if !ok || v.typ == Null {
				continue
			}
			c.Valid[i] = true
			c.set(i, v)
		}
		t.Columns = append(t.Columns, c)
	}
	return t, nil
}

func (c *Column) set(i int, v scalar) {
	switch c.Type {
	case Bool:
		c.Bools[i] = v.b
	case Int:
		if v.typ == Bool {
			if v.b {
				c.Ints[i] = 1
			}
			return
		}
		c.Ints[i] = v.i
	case Float:
		switch v.typ {
		case Bool:
			if v.b {
				c.Floats[i] = 1
			}
		case Int:
			c.Floats[i] = float64(v.i)
		default:
			c.Floats[i] = v.f
		}
	case String:
		c.Strings[i] = v.text()
	}
}

type scalar struct {
	typ Type
	b   bool
	i   int64
	f   float64
	s   string
	raw string // JSON text of arrays
}

func (v scalar) text() string {
	switch v.typ {
	case Bool:
		return strconv.FormatBool(v.b)
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	if v.raw != "" {
		return v.raw
	}
	return v.s
}

func flattenAll(records []any, opts Options) ([]map[string]scalar, Schema, error) {
	var schema Schema
	index := make(map[string]int)
	rows := make([]map[string]scalar, 0, len(records))
	for n, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, Schema{}, fmt.Errorf("record %d: %w", n, err)
		}
		row := make(map[string]scalar)
		var names []string
		if err := flatten(b, "", row, &names); err != nil {
			return nil, Schema{}, fmt.Errorf("record %d: %w", n, err)
		}
		for _, name := range names {
			v := row[name]
			i, ok := index[name]
			if !ok {
				i = len(schema.Fields)
				index[name] = i
				schema.Fields = append(schema.Fields, Field{Name: name, Nullable: n > 0})
			}
			f := &schema.Fields[i]
			if v.typ > f.Type {
				f.Type = v.typ
			}
			if v.typ == Null {
				f.Nullable = true
			}
		}
		for i := range schema.Fields {
			if _, ok := row[schema.Fields[i].Name]; !ok {
				schema.Fields[i].Nullable = true
			}
		}
		rows = append(rows, row)
	}
	if !opts.AllowNullFields {
		for _, f := range schema.Fields {
			if f.Nullable {
				return nil, Schema{}, fmt.Errorf("%w: %s", ErrNullField, f.Name)
			}
		}
	}
	return rows, schema, nil
}

// flatten walks a JSON object in document order.
func flatten(b []byte, prefix string, row map[string]scalar, names *[]string) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := prefix + tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '{' {
			if err := flatten(raw, name+".", row, names); err != nil {
				return err
			}
			continue
		}
		v, err := scalarOf(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := row[name]; !dup {
			*names = append(*names, name)
		}
		row[name] = v
	}
	return nil
}

func scalarOf(raw []byte) (scalar, error) {
	switch raw[0] {
	case 'n':
		return scalar{typ: Null}, nil
	case 't':
		return scalar{typ: Bool, b: true}, nil
	case 'f':
		return scalar{typ: Bool}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return scalar{}, err
		}
		return scalar{typ: String, s: s}, nil
	case '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return scalar{}, err
		}
		return scalar{typ: String, raw: buf.String()}, nil
	}
	n, err := jsonpath.Decode(raw)
	if err != nil {
		return scalar{}, err
	}
	switch x := n.(type) {
	case int64:
		return scalar{typ: Int, i: x}, nil
	case float64:
		return scalar{typ: Float, f: x}, nil
	}
	return scalar{}, fmt.Errorf("unexpected value %s", raw)
}
