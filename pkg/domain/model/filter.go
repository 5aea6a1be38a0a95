package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FilterExpr is a JSON expression tree evaluated against an attribute map.
//
//	{"and": [...]}, {"or": [...]}, {"not": {...}},
//	{"field": "incident_type", "op": "==", "value": "Security"}
//
// An empty expression matches everything.
type FilterExpr struct {
	And   []*FilterExpr `json:"and,omitempty"`
	Or    []*FilterExpr `json:"or,omitempty"`
	Not   *FilterExpr   `json:"not,omitempty"`
	Field string        `json:"field,omitempty"`
	Op    string        `json:"op,omitempty"`
	Value any           `json:"value,omitempty"`
}

// Filter operators
const (
	OpEq       = "=="
	OpNe       = "!="
	OpIn       = "in"
	OpNotIn    = "not_in"
	OpContains = "contains"
	OpLike     = "like"
	OpAny      = "any"
	OpGt       = ">"
	OpGe       = ">="
	OpLt       = "<"
	OpLe       = "<="
)

// IsEmpty reports whether the expression has no condition
func (f *FilterExpr) IsEmpty() bool {
	return f == nil || (len(f.And) == 0 && len(f.Or) == 0 && f.Not == nil && f.Field == "")
}

// Validate checks operators and structure recursively
func (f *FilterExpr) Validate() error {
	if f.IsEmpty() {
		return nil
	}
	n := 0
	if len(f.And) > 0 {
		n++
	}
	if len(f.Or) > 0 {
		n++
	}
	if f.Not != nil {
		n++
	}
	if f.Field != "" {
		n++
	}
	if n != 1 {
		return fmt.Errorf("filter node must have exactly one of and/or/not/field")
	}
	for _, c := range append(append([]*FilterExpr{}, f.And...), f.Or...) {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if f.Not != nil {
		return f.Not.Validate()
	}
	if f.Field != "" {
		switch f.Op {
		case OpEq, OpNe, OpIn, OpNotIn, OpContains, OpLike, OpAny, OpGt, OpGe, OpLt, OpLe:
		case "":
			return fmt.Errorf("filter on %q has no operator", f.Field)
		default:
			return fmt.Errorf("unknown filter operator %q", f.Op)
		}
	}
	return nil
}

// Match evaluates the expression against attrs. Attribute values may be
// scalars or []string / []any for multi-valued fields such as tags.
func (f *FilterExpr) Match(attrs map[string]any) bool {
	if f.IsEmpty() {
		return true
	}
	switch {
	case len(f.And) > 0:
		for _, c := range f.And {
			if !c.Match(attrs) {
				return false
			}
		}
		return true
	case len(f.Or) > 0:
		for _, c := range f.Or {
			if c.Match(attrs) {
				return true
			}
		}
		return false
	case f.Not != nil:
		return !f.Not.Match(attrs)
	}

	actual := toStrings(attrs[f.Field])
	expected := toStrings(f.Value)

	switch f.Op {
	case OpEq:
		return len(expected) == 1 && containsFold(actual, expected[0])
	case OpNe:
		return len(expected) == 1 && !containsFold(actual, expected[0])
	case OpIn, OpAny:
		for _, e := range expected {
			if containsFold(actual, e) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, e := range expected {
			if containsFold(actual, e) {
				return false
			}
		}
		return true
	case OpContains, OpLike:
		if len(expected) != 1 {
			return false
		}
		needle := strings.ToLower(expected[0])
		for _, a := range actual {
			if strings.Contains(strings.ToLower(a), needle) {
				return true
			}
		}
		return false
	case OpGt, OpGe, OpLt, OpLe:
		if len(actual) != 1 || len(expected) != 1 {
			return false
		}
		return compareNumbers(actual[0], expected[0], f.Op)
	}
	return false
}

func compareNumbers(a, b, op string) bool {
	x, err1 := strconv.ParseFloat(a, 64)
	y, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		// fall back to lexical order, which works for RFC3339 timestamps
		switch op {
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	switch op {
	case OpGt:
		return x > y
	case OpGe:
		return x >= y
	case OpLt:
		return x < y
	default:
		return x <= y
	}
}

func containsFold(values []string, v string) bool {
	for _, a := range values {
		if strings.EqualFold(a, v) {
			return true
		}
	}
	return false
}

func toStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, toStrings(e)...)
		}
		return out
	case bool:
		return []string{strconv.FormatBool(x)}
	case int:
		return []string{strconv.Itoa(x)}
	case int64:
		return []string{strconv.FormatInt(x, 10)}
	case float64:
		return []string{strconv.FormatFloat(x, 'f', -1, 64)}
	case json.Number:
		return []string{x.String()}
	case fmt.Stringer:
		return []string{x.String()}
	default:
		return []string{fmt.Sprint(x)}
	}
}
