// internal/rules/coercion.go
package rules

import (
	"math"
	"reflect"
	"strconv"
	"strings"
)

/*
 * Loose value semantics used by the evaluator.
 *
 * Conditions are evaluated with script-style semantics rather than Go's:
 *
 *   truthy:    undefined, nil, false, 0, NaN and "" are false; everything
 *              else (including empty maps and lists) is true
 *   toNumber:  undefined -> NaN, nil -> 0, bool -> 0/1, numeric strings are
 *              parsed after trimming ("" -> 0), anything else -> NaN
 *   strict:    equal only when both sides have the same kind and value;
 *              numbers compare by value across Go numeric types, NaN is
 *              never equal, maps and lists are equal only to themselves
 *
 * Context values come from encoding/json or structpb (float64, string, bool,
 * nil, []any, map[string]any) but Go callers may pass other numeric types.
 */

// truthy converts a value to boolean.
func truthy(v any) bool {
	switch t := v.(type) {
	case undefinedValue, nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := asFloat(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// toNumber converts a value for relational comparison.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case undefinedValue:
		return math.NaN()
	case nil:
		return 0
	case bool:
		if t {
			return 1
		}
		return 0
	case string:
		return parseNumber(t)
	case []any:
		// A single-element list coerces through its element.
		switch len(t) {
		case 0:
			return 0
		case 1:
			if t[0] == nil {
				return 0
			}
			if s, ok := t[0].(string); ok {
				return parseNumber(s)
			}
			if n, ok := asFloat(t[0]); ok {
				return n
			}
		}
		return math.NaN()
	}
	if n, ok := asFloat(v); ok {
		return n
	}
	return math.NaN()
}

// parseNumber parses a numeric string. Accepts decimal and exponent forms,
// 0x/0o/0b integer prefixes and [+-]Infinity. Rejects Go-only syntax such as
// underscores, "inf" or "nan".
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			if strings.ContainsRune(s, '_') {
				return math.NaN()
			}
			n, err := strconv.ParseUint(s, 0, 64)
			if err != nil {
				return math.NaN()
			}
			return float64(n)
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(isDigit(c) || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

// asFloat converts Go numeric types to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// strictEqual compares without type conversion.
func strictEqual(a, b any) bool {
	if IsUndefined(a) || IsUndefined(b) {
		return IsUndefined(a) && IsUndefined(b)
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if na, ok := asFloat(a); ok {
		nb, ok := asFloat(b)
		return ok && na == nb
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}

	return sameReference(a, b)
}

// sameValueZero is strictEqual except NaN equals NaN; used for membership.
func sameValueZero(a, b any) bool {
	if na, ok := asFloat(a); ok && math.IsNaN(na) {
		nb, ok := asFloat(b)
		return ok && math.IsNaN(nb)
	}
	return strictEqual(a, b)
}

// sameReference reports whether two maps or slices share backing storage.
func sameReference(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != vb.Kind() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		return false
	}
}
