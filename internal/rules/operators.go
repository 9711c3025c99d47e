// internal/rules/operators.go
package rules

import (
	"fmt"
	"reflect"
)

/*
 * Comparison operators.
 *
 *   ==, !=           strict equality (see strictEqual)
 *   >, <, >=, <=     numeric coercion of both sides; NaN compares false
 *   in               right side must be a list; membership by SameValueZero
 *
 * Operands arrive already resolved by the evaluator.
 */

// Compare applies a comparison operator to resolved operands.
func Compare(op string, left, right any) (bool, error) {
	switch op {
	case "==":
		return strictEqual(left, right), nil
	case "!=":
		return !strictEqual(left, right), nil
	case ">":
		return toNumber(left) > toNumber(right), nil
	case "<":
		return toNumber(left) < toNumber(right), nil
	case ">=":
		return toNumber(left) >= toNumber(right), nil
	case "<=":
		return toNumber(left) <= toNumber(right), nil
	case "in":
		return contains(right, left), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// contains reports whether list holds value. Non-list right sides never match.
func contains(list, value any) bool {
	switch l := list.(type) {
	case []any:
		for _, elem := range l {
			if sameValueZero(elem, value) {
				return true
			}
		}
		return false
	case []string:
		s, ok := value.(string)
		if !ok {
			return false
		}
		for _, elem := range l {
			if elem == s {
				return true
			}
		}
		return false
	}

	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if sameValueZero(rv.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}
