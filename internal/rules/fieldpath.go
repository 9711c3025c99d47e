// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * Dotted-path lookup over a DecisionContext.
 *
 * "file.size" walks ctx["file"]["size"]. A missing key, a nil or scalar
 * intermediate, or an out-of-range list index yields undefined, which is
 * distinct from an explicit null in the context. Lists accept numeric
 * segments ("items.0.name").
 */

// undefinedValue marks the result of a lookup that found nothing.
type undefinedValue struct{}

// undefined is returned by Lookup for absent paths. It is falsy, compares
// strictly equal only to itself, and coerces to NaN.
var undefined = undefinedValue{}

// IsUndefined reports whether v is the result of a failed lookup.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedValue)
	return ok
}

// Lookup resolves a dotted path against ctx.
// Returns the undefined sentinel when any segment is missing.
func Lookup(ctx types.DecisionContext, path string) any {
	if ctx == nil {
		return undefined
	}

	var current any = map[string]any(ctx)

	for _, seg := range strings.Split(path, ".") {
		next, ok := step(current, seg)
		if !ok {
			return undefined
		}
		current = next
	}
	return current
}

// step descends one path segment.
func step(current any, seg string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case types.DecisionContext:
		val, ok := v[seg]
		return val, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	default:
		return nil, false
	}
}
