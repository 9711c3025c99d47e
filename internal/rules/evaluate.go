// internal/rules/evaluate.go
package rules

import (
	"fmt"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * AST evaluation against a DecisionContext.
 *
 *   Literal     truthiness of its value
 *   Identifier  truthiness of the looked-up value (undefined is falsy)
 *   and / or    short-circuit over both sides
 *   comparison  left operand is always a context lookup; right operand is a
 *               context lookup for identifiers and the literal value for
 *               literals. Only Identifier nodes have a lookup path, so a
 *               literal or grouped sub-expression on the left resolves to
 *               undefined. Comparisons therefore never compose: a
 *               comparison's value cannot feed another comparison.
 *
 * An identifier on the right whose path is absent compares as undefined;
 * there is no fallback to treating the path text as a string.
 */

// Evaluate walks node against ctx and returns the condition outcome.
func Evaluate(node Node, ctx types.DecisionContext) (bool, error) {
	switch n := node.(type) {
	case *Literal:
		return truthy(n.Value), nil

	case *Identifier:
		return truthy(Lookup(ctx, n.Path)), nil

	case *BinaryOp:
		switch n.Operator {
		case "and":
			left, err := Evaluate(n.Left, ctx)
			if err != nil || !left {
				return false, err
			}
			return Evaluate(n.Right, ctx)
		case "or":
			left, err := Evaluate(n.Left, ctx)
			if err != nil || left {
				return left, err
			}
			return Evaluate(n.Right, ctx)
		}
		return Compare(n.Operator, resolveLeft(n.Left, ctx), resolveRight(n.Right, ctx))

	case nil:
		return false, fmt.Errorf("nil condition node")

	default:
		return false, fmt.Errorf("unknown condition node %T", node)
	}
}

// resolveLeft treats the left operand strictly as a context lookup.
func resolveLeft(node Node, ctx types.DecisionContext) any {
	if id, ok := node.(*Identifier); ok {
		return Lookup(ctx, id.Path)
	}
	return undefined
}

// resolveRight looks identifiers up and passes literals through.
func resolveRight(node Node, ctx types.DecisionContext) any {
	switch n := node.(type) {
	case *Identifier:
		return Lookup(ctx, n.Path)
	case *Literal:
		return n.Value
	default:
		return undefined
	}
}

// EvaluateCondition tokenizes, parses and evaluates a condition string.
func EvaluateCondition(condition string, ctx types.DecisionContext) (bool, error) {
	node, err := Parse(condition)
	if err != nil {
		return false, err
	}
	return Evaluate(node, ctx)
}
