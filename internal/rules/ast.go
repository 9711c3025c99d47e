// internal/rules/ast.go
package rules

import (
	"strconv"
	"strings"
)

// Node is a condition AST node: *Literal, *Identifier or *BinaryOp.
// Nodes are immutable once built and owned by the evaluation that parsed them.
type Node interface {
	String() string
	node()
}

// Literal is a string or float64 constant.
type Literal struct {
	Value any
}

// Identifier is a dotted context lookup path such as "file.size".
type Identifier struct {
	Path string
}

// BinaryOp is a comparison or a logical and/or.
type BinaryOp struct {
	Operator string
	Left     Node
	Right    Node
}

func (*Literal) node()    {}
func (*Identifier) node() {}
func (*BinaryOp) node()   {}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case string:
		return "'" + v + "'"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "?"
	}
}

func (i *Identifier) String() string {
	return i.Path
}

func (b *BinaryOp) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(b.Left.String())
	sb.WriteString(" ")
	sb.WriteString(b.Operator)
	sb.WriteString(" ")
	sb.WriteString(b.Right.String())
	sb.WriteString(")")
	return sb.String()
}
