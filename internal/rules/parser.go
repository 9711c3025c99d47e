// internal/rules/parser.go
package rules

import (
	"fmt"

	"github.com/dgr198213-ui/Agent00/internal/types"
)

/*
 * Recursive-descent condition parser.
 *
 * Grammar, lowest to highest precedence:
 *
 *   Or         := And ('or' And)*
 *   And        := Comparison ('and' Comparison)*
 *   Comparison := Primary (Operator Primary)?
 *   Primary    := Identifier | Literal | '(' Or ')'
 *
 * and/or are left-associative. A Comparison holds at most one operator, so
 * "a > b > c" leaves a dangling operator and fails. Fail-fast: the first
 * error is returned and no partial AST escapes. Trailing tokens after a
 * complete expression are an error. Parenthesis nesting is capped at
 * types.MaxNestingDepth to bound recursion.
 */

// SyntaxError reports a tokenize or parse failure at a byte offset.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

type parser struct {
	tokens []Token
	pos    int
	depth  int
	end    int // byte offset reported for end-of-input errors
}

// Parse tokenizes and parses a condition into an AST.
func Parse(condition string) (Node, error) {
	tokens, err := Tokenize(condition)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens, len(condition))
}

// ParseTokens parses a token stream. end is the input length, used to
// position end-of-input errors.
func ParseTokens(tokens []Token, end int) (Node, error) {
	p := &parser{tokens: tokens, end: end}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok, ok := p.peek(); ok {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected token %q", tok.Text)}
	}
	return node, nil
}

func (p *parser) peek() (Token, bool) {
	if p.pos >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) peekIs(kind TokenKind, text string) bool {
	tok, ok := p.peek()
	return ok && tok.Kind == kind && tok.Text == text
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekIs(TokenLogical, "or") {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Operator: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peekIs(TokenLogical, "and") {
		p.pos++
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Operator: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenOperator {
		return left, nil
	}
	p.pos++
	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &BinaryOp{Operator: tok.Text, Left: left, Right: right}, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, &SyntaxError{Pos: p.end, Msg: "unexpected end of input"}
	}

	switch {
	case tok.Kind == TokenPath:
		p.pos++
		return &Identifier{Path: tok.Text}, nil
	case tok.Kind == TokenValue:
		p.pos++
		return &Literal{Value: tok.Value}, nil
	case tok.Kind == TokenParen && tok.Text == "(":
		p.pos++
		p.depth++
		if p.depth > types.MaxNestingDepth {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "parentheses nested too deeply"}
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.depth--
		if !p.peekIs(TokenParen, ")") {
			return nil, &SyntaxError{Pos: tok.Pos, Msg: "unmatched '('"}
		}
		p.pos++
		return inner, nil
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected token %q", tok.Text)}
	}
}
