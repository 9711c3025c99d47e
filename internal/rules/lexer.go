// internal/rules/lexer.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
)

/*
 * Condition tokenizer.
 *
 * Lexes a condition string into a flat token stream in input order, no
 * backtracking. Recognition order at each position:
 *   1. parentheses
 *   2. logical keywords and/or (case-insensitive, whole word)
 *   3. comparison operators ==, !=, >=, <=, in, >, <
 *   4. single or double quoted string literals
 *   5. numeric literals with optional unit suffix
 *   6. dotted identifiers [A-Za-z][A-Za-z0-9_.]*
 *
 * Unit suffixes are folded at lex time into canonical units:
 *   KB, MB -> bytes;  s, min -> milliseconds
 *
 * Not supported: negative literals, escaped quotes, compound units.
 *
 * An unterminated quoted string consumes the rest of the input and yields a
 * Value token; it is not an error. Stored conditions may rely on this, so the
 * behavior is kept as-is.
 */

// TokenKind classifies a token.
type TokenKind int

const (
	TokenParen TokenKind = iota
	TokenLogical
	TokenOperator
	TokenValue
	TokenPath
)

func (k TokenKind) String() string {
	switch k {
	case TokenParen:
		return "paren"
	case TokenLogical:
		return "logical"
	case TokenOperator:
		return "operator"
	case TokenValue:
		return "value"
	case TokenPath:
		return "path"
	default:
		return "unknown"
	}
}

// Token is one lexeme of a condition.
// Text is normalized: logical keywords are lower-cased, string literals are
// unquoted and numbers are in canonical units. Value holds the literal
// (string or float64) for TokenValue.
type Token struct {
	Kind  TokenKind
	Text  string
	Value any
	Pos   int
}

// Unit multipliers applied to numeric literals.
const (
	bytesPerKB  = 1024
	bytesPerMB  = 1024 * 1024
	msPerSecond = 1000
	msPerMinute = 60 * 1000
)

// units is checked longest-first so "min" wins over a bare "m" prefix.
var units = []struct {
	suffix string
	factor float64
}{
	{"min", msPerMinute},
	{"MB", bytesPerMB},
	{"KB", bytesPerKB},
	{"s", msPerSecond},
}

// operators is ordered so two-character operators match before their prefixes.
var operators = []string{"==", "!=", ">=", "<=", "in", ">", "<"}

// Tokenize lexes a condition into tokens.
// Returns an error only for characters that start no token.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	pos := 0

	for pos < len(input) {
		ch := input[pos]

		if isSpace(ch) {
			pos++
			continue
		}

		if ch == '(' || ch == ')' {
			tokens = append(tokens, Token{Kind: TokenParen, Text: string(ch), Pos: pos})
			pos++
			continue
		}

		if word, ok := matchWord(input, pos, "and", "or"); ok {
			tokens = append(tokens, Token{Kind: TokenLogical, Text: word, Pos: pos})
			pos += len(word)
			continue
		}

		if op, ok := matchOperator(input, pos); ok {
			tokens = append(tokens, Token{Kind: TokenOperator, Text: op, Pos: pos})
			pos += len(op)
			continue
		}

		if ch == '\'' || ch == '"' {
			tok, next := readString(input, pos)
			tokens = append(tokens, tok)
			pos = next
			continue
		}

		if isDigit(ch) {
			tok, next := readNumber(input, pos)
			tokens = append(tokens, tok)
			pos = next
			continue
		}

		if isLetter(ch) {
			start := pos
			for pos < len(input) && isIdentChar(input[pos]) {
				pos++
			}
			tokens = append(tokens, Token{Kind: TokenPath, Text: input[start:pos], Pos: start})
			continue
		}

		return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("unexpected character %q", ch)}
	}

	return tokens, nil
}

// matchWord matches any of words case-insensitively at pos, requiring that
// the word is not followed by an identifier character ("order" is a path,
// not "or" + "der").
func matchWord(input string, pos int, words ...string) (string, bool) {
	for _, w := range words {
		end := pos + len(w)
		if end > len(input) || !strings.EqualFold(input[pos:end], w) {
			continue
		}
		if end < len(input) && isIdentChar(input[end]) {
			continue
		}
		return w, true
	}
	return "", false
}

func matchOperator(input string, pos int) (string, bool) {
	for _, op := range operators {
		if !strings.HasPrefix(input[pos:], op) {
			continue
		}
		// "in" is a keyword only as a whole word ("index" is a path).
		if op == "in" && pos+2 < len(input) && isIdentChar(input[pos+2]) {
			continue
		}
		return op, true
	}
	return "", false
}

// readString reads a quoted literal starting at the opening quote.
// Without a closing quote the remainder of input becomes the literal.
func readString(input string, pos int) (Token, int) {
	quote := input[pos]
	start := pos + 1
	end := strings.IndexByte(input[start:], quote)
	if end < 0 {
		s := input[start:]
		return Token{Kind: TokenValue, Text: s, Value: s, Pos: pos}, len(input)
	}
	s := input[start : start+end]
	return Token{Kind: TokenValue, Text: s, Value: s, Pos: pos}, start + end + 1
}

// readNumber reads digits with an optional fraction and unit suffix.
func readNumber(input string, pos int) (Token, int) {
	start := pos
	for pos < len(input) && isDigit(input[pos]) {
		pos++
	}
	if pos+1 < len(input) && input[pos] == '.' && isDigit(input[pos+1]) {
		pos++
		for pos < len(input) && isDigit(input[pos]) {
			pos++
		}
	}

	// ParseFloat cannot fail on a run of digits with at most one fraction.
	n, _ := strconv.ParseFloat(input[start:pos], 64)

	for _, u := range units {
		end := pos + len(u.suffix)
		if end > len(input) || input[pos:end] != u.suffix {
			continue
		}
		if end < len(input) && isIdentChar(input[end]) {
			continue
		}
		n *= u.factor
		pos = end
		break
	}

	return Token{Kind: TokenValue, Text: strconv.FormatFloat(n, 'f', -1, 64), Value: n, Pos: start}, pos
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '.'
}
