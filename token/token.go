// Package token defines the position and token types shared by every layer
// of Koine: the lexer produces Tokens, the PEG recognizer and AST shaper
// stamp every node with a Position, and error types carry one too.
package token

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Position is a 1-based line/column, 0-based offset location in source
// text. Offset counts characters (runes), not bytes, so that column
// arithmetic stays stable across UTF-8 input.
type Position struct {
	Line   int
	Col    int
	Offset int
}

// String renders a position as "line:col", matching the compact form used
// throughout the corpus's own position types.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// IsValid reports whether p was ever set by a scanner, as opposed to being
// the zero Position.
func (p Position) IsValid() bool {
	return p.Line > 0
}

// Token is a single lexeme produced by the lexer in lexer mode. Value is
// only set when the token's def carries an ast.type coercion.
type Token struct {
	Type     string
	Text     string
	Value    any
	HasValue bool
	Pos      Position
}

// CoerceValue implements the ast.type ∈ {number, bool, null} leaf
// coercions (spec.md §3 Token.value, §4.4 item 2). It is shared by the
// lexer (coercing a token's own text at lex time, per its def's ast.type)
// and the ast shaper (coercing a parsed leaf's text per an occurrence's
// own ast.type), so the two only ever disagree about when they run, never
// about what a given type string means.
func CoerceValue(text, typ string) (any, error) {
	text = strings.TrimSpace(text)
	switch typ {
	case "number":
		d, _, err := apd.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("ast.type: number: %q is not a valid number: %w", text, err)
		}
		return d, nil
	case "bool":
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, fmt.Errorf("ast.type: bool: %q is not true or false", text)
		}
	case "null":
		return nil, nil
	default:
		return nil, fmt.Errorf("ast.type: unrecognized type %q", typ)
	}
}
