// Package peg is the parsing engine: a recursive-descent PEG recognizer
// that walks a grammar.CompiledGrammar's RuleExpr tree over a Cursor,
// which abstracts away whether the underlying input is raw characters or
// a token stream produced by the lexer package. It produces a raw
// Fragment tree — the parse tree before any ast shaping — and tracks the
// farthest failure position seen across the whole attempt so a failed
// parse can report a useful "expected X" error instead of just "no".
package peg

import "github.com/koine-lang/koine/token"

// Fragment is one node of the raw parse tree: the span of input a rule or
// combinator matched, and the sub-fragments its own parts produced.
// Fragment carries no tag and no interpretation of its own; the only value
// it holds is a lexer token's pre-coerced one (see Value). Shaping is the
// ast package's job once parsing succeeds.
type Fragment struct {
	// Rule is set only on fragments returned directly by a named rule
	// (i.e. produced by a "ref" node); fragments from literals, regexes,
	// tokens, and the unnamed combinators leave it empty.
	Rule string

	Text string

	// Value and HasValue carry a lexer token's own pre-coerced value
	// (spec.md §3 Token.value), set only on fragments produced by a
	// "token" match whose def carried an ast.type coercion. Unset for
	// every other fragment kind — shaping coerces those itself from Text.
	Value    any
	HasValue bool

	Start token.Position
	End   token.Position

	Children []*Fragment

	// Alt is the index into the producing choice's Parts that matched,
	// so a later shaping pass can pair this fragment with the RuleExpr
	// that actually produced it rather than guess from shape alone. -1
	// for fragments not produced by a choice.
	Alt int
}
