// Package pathlang is the tiny grammar behind the transpiler's path and
// placeholder expressions: a dot-separated chain of segments, each either
// a bare name, an integer index (for {children.k}), or a nested
// placeholder ("{name}") that must be resolved against the current node's
// transpiled children before the rest of the path is walked.
//
// This is a small, fixed, closed language — the same category as the
// teacher's own .lift format — so it is built the same way: a static
// participle grammar over a lexer.MustSimple token set.
package pathlang

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var pathLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "LBrace", Pattern: `\{`},
	{Name: "RBrace", Pattern: `\}`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// Expr is a full path expression: one or more dot-separated Segments.
type Expr struct {
	Segments []*Segment `@@ ( "." @@ )*`
}

// Segment is one path component.
type Segment struct {
	Placeholder *string `  "{" @Ident "}"`
	Index       *int    `| @Int`
	Name        string  `| @Ident`
}

var parser = participle.MustBuild[Expr](
	participle.Lexer(pathLexer),
	participle.Elide("Whitespace"),
)

// Parse parses a path/placeholder expression.
func Parse(s string) (*Expr, error) {
	return parser.ParseString("", s)
}
