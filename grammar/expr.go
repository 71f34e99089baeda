// Package grammar holds the compiled, executable form of a Koine grammar:
// the RuleExpr combinator tree, the per-rule and per-occurrence ast
// directives, and the CompiledGrammar/LexerSpec types the parsing engine
// walks. It also implements the grammar composer (§4.1): include merging,
// subgrammar expansion with namespacing, validation, and compilation from
// the raw map[string]any data model into this typed form.
//
// The source data model dispatches on a string key per node
// ("literal"/"regex"/"sequence"/...). Per the redesign flag in spec.md §9,
// that becomes a closed sum type here (Kind + the fields that kind uses)
// with exhaustive switches, rather than carrying the stringly-typed map
// through the recognizer.
package grammar

import "regexp"

// Kind discriminates the RuleExpr variants enumerated in spec.md §3.
type Kind int

const (
	KLiteral Kind = iota
	KRegex
	KToken
	KRef
	KSequence
	KChoice
	KZeroOrMore
	KOneOrMore
	KOptional
	KPosLookahead
	KNegLookahead
)

func (k Kind) String() string {
	switch k {
	case KLiteral:
		return "literal"
	case KRegex:
		return "regex"
	case KToken:
		return "token"
	case KRef:
		return "ref"
	case KSequence:
		return "sequence"
	case KChoice:
		return "choice"
	case KZeroOrMore:
		return "zero_or_more"
	case KOneOrMore:
		return "one_or_more"
	case KOptional:
		return "optional"
	case KPosLookahead:
		return "positive_lookahead"
	case KNegLookahead:
		return "negative_lookahead"
	default:
		return "unknown"
	}
}

// RuleExpr is the executable form of a grammar rule body (spec.md §3).
// Sequence/Choice use Parts; the unary combinators (ZeroOrMore, OneOrMore,
// Optional, the two lookaheads) use Parts[0] as their single child.
type RuleExpr struct {
	Kind Kind

	Literal string

	Pattern string
	Regex   *regexp.Regexp

	TokenName string

	RefName string

	Parts []*RuleExpr

	// Ast is the per-occurrence directive for this part, as seen from its
	// parent sequence — distinct from the rule-level directive carried by
	// Rule.Ast. Nil when this part carries no ast override.
	Ast *AstDirective
}

// Child returns the single child of a unary combinator.
func (e *RuleExpr) Child() *RuleExpr {
	if len(e.Parts) == 0 {
		return nil
	}
	return e.Parts[0]
}

// StructureKind enumerates the ast.structure directive shapes.
type StructureKind int

const (
	StructureNone StructureKind = iota
	StructureLeftAssoc
	StructureRightAssoc
	StructureMapChildren
)

// StructureDirective is the ast.structure sub-directive (spec.md §3/§6).
type StructureDirective struct {
	Struct StructureKind

	// Tag is used by StructureMapChildren: the tag given to the produced
	// node.
	Tag string

	// MapChildren maps an output key to the index of the part (within the
	// producing sequence) whose shaped value fills it.
	MapChildren map[string]int

	// MapChildrenOrder lists MapChildren's keys in the order they were
	// read from the decoded map[string]any, i.e. Go map iteration order;
	// the declaration order in the grammar source is not kept.
	MapChildrenOrder []string
}

// AstDirective is the optional shaping directive attached to a rule or to
// one occurrence of a rule inside a sequence (spec.md §3).
type AstDirective struct {
	Tag       string
	Discard   bool
	Promote   bool
	Leaf      bool
	Type      string // "", "number", "bool", "null"
	Name      string
	Structure *StructureDirective
}

// Rule is one compiled grammar rule: its body plus its rule-level ast
// directive.
type Rule struct {
	Body *RuleExpr
	Ast  *AstDirective
}

// TokenDef is one lexer token definition (spec.md §3).
type TokenDef struct {
	Pattern string
	Regex   *regexp.Regexp
	Token   string // token type name emitted; empty for pure "skip" rules
	Action  string // "", "skip", "handle_indent"
	Ast     *AstDirective
}

// LexerSpec is the ordered list of token definitions a grammar's lexer
// block compiles to.
type LexerSpec struct {
	Tokens []TokenDef
}

// CompiledGrammar is the fully linked, validated, and compiled form of a
// grammar (spec.md §3). It is immutable once returned from Compile /
// CompilePlaceholder and may be freely shared across goroutines — each
// Parse call builds its own cursor and never mutates the grammar.
type CompiledGrammar struct {
	Start      string
	Rules      map[string]*Rule
	Lexer      *LexerSpec
	OriginFile string
}
