// Package koineerr defines the error types the core raises: GrammarError,
// LexError, ParseError, and TranspileError, plus ShapeError for the ast
// shaper. LexError, ParseError and ShapeError carry a Position; GrammarError
// carries a kind, file and rule name instead, and TranspileError the tag of
// the failing node. They follow the typed-error idiom cue-lang-cue's
// cue/token and cue/scanner packages use — a typed error with an Error()
// string method — and the core returns them as they are, unwrapped.
package koineerr

import (
	"fmt"
	"strings"

	"github.com/koine-lang/koine/token"
)

// GrammarErrorKind enumerates why grammar compilation failed.
type GrammarErrorKind string

const (
	UnknownRule        GrammarErrorKind = "UnknownRule"
	Unreachable        GrammarErrorKind = "Unreachable"
	BadStructure       GrammarErrorKind = "BadStructure"
	IncludeCycle       GrammarErrorKind = "IncludeCycle"
	SubgrammarNotFound GrammarErrorKind = "SubgrammarNotFound"
	MalformedDirective GrammarErrorKind = "MalformedDirective"
)

// GrammarError is raised by the composer and validator. It is fatal to the
// grammar: the caller must fix the grammar data and recompile.
type GrammarError struct {
	Kind    GrammarErrorKind
	Message string
	File    string
	Rule    string
}

func (e *GrammarError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Rule != "" {
		fmt.Fprintf(&b, " (rule %s)", e.Rule)
	}
	if e.File != "" {
		fmt.Fprintf(&b, " (file %s)", e.File)
	}
	return b.String()
}

// LexError is raised by the lexer: no token matched, a match consumed zero
// characters, or a dedent had no matching prior indent level.
type LexError struct {
	Pos     token.Position
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: lex error: %s", e.Pos, e.Message)
}

// ParseError is raised only at the top-level parse entry point; the
// recognizer itself never raises, it returns failure as a value. ParseError
// reports the farthest failure position reached during the whole parse,
// not the final failure of the outermost choice.
type ParseError struct {
	Pos       token.Position
	Expected  string
	Context   string
	RuleStack []string
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: expected %s", e.Pos, e.Expected)
	if e.Context != "" {
		msg += " in " + e.Context
	}
	if len(e.RuleStack) > 0 {
		msg += " (rule stack: " + strings.Join(e.RuleStack, " > ") + ")"
	}
	return msg
}

// ShapeError is raised by the ast shaper: an ast.type coercion (number,
// bool) that doesn't match the text it was asked to coerce, or a
// structure directive applied to a fragment shape it doesn't fit.
type ShapeError struct {
	Pos     token.Position
	Rule    string
	Message string
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%s: shape error: %s", e.Pos, e.Message)
	if e.Rule != "" {
		msg += " (rule " + e.Rule + ")"
	}
	return msg
}

// TranspileError is raised by the transpiler: a missing rule for a
// non-leaf node, a malformed template, an unresolved placeholder, or a
// cases block with no matching branch and no default.
type TranspileError struct {
	NodeTag string
	Message string
}

func (e *TranspileError) Error() string {
	return fmt.Sprintf("transpile error on %q: %s", e.NodeTag, e.Message)
}
