// Package koine is the public entry point tying the grammar composer,
// the PEG recognizer, the ast shaper, and the transpiler engine together:
// compile a grammar, parse source text against it, and transpile the
// resulting tree to output text.
package koine

import (
	"os"
	"path/filepath"

	"github.com/koine-lang/koine/ast"
	"github.com/koine-lang/koine/grammar"
	"github.com/koine-lang/koine/koineerr"
	"github.com/koine-lang/koine/peg"
	"github.com/koine-lang/koine/transpiler"
)

// CompileGrammar compiles root into an executable grammar. basePath
// anchors any relative include/subgrammar file references root contains;
// load resolves them. load may be nil for a grammar known to have
// neither.
func CompileGrammar(root map[string]any, basePath string, load grammar.Loader) (*grammar.CompiledGrammar, error) {
	return grammar.Compile(root, basePath, load)
}

// CompileGrammarPlaceholder compiles root the same way, except every
// subgrammar directive is replaced by its own placeholder body instead of
// loading the referenced file. No I/O occurs.
func CompileGrammarPlaceholder(root map[string]any, basePath string) (*grammar.CompiledGrammar, error) {
	return grammar.CompilePlaceholder(root, basePath)
}

// CompileGrammarFromFile reads path, decodes it with decode, and compiles
// the result with basePath set to path's directory — the usual entry
// point for a grammar stored as an actual file on disk, whatever format
// it's written in.
func CompileGrammarFromFile(path string, decode func([]byte) (map[string]any, error)) (*grammar.CompiledGrammar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := decode(data)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	load := func(p string) (map[string]any, error) {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return decode(b)
	}
	return grammar.Compile(root, dir, load)
}

// ParseOptions configures a single Parse call. A zero value parses from
// the grammar's own declared start rule.
type ParseOptions struct {
	// StartRule overrides the rule parsing begins from. Empty means the
	// compiled grammar's Start.
	StartRule string
}

// ParseResult is the outcome of a Parse call (spec.md §6): either a
// successful AST, or an error payload reporting the farthest failure
// position reached during the attempt.
type ParseResult struct {
	Status  string // "success" | "error"
	AST     *ast.Node
	Message string
	Line    int
	Col     int
}

// Parse recognizes src against cg starting at opts.StartRule (or cg.Start
// when empty) and shapes the result into an ast.Node tree.
func Parse(cg *grammar.CompiledGrammar, src string, opts ParseOptions) ParseResult {
	frag, err := peg.Parse(cg, src, opts.StartRule)
	if err != nil {
		line, col := errorPosition(err)
		return ParseResult{Status: "error", Message: err.Error(), Line: line, Col: col}
	}
	node, err := ast.Shape(frag, cg)
	if err != nil {
		line, col := errorPosition(err)
		return ParseResult{Status: "error", Message: err.Error(), Line: line, Col: col}
	}
	return ParseResult{Status: "success", AST: node}
}

// errorPosition extracts the reported line/col from whichever koineerr
// type Parse/Shape can fail with.
func errorPosition(err error) (int, int) {
	switch e := err.(type) {
	case *koineerr.ParseError:
		return e.Pos.Line, e.Pos.Col
	case *koineerr.ShapeError:
		return e.Pos.Line, e.Pos.Col
	case *koineerr.LexError:
		return e.Pos.Line, e.Pos.Col
	default:
		return 0, 0
	}
}

// Transpile compiles transpilerData into a transpiler.Grammar and renders
// node with it, starting from fresh state.
func Transpile(node *ast.Node, transpilerData map[string]any) (string, error) {
	g, err := transpiler.Compile(transpilerData)
	if err != nil {
		return "", err
	}
	return transpiler.Transpile(node, g)
}
