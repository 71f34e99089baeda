package koine_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/koine-lang/koine"
	"github.com/koine-lang/koine/ast"
)

// additionGrammar is the minimal slice of the §1/§4.3 calculator grammar:
// number (+ number)*, left-associative, no parens. Enough to drive the
// public API end to end without duplicating the fuller grammar the
// grammar/ast/transpiler packages already exercise in depth.
func additionGrammar() map[string]any {
	return map[string]any{
		"start_rule": "expr",
		"rules": map[string]any{
			"ws":     map[string]any{"regex": `[ \t]*`, "ast": map[string]any{"discard": true}},
			"number": map[string]any{"regex": `[0-9]+`, "ast": map[string]any{"leaf": true, "type": "number"}},
			"expr": map[string]any{
				"sequence": []any{
					map[string]any{"rule": "number"},
					map[string]any{"zero_or_more": map[string]any{
						"sequence": []any{
							map[string]any{"rule": "ws"},
							map[string]any{"regex": `\+`},
							map[string]any{"rule": "ws"},
							map[string]any{"rule": "number"},
						},
					}},
				},
				"ast": map[string]any{"structure": "left_associative_op"},
			},
		},
	}
}

func additionTranspilerData() map[string]any {
	return map[string]any{
		"rules": map[string]any{
			"binary_op": map[string]any{"template": "(add {left} {right})"},
			"number":    map[string]any{"use": "value"},
		},
	}
}

func TestEndToEndCompileParseTranspile(t *testing.T) {
	cg, err := koine.CompileGrammar(additionGrammar(), "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))

	result := koine.Parse(cg, "1 + 2 + 3", koine.ParseOptions{})
	qt.Assert(t, qt.Equals(result.Status, "success"))
	qt.Assert(t, qt.IsNotNil(result.AST))

	out, err := koine.Transpile(result.AST, additionTranspilerData())
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(out, "(add (add 1 2) 3)"))
}

func TestParseReportsErrorStatusAndPosition(t *testing.T) {
	cg, err := koine.CompileGrammar(additionGrammar(), "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))

	result := koine.Parse(cg, "1 + ", koine.ParseOptions{})
	qt.Assert(t, qt.Equals(result.Status, "error"))
	qt.Assert(t, qt.IsNil(result.AST))
	qt.Assert(t, qt.IsTrue(result.Line > 0))
	qt.Assert(t, qt.IsTrue(result.Message != ""))
}

func TestParseStartRuleOverride(t *testing.T) {
	root := map[string]any{
		"start_rule": "expr",
		"rules": map[string]any{
			"expr":   map[string]any{"rule": "number"},
			"number": map[string]any{"regex": `[0-9]+`, "ast": map[string]any{"leaf": true, "type": "number"}},
		},
	}
	cg, err := koine.CompileGrammar(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))

	result := koine.Parse(cg, "42", koine.ParseOptions{StartRule: "number"})
	qt.Assert(t, qt.Equals(result.Status, "success"))
	qt.Assert(t, qt.Equals(result.AST.Tag, "number"))
}

// layoutGrammar is the python-like grammar from spec.md §8 scenario 4: a
// handle_indent lexer feeding a token-mode parse of one function whose
// body is the INDENT/DEDENT-delimited statement block.
func layoutGrammar() map[string]any {
	tok := func(name string, ast map[string]any) map[string]any {
		m := map[string]any{"token": name}
		if ast != nil {
			m["ast"] = ast
		}
		return m
	}
	discard := map[string]any{"discard": true}
	return map[string]any{
		"start_rule": "function",
		"lexer": []any{
			map[string]any{"regex": `(?:\r?\n)[ \t]*`, "action": "handle_indent"},
			map[string]any{"regex": ` +`, "action": "skip"},
			map[string]any{"regex": `def`, "token": "DEF"},
			map[string]any{"regex": `return`, "token": "RETURN"},
			map[string]any{"regex": `[a-zA-Z_][a-zA-Z0-9_]*`, "token": "NAME"},
			map[string]any{"regex": `\(`, "token": "LPAREN"},
			map[string]any{"regex": `\)`, "token": "RPAREN"},
			map[string]any{"regex": `:`, "token": "COLON"},
		},
		"rules": map[string]any{
			"function": map[string]any{
				"sequence": []any{
					tok("DEF", discard),
					tok("NAME", map[string]any{"name": "name"}),
					tok("LPAREN", discard),
					tok("RPAREN", discard),
					tok("COLON", discard),
					tok("INDENT", discard),
					map[string]any{"rule": "statements", "ast": map[string]any{"name": "body"}},
					tok("DEDENT", discard),
				},
			},
			"statements": map[string]any{
				"one_or_more": map[string]any{"rule": "statement"},
			},
			"statement": map[string]any{"token": "RETURN", "ast": map[string]any{"tag": "RETURN"}},
		},
	}
}

func TestLayoutSensitiveFunctionParse(t *testing.T) {
	cg, err := koine.CompileGrammar(layoutGrammar(), "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))

	result := koine.Parse(cg, "def my_func():\n    return\n", koine.ParseOptions{})
	qt.Assert(t, qt.Equals(result.Status, "success"))
	qt.Assert(t, qt.Equals(result.AST.Tag, "function"))

	name, ok := result.AST.Field("name")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(name.Text, "my_func"))

	body, ok := result.AST.Field("body")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(body.Tag, "statements"))
	qt.Assert(t, qt.Equals(body.Children.Kind, ast.ChildrenList))
	qt.Assert(t, qt.HasLen(body.Children.List, 1))
	qt.Assert(t, qt.Equals(body.Children.List[0].Tag, "RETURN"))
}

func TestCompileGrammarPlaceholderSkipsIO(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"subgrammar": map[string]any{
				"file":        "does-not-exist-on-disk.yaml",
				"placeholder": map[string]any{"literal": "stand-in"},
			}},
		},
	}
	cg, err := koine.CompileGrammarPlaceholder(root, "/grammars")
	qt.Assert(t, qt.IsNil(err))
	result := koine.Parse(cg, "stand-in", koine.ParseOptions{})
	qt.Assert(t, qt.Equals(result.Status, "success"))
}
