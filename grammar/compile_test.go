package grammar

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/koine-lang/koine/koineerr"
)

func TestCompileSimpleLiteralGrammar(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"literal": "hello"},
		},
	}
	cg, err := Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(cg.Start, "start"))
	qt.Assert(t, qt.Equals(len(cg.Rules), 1))
	qt.Assert(t, qt.Equals(cg.Rules["start"].Body.Kind, KLiteral))
	qt.Assert(t, qt.Equals(cg.Rules["start"].Body.Literal, "hello"))
}

func TestCompileMissingStartRule(t *testing.T) {
	root := map[string]any{
		"rules": map[string]any{
			"start": map[string]any{"literal": "hello"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNotNil(err))
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.MalformedDirective))
}

func TestCompileUnknownRuleReference(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"rule": "nope"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.UnknownRule))
}

func TestCompileUnreachableRule(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"literal": "a"},
			"dead":  map[string]any{"literal": "b"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.Unreachable))
	qt.Assert(t, qt.Equals(gerr.Rule, "dead"))
}

func TestCompileBadAstType(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"regex": "[0-9]+",
				"ast":   map[string]any{"leaf": true, "type": "string"},
			},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.MalformedDirective))
}

func TestCompileSequenceAndChoice(t *testing.T) {
	root := map[string]any{
		"start_rule": "greeting",
		"rules": map[string]any{
			"greeting": map[string]any{
				"sequence": []any{
					map[string]any{"choice": []any{
						map[string]any{"literal": "hi"},
						map[string]any{"literal": "hello"},
					}},
					map[string]any{"literal": "!"},
				},
			},
		},
	}
	cg, err := Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))
	body := cg.Rules["greeting"].Body
	qt.Assert(t, qt.Equals(body.Kind, KSequence))
	qt.Assert(t, qt.Equals(len(body.Parts), 2))
	qt.Assert(t, qt.Equals(body.Parts[0].Kind, KChoice))
	qt.Assert(t, qt.Equals(len(body.Parts[0].Parts), 2))
}

func TestCompileLeftAssociativeOpStructureValidation(t *testing.T) {
	mkTail := func() map[string]any {
		return map[string]any{
			"sequence": []any{
				map[string]any{"regex": `[ \t]*`, "ast": map[string]any{"discard": true}},
				map[string]any{"regex": `[+\-]`},
				map[string]any{"regex": `[ \t]*`, "ast": map[string]any{"discard": true}},
				map[string]any{"rule": "term"},
			},
		}
	}
	root := map[string]any{
		"start_rule": "expr",
		"rules": map[string]any{
			"expr": map[string]any{
				"sequence": []any{
					map[string]any{"rule": "term"},
					map[string]any{"zero_or_more": mkTail()},
				},
				"ast": map[string]any{"structure": "left_associative_op"},
			},
			"term": map[string]any{"regex": `[0-9]+`, "ast": map[string]any{"leaf": true, "type": "number"}},
		},
	}
	cg, err := Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNotNil(cg.Rules["expr"].Ast.Structure))
	qt.Assert(t, qt.Equals(cg.Rules["expr"].Ast.Structure.Struct, StructureLeftAssoc))
}

func TestCompileBadStructureShape(t *testing.T) {
	root := map[string]any{
		"start_rule": "expr",
		"rules": map[string]any{
			"expr": map[string]any{
				"literal": "x",
				"ast":     map[string]any{"structure": "left_associative_op"},
			},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.BadStructure))
}

func TestCompileLexerBlock(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"lexer": []any{
			map[string]any{"regex": `[ \t]+`, "action": "skip"},
			map[string]any{"regex": `[0-9]+`, "token": "NUMBER"},
		},
		"rules": map[string]any{
			"start": map[string]any{"token": "NUMBER"},
		},
	}
	cg, err := Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.IsNotNil(cg.Lexer))
	qt.Assert(t, qt.Equals(len(cg.Lexer.Tokens), 2))
	qt.Assert(t, qt.Equals(cg.Lexer.Tokens[0].Action, "skip"))
	qt.Assert(t, qt.Equals(cg.Lexer.Tokens[1].Token, "NUMBER"))
}

func TestCompileTokenWithoutLexerBlockIsError(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"token": "NUMBER"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.BadStructure))
}

func TestCompileLexerEntryWithTokenAndActionIsError(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"lexer": []any{
			map[string]any{"regex": `[ \t]+`, "token": "WS", "action": "skip"},
		},
		"rules": map[string]any{
			"start": map[string]any{"token": "WS"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.MalformedDirective))
}

func TestCompileLexerRejectsSecondHandleIndent(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"lexer": []any{
			map[string]any{"regex": `\n[ \t]*`, "action": "handle_indent"},
			map[string]any{"regex": `\r\n[ \t]*`, "action": "handle_indent"},
			map[string]any{"regex": `[0-9]+`, "token": "NUMBER"},
		},
		"rules": map[string]any{
			"start": map[string]any{"token": "NUMBER"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.MalformedDirective))
}

func TestCompileLexerReservedTokenNamesWithHandleIndent(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"lexer": []any{
			map[string]any{"regex": `\n[ \t]*`, "action": "handle_indent"},
			map[string]any{"regex": `indent`, "token": "INDENT"},
		},
		"rules": map[string]any{
			"start": map[string]any{"token": "INDENT"},
		},
	}
	_, err := Compile(root, "/grammars", nil)
	gerr, ok := err.(*koineerr.GrammarError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(gerr.Kind, koineerr.MalformedDirective))
}

func TestCompilePlaceholderSkipsSubgrammarFile(t *testing.T) {
	root := map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"subgrammar": map[string]any{
					"file":        "nonexistent.yaml",
					"placeholder": map[string]any{"literal": "stand-in"},
				},
			},
		},
	}
	cg, err := CompilePlaceholder(root, "/grammars")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(cg.Rules["start"].Body.Kind, KLiteral))
	qt.Assert(t, qt.Equals(cg.Rules["start"].Body.Literal, "stand-in"))
}
