package peg_test

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/koine-lang/koine/grammar"
	"github.com/koine-lang/koine/koineerr"
	"github.com/koine-lang/koine/peg"
)

func mustCompile(t *testing.T, root map[string]any) *grammar.CompiledGrammar {
	t.Helper()
	cg, err := grammar.Compile(root, "/grammars", nil)
	qt.Assert(t, qt.IsNil(err))
	return cg
}

func TestParseLiteral(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"literal": "hello"},
		},
	})
	frag, err := peg.Parse(cg, "hello", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Text, "hello"))
}

func TestParseRegex(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"regex": `[0-9]+`},
		},
	})
	frag, err := peg.Parse(cg, "12345", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Text, "12345"))
}

func TestParseSequenceRewindsOnFailure(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"choice": []any{
					map[string]any{"sequence": []any{
						map[string]any{"literal": "ab"},
						map[string]any{"literal": "x"},
					}},
					map[string]any{"literal": "ab"},
				},
			},
		},
	})
	// First alternative consumes "ab" then fails on "x"; the sequence must
	// rewind fully so the second alternative gets to retry from "ab".
	frag, err := peg.Parse(cg, "ab", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Text, "ab"))
}

func TestParseOrderedChoicePrefersFirstMatch(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"choice": []any{
					map[string]any{"literal": "a"},
					map[string]any{"literal": "ab"},
				},
			},
		},
	})
	frag, err := peg.Parse(cg, "a", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Alt, 0))
	qt.Assert(t, qt.Equals(frag.Text, "a"))
}

func TestParseZeroOrMoreGreedyWithInfiniteLoopGuard(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"zero_or_more": map[string]any{"optional": map[string]any{"literal": "a"}},
			},
		},
	})
	// Each iteration's inner optional can match zero-length forever; the
	// guard must stop the repeat after the source is exhausted rather than
	// looping without ever advancing.
	frag, err := peg.Parse(cg, "aaa", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Text, "aaa"))
}

func TestParseOneOrMoreRequiresAtLeastOne(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"one_or_more": map[string]any{"literal": "a"}},
		},
	})
	_, err := peg.Parse(cg, "", "")
	qt.Assert(t, qt.IsNotNil(err))

	frag, err := peg.Parse(cg, "aaa", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(frag.Children), 3))
}

func TestParseOptionalMatchesOrSkips(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"sequence": []any{
					map[string]any{"optional": map[string]any{"literal": "a"}},
					map[string]any{"literal": "b"},
				},
			},
		},
	})
	_, err := peg.Parse(cg, "ab", "")
	qt.Assert(t, qt.IsNil(err))
	_, err = peg.Parse(cg, "b", "")
	qt.Assert(t, qt.IsNil(err))
}

func TestParsePositiveLookaheadDoesNotConsume(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"sequence": []any{
					map[string]any{"positive_lookahead": map[string]any{"literal": "ab"}},
					map[string]any{"literal": "a"},
					map[string]any{"literal": "b"},
				},
			},
		},
	})
	frag, err := peg.Parse(cg, "ab", "")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Text, "ab"))
}

func TestParseNegativeLookaheadRejectsMatch(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"sequence": []any{
					map[string]any{"negative_lookahead": map[string]any{"literal": "x"}},
					map[string]any{"literal": "a"},
				},
			},
		},
	})
	_, err := peg.Parse(cg, "a", "")
	qt.Assert(t, qt.IsNil(err))

	cg2 := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"sequence": []any{
					map[string]any{"negative_lookahead": map[string]any{"literal": "a"}},
					map[string]any{"literal": "a"},
				},
			},
		},
	})
	_, err = peg.Parse(cg2, "a", "")
	qt.Assert(t, qt.IsNotNil(err))
}

func TestParseReportsFarthestFailurePosition(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"choice": []any{
					map[string]any{"sequence": []any{
						map[string]any{"literal": "ab"},
						map[string]any{"literal": "cd"},
					}},
					map[string]any{"sequence": []any{
						map[string]any{"literal": "ab"},
						map[string]any{"literal": "ce"},
					}},
				},
			},
		},
	})
	// Both alternatives fail after consuming "ab", at offset 2; the farthest
	// failure reported must be at that position, not at offset 0 where the
	// choice itself started.
	_, err := peg.Parse(cg, "abxx", "")
	qt.Assert(t, qt.IsNotNil(err))
	perr, ok := err.(*koineerr.ParseError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(perr.Pos.Offset, 2))
}

func TestParsePositionsCountCharactersNotBytes(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{
				"sequence": []any{
					map[string]any{"literal": "αβ"},
					map[string]any{"literal": "!"},
				},
			},
		},
	})
	// "αβ" is four bytes but two characters; the failure after it must
	// report character coordinates.
	_, err := peg.Parse(cg, "αβ?", "")
	perr, ok := err.(*koineerr.ParseError)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(perr.Pos.Offset, 2))
	qt.Assert(t, qt.Equals(perr.Pos.Col, 3))
}

func TestParseStartRuleOverride(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"rule": "other"},
			"other": map[string]any{"literal": "picked"},
		},
	})
	frag, err := peg.Parse(cg, "picked", "other")
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(frag.Rule, "other"))
}

func TestParseTrailingInputIsAnError(t *testing.T) {
	cg := mustCompile(t, map[string]any{
		"start_rule": "start",
		"rules": map[string]any{
			"start": map[string]any{"literal": "a"},
		},
	})
	_, err := peg.Parse(cg, "ab", "")
	qt.Assert(t, qt.IsNotNil(err))
}
