package grammar

import (
	"regexp"
	"strings"

	"github.com/koine-lang/koine/koinedata"
	"github.com/koine-lang/koine/koineerr"
)

// Compile implements spec.md §4.1 in full: include merging, subgrammar
// expansion, compilation of the resulting map data into RuleExpr/Rule
// trees, and validation. basePath anchors any relative include/subgrammar
// paths found in root; load is consulted to read them. load may be nil
// when root is known to carry neither includes nor subgrammar directives.
func Compile(root map[string]any, basePath string, load Loader) (*CompiledGrammar, error) {
	return compile(root, basePath, load, false)
}

// CompilePlaceholder compiles root the same way as Compile, except every
// subgrammar directive is replaced by its own placeholder body instead of
// loading the referenced file — no I/O occurs. Useful for validating or
// introspecting a grammar that composes subgrammars without needing the
// referenced files on hand.
func CompilePlaceholder(root map[string]any, basePath string) (*CompiledGrammar, error) {
	return compile(root, basePath, nil, true)
}

func compile(root map[string]any, basePath string, load Loader, placeholderMode bool) (*CompiledGrammar, error) {
	unit, err := mergeIncludes(root, basePath, load, map[string]bool{})
	if err != nil {
		return nil, err
	}
	if unit.start == "" {
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "grammar has no start_rule"}
	}

	c := newComposer(load, placeholderMode)
	if err := c.expandUnit(unit, ""); err != nil {
		return nil, err
	}

	rules := map[string]*Rule{}
	for name, rawBody := range c.allRules {
		body, ok := koinedata.AsMap(rawBody)
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: "rule body must be a map", Rule: name}
		}
		rule, err := c.compileRule(body, c.owningPrefix[name])
		if err != nil {
			return nil, err
		}
		rules[name] = rule
	}

	lexerSpec, err := compileLexer(root)
	if err != nil {
		return nil, err
	}

	cg := &CompiledGrammar{
		Start:      unit.start,
		Rules:      rules,
		Lexer:      lexerSpec,
		OriginFile: basePath,
	}

	if err := Validate(cg); err != nil {
		return nil, err
	}
	return cg, nil
}

func (c *composer) compileRule(body map[string]any, prefix string) (*Rule, error) {
	ruleAst, err := parseAstDirective(body)
	if err != nil {
		return nil, err
	}
	expr, err := c.compileExpr(body, prefix)
	if err != nil {
		return nil, err
	}
	return &Rule{Body: expr, Ast: ruleAst}, nil
}

func (c *composer) compileExpr(m map[string]any, prefix string) (*RuleExpr, error) {
	ast, err := parseAstDirective(m)
	if err != nil {
		return nil, err
	}

	var expr *RuleExpr
	switch {
	case has(m, "literal"):
		s, _ := koinedata.StringField(m, "literal")
		expr = &RuleExpr{Kind: KLiteral, Literal: s}

	case has(m, "regex"):
		p, _ := koinedata.StringField(m, "regex")
		re, rerr := compileRegex(p)
		if rerr != nil {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: rerr.Error()}
		}
		expr = &RuleExpr{Kind: KRegex, Pattern: p, Regex: re}

	case has(m, "token"):
		t, _ := koinedata.StringField(m, "token")
		expr = &RuleExpr{Kind: KToken, TokenName: t}

	case has(m, "rule"):
		name, _ := koinedata.StringField(m, "rule")
		resolved, ok := c.resolveRef(name, prefix)
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.UnknownRule, Message: "unknown rule reference: " + name, Rule: name}
		}
		expr = &RuleExpr{Kind: KRef, RefName: resolved}

	case has(m, "sequence"):
		parts, perr := c.compileExprList(m, "sequence", prefix)
		if perr != nil {
			return nil, perr
		}
		expr = &RuleExpr{Kind: KSequence, Parts: parts}

	case has(m, "choice"):
		parts, perr := c.compileExprList(m, "choice", prefix)
		if perr != nil {
			return nil, perr
		}
		expr = &RuleExpr{Kind: KChoice, Parts: parts}

	case has(m, "zero_or_more"):
		child, cerr := c.compileExprField(m, "zero_or_more", prefix)
		if cerr != nil {
			return nil, cerr
		}
		expr = &RuleExpr{Kind: KZeroOrMore, Parts: []*RuleExpr{child}}

	case has(m, "one_or_more"):
		child, cerr := c.compileExprField(m, "one_or_more", prefix)
		if cerr != nil {
			return nil, cerr
		}
		expr = &RuleExpr{Kind: KOneOrMore, Parts: []*RuleExpr{child}}

	case has(m, "optional"):
		child, cerr := c.compileExprField(m, "optional", prefix)
		if cerr != nil {
			return nil, cerr
		}
		expr = &RuleExpr{Kind: KOptional, Parts: []*RuleExpr{child}}

	case has(m, "positive_lookahead"):
		child, cerr := c.compileExprField(m, "positive_lookahead", prefix)
		if cerr != nil {
			return nil, cerr
		}
		expr = &RuleExpr{Kind: KPosLookahead, Parts: []*RuleExpr{child}}

	case has(m, "negative_lookahead"):
		child, cerr := c.compileExprField(m, "negative_lookahead", prefix)
		if cerr != nil {
			return nil, cerr
		}
		expr = &RuleExpr{Kind: KNegLookahead, Parts: []*RuleExpr{child}}

	case has(m, "subgrammar"):
		return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "subgrammar directive survived expansion unexpanded"}

	default:
		return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: "rule body has no recognized structural key"}
	}

	expr.Ast = ast
	return expr, nil
}

func (c *composer) compileExprField(m map[string]any, key, prefix string) (*RuleExpr, error) {
	child, ok := koinedata.MapField(m, key)
	if !ok {
		return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: key + " must be a map"}
	}
	return c.compileExpr(child, prefix)
}

func (c *composer) compileExprList(m map[string]any, key, prefix string) ([]*RuleExpr, error) {
	list, ok := koinedata.SliceField(m, key)
	if !ok {
		return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: key + " must be a list"}
	}
	out := make([]*RuleExpr, len(list))
	for i, item := range list {
		itemMap, ok := koinedata.AsMap(item)
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: key + " elements must be maps"}
		}
		expr, err := c.compileExpr(itemMap, prefix)
		if err != nil {
			return nil, err
		}
		out[i] = expr
	}
	return out, nil
}

// compileRegex adapts a pattern for anchored-at-cursor matching: user
// patterns are written as if matching the whole remaining input, not a Go
// regexp.Regexp scanning from an arbitrary offset, so the pattern is
// wrapped in a leading ^ group. \Z (end-of-input, familiar from PCRE/the
// original DSL) is translated to Go's own \z, since RE2 doesn't accept \Z.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	translated := strings.ReplaceAll(pattern, `\Z`, `\z`)
	return regexp.Compile("^(?:" + translated + ")")
}

// compileLexer compiles the optional top-level "lexer" block into a
// LexerSpec. A grammar with no lexer block parses directly over
// characters and this returns nil.
func compileLexer(root map[string]any) (*LexerSpec, error) {
	rawTokens, ok := koinedata.SliceField(root, "lexer")
	if !ok {
		return nil, nil
	}

	spec := &LexerSpec{}
	for _, rawTok := range rawTokens {
		tm, ok := koinedata.AsMap(rawTok)
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.BadStructure, Message: "lexer entries must be maps"}
		}
		pattern, ok := koinedata.StringField(tm, "regex")
		if !ok {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "lexer entry missing regex"}
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: err.Error()}
		}
		def := TokenDef{Pattern: pattern, Regex: re}
		def.Token, _ = koinedata.StringField(tm, "token")
		def.Action, _ = koinedata.StringField(tm, "action")
		ast, err := parseAstDirective(tm)
		if err != nil {
			return nil, err
		}
		def.Ast = ast

		switch def.Action {
		case "", "skip", "handle_indent":
		default:
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "lexer action must be skip or handle_indent, got " + def.Action}
		}
		if def.Action == "" && def.Token == "" {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "lexer entry needs either a token name or a skip/handle_indent action"}
		}
		if def.Action != "" && def.Token != "" {
			return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "lexer entry may carry a token name or an action, not both"}
		}

		spec.Tokens = append(spec.Tokens, def)
	}

	hasIndent := false
	for _, def := range spec.Tokens {
		if def.Action == "handle_indent" {
			if hasIndent {
				return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "lexer may carry at most one handle_indent entry"}
			}
			hasIndent = true
		}
	}
	if hasIndent {
		for _, def := range spec.Tokens {
			switch def.Token {
			case "INDENT", "DEDENT", "NEWLINE":
				return nil, &koineerr.GrammarError{Kind: koineerr.MalformedDirective, Message: "token name " + def.Token + " is reserved when handle_indent is present"}
			}
		}
	}
	return spec, nil
}
