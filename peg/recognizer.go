package peg

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/koine-lang/koine/grammar"
	"github.com/koine-lang/koine/koineerr"
	"github.com/koine-lang/koine/lexer"
	"github.com/koine-lang/koine/token"
)

// Parse runs the full recognizer over src against cg, choosing a
// character or token cursor depending on whether cg declares a lexer
// block. startRule overrides the rule parsing begins from; an empty
// string means cg.Start. On success the returned Fragment is the raw
// parse tree rooted at that rule; on failure the returned error is a
// *koineerr.ParseError describing the farthest position reached and what
// was expected there, or the lexer's *koineerr.LexError when the source
// cannot be tokenized.
func Parse(cg *grammar.CompiledGrammar, src string, startRule string) (*Fragment, error) {
	if startRule == "" {
		startRule = cg.Start
	}
	var cur Cursor
	if cg.Lexer != nil {
		toks, err := lexer.Lex(src, cg.Lexer)
		if err != nil {
			return nil, err
		}
		cur = newTokenCursor(toks, eofPosition(src, toks))
	} else {
		cur = newCharCursor(src)
	}

	r := &recognizer{grammar: cg, cur: cur}
	frag, ok := r.parseRule(startRule)
	if !ok {
		return nil, r.failure()
	}
	if !cur.AtEnd() {
		r.recordFail(cur.Pos(), "end of input")
		return nil, r.failure()
	}
	return frag, nil
}

// eofPosition approximates the position just past the last token, for
// error messages; it does not need to be exact across a
// multi-line final token, only monotonically after every real token.
func eofPosition(src string, toks []token.Token) token.Position {
	if len(toks) == 0 {
		return token.Position{Line: 1, Col: 1, Offset: 0}
	}
	last := toks[len(toks)-1]
	end := last.Pos.Offset + utf8.RuneCountInString(last.Text)
	if nl := strings.Count(last.Text, "\n"); nl > 0 {
		col := utf8.RuneCountInString(last.Text[strings.LastIndex(last.Text, "\n")+1:]) + 1
		return token.Position{Line: last.Pos.Line + nl, Col: col, Offset: end}
	}
	return token.Position{Line: last.Pos.Line, Col: last.Pos.Col + utf8.RuneCountInString(last.Text), Offset: end}
}

type recognizer struct {
	grammar *grammar.CompiledGrammar
	cur     Cursor

	ruleStack []string

	farthest       token.Position
	farthestWanted []string
	farthestStack  []string
}

func (r *recognizer) recordFail(pos token.Position, expected string) {
	if pos.Offset > r.farthest.Offset || !r.farthest.IsValid() {
		r.farthest = pos
		r.farthestWanted = []string{expected}
		r.farthestStack = append([]string(nil), r.ruleStack...)
	} else if pos.Offset == r.farthest.Offset {
		r.farthestWanted = append(r.farthestWanted, expected)
	}
}

func (r *recognizer) failure() *koineerr.ParseError {
	return &koineerr.ParseError{
		Pos:       r.farthest,
		Expected:  strings.Join(dedup(r.farthestWanted), " or "),
		Context:   strings.Join(r.farthestStack, " > "),
		RuleStack: r.farthestStack,
	}
}

func dedup(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (r *recognizer) parseRule(name string) (*Fragment, bool) {
	rule, ok := r.grammar.Rules[name]
	if !ok {
		return nil, false
	}
	r.ruleStack = append(r.ruleStack, name)
	defer func() { r.ruleStack = r.ruleStack[:len(r.ruleStack)-1] }()

	frag, ok := r.matchExpr(rule.Body)
	if !ok {
		return nil, false
	}
	frag.Rule = name
	return frag, true
}

func (r *recognizer) matchExpr(e *grammar.RuleExpr) (*Fragment, bool) {
	switch e.Kind {
	case grammar.KLiteral:
		return r.matchLiteral(e)
	case grammar.KRegex:
		return r.matchRegex(e)
	case grammar.KToken:
		return r.matchToken(e)
	case grammar.KRef:
		return r.parseRule(e.RefName)
	case grammar.KSequence:
		return r.matchSequence(e)
	case grammar.KChoice:
		return r.matchChoice(e)
	case grammar.KZeroOrMore:
		return r.matchRepeat(e, false)
	case grammar.KOneOrMore:
		return r.matchRepeat(e, true)
	case grammar.KOptional:
		return r.matchOptional(e)
	case grammar.KPosLookahead:
		return r.matchLookahead(e, true)
	case grammar.KNegLookahead:
		return r.matchLookahead(e, false)
	default:
		return nil, false
	}
}

func (r *recognizer) matchLiteral(e *grammar.RuleExpr) (*Fragment, bool) {
	start := r.cur.Pos()
	text, ok := r.cur.MatchLiteral(e.Literal)
	if !ok {
		r.recordFail(start, strconv.Quote(e.Literal))
		return nil, false
	}
	return &Fragment{Text: text, Start: start, End: r.cur.Pos(), Alt: -1}, true
}

func (r *recognizer) matchRegex(e *grammar.RuleExpr) (*Fragment, bool) {
	start := r.cur.Pos()
	text, ok := r.cur.MatchRegex(e.Regex)
	if !ok {
		r.recordFail(start, "/"+e.Pattern+"/")
		return nil, false
	}
	return &Fragment{Text: text, Start: start, End: r.cur.Pos(), Alt: -1}, true
}

func (r *recognizer) matchToken(e *grammar.RuleExpr) (*Fragment, bool) {
	if r.grammar.Lexer == nil {
		return nil, false
	}
	start := r.cur.Pos()
	text, value, hasValue, ok := r.cur.MatchToken(e.TokenName)
	if !ok {
		r.recordFail(start, "token "+e.TokenName)
		return nil, false
	}
	return &Fragment{Text: text, Value: value, HasValue: hasValue, Start: start, End: r.cur.Pos(), Alt: -1}, true
}

func (r *recognizer) matchSequence(e *grammar.RuleExpr) (*Fragment, bool) {
	mark := r.cur.Mark()
	start := r.cur.Pos()
	children := make([]*Fragment, 0, len(e.Parts))
	for _, part := range e.Parts {
		child, ok := r.matchExpr(part)
		if !ok {
			r.cur.Reset(mark)
			return nil, false
		}
		children = append(children, child)
	}
	end := r.cur.Mark()
	return &Fragment{Text: r.cur.TextRange(mark, end), Start: start, End: r.cur.Pos(), Children: children, Alt: -1}, true
}

func (r *recognizer) matchChoice(e *grammar.RuleExpr) (*Fragment, bool) {
	mark := r.cur.Mark()
	for i, part := range e.Parts {
		r.cur.Reset(mark)
		if frag, ok := r.matchExpr(part); ok {
			frag.Alt = i
			return frag, true
		}
	}
	r.cur.Reset(mark)
	return nil, false
}

func (r *recognizer) matchRepeat(e *grammar.RuleExpr, atLeastOne bool) (*Fragment, bool) {
	child := e.Child()
	mark := r.cur.Mark()
	start := r.cur.Pos()
	var children []*Fragment
	for {
		innerMark := r.cur.Mark()
		frag, ok := r.matchExpr(child)
		if !ok {
			r.cur.Reset(innerMark)
			break
		}
		if r.cur.Mark() == innerMark {
			// A zero-length match never counts as a successful iteration
			// (infinite-loop guard): stop the repetition without consuming
			// it, rather than looping on it forever.
			break
		}
		children = append(children, frag)
	}
	if atLeastOne && len(children) == 0 {
		r.cur.Reset(mark)
		return nil, false
	}
	end := r.cur.Mark()
	return &Fragment{Text: r.cur.TextRange(mark, end), Start: start, End: r.cur.Pos(), Children: children, Alt: -1}, true
}

func (r *recognizer) matchOptional(e *grammar.RuleExpr) (*Fragment, bool) {
	mark := r.cur.Mark()
	start := r.cur.Pos()
	child, ok := r.matchExpr(e.Child())
	if !ok {
		r.cur.Reset(mark)
		return &Fragment{Start: start, End: start, Alt: -1}, true
	}
	return &Fragment{Start: start, End: r.cur.Pos(), Children: []*Fragment{child}, Alt: -1}, true
}

func (r *recognizer) matchLookahead(e *grammar.RuleExpr, positive bool) (*Fragment, bool) {
	mark := r.cur.Mark()
	_, ok := r.matchExpr(e.Child())
	r.cur.Reset(mark)
	if ok != positive {
		if positive {
			r.recordFail(r.cur.Pos(), "lookahead")
		}
		return nil, false
	}
	pos := r.cur.Pos()
	return &Fragment{Start: pos, End: pos, Alt: -1}, true
}
