// Package lexer turns raw source text into a token stream driven entirely
// by a grammar's compiled lexer block (grammar.LexerSpec). Token
// definitions are tried in declaration order at each position and the
// longest match wins; a tie keeps the first-declared definition.
//
// The one stateful piece is the "handle_indent" action: an indentation
// stack tracks the whitespace prefix of each open block, the way
// participle's "stateful" lexer pushes and pops lexer states, except here
// the states being pushed and popped are indentation levels and the
// payoff is synthetic NEWLINE/INDENT/DEDENT tokens rather than a lexer
// mode switch.
package lexer

import (
	"strings"

	"github.com/koine-lang/koine/grammar"
	"github.com/koine-lang/koine/koineerr"
	"github.com/koine-lang/koine/token"
)

const (
	TokNewline = "NEWLINE"
	TokIndent  = "INDENT"
	TokDedent  = "DEDENT"
)

// Lex scans src against spec, producing the token stream the peg package
// consumes in lexer mode. A nil spec is a programmer error — callers
// check grammar.CompiledGrammar.Lexer != nil before entering lexer mode.
func Lex(src string, spec *grammar.LexerSpec) ([]token.Token, error) {
	s := &scanner{src: src, spec: spec, indentStack: []string{""}}
	return s.run()
}

type scanner struct {
	src  string
	spec *grammar.LexerSpec

	pos   int // byte offset into src, for slicing
	runes int // character offset, what Position.Offset reports
	line  int
	col   int

	indentStack []string
	out         []token.Token
}

func (s *scanner) position() token.Position {
	return token.Position{Line: s.line + 1, Col: s.col + 1, Offset: s.runes}
}

func (s *scanner) advance(text string) {
	for _, r := range text {
		if r == '\n' {
			s.line++
			s.col = 0
		} else {
			s.col++
		}
		s.runes++
	}
	s.pos += len(text)
}

func (s *scanner) run() ([]token.Token, error) {
	for s.pos < len(s.src) {
		def, match, matched := s.longestMatch()
		if !matched {
			return nil, &koineerr.LexError{Pos: s.position(), Message: "no lexer rule matches input"}
		}
		if len(match) == 0 {
			return nil, &koineerr.LexError{Pos: s.position(), Message: "lexer rule matched zero-length input, refusing to loop forever: " + def.Pattern}
		}

		start := s.position()

		switch def.Action {
		case "skip":
			s.advance(match)
			continue
		case "handle_indent":
			if err := s.handleIndent(match, start); err != nil {
				return nil, err
			}
			continue
		default:
			s.advance(match)
			tok := token.Token{Type: def.Token, Text: match, Pos: start}
			if def.Ast != nil && def.Ast.Type != "" {
				v, err := token.CoerceValue(match, def.Ast.Type)
				if err != nil {
					return nil, &koineerr.LexError{Pos: start, Message: err.Error()}
				}
				tok.Value = v
				tok.HasValue = true
			}
			s.out = append(s.out, tok)
		}
	}

	if err := s.flushIndent(s.position()); err != nil {
		return nil, err
	}
	return s.out, nil
}

// longestMatch tries every token definition at the current position and
// returns the one matching the most input; ties favor whichever
// definition was declared first.
func (s *scanner) longestMatch() (grammar.TokenDef, string, bool) {
	rest := s.src[s.pos:]
	var best grammar.TokenDef
	var bestMatch string
	found := false
	for _, def := range s.spec.Tokens {
		loc := def.Regex.FindStringIndex(rest)
		if loc == nil || loc[0] != 0 {
			continue
		}
		m := rest[:loc[1]]
		if !found || len(m) > len(bestMatch) {
			best, bestMatch, found = def, m, true
		}
	}
	return best, bestMatch, found
}

// handleIndent consumes a newline-plus-whitespace match and updates the
// indentation stack, emitting NEWLINE/INDENT/DEDENT tokens as needed.
func (s *scanner) handleIndent(match string, start token.Position) error {
	s.advance(match)

	ws := match
	for strings.HasPrefix(ws, "\r\n") {
		ws = ws[2:]
	}
	for strings.HasPrefix(ws, "\n") || strings.HasPrefix(ws, "\r") {
		ws = ws[1:]
	}
	if i := strings.LastIndexAny(ws, "\n\r"); i >= 0 {
		ws = ws[i+1:]
	}

	top := s.indentStack[len(s.indentStack)-1]
	switch {
	case ws == top:
		s.out = append(s.out, token.Token{Type: TokNewline, Text: match, Pos: start})
		return nil
	case strings.HasPrefix(ws, top):
		s.indentStack = append(s.indentStack, ws)
		s.out = append(s.out, token.Token{Type: TokIndent, Text: ws, Pos: start})
		return nil
	case strings.HasPrefix(top, ws):
		for len(s.indentStack) > 1 && s.indentStack[len(s.indentStack)-1] != ws {
			s.indentStack = s.indentStack[:len(s.indentStack)-1]
			s.out = append(s.out, token.Token{Type: TokDedent, Text: ws, Pos: start})
		}
		if s.indentStack[len(s.indentStack)-1] != ws {
			return &koineerr.LexError{Pos: start, Message: "unindent does not match any outer indentation level"}
		}
		return nil
	default:
		return &koineerr.LexError{Pos: start, Message: "inconsistent indentation (mixed tabs and spaces)"}
	}
}

func (s *scanner) flushIndent(pos token.Position) error {
	for len(s.indentStack) > 1 {
		s.indentStack = s.indentStack[:len(s.indentStack)-1]
		s.out = append(s.out, token.Token{Type: TokDedent, Text: "", Pos: pos})
	}
	return nil
}
