package peg

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	koinetoken "github.com/koine-lang/koine/token"
)

// Cursor abstracts the two modes the recognizer can run in: directly over
// a string's bytes (no lexer block in the grammar) or over a token stream
// the lexer package already produced. Mark/Reset give the recognizer
// cheap backtracking without either cursor implementation needing to know
// how the other represents position.
type Cursor interface {
	Pos() koinetoken.Position
	AtEnd() bool

	Mark() int
	Reset(mark int)

	TextRange(startMark, endMark int) string

	MatchLiteral(lit string) (string, bool)
	MatchRegex(re *regexp.Regexp) (string, bool)
	// MatchToken additionally reports the matched token's own coerced
	// value (spec.md §3 Token.value), set only when that token's lexer
	// def carried an ast.type coercion.
	MatchToken(tokenName string) (text string, value any, hasValue bool, ok bool)
}

// charCursor scans raw source bytes. Backtracking only ever restores an
// int byte offset; a Position is derived on demand, with the line found in
// a precomputed newline index and the column and offset rune-counted (see
// positionAt).
type charCursor struct {
	src      string
	pos      int
	newlines []int // byte offsets of every '\n' in src, ascending
}

func newCharCursor(src string) *charCursor {
	c := &charCursor{src: src}
	for i, b := range []byte(src) {
		if b == '\n' {
			c.newlines = append(c.newlines, i)
		}
	}
	return c
}

// positionAt converts a byte offset into a source Position. Col and Offset
// count characters, not bytes (spec.md §3), so both are rune counts over
// the relevant prefix — fine for a parser whose non-goals already exclude
// high-throughput input.
func (c *charCursor) positionAt(offset int) koinetoken.Position {
	line := sort.SearchInts(c.newlines, offset)
	colBase := 0
	if line > 0 {
		colBase = c.newlines[line-1] + 1
	}
	return koinetoken.Position{
		Line:   line + 1,
		Col:    utf8.RuneCountInString(c.src[colBase:offset]) + 1,
		Offset: utf8.RuneCountInString(c.src[:offset]),
	}
}

func (c *charCursor) Pos() koinetoken.Position { return c.positionAt(c.pos) }
func (c *charCursor) AtEnd() bool              { return c.pos >= len(c.src) }
func (c *charCursor) Mark() int                { return c.pos }
func (c *charCursor) Reset(mark int)           { c.pos = mark }

func (c *charCursor) TextRange(startMark, endMark int) string {
	return c.src[startMark:endMark]
}

func (c *charCursor) MatchLiteral(lit string) (string, bool) {
	if strings.HasPrefix(c.src[c.pos:], lit) {
		c.pos += len(lit)
		return lit, true
	}
	return "", false
}

func (c *charCursor) MatchRegex(re *regexp.Regexp) (string, bool) {
	loc := re.FindStringIndex(c.src[c.pos:])
	if loc == nil || loc[0] != 0 {
		return "", false
	}
	match := c.src[c.pos : c.pos+loc[1]]
	c.pos += loc[1]
	return match, true
}

func (c *charCursor) MatchToken(string) (string, any, bool, bool) {
	return "", nil, false, false
}

// tokenCursor scans a token stream already produced by the lexer
// package. Each "position" is a token index; literal and regex matching
// operate against the current token's own text, matching it as a whole.
type tokenCursor struct {
	tokens []koinetoken.Token
	eof    koinetoken.Position
	pos    int
}

func newTokenCursor(tokens []koinetoken.Token, eof koinetoken.Position) *tokenCursor {
	return &tokenCursor{tokens: tokens, eof: eof}
}

func (c *tokenCursor) Pos() koinetoken.Position {
	if c.pos < len(c.tokens) {
		return c.tokens[c.pos].Pos
	}
	return c.eof
}

func (c *tokenCursor) AtEnd() bool    { return c.pos >= len(c.tokens) }
func (c *tokenCursor) Mark() int      { return c.pos }
func (c *tokenCursor) Reset(mark int) { c.pos = mark }

func (c *tokenCursor) TextRange(startMark, endMark int) string {
	var b strings.Builder
	for i := startMark; i < endMark && i < len(c.tokens); i++ {
		b.WriteString(c.tokens[i].Text)
	}
	return b.String()
}

func (c *tokenCursor) MatchLiteral(lit string) (string, bool) {
	if c.pos >= len(c.tokens) {
		return "", false
	}
	if c.tokens[c.pos].Text != lit {
		return "", false
	}
	text := c.tokens[c.pos].Text
	c.pos++
	return text, true
}

func (c *tokenCursor) MatchRegex(re *regexp.Regexp) (string, bool) {
	if c.pos >= len(c.tokens) {
		return "", false
	}
	text := c.tokens[c.pos].Text
	loc := re.FindStringIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] != len(text) {
		return "", false
	}
	c.pos++
	return text, true
}

func (c *tokenCursor) MatchToken(tokenName string) (string, any, bool, bool) {
	if c.pos >= len(c.tokens) {
		return "", nil, false, false
	}
	tok := c.tokens[c.pos]
	if tok.Type != tokenName {
		return "", nil, false, false
	}
	c.pos++
	return tok.Text, tok.Value, tok.HasValue, true
}
