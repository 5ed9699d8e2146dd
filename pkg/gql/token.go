// Package gql - lexer.
//
// The lexer turns query text into a flat token stream. Every token
// carries the byte offset it started at so parse errors can point into
// the original text.
package gql

import (
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
)

// TokenType classifies lexical tokens.
type TokenType int

const (
	TokenKeyword TokenType = iota
	TokenIdentifier
	TokenString
	TokenNumber
	TokenSymbol
	TokenEOF
)

// Token is one lexical token.
type Token struct {
	Type TokenType
	// Text is the token's content. For strings, the unquoted value; for
	// keywords, the uppercase form.
	Text string
	// Pos is the byte offset of the token's first character.
	Pos int
}

// keywords recognized by the parser. Keywords are case-insensitive.
var keywords = map[string]struct{}{
	"MATCH": {}, "WHERE": {}, "RETURN": {}, "INSERT": {}, "SET": {},
	"REMOVE": {}, "DELETE": {}, "AS": {}, "AND": {}, "OR": {}, "NOT": {},
	"ORDER": {}, "BY": {}, "ASC": {}, "DESC": {}, "SKIP": {}, "LIMIT": {},
	"TRUE": {}, "FALSE": {}, "NULL": {}, "CONTAINS": {}, "STARTS": {},
	"WITH": {},
}

// tokenizer walks the input byte by byte.
type tokenizer struct {
	input string
	pos   int
}

// tokenize splits query text into tokens. Returns a *Error on malformed
// input (unterminated string, stray character).
func tokenize(input string) ([]Token, error) {
	t := &tokenizer{input: input}
	tokens := make([]Token, 0, 32)

	for t.pos < len(t.input) {
		c := t.input[t.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			t.pos++
		case unicode.IsLetter(rune(c)) || c == '_':
			tokens = append(tokens, t.readIdentifierOrKeyword())
		case c == '\'' || c == '"':
			tok, err := t.readString()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		case unicode.IsDigit(rune(c)):
			tokens = append(tokens, t.readNumber())
		case c == '/' && t.pos+1 < len(t.input) && t.input[t.pos+1] == '/':
			t.skipLineComment()
		default:
			tok, err := t.readSymbol()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Text: "", Pos: len(t.input)})
	logrus.WithField("component", "lexer").
		WithField("token_count", len(tokens)).
		Trace("tokenization complete")
	return tokens, nil
}

func (t *tokenizer) readIdentifierOrKeyword() Token {
	start := t.pos
	for t.pos < len(t.input) {
		c := rune(t.input[t.pos])
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' {
			break
		}
		t.pos++
	}
	text := t.input[start:t.pos]
	upper := strings.ToUpper(text)
	if _, ok := keywords[upper]; ok {
		return Token{Type: TokenKeyword, Text: upper, Pos: start}
	}
	return Token{Type: TokenIdentifier, Text: text, Pos: start}
}

// readString reads a single- or double-quoted string with backslash
// escapes for the quote character, backslash, n, t and r.
func (t *tokenizer) readString() (Token, error) {
	start := t.pos
	quote := t.input[t.pos]
	t.pos++

	var sb strings.Builder
	for t.pos < len(t.input) {
		c := t.input[t.pos]
		if c == quote {
			t.pos++
			return Token{Type: TokenString, Text: sb.String(), Pos: start}, nil
		}
		if c == '\\' && t.pos+1 < len(t.input) {
			t.pos++
			switch t.input[t.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(t.input[t.pos])
			}
			t.pos++
			continue
		}
		sb.WriteByte(c)
		t.pos++
	}
	return Token{}, errf(start, "unterminated string literal")
}

func (t *tokenizer) readNumber() Token {
	start := t.pos
	seenDot := false
	for t.pos < len(t.input) {
		c := t.input[t.pos]
		if c == '.' && !seenDot && t.pos+1 < len(t.input) && unicode.IsDigit(rune(t.input[t.pos+1])) {
			seenDot = true
			t.pos++
			continue
		}
		if !unicode.IsDigit(rune(c)) {
			break
		}
		t.pos++
	}
	return Token{Type: TokenNumber, Text: t.input[start:t.pos], Pos: start}
}

func (t *tokenizer) skipLineComment() {
	for t.pos < len(t.input) && t.input[t.pos] != '\n' {
		t.pos++
	}
}

// readSymbol reads operators and punctuation, with lookahead for the
// multi-byte forms ->, <-, <=, >= and <>.
func (t *tokenizer) readSymbol() (Token, error) {
	start := t.pos
	c := t.input[t.pos]

	two := ""
	if t.pos+1 < len(t.input) {
		two = t.input[t.pos : t.pos+2]
	}

	switch two {
	case "->", "<-", "<=", ">=", "<>":
		t.pos += 2
		return Token{Type: TokenSymbol, Text: two, Pos: start}, nil
	}

	switch c {
	case '(', ')', '[', ']', '{', '}', ':', ',', '.', ';', '=', '<', '>', '-', '+', '*', '/':
		t.pos++
		return Token{Type: TokenSymbol, Text: string(c), Pos: start}, nil
	}

	return Token{}, errf(start, "unexpected character %q", string(c))
}
