// Package tokenizer scans raw command text into a flat token stream.
//
// Tokenize never fails: malformed input degrades to WORD tokens, and every
// character of the input ends up in exactly one token so the stream can be
// concatenated back into the original string.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType classifies a token.
type TokenType int

const (
	// Whitespace is a run of whitespace characters.
	Whitespace TokenType = iota
	// Word is a run of non-whitespace text.
	Word
	// QuoteOpen opens a quoted span.
	QuoteOpen
	// QuoteClose closes a quoted span.
	QuoteClose
	// OptionMarker is a --name or --name= prefix.
	OptionMarker
	// FlagMarker is a -xyz run of single-character flags.
	FlagMarker
	// EOF terminates every stream.
	EOF
)

var tokenTypeNames = map[TokenType]string{
	Whitespace:   "WHITESPACE",
	Word:         "WORD",
	QuoteOpen:    "QUOTE_OPEN",
	QuoteClose:   "QUOTE_CLOSE",
	OptionMarker: "OPTION_MARKER",
	FlagMarker:   "FLAG_MARKER",
	EOF:          "EOF",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Token is one lexical unit. Value always holds the exact source text.
type Token struct {
	Type  TokenType
	Value string
}

// OptionName returns the option key of an OptionMarker token.
func (t Token) OptionName() string {
	name := strings.TrimPrefix(t.Value, "--")
	return strings.TrimSuffix(name, "=")
}

// FlagChars returns the individual flag characters of a FlagMarker token.
func (t Token) FlagChars() []string {
	body := strings.TrimPrefix(t.Value, "-")
	chars := make([]string, 0, len(body))
	for _, r := range body {
		chars = append(chars, string(r))
	}
	return chars
}

// IsQuote reports whether r is a recognised quote character.
func IsQuote(r rune) bool {
	switch r {
	case '"', '“', '”':
		return true
	}
	return false
}

// Tokenize scans content into tokens terminated by an EOF token.
func Tokenize(content string) []Token {
	s := &scanner{input: content}
	var tokens []Token
	for {
		tok := s.next()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

type scanner struct {
	input    string
	pos      int
	inQuotes bool
}

func (s *scanner) next() Token {
	if s.pos >= len(s.input) {
		return Token{Type: EOF}
	}
	rest := s.input[s.pos:]

	if n := s.matchWhitespace(rest); n > 0 {
		return s.emit(Whitespace, n)
	}
	if !s.inQuotes {
		if n := matchOption(rest); n > 0 {
			return s.emit(OptionMarker, n)
		}
		if n := matchFlag(rest); n > 0 {
			return s.emit(FlagMarker, n)
		}
	}
	if r, size := utf8.DecodeRuneInString(rest); IsQuote(r) {
		typ := QuoteOpen
		if s.inQuotes {
			typ = QuoteClose
		}
		s.inQuotes = !s.inQuotes
		return s.emit(typ, size)
	}
	return s.emit(Word, s.matchWord(rest))
}

func (s *scanner) emit(typ TokenType, n int) Token {
	tok := Token{Type: typ, Value: s.input[s.pos : s.pos+n]}
	s.pos += n
	return tok
}

func (s *scanner) matchWhitespace(rest string) int {
	for i, r := range rest {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return len(rest)
}

// matchWord always consumes at least one rune so scanning makes progress.
func (s *scanner) matchWord(rest string) int {
	for i, r := range rest {
		if unicode.IsSpace(r) || (s.inQuotes && IsQuote(r)) {
			if i == 0 {
				_, size := utf8.DecodeRuneInString(rest)
				return size
			}
			return i
		}
	}
	return len(rest)
}

// matchOption matches --name or --name= where name is a run of
// non-whitespace characters excluding '=' and quotes.
func matchOption(rest string) int {
	if !strings.HasPrefix(rest, "--") {
		return 0
	}
	n := len(rest)
	for i, r := range rest[2:] {
		if unicode.IsSpace(r) || r == '=' || IsQuote(r) {
			n = i + 2
			break
		}
	}
	if n == 2 {
		return 0
	}
	if n < len(rest) && rest[n] == '=' {
		n++
	}
	return n
}

// matchFlag matches -xyz. The first character after the dash must be a
// letter so that negative numbers stay words.
func matchFlag(rest string) int {
	if !strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, "--") {
		return 0
	}
	first, _ := utf8.DecodeRuneInString(rest[1:])
	if !unicode.IsLetter(first) {
		return 0
	}
	for i, r := range rest[1:] {
		if unicode.IsSpace(r) || IsQuote(r) {
			return i + 1
		}
	}
	return len(rest)
}
