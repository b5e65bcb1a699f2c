// Package parser turns a token stream into phrases, flags and key/value options.
//
// Parsing is lenient: unterminated quotes close themselves at the end of the
// input and option markers whose key is not allow-listed are kept as plain
// phrases.
package parser

import (
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/tokenizer"
)

// ErrMissingEOF is returned when the token stream does not end with EOF.
var ErrMissingEOF = errors.New("token stream is not terminated by EOF")

// OptionSpec allow-lists an option key. TakesValue options consume the
// following phrase as their value.
type OptionSpec struct {
	Name       string
	TakesValue bool
}

// ParseContent tokenizes and parses content in one step.
func ParseContent(content string, allowed []OptionSpec) (models.ParserOutput, error) {
	return Parse(tokenizer.Tokenize(content), allowed)
}

// Parse consumes tokens left to right. With a nil allow-list no options are
// recognised and option-shaped text becomes phrases.
func Parse(tokens []tokenizer.Token, allowed []OptionSpec) (models.ParserOutput, error) {
	p := &parser{tokens: tokens}
	if len(allowed) > 0 {
		p.allowed = make(map[string]OptionSpec, len(allowed))
		for _, spec := range allowed {
			p.allowed[strings.ToLower(spec.Name)] = spec
		}
	}

	for !p.done() {
		switch {
		case p.parseWhitespace():
		case p.parseOption():
		case p.parseFlag():
		case p.parsePhrase():
		default:
			// Unreachable with tokenizer output; skip rather than loop forever.
			p.pos++
		}
	}

	if len(tokens) == 0 || p.pos >= len(tokens) || tokens[len(tokens)-1].Type != tokenizer.EOF {
		return p.out, ErrMissingEOF
	}
	return p.out, nil
}

type parser struct {
	tokens  []tokenizer.Token
	pos     int
	allowed map[string]OptionSpec
	out     models.ParserOutput
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens) || p.tokens[p.pos].Type == tokenizer.EOF
}

func (p *parser) peek() tokenizer.Token {
	if p.pos >= len(p.tokens) {
		return tokenizer.Token{Type: tokenizer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) parseWhitespace() bool {
	if p.peek().Type != tokenizer.Whitespace {
		return false
	}
	p.pos++
	return true
}

func (p *parser) parseOption() bool {
	if p.allowed == nil {
		return false
	}
	tok := p.peek()

	var (
		spec  OptionSpec
		value string
		ok    bool
	)
	switch tok.Type {
	case tokenizer.OptionMarker:
		spec, ok = p.allowed[strings.ToLower(tok.OptionName())]
	case tokenizer.Word:
		var key string
		key, value, ok = splitInlineOption(tok.Value)
		if ok {
			spec, ok = p.allowed[strings.ToLower(key)]
		}
	}
	if !ok {
		return false
	}
	p.pos++

	raw := tok.Value
	switch {
	case value != "":
		if r, _ := utf8.DecodeRuneInString(value); tokenizer.IsQuote(r) {
			var rest string
			value, rest = p.inlineQuoted(value)
			raw += rest
		}
	case spec.TakesValue:
		if v, r, found := p.optionValue(); found {
			value = v
			raw += r
		}
	case tok.Type == tokenizer.OptionMarker && strings.HasSuffix(tok.Value, "="):
		// --name=value on an option that takes no value otherwise.
		if next := p.peek(); next.Type == tokenizer.Word || next.Type == tokenizer.QuoteOpen {
			item := p.readPhrase()
			value, raw = item.Value, raw+item.Raw
		}
	}
	p.out.AddOption(models.ParsedItem{Key: spec.Name, Value: value, Raw: raw})
	return true
}

// inlineQuoted finishes a name:"quoted value" option. The opening quote sat
// inside a word, so the tokenizer never entered a quoted span and the value
// runs until a word ending in a quote, or the end of input.
func (p *parser) inlineQuoted(value string) (string, string) {
	_, size := utf8.DecodeRuneInString(value)
	body := value[size:]
	if r, n := utf8.DecodeLastRuneInString(body); n > 0 && tokenizer.IsQuote(r) {
		return body[:len(body)-n], ""
	}

	var b, raw strings.Builder
	b.WriteString(body)
	for !p.done() {
		next := p.peek()
		if next.Type == tokenizer.QuoteOpen || next.Type == tokenizer.QuoteClose {
			p.pos++
			raw.WriteString(next.Value)
			return b.String(), raw.String()
		}
		p.pos++
		raw.WriteString(next.Value)
		if r, n := utf8.DecodeLastRuneInString(next.Value); next.Type == tokenizer.Word && tokenizer.IsQuote(r) {
			b.WriteString(next.Value[:len(next.Value)-n])
			return b.String(), raw.String()
		}
		b.WriteString(next.Value)
	}
	slog.Debug("Parser closing unterminated inline quote at end of input", "value", b.String())
	return b.String(), raw.String()
}

// optionValue consumes optional whitespace and one phrase. Nothing is
// consumed when no phrase follows.
func (p *parser) optionValue() (value, raw string, found bool) {
	start := p.pos
	var ws string
	if p.peek().Type == tokenizer.Whitespace {
		ws = p.peek().Value
		p.pos++
	}
	switch p.peek().Type {
	case tokenizer.Word, tokenizer.QuoteOpen:
		item := p.readPhrase()
		return item.Value, ws + item.Raw, true
	}
	p.pos = start
	return "", "", false
}

func (p *parser) parseFlag() bool {
	tok := p.peek()
	if tok.Type != tokenizer.FlagMarker {
		return false
	}
	p.pos++
	for _, c := range tok.FlagChars() {
		p.out.AddFlag(models.ParsedItem{Value: c, Raw: "-" + c})
	}
	return true
}

func (p *parser) parsePhrase() bool {
	if p.done() {
		return false
	}
	p.out.AddPhrase(p.readPhrase())
	return true
}

// readPhrase reads a quoted span or a single token as a phrase.
func (p *parser) readPhrase() models.ParsedItem {
	tok := p.peek()
	p.pos++
	if tok.Type != tokenizer.QuoteOpen {
		return models.ParsedItem{Value: tok.Value, Raw: tok.Value}
	}

	var value, raw strings.Builder
	raw.WriteString(tok.Value)
	for {
		next := p.peek()
		switch next.Type {
		case tokenizer.QuoteClose:
			p.pos++
			raw.WriteString(next.Value)
			return models.ParsedItem{Value: value.String(), Raw: raw.String()}
		case tokenizer.EOF:
			slog.Debug("Parser closing unterminated quote at end of input", "raw", raw.String())
			return models.ParsedItem{Value: value.String(), Raw: raw.String()}
		default:
			p.pos++
			value.WriteString(next.Value)
			raw.WriteString(next.Value)
		}
	}
}

// splitInlineOption splits name=value and name:value words.
func splitInlineOption(word string) (key, value string, ok bool) {
	idx := strings.IndexAny(word, "=:")
	if idx <= 0 {
		return "", "", false
	}
	return word[:idx], word[idx+1:], true
}
