package fulfill

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// InputKind names where an InputSource gets its raw input.
type InputKind string

const (
	KindText       InputKind = "text"
	KindStructured InputKind = "structured"
)

// InputSource supplies raw phrases for slots. The two implementations
// differ only in how they find the phrases; resolution is shared.
type InputSource interface {
	Kind() InputKind
	// Phrases returns the raw phrases for a value slot, consuming them.
	Phrases(slot *models.Slot) []string
	// Flag reports whether a flag slot is set.
	Flag(slot *models.Slot) bool
	// Branch selects the child matching the next input and returns the
	// source for its options.
	Branch(children []models.Slot) (*models.Slot, InputSource, bool)
}

// TextSource reads slots from parsed chat text. Phrase slots consume
// phrases left to right through a shared cursor.
type TextSource struct {
	out    models.ParserOutput
	cursor int
}

// NewTextSource wraps parser output.
func NewTextSource(out models.ParserOutput) *TextSource {
	return &TextSource{out: out}
}

// Kind returns KindText.
func (s *TextSource) Kind() InputKind { return KindText }

// Remaining returns the phrases not consumed yet.
func (s *TextSource) Remaining() []string {
	if s.cursor >= len(s.out.Phrases) {
		return nil
	}
	values := make([]string, 0, len(s.out.Phrases)-s.cursor)
	for _, p := range s.out.Phrases[s.cursor:] {
		values = append(values, p.Value)
	}
	return values
}

// Phrases returns option values, or consumes one phrase (all remaining
// phrases up to Limit for rest slots).
func (s *TextSource) Phrases(slot *models.Slot) []string {
	if slot.MatchMode() == models.MatchOption {
		return s.optionValues(slot)
	}

	if !slot.Rest {
		if s.cursor >= len(s.out.Phrases) {
			return nil
		}
		p := s.out.Phrases[s.cursor]
		s.cursor++
		return []string{p.Value}
	}

	rest := s.Remaining()
	if slot.Limit > 0 && len(rest) > slot.Limit {
		rest = rest[:slot.Limit]
	}
	s.cursor += len(rest)
	if len(rest) == 0 {
		return nil
	}
	if slot.Array && len(slot.Separators) == 0 {
		return rest
	}
	return []string{strings.Join(rest, " ")}
}

func (s *TextSource) optionValues(slot *models.Slot) []string {
	var values []string
	for _, opt := range s.out.Options {
		if !hasKey(slot.OptionKeys(), opt.Key) {
			continue
		}
		value := opt.Value
		if value == "" {
			if slot.SlotType() != models.TypeBoolean {
				continue
			}
			value = "true"
		}
		if slot.Array {
			values = append(values, value)
		} else {
			values = []string{value}
		}
	}
	return values
}

// Flag reports whether any parsed flag matches the slot's keys, or the slot
// was given in long form. An explicit boolean value (--loud=false) is honoured.
func (s *TextSource) Flag(slot *models.Slot) bool {
	for _, f := range s.out.Flags {
		if hasKey(slot.FlagKeys(), f.Value) {
			return true
		}
	}
	set := false
	for _, opt := range s.out.Options {
		if !hasKey(longFlagKeys(slot), opt.Key) {
			continue
		}
		set = true
		if b, err := strconv.ParseBool(opt.Value); err == nil {
			set = b
		}
	}
	return set
}

// longFlagKeys returns the names a flag slot answers to as --name.
func longFlagKeys(slot *models.Slot) []string {
	return append([]string{slot.Name}, slot.Aliases...)
}

// Branch matches the phrase under the cursor against the children's names.
func (s *TextSource) Branch(children []models.Slot) (*models.Slot, InputSource, bool) {
	if s.cursor >= len(s.out.Phrases) {
		return nil, nil, false
	}
	name := s.out.Phrases[s.cursor].Value
	for i := range children {
		if children[i].MatchesName(name) {
			s.cursor++
			return &children[i], s, true
		}
	}
	return nil, nil, false
}

// StructuredSource reads slots from an interaction payload. Values are
// looked up by name and nothing is tokenised.
type StructuredSource struct {
	options []models.InteractionOption
	next    int
}

// NewStructuredSource wraps interaction options.
func NewStructuredSource(options []models.InteractionOption) *StructuredSource {
	return &StructuredSource{options: options}
}

// Kind returns KindStructured.
func (s *StructuredSource) Kind() InputKind { return KindStructured }

func (s *StructuredSource) lookup(slot *models.Slot) (models.InteractionOption, bool) {
	names := append([]string{slot.Name}, slot.Aliases...)
	if slot.MatchMode() == models.MatchOption {
		names = append(names, slot.Keys...)
	}
	for _, opt := range s.options {
		if hasKey(names, opt.Name) {
			return opt, true
		}
	}
	return models.InteractionOption{}, false
}

// Phrases returns the slot's value rendered as strings. Lists yield one
// phrase per element.
func (s *StructuredSource) Phrases(slot *models.Slot) []string {
	opt, ok := s.lookup(slot)
	if !ok || opt.Value == nil {
		return nil
	}
	var values []string
	switch v := opt.Value.(type) {
	case []any:
		for _, item := range v {
			values = append(values, stringify(item))
		}
	case []string:
		values = append(values, v...)
	default:
		values = []string{stringify(v)}
	}

	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Flag reports whether the slot is present with a truthy value.
func (s *StructuredSource) Flag(slot *models.Slot) bool {
	opt, ok := s.lookup(slot)
	if !ok {
		return false
	}
	switch v := opt.Value.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "false", "no", "off", "0":
			return false
		}
		return true
	}
	return true
}

// Branch selects the first remaining entry naming one of the children.
func (s *StructuredSource) Branch(children []models.Slot) (*models.Slot, InputSource, bool) {
	for ; s.next < len(s.options); s.next++ {
		opt := s.options[s.next]
		for i := range children {
			if children[i].MatchesName(opt.Name) {
				s.next++
				return &children[i], NewStructuredSource(opt.Options), true
			}
		}
	}
	return nil, nil, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func hasKey(keys []string, key string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}
