package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// SlotType names the resolver used to turn raw phrases into values.
// Union types are written as "member|string".
type SlotType string

// Built-in slot types. Command authors may register more.
const (
	TypeString    SlotType = "string"
	TypeLowercase SlotType = "lowercase"
	TypeUppercase SlotType = "uppercase"
	TypeNumber    SlotType = "number"
	TypeInteger   SlotType = "integer"
	TypeBoolean   SlotType = "boolean"
	TypeDuration  SlotType = "duration"
	TypeURL       SlotType = "url"
	TypeID        SlotType = "id"
	TypeMember    SlotType = "member"
	TypeChannel   SlotType = "channel"
	TypeRole      SlotType = "role"
)

// Members splits a union type into its member types.
func (t SlotType) Members() []SlotType {
	parts := strings.Split(string(t), "|")
	types := make([]SlotType, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			types = append(types, SlotType(p))
		}
	}
	return types
}

// SlotKind distinguishes value slots from subcommand tree nodes.
type SlotKind string

const (
	// SlotKindValue is an argument or option that resolves to a value.
	SlotKindValue SlotKind = "value"
	// SlotKindSubcommand selects a subcommand and owns value slots.
	SlotKindSubcommand SlotKind = "subcommand"
	// SlotKindSubcommandGroup selects a group and owns subcommands.
	SlotKindSubcommandGroup SlotKind = "subcommand_group"
)

// MatchMode defines where a value slot finds its raw input.
type MatchMode string

const (
	// MatchPhrase consumes positional phrases.
	MatchPhrase MatchMode = "phrase"
	// MatchFlag tests for a single-character flag.
	MatchFlag MatchMode = "flag"
	// MatchOption looks up a named key/value option.
	MatchOption MatchMode = "option"
)

// Default prompt settings applied when a PromptSpec leaves them unset.
const (
	DefaultPromptTimeout = 30 * time.Second
	DefaultPromptRetries = 1
	// MaxChoices bounds disambiguation lists.
	MaxChoices = 10
)

// Choice is a fixed value a slot may take.
type Choice struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// PromptSpec configures interactive re-collection for a missing or invalid slot.
type PromptSpec struct {
	Start    string        `json:"start" yaml:"start"`
	Retry    string        `json:"retry,omitempty" yaml:"retry,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries  int           `json:"retries,omitempty" yaml:"retries,omitempty"`
	Infinite bool          `json:"infinite,omitempty" yaml:"infinite,omitempty"`
	Limit    int           `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Limits returns the timeout and retry limit set on the prompt. Zero values,
// and a nil spec, leave the choice to the collector defaults. A negative
// retry limit is passed through and disables retrying.
func (p *PromptSpec) Limits() (time.Duration, int) {
	if p == nil {
		return 0, 0
	}
	timeout := p.Timeout
	if timeout < 0 {
		timeout = 0
	}
	return timeout, p.Retries
}

// Slot is one node of a command schema.
type Slot struct {
	Name        string      `json:"name" yaml:"name"`
	Aliases     []string    `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        SlotKind    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Type        SlotType    `json:"type,omitempty" yaml:"type,omitempty"`
	Match       MatchMode   `json:"match,omitempty" yaml:"match,omitempty"`
	Keys        []string    `json:"keys,omitempty" yaml:"keys,omitempty"`
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any         `json:"default,omitempty" yaml:"default,omitempty"`
	Array       bool        `json:"array,omitempty" yaml:"array,omitempty"`
	Rest        bool        `json:"rest,omitempty" yaml:"rest,omitempty"`
	Limit       int         `json:"limit,omitempty" yaml:"limit,omitempty"`
	Choices     []Choice    `json:"choices,omitempty" yaml:"choices,omitempty"`
	Separators  []string    `json:"separators,omitempty" yaml:"separators,omitempty"`
	Prompt      *PromptSpec `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Options     []Slot      `json:"options,omitempty" yaml:"options,omitempty"`

	// Transform maps the resolved value to the value stored in the result.
	Transform func(any) any `json:"-" yaml:"-"`
}

// SlotKind returns the slot kind, defaulting to SlotKindValue.
func (s *Slot) SlotKind() SlotKind {
	if s.Kind == "" {
		return SlotKindValue
	}
	return s.Kind
}

// IsBranch reports whether the slot is a subcommand or subcommand group.
func (s *Slot) IsBranch() bool {
	k := s.SlotKind()
	return k == SlotKindSubcommand || k == SlotKindSubcommandGroup
}

// MatchMode returns the match mode, defaulting to MatchPhrase.
func (s *Slot) MatchMode() MatchMode {
	if s.Match == "" {
		return MatchPhrase
	}
	return s.Match
}

// SlotType returns the declared type, defaulting to TypeString.
func (s *Slot) SlotType() SlotType {
	if s.Type == "" {
		return TypeString
	}
	return s.Type
}

// OptionKeys returns the option names the slot answers to.
func (s *Slot) OptionKeys() []string {
	if len(s.Keys) > 0 {
		return s.Keys
	}
	return []string{s.Name}
}

// FlagKeys returns the flag characters the slot answers to. Without explicit
// keys the first letter of the name is used.
func (s *Slot) FlagKeys() []string {
	if len(s.Keys) > 0 {
		return s.Keys
	}
	r, size := utf8.DecodeRuneInString(s.Name)
	if r == utf8.RuneError || size == 0 {
		return nil
	}
	return []string{string(r)}
}

// MatchesName reports whether name selects this slot, ignoring case.
func (s *Slot) MatchesName(name string) bool {
	if strings.EqualFold(s.Name, name) {
		return true
	}
	for _, alias := range s.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}
