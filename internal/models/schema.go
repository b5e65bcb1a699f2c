package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Schema validation errors.
var (
	ErrInvalidSlot    = errors.New("invalid slot definition")
	ErrDuplicateSlot  = errors.New("duplicate slot name")
	ErrMultipleRest   = errors.New("more than one rest slot")
	ErrRestNotLast    = errors.New("rest slot must be the last phrase slot")
	ErrUnknownType    = errors.New("no resolver registered for type")
	ErrInvalidBranch  = errors.New("invalid subcommand definition")
	ErrMixedBranching = errors.New("subcommands cannot be mixed with value slots")
)

// Resolution errors.
var (
	ErrMissingArgument = errors.New("missing required argument")
)

// SchemaError reports a configuration problem at a specific schema path.
type SchemaError struct {
	Path  string
	Cause error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Path, e.Cause)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// ResolutionError reports that a slot could not be given a value.
type ResolutionError struct {
	Slot  string
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("slot %q: %v", e.Slot, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// ValidateSchema checks a sibling list of slots and their children.
// hasResolver reports whether a type has a registered resolver; pass nil to
// skip type checks.
func ValidateSchema(slots []Slot, hasResolver func(SlotType) bool) error {
	return validateSiblings("", slots, hasResolver)
}

func validateSiblings(parent string, slots []Slot, hasResolver func(SlotType) bool) error {
	seen := make(map[string]bool, len(slots))
	branches, values := 0, 0
	restIndex := -1
	lastPhrase := -1

	for i := range slots {
		s := &slots[i]
		path := joinPath(parent, s.Name)

		if err := validateName(s.Name); err != nil {
			return &SchemaError{Path: path, Cause: err}
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			return &SchemaError{Path: path, Cause: ErrDuplicateSlot}
		}
		seen[key] = true

		if s.IsBranch() {
			branches++
			for _, alias := range s.Aliases {
				a := strings.ToLower(alias)
				if seen[a] {
					return &SchemaError{Path: path, Cause: fmt.Errorf("%w: alias %q", ErrDuplicateSlot, alias)}
				}
				seen[a] = true
			}
			if err := validateBranch(path, s, hasResolver); err != nil {
				return err
			}
			continue
		}

		values++
		if err := validateValue(path, s, hasResolver); err != nil {
			return err
		}
		if s.MatchMode() == MatchPhrase {
			lastPhrase = i
			if s.Rest {
				if restIndex >= 0 {
					return &SchemaError{Path: path, Cause: ErrMultipleRest}
				}
				restIndex = i
			}
		} else if s.Rest {
			return &SchemaError{Path: path, Cause: fmt.Errorf("%w: rest requires phrase matching", ErrInvalidSlot)}
		}
	}

	if branches > 0 && values > 0 {
		return &SchemaError{Path: orRoot(parent), Cause: ErrMixedBranching}
	}
	if restIndex >= 0 && restIndex != lastPhrase {
		return &SchemaError{Path: joinPath(parent, slots[restIndex].Name), Cause: ErrRestNotLast}
	}
	return nil
}

func validateBranch(path string, s *Slot, hasResolver func(SlotType) bool) error {
	if len(s.Choices) > 0 || s.Default != nil {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: choices and defaults are not allowed", ErrInvalidBranch)}
	}
	if s.Rest || s.Array || len(s.Separators) > 0 || s.Prompt != nil {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: value fields are not allowed", ErrInvalidBranch)}
	}
	for i := range s.Options {
		child := &s.Options[i]
		switch s.SlotKind() {
		case SlotKindSubcommandGroup:
			if child.SlotKind() != SlotKindSubcommand {
				return &SchemaError{Path: joinPath(path, child.Name), Cause: fmt.Errorf("%w: groups may only contain subcommands", ErrInvalidBranch)}
			}
		case SlotKindSubcommand:
			if child.IsBranch() {
				return &SchemaError{Path: joinPath(path, child.Name), Cause: fmt.Errorf("%w: subcommands may only contain value slots", ErrInvalidBranch)}
			}
		}
	}
	return validateSiblings(path, s.Options, hasResolver)
}

func validateValue(path string, s *Slot, hasResolver func(SlotType) bool) error {
	if s.SlotKind() != SlotKindValue {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: unknown kind %q", ErrInvalidSlot, s.Kind)}
	}
	switch s.MatchMode() {
	case MatchPhrase, MatchOption:
	case MatchFlag:
		for _, k := range s.FlagKeys() {
			if len([]rune(k)) != 1 {
				return &SchemaError{Path: path, Cause: fmt.Errorf("%w: flag key %q must be a single character", ErrInvalidSlot, k)}
			}
		}
	default:
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: unknown match mode %q", ErrInvalidSlot, s.Match)}
	}
	if len(s.Options) > 0 {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: value slots cannot own options", ErrInvalidSlot)}
	}
	if s.Limit < 0 {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: negative limit", ErrInvalidSlot)}
	}
	if s.Prompt != nil && strings.TrimSpace(s.Prompt.Start) == "" {
		return &SchemaError{Path: path, Cause: fmt.Errorf("%w: prompt without start text", ErrInvalidSlot)}
	}
	if hasResolver != nil && s.MatchMode() != MatchFlag && len(s.Choices) == 0 {
		for _, t := range s.SlotType().Members() {
			if !hasResolver(t) {
				return &SchemaError{Path: path, Cause: fmt.Errorf("%w: %s", ErrUnknownType, t)}
			}
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSlot)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: name %q contains whitespace", ErrInvalidSlot, name)
	}
	return nil
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func orRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
