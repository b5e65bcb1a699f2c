package models

import (
	"errors"
	"testing"
	"time"
)

func TestValidateSchema(t *testing.T) {
	known := func(t SlotType) bool {
		switch t {
		case TypeString, TypeNumber, TypeMember:
			return true
		}
		return false
	}

	tests := []struct {
		name    string
		schema  []Slot
		wantErr error
	}{
		{
			name: "valid flat schema",
			schema: []Slot{
				{Name: "count", Type: TypeNumber, Required: true},
				{Name: "verbose", Match: MatchFlag},
				{Name: "limit", Match: MatchOption, Type: TypeNumber},
				{Name: "text", Rest: true},
			},
		},
		{
			name: "valid nested schema",
			schema: []Slot{
				{Name: "hello", Kind: SlotKindSubcommandGroup, Options: []Slot{
					{Name: "world", Kind: SlotKindSubcommand, Options: []Slot{
						{Name: "test", Type: TypeString},
					}},
				}},
			},
		},
		{
			name: "duplicate names ignore case",
			schema: []Slot{
				{Name: "user"},
				{Name: "User"},
			},
			wantErr: ErrDuplicateSlot,
		},
		{
			name: "rest slot not last",
			schema: []Slot{
				{Name: "text", Rest: true},
				{Name: "count", Type: TypeNumber},
			},
			wantErr: ErrRestNotLast,
		},
		{
			name: "rest slot followed by option is fine",
			schema: []Slot{
				{Name: "text", Rest: true},
				{Name: "limit", Match: MatchOption, Type: TypeNumber},
			},
		},
		{
			name: "two rest slots",
			schema: []Slot{
				{Name: "a", Rest: true},
				{Name: "b", Rest: true},
			},
			wantErr: ErrMultipleRest,
		},
		{
			name:    "unknown type",
			schema:  []Slot{{Name: "when", Type: "date"}},
			wantErr: ErrUnknownType,
		},
		{
			name:    "unknown member of union type",
			schema:  []Slot{{Name: "who", Type: "member|date"}},
			wantErr: ErrUnknownType,
		},
		{
			name:   "choices skip type check",
			schema: []Slot{{Name: "mode", Type: "date", Choices: []Choice{{Name: "fast"}}}},
		},
		{
			name: "group with default",
			schema: []Slot{
				{Name: "g", Kind: SlotKindSubcommandGroup, Default: "x"},
			},
			wantErr: ErrInvalidBranch,
		},
		{
			name: "group containing value slot",
			schema: []Slot{
				{Name: "g", Kind: SlotKindSubcommandGroup, Options: []Slot{{Name: "v"}}},
			},
			wantErr: ErrInvalidBranch,
		},
		{
			name: "mixed branch and value siblings",
			schema: []Slot{
				{Name: "sub", Kind: SlotKindSubcommand},
				{Name: "v"},
			},
			wantErr: ErrMixedBranching,
		},
		{
			name:    "multi character flag key",
			schema:  []Slot{{Name: "verbose", Match: MatchFlag, Keys: []string{"vv"}}},
			wantErr: ErrInvalidSlot,
		},
		{
			name:    "name with whitespace",
			schema:  []Slot{{Name: "two words"}},
			wantErr: ErrInvalidSlot,
		},
		{
			name:    "prompt without text",
			schema:  []Slot{{Name: "x", Prompt: &PromptSpec{}}},
			wantErr: ErrInvalidSlot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchema(tt.schema, known)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Errorf("expected *SchemaError, got %T", err)
			}
		})
	}
}

func TestSchemaErrorPath(t *testing.T) {
	schema := []Slot{
		{Name: "tag", Kind: SlotKindSubcommandGroup, Options: []Slot{
			{Name: "add", Kind: SlotKindSubcommand, Options: []Slot{
				{Name: "name"},
				{Name: "name"},
			}},
		}},
	}
	err := ValidateSchema(schema, nil)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if schemaErr.Path != "tag.add.name" {
		t.Errorf("expected path tag.add.name, got %s", schemaErr.Path)
	}
}

func TestSlotDefaults(t *testing.T) {
	s := Slot{Name: "verbose"}
	if s.MatchMode() != MatchPhrase {
		t.Errorf("expected phrase match, got %s", s.MatchMode())
	}
	if s.SlotType() != TypeString {
		t.Errorf("expected string type, got %s", s.SlotType())
	}
	if keys := s.FlagKeys(); len(keys) != 1 || keys[0] != "v" {
		t.Errorf("expected flag key v, got %v", keys)
	}
	if keys := s.OptionKeys(); len(keys) != 1 || keys[0] != "verbose" {
		t.Errorf("expected option key verbose, got %v", keys)
	}
}

func TestPromptSpecLimits(t *testing.T) {
	tests := []struct {
		name    string
		spec    *PromptSpec
		timeout time.Duration
		retries int
	}{
		{"nil spec", nil, 0, 0},
		{"unset", &PromptSpec{Start: "?"}, 0, 0},
		{"explicit", &PromptSpec{Timeout: time.Minute, Retries: 4}, time.Minute, 4},
		{"negative retries kept", &PromptSpec{Retries: -1}, 0, -1},
		{"negative timeout dropped", &PromptSpec{Timeout: -time.Second}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout, retries := tt.spec.Limits()
			if timeout != tt.timeout || retries != tt.retries {
				t.Errorf("Limits() = %v, %d; want %v, %d", timeout, retries, tt.timeout, tt.retries)
			}
		})
	}
}

func TestSlotTypeMembers(t *testing.T) {
	got := SlotType("member | string").Members()
	if len(got) != 2 || got[0] != TypeMember || got[1] != TypeString {
		t.Errorf("unexpected union members: %v", got)
	}
}

func TestResolutionErrorUnwrap(t *testing.T) {
	err := &ResolutionError{Slot: "count", Cause: ErrMissingArgument}
	if !errors.Is(err, ErrMissingArgument) {
		t.Error("ResolutionError should unwrap to its cause")
	}
	if err.Error() != `slot "count": missing required argument` {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
