// Package commands registers chat commands and dispatches input to them.
//
// A command declares its inputs as a slot schema. The dispatcher resolves
// that schema against a chat message or an interaction payload and calls the
// command's handler with the resolved arguments.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/prompt"
)

// Command errors.
var (
	ErrInvalidCommand   = errors.New("invalid command")
	ErrDuplicateCommand = errors.New("command already registered")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrNoHandler        = errors.New("command has no handler")
)

// Handler runs a command with its resolved arguments.
type Handler func(ctx context.Context, cc *Context, args Args) error

// Command is a named command and its input schema.
type Command struct {
	Name        string        `json:"name" yaml:"name"`
	Aliases     []string      `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Options     []models.Slot `json:"options,omitempty" yaml:"options,omitempty"`
	Handler     Handler       `json:"-" yaml:"-"`
}

// Context is passed to handlers.
type Context struct {
	Invocation models.Invocation
	messenger  prompt.Messenger
}

// NewContext creates a handler context replying through messenger.
func NewContext(inv models.Invocation, messenger prompt.Messenger) *Context {
	return &Context{Invocation: inv, messenger: messenger}
}

// Reply sends content to the invoking channel.
func (c *Context) Reply(ctx context.Context, content string) (models.MessageRef, error) {
	if c.messenger == nil {
		return models.MessageRef{}, fmt.Errorf("no messenger for channel %s", c.Invocation.ChannelID)
	}
	return c.messenger.Send(ctx, c.Invocation.ChannelID, content)
}

// Args holds resolved arguments keyed by slot name.
type Args map[string]any

// Has reports whether name was resolved.
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

// String returns name as a string, or "" when absent or of another type.
func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

// Float returns a numeric argument as float64.
func (a Args) Float(name string) float64 {
	switch v := a[name].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Int returns a numeric argument as int64.
func (a Args) Int(name string) int64 {
	switch v := a[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Bool returns a boolean argument.
func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Duration returns a duration argument.
func (a Args) Duration(name string) time.Duration {
	d, _ := a[name].(time.Duration)
	return d
}

// List returns a list argument. A single value becomes a one-element list.
func (a Args) List(name string) []any {
	switch v := a[name].(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		return []any{v}
	}
}

// Sub returns the nested arguments of a matched subcommand.
func (a Args) Sub(name string) (Args, bool) {
	m, ok := a[name].(map[string]any)
	return Args(m), ok
}
