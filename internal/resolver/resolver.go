// Package resolver converts raw phrase strings into typed slot values.
//
// Each slot type is served by a Resolver stored in a Registry. Resolvers may
// return several candidates and ask for disambiguation by setting Reduce on
// their Result; the caller decides whether a choice prompt is needed.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// Registry errors.
var (
	ErrNoResolver  = errors.New("no resolver registered")
	ErrInvalidType = errors.New("invalid slot type")
	ErrNoDirectory = errors.New("no directory available")
)

// Directory is a read-only view of live platform state.
type Directory interface {
	Members(ctx context.Context, channelID string) ([]models.Member, error)
	Channels(ctx context.Context) ([]models.Channel, error)
	Roles(ctx context.Context) ([]models.Role, error)
}

// Context carries the invocation being resolved and the capabilities a
// resolver may use.
type Context struct {
	Invocation models.Invocation
	Directory  Directory
}

// Result holds the candidates produced for one slot.
// When Reduce is set and there is more than one value, the values are
// presented to the user as a numbered choice using Display and Extra.
type Result struct {
	Values  []any
	Reduce  bool
	Display func(any) string
	Extra   func(any) string
}

// Empty reports whether the result has no candidates.
func (r *Result) Empty() bool {
	return r == nil || len(r.Values) == 0
}

// DisplayOf returns the display text for v.
func (r *Result) DisplayOf(v any) string {
	if r != nil && r.Display != nil {
		return r.Display(v)
	}
	return fmt.Sprint(v)
}

// ExtraOf returns the secondary key for v, or "" when none is defined.
func (r *Result) ExtraOf(v any) string {
	if r != nil && r.Extra != nil {
		return r.Extra(v)
	}
	return ""
}

// Values wraps values in a non-reducing Result.
func Values(values ...any) *Result {
	return &Result{Values: values}
}

// Resolver turns raw phrases into candidates for one slot type.
type Resolver interface {
	Resolve(ctx context.Context, rc *Context, slot *models.Slot, phrases []string) (*Result, error)
}

// Reducer is implemented by resolvers that normalise raw phrases themselves
// instead of using the slot's separators.
type Reducer interface {
	Reduce(rc *Context, slot *models.Slot, raw []string) []string
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, rc *Context, slot *models.Slot, phrases []string) (*Result, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, rc *Context, slot *models.Slot, phrases []string) (*Result, error) {
	return f(ctx, rc, slot, phrases)
}
