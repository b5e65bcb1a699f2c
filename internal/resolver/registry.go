package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// Registry maps slot types to resolvers.
type Registry struct {
	resolvers map[models.SlotType]Resolver
	mu        sync.RWMutex
}

// NewRegistry creates a registry with the built-in resolvers registered.
func NewRegistry() *Registry {
	r := &Registry{
		resolvers: make(map[models.SlotType]Resolver),
	}
	r.registerBuiltins()
	return r
}

// NewEmptyRegistry creates a registry with no resolvers.
func NewEmptyRegistry() *Registry {
	return &Registry{
		resolvers: make(map[models.SlotType]Resolver),
	}
}

func (r *Registry) registerBuiltins() {
	for t, res := range builtins() {
		r.resolvers[t] = res
	}
	slog.Debug("Registry registered builtin resolvers", "count", len(r.resolvers))
}

// AddResolver registers res for t, replacing any existing resolver.
func (r *Registry) AddResolver(t models.SlotType, res Resolver) error {
	name := strings.TrimSpace(string(t))
	if name == "" || strings.Contains(name, "|") {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	if res == nil {
		return fmt.Errorf("resolver for %q is nil", t)
	}
	r.mu.Lock()
	r.resolvers[models.SlotType(name)] = res
	r.mu.Unlock()
	slog.Debug("Registry added resolver", "type", name)
	return nil
}

// RemoveResolver unregisters the resolver for t.
func (r *Registry) RemoveResolver(t models.SlotType) {
	r.mu.Lock()
	delete(r.resolvers, t)
	r.mu.Unlock()
	slog.Debug("Registry removed resolver", "type", t)
}

// Get returns the resolver registered for a single type.
func (r *Registry) Get(t models.SlotType) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resolvers[t]
	return res, ok
}

// Has reports whether every member of t has a resolver.
func (r *Registry) Has(t models.SlotType) bool {
	members := t.Members()
	if len(members) == 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range members {
		if _, ok := r.resolvers[m]; !ok {
			return false
		}
	}
	return true
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []models.SlotType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]models.SlotType, 0, len(r.resolvers))
	for t := range r.resolvers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Resolve runs the resolver for the slot's type. For union types the members
// are tried in order and the first one producing candidates wins.
func (r *Registry) Resolve(ctx context.Context, rc *Context, slot *models.Slot, phrases []string) (*Result, error) {
	for _, t := range slot.SlotType().Members() {
		res, ok := r.Get(t)
		if !ok {
			return nil, fmt.Errorf("%w for type %q", ErrNoResolver, t)
		}
		result, err := res.Resolve(ctx, rc, slot, phrases)
		if err != nil {
			return nil, fmt.Errorf("resolve %s as %s: %w", slot.Name, t, err)
		}
		if !result.Empty() {
			slog.Debug("Registry resolved slot", "slot", slot.Name, "type", t, "candidates", len(result.Values))
			return result, nil
		}
	}
	return &Result{}, nil
}

// Reduce normalises raw phrases for the slot. For a union type the first
// member whose resolver implements Reducer reduces the phrases; without one
// the slot's separators are applied.
func (r *Registry) Reduce(rc *Context, slot *models.Slot, raw []string) []string {
	for _, member := range slot.SlotType().Members() {
		res, ok := r.Get(member)
		if !ok {
			continue
		}
		if reducer, ok := res.(Reducer); ok {
			return reducer.Reduce(rc, slot, raw)
		}
	}
	if len(slot.Separators) == 0 {
		return raw
	}
	return SplitSeparators(raw, slot.Separators)
}

// SplitSeparators joins raw with spaces and splits it on any of seps,
// trimming fragments and dropping empty ones.
func SplitSeparators(raw []string, seps []string) []string {
	joined := strings.Join(raw, " ")
	quoted := make([]string, 0, len(seps))
	for _, s := range seps {
		if s != "" {
			quoted = append(quoted, regexp.QuoteMeta(s))
		}
	}
	if len(quoted) == 0 {
		return raw
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	var out []string
	for _, part := range re.Split(joined, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
