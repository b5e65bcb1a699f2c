package commands

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
)

// Registry holds commands by name and alias.
type Registry struct {
	resolvers *resolver.Registry
	commands  map[string]*Command
	aliases   map[string]string
	mu        sync.RWMutex
}

// NewRegistry creates a command registry validating schemas against resolvers.
func NewRegistry(resolvers *resolver.Registry) *Registry {
	return &Registry{
		resolvers: resolvers,
		commands:  make(map[string]*Command),
		aliases:   make(map[string]string),
	}
}

// Register validates and adds a command. Schema problems, such as a type
// without a resolver, are reported here rather than at run time.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: bad name %q", ErrInvalidCommand, cmd.Name)
	}
	if err := models.ValidateSchema(cmd.Options, r.resolvers.Has); err != nil {
		return fmt.Errorf("command %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{name}, cmd.Aliases...)
	for _, k := range keys {
		k = strings.ToLower(k)
		if _, ok := r.commands[k]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, k)
		}
		if _, ok := r.aliases[k]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, k)
		}
	}

	cmd.Name = name
	r.commands[name] = &cmd
	for _, alias := range cmd.Aliases {
		r.aliases[strings.ToLower(alias)] = name
	}
	slog.Debug("Registry registered command", "name", name, "aliases", cmd.Aliases, "slots", len(cmd.Options))
	return nil
}

// Bind attaches a handler to a registered command.
func (r *Registry) Bind(name string, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	cmd.Handler = h
	return nil
}

// Get looks a command up by name or alias.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	cmd, ok := r.commands[name]
	return cmd, ok
}

// List returns all commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// schemaFile is the YAML layout read by LoadSchemas.
type schemaFile struct {
	Commands []Command `yaml:"commands"`
}

// LoadSchemas reads command schemas from YAML.
func LoadSchemas(r io.Reader) ([]Command, error) {
	var file schemaFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode command schemas: %w", err)
	}
	return file.Commands, nil
}

// RegisterAll registers every command, stopping at the first error.
func (r *Registry) RegisterAll(cmds []Command) error {
	for _, cmd := range cmds {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}
