// Package store provides storage backends for ArgPipe.
//
// A store remembers the members, channels and roles the bot has seen so that
// member, channel and role arguments can be resolved against live data. It
// also keeps durable jobs and the ids of inbound messages already handled.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// Database drivers returned by DetectDSNType.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store records and lists directory entries, and persists jobs and inbound
// message ids. It satisfies resolver.Directory.
type Store interface {
	RecordMember(ctx context.Context, m models.Member) error
	AddChannel(ctx context.Context, c models.Channel) error
	AddRole(ctx context.Context, r models.Role) error
	Members(ctx context.Context, channelID string) ([]models.Member, error)
	Channels(ctx context.Context) ([]models.Channel, error)
	Roles(ctx context.Context) ([]models.Role, error)
	JobRepo
	DedupRepo
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports the database driver a DSN is meant for.
// URLs with a postgres scheme and key=value connection strings are Postgres;
// everything else is treated as an SQLite file path.
func DetectDSNType(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DriverPostgres
	}
	if strings.Contains(dsn, "=") && !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "?") {
		return DriverPostgres
	}
	return DriverSQLite
}

// Open creates the backend matching the configured DSN. An empty DSN yields
// an in-memory store.
func Open(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Debug("Store.Open no DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(cfg.DSN) {
	case DriverPostgres:
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}

func validateMember(m models.Member) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("member id cannot be empty")
	}
	return nil
}

func validateEntry(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id cannot be empty", kind)
	}
	return nil
}

type memberKey struct {
	channel string
	id      string
}

// InMemoryStore is a store kept in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	members  map[memberKey]models.Member
	channels map[string]models.Channel
	roles    map[string]models.Role
	jobs     map[string]*Job
	inbound  map[memberKey]struct{}
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		members:  make(map[memberKey]models.Member),
		channels: make(map[string]models.Channel),
		roles:    make(map[string]models.Role),
		jobs:     make(map[string]*Job),
		inbound:  make(map[memberKey]struct{}),
	}
}

// RecordMember inserts or renames a member of a channel.
func (s *InMemoryStore) RecordMember(_ context.Context, m models.Member) error {
	if err := validateMember(m); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{channel: m.ChannelID, id: m.ID}
	if prev, ok := s.members[key]; ok && m.Name == "" {
		m.Name = prev.Name
	}
	s.members[key] = m
	return nil
}

// AddChannel inserts or renames a channel.
func (s *InMemoryStore) AddChannel(_ context.Context, c models.Channel) error {
	if err := validateEntry("channel", c.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.ID] = c
	return nil
}

// AddRole inserts or renames a role.
func (s *InMemoryStore) AddRole(_ context.Context, r models.Role) error {
	if err := validateEntry("role", r.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
	return nil
}

// Members lists members of channelID, or of every channel when it is empty.
func (s *InMemoryStore) Members(_ context.Context, channelID string) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Member
	for key, m := range s.members {
		if channelID == "" || key.channel == channelID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChannelID != out[j].ChannelID {
			return out[i].ChannelID < out[j].ChannelID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Channels lists all channels sorted by id.
func (s *InMemoryStore) Channels(context.Context) ([]models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Roles lists all roles sorted by id.
func (s *InMemoryStore) Roles(context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
