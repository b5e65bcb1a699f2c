package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

// entity is a directory record reduced to what matching needs.
type entity struct {
	id    string
	name  string
	value any
}

type scored struct {
	entity
	rank int
	dist int
}

const (
	rankExact = iota
	rankPrefix
	rankContains
	rankFuzzy
)

// matchEntities ranks directory records against a query. An id or mention
// match wins outright, then exact names, prefixes, substrings and finally
// names within a small edit distance. Only the best non-empty tier is
// returned.
func matchEntities(query string, all []entity) []entity {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	id := query
	if m, ok := mentionID(query); ok {
		id = m
	}
	for _, e := range all {
		if e.id == id {
			return []entity{e}
		}
	}

	q := strings.ToLower(strings.TrimLeft(query, "@#"))
	if q == "" {
		return nil
	}
	limit := levenshteinLimit(len(q))

	var hits []scored
	for _, e := range all {
		name := strings.ToLower(e.name)
		switch {
		case name == q:
			hits = append(hits, scored{entity: e, rank: rankExact})
		case strings.HasPrefix(name, q):
			hits = append(hits, scored{entity: e, rank: rankPrefix})
		case strings.Contains(name, q):
			hits = append(hits, scored{entity: e, rank: rankContains})
		default:
			if dist := levenshtein.ComputeDistance(q, name); dist <= limit {
				hits = append(hits, scored{entity: e, rank: rankFuzzy, dist: dist})
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return strings.ToLower(hits[i].name) < strings.ToLower(hits[j].name)
	})

	best := hits[0].rank
	out := make([]entity, 0, len(hits))
	for _, h := range hits {
		if h.rank != best {
			break
		}
		out = append(out, h.entity)
	}
	return out
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// resolveEntities matches each phrase against the directory. A single
// phrase with several matches asks for disambiguation; with several phrases
// each one contributes its best match and any phrase without a match yields
// no candidates.
func resolveEntities(phrases []string, all []entity) *Result {
	result := &Result{
		Display: displayEntity,
		Extra:   entityID,
	}
	if len(phrases) == 1 {
		matches := matchEntities(phrases[0], all)
		for _, m := range matches {
			result.Values = append(result.Values, m.value)
		}
		result.Reduce = len(matches) > 1
		return result
	}
	for _, p := range phrases {
		matches := matchEntities(p, all)
		if len(matches) == 0 {
			return &Result{}
		}
		result.Values = append(result.Values, matches[0].value)
	}
	return result
}

func displayEntity(v any) string {
	switch e := v.(type) {
	case models.Member:
		return e.Name
	case models.Channel:
		return e.Name
	case models.Role:
		return e.Name
	}
	return ""
}

func entityID(v any) string {
	switch e := v.(type) {
	case models.Member:
		return e.ID
	case models.Channel:
		return e.ID
	case models.Role:
		return e.ID
	}
	return ""
}

func resolveMember(ctx context.Context, rc *Context, _ *models.Slot, phrases []string) (*Result, error) {
	if rc == nil || rc.Directory == nil {
		return nil, ErrNoDirectory
	}
	members, err := rc.Directory.Members(ctx, rc.Invocation.ChannelID)
	if err != nil {
		return nil, err
	}
	all := make([]entity, 0, len(members))
	for _, m := range members {
		all = append(all, entity{id: m.ID, name: m.Name, value: m})
	}
	return resolveEntities(phrases, all), nil
}

func resolveChannel(ctx context.Context, rc *Context, _ *models.Slot, phrases []string) (*Result, error) {
	if rc == nil || rc.Directory == nil {
		return nil, ErrNoDirectory
	}
	channels, err := rc.Directory.Channels(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]entity, 0, len(channels))
	for _, c := range channels {
		all = append(all, entity{id: c.ID, name: c.Name, value: c})
	}
	return resolveEntities(phrases, all), nil
}

func resolveRole(ctx context.Context, rc *Context, _ *models.Slot, phrases []string) (*Result, error) {
	if rc == nil || rc.Directory == nil {
		return nil, ErrNoDirectory
	}
	roles, err := rc.Directory.Roles(ctx)
	if err != nil {
		return nil, err
	}
	all := make([]entity, 0, len(roles))
	for _, r := range roles {
		all = append(all, entity{id: r.ID, name: r.Name, value: r})
	}
	return resolveEntities(phrases, all), nil
}
