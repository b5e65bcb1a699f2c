package resolver

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/models"
)

func builtins() map[models.SlotType]Resolver {
	return map[models.SlotType]Resolver{
		models.TypeString:    eachPhrase(func(s string) (any, bool) { return s, true }),
		models.TypeLowercase: eachPhrase(func(s string) (any, bool) { return strings.ToLower(s), true }),
		models.TypeUppercase: eachPhrase(func(s string) (any, bool) { return strings.ToUpper(s), true }),
		models.TypeNumber:    eachPhrase(parseNumber),
		models.TypeInteger:   eachPhrase(parseInteger),
		models.TypeBoolean:   eachPhrase(parseBoolean),
		models.TypeDuration:  eachPhrase(parseDuration),
		models.TypeURL:       eachPhrase(parseURL),
		models.TypeID:        eachPhrase(parseID),
		models.TypeMember:    ResolverFunc(resolveMember),
		models.TypeChannel:   ResolverFunc(resolveChannel),
		models.TypeRole:      ResolverFunc(resolveRole),
	}
}

// eachPhrase builds a resolver that converts every phrase independently.
// A single phrase that fails to convert yields no candidates at all.
func eachPhrase(convert func(string) (any, bool)) Resolver {
	return ResolverFunc(func(_ context.Context, _ *Context, _ *models.Slot, phrases []string) (*Result, error) {
		values := make([]any, 0, len(phrases))
		for _, p := range phrases {
			v, ok := convert(p)
			if !ok {
				return &Result{}, nil
			}
			values = append(values, v)
		}
		return Values(values...), nil
	})
}

func parseNumber(s string) (any, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func parseInteger(s string) (any, bool) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, false
	}
	return i, true
}

func parseBoolean(s string) (any, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "on", "1", "enable", "enabled":
		return true, true
	case "false", "no", "n", "off", "0", "disable", "disabled":
		return false, true
	}
	return nil, false
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return nil, false
	}
	return d, true
}

func parseURL(s string) (any, bool) {
	u, err := url.ParseRequestURI(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u.String(), true
}

var (
	mentionPattern = regexp.MustCompile(`^<(?:@[!&]?|#)([0-9A-Za-z._-]+)>$`)
	idPattern      = regexp.MustCompile(`^[0-9]+$`)
)

// mentionID extracts the id from <@id>, <@!id>, <@&id> or <#id>.
func mentionID(s string) (string, bool) {
	m := mentionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func parseID(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if id, ok := mentionID(s); ok {
		s = id
	}
	if !idPattern.MatchString(s) {
		return nil, false
	}
	return s, true
}
