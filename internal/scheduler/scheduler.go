// Package scheduler parses cron expressions for recurring jobs and resolves
// them as command arguments.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BTreeMap/ArgPipe/internal/models"
	"github.com/BTreeMap/ArgPipe/internal/resolver"
)

// SlotType is the slot type served by Resolve.
const SlotType models.SlotType = "schedule"

// Standard 5-field cron (min, hour, dom, month, dow) plus descriptors such as @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule is a parsed cron expression.
type Schedule struct {
	expr  string
	sched cron.Schedule
}

// Parse parses a cron expression.
func Parse(expr string) (Schedule, error) {
	expr = strings.Join(strings.Fields(expr), " ")
	if expr == "" {
		return Schedule{}, fmt.Errorf("empty cron expression")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return Schedule{expr: expr, sched: sched}, nil
}

// Next returns the first activation strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	if s.sched == nil {
		return time.Time{}
	}
	return s.sched.Next(t)
}

// String returns the normalised expression.
func (s Schedule) String() string {
	return s.expr
}

// Resolve converts every phrase into a Schedule. One invalid phrase yields
// no candidates.
func Resolve(_ context.Context, _ *resolver.Context, _ *models.Slot, phrases []string) (*resolver.Result, error) {
	values := make([]any, 0, len(phrases))
	for _, p := range phrases {
		s, err := Parse(p)
		if err != nil {
			return &resolver.Result{}, nil
		}
		values = append(values, s)
	}
	return resolver.Values(values...), nil
}

// Register adds the schedule resolver to registry.
func Register(registry *resolver.Registry) error {
	return registry.AddResolver(SlotType, resolver.ResolverFunc(Resolve))
}
