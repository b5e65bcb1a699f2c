package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/ArgPipe/internal/resolver"
)

func TestParse(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"0  9 * *   1-5", false},
		{"@daily", false},
		{"@every 1h", false},
		{"", true},
		{"61 * * * *", true},
		{"not a cron", true},
		{"0 0 * * * *", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := Parse(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestScheduleNext(t *testing.T) {
	s, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	from := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if got, want := s.Next(from), time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if s.String() != "0 9 * * *" {
		t.Errorf("unexpected String %q", s.String())
	}
	if !(Schedule{}).Next(from).IsZero() {
		t.Error("zero Schedule should never fire")
	}
}

func TestResolve(t *testing.T) {
	res, err := Resolve(context.Background(), nil, nil, []string{"@hourly", "*/5 * * * *"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(res.Values) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(res.Values))
	}
	if s, ok := res.Values[1].(Schedule); !ok || s.String() != "*/5 * * * *" {
		t.Errorf("unexpected value %#v", res.Values[1])
	}

	res, _ = Resolve(context.Background(), nil, nil, []string{"@hourly", "bogus"})
	if !res.Empty() {
		t.Errorf("expected no candidates, got %v", res.Values)
	}
}

func TestRegister(t *testing.T) {
	registry := resolver.NewRegistry()
	if err := Register(registry); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !registry.Has(SlotType) {
		t.Error("schedule type not registered")
	}
}
