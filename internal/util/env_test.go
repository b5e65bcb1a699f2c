package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"", true, true},
		{"yes", false, true},
		{" ON ", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("ARGPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("ARGPIPE_TEST_BOOL", tt.def); got != tt.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("ARGPIPE_TEST_INT", "42")
	if got := ParseIntEnv("ARGPIPE_TEST_INT", 1); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("ARGPIPE_TEST_INT", "forty")
	if got := ParseIntEnv("ARGPIPE_TEST_INT", 1); got != 1 {
		t.Errorf("expected default 1, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", time.Minute},
		{"45", 45 * time.Second},
		{"1m30s", 90 * time.Second},
		{"-5s", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("ARGPIPE_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("ARGPIPE_TEST_DURATION", time.Minute); got != tt.expected {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.expected)
		}
	}
}

func TestStringEnv(t *testing.T) {
	t.Setenv("ARGPIPE_TEST_STRING", "  ")
	if got := StringEnv("ARGPIPE_TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
	t.Setenv("ARGPIPE_TEST_STRING", " value ")
	if got := StringEnv("ARGPIPE_TEST_STRING", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
}
