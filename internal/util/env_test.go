package util

import (
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LEX_NUM", "12")
	t.Setenv("LEX_BAD_NUM", "twelve")
	t.Setenv("LEX_BOOL", "TRUE")
	t.Setenv("LEX_EMPTY", "")

	if got := GetEnvInt("LEX_NUM", 3); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := GetEnvInt("LEX_BAD_NUM", 3); got != 3 {
		t.Fatalf("expected default 3, got %d", got)
	}
	if !GetEnvBool("LEX_BOOL", false) {
		t.Fatal("expected TRUE to parse as true")
	}
	if got := GetEnvString("LEX_EMPTY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback for empty value, got %q", got)
	}
	if got := GetEnvString("LEX_MISSING", "x"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "1m30s", want: 90 * time.Second},
		{name: "seconds", value: "45", want: 45 * time.Second},
		{name: "fractional seconds", value: "0.5", want: 500 * time.Millisecond},
		{name: "garbage", value: "soon", want: 7 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LEX_DURATION", tt.value)
			if got := GetEnvDuration("LEX_DURATION", 7*time.Second); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
