package utils

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := GetEnv("TEST_STRING", "fallback", nil); got != "hello" {
		t.Errorf("expected hello, got %q", got)
	}
	if got := GetEnv("TEST_STRING_MISSING", "fallback", nil); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")
	if got := GetEnvAsInt("TEST_INT", 7, nil); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := GetEnvAsInt("TEST_INT_BAD", 7, nil); got != 7 {
		t.Errorf("expected default on parse failure, got %d", got)
	}
	if got := GetEnvAsInt("TEST_INT_MISSING", 7, nil); got != 7 {
		t.Errorf("expected default on missing variable, got %d", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_BOOL_PADDED", " false ")
	if !GetEnvAsBool("TEST_BOOL", false, nil) {
		t.Error("expected true")
	}
	if GetEnvAsBool("TEST_BOOL_PADDED", true, nil) {
		t.Error("expected padded false to parse")
	}
	if !GetEnvAsBool("TEST_BOOL_MISSING", true, nil) {
		t.Error("expected default true")
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "90s")
	if got := GetEnvAsDuration("TEST_DURATION", time.Second, nil); got != 90*time.Second {
		t.Errorf("expected 90s, got %s", got)
	}
	if got := GetEnvAsDuration("TEST_DURATION_MISSING", time.Second, nil); got != time.Second {
		t.Errorf("expected default, got %s", got)
	}
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,,c")
	got := GetEnvAsSlice("TEST_SLICE", nil, nil)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if got := GetEnvAsSlice("TEST_SLICE_MISSING", []string{"x"}, nil); len(got) != 1 || got[0] != "x" {
		t.Errorf("expected default slice, got %v", got)
	}
}
