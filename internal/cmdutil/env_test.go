package cmdutil

import (
	"testing"
	"time"
)

func TestEnvStringFallback(t *testing.T) {
	t.Setenv("CLIPSYNC_TEST_STR", "  ")
	if got := EnvString("CLIPSYNC_TEST_STR", "fb"); got != "fb" {
		t.Fatalf("EnvString blank = %q, want fallback", got)
	}
	t.Setenv("CLIPSYNC_TEST_STR", " value ")
	if got := EnvString("CLIPSYNC_TEST_STR", "fb"); got != "value" {
		t.Fatalf("EnvString = %q, want trimmed value", got)
	}
}

func TestEnvIntParsing(t *testing.T) {
	t.Setenv("CLIPSYNC_TEST_INT", "")
	v, err := EnvInt("CLIPSYNC_TEST_INT", 7)
	if err != nil || v != 7 {
		t.Fatalf("EnvInt blank = %d, %v; want 7, nil", v, err)
	}
	t.Setenv("CLIPSYNC_TEST_INT", "42")
	v, err = EnvInt("CLIPSYNC_TEST_INT", 7)
	if err != nil || v != 42 {
		t.Fatalf("EnvInt = %d, %v; want 42, nil", v, err)
	}
	t.Setenv("CLIPSYNC_TEST_INT", "nope")
	if _, err = EnvInt("CLIPSYNC_TEST_INT", 7); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvInt64Parsing(t *testing.T) {
	t.Setenv("CLIPSYNC_TEST_I64", "5368709120")
	v, err := EnvInt64("CLIPSYNC_TEST_I64", 0)
	if err != nil || v != 5368709120 {
		t.Fatalf("EnvInt64 = %d, %v", v, err)
	}
}

func TestEnvDurationParsing(t *testing.T) {
	t.Setenv("CLIPSYNC_TEST_DUR", "30m")
	d, err := EnvDuration("CLIPSYNC_TEST_DUR", time.Second)
	if err != nil || d != 30*time.Minute {
		t.Fatalf("EnvDuration = %v, %v", d, err)
	}
	t.Setenv("CLIPSYNC_TEST_DUR", "not-a-duration")
	if _, err = EnvDuration("CLIPSYNC_TEST_DUR", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvBoolParsing(t *testing.T) {
	t.Setenv("CLIPSYNC_TEST_BOOL", "1")
	v, err := EnvBool("CLIPSYNC_TEST_BOOL", false)
	if err != nil || !v {
		t.Fatalf("EnvBool(1) = %v, %v", v, err)
	}
	t.Setenv("CLIPSYNC_TEST_BOOL", "true")
	v, err = EnvBool("CLIPSYNC_TEST_BOOL", false)
	if err != nil || !v {
		t.Fatalf("EnvBool(true) = %v, %v", v, err)
	}
}
