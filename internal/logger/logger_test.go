package logger

import "testing"

func TestSanitizeRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"access_token", "abc", "run_id", "run-1", "Authorization", "Bearer x", "dangling"})
	if len(out) != 7 {
		t.Fatalf("unexpected length: %d", len(out))
	}
	if out[1] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("expected secrets redacted: %v", out)
	}
	if out[3] != "run-1" {
		t.Fatalf("expected run_id kept: %v", out)
	}
	if out[6] != "dangling" {
		t.Fatalf("expected dangling key kept")
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"development", "prod"} {
		log, err := New(mode)
		if err != nil {
			t.Fatalf("new %s: %v", mode, err)
		}
		log.With("component", "test").Info("hello", "password", "x")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected nop logger")
	}
	l := Nop()
	if OrNop(l) != l {
		t.Fatalf("expected same logger")
	}
}
