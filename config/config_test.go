package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.HTTPPort != 8080 {
		t.Errorf("expected HTTPPort=8080, got %d", cfg.HTTPPort)
	}
	if cfg.Pacing.MatchRevealMS != 300 {
		t.Errorf("expected MatchRevealMS=300, got %d", cfg.Pacing.MatchRevealMS)
	}
	if cfg.Pacing.HighlightMS != 700 {
		t.Errorf("expected HighlightMS=700, got %d", cfg.Pacing.HighlightMS)
	}
	if cfg.Pacing.MismatchRevealMS != 600 {
		t.Errorf("expected MismatchRevealMS=600, got %d", cfg.Pacing.MismatchRevealMS)
	}
	if cfg.Pacing.TickMS != 1000 {
		t.Errorf("expected TickMS=1000, got %d", cfg.Pacing.TickMS)
	}
	if cfg.StrictInvariants {
		t.Error("expected StrictInvariants=false by default")
	}
	for _, name := range DifficultyNames {
		v, ok := cfg.SecretChance[name]
		if !ok {
			t.Errorf("expected a default secret chance for %q", name)
			continue
		}
		if v <= 0 || v >= 1 {
			t.Errorf("expected secret chance for %q in (0,1), got %v", name, v)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MISMATCH_REVEAL_MS", "50")
	t.Setenv("SECRET_CHANCE_HELL", "0.25")
	t.Setenv("STRICT_INVARIANTS", "true")

	cfg := Load()

	if cfg.HTTPPort != 9090 {
		t.Errorf("expected HTTPPort=9090 after env override, got %d", cfg.HTTPPort)
	}
	if cfg.Pacing.MismatchRevealMS != 50 {
		t.Errorf("expected MismatchRevealMS=50 after env override, got %d", cfg.Pacing.MismatchRevealMS)
	}
	if cfg.SecretChance["hell"] != 0.25 {
		t.Errorf("expected hell secret chance 0.25, got %v", cfg.SecretChance["hell"])
	}
	if !cfg.StrictInvariants {
		t.Error("expected StrictInvariants=true after env override")
	}
	// Non-overridden fields should remain default
	if cfg.SecretChance["easy"] != 0.05 {
		t.Errorf("expected easy secret chance 0.05 (default), got %v", cfg.SecretChance["easy"])
	}
	if cfg.Pacing.MatchRevealMS != 300 {
		t.Errorf("expected MatchRevealMS=300 (default), got %d", cfg.Pacing.MatchRevealMS)
	}
}

func TestLoadWithInvalidEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "invalid")
	t.Setenv("SECRET_CHANCE_EASY", "lots")

	cfg := Load()

	if cfg.HTTPPort != 8080 {
		t.Errorf("expected HTTPPort=8080 (default) with invalid env, got %d", cfg.HTTPPort)
	}
	if cfg.SecretChance["easy"] != 0.05 {
		t.Errorf("expected easy secret chance 0.05 with invalid env, got %v", cfg.SecretChance["easy"])
	}
}

func TestLoadClampsSecretChance(t *testing.T) {
	t.Setenv("SECRET_CHANCE_MEDIUM", "1.5")
	t.Setenv("SECRET_CHANCE_HARD", "-0.2")

	cfg := Load()

	if got := cfg.SecretChance["medium"]; got >= 1 {
		t.Errorf("expected medium secret chance below 1, got %v", got)
	}
	if got := cfg.SecretChance["hard"]; got != 0 {
		t.Errorf("expected hard secret chance clamped to 0, got %v", got)
	}
}

func TestLoadRejectsNaNSecretChance(t *testing.T) {
	t.Setenv("SECRET_CHANCE_EASY", "NaN")
	t.Setenv("SECRET_CHANCE_HELL", "+Inf")

	cfg := Load()
	if got := cfg.SecretChance["easy"]; got != 0.05 {
		t.Errorf("expected easy secret chance to fall back to 0.05, got %v", got)
	}
	if got := cfg.SecretChance["hell"]; got != 0.10 {
		t.Errorf("expected hell secret chance to fall back to 0.10, got %v", got)
	}
}
