package config

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// Difficulty names as they appear in config.json and env keys.
var DifficultyNames = []string{"easy", "medium", "hard", "hell"}

// PacingConfig holds the cosmetic delays of the round state machine, in milliseconds.
type PacingConfig struct {
	MatchRevealMS    int `json:"match_reveal_ms"`
	HighlightMS      int `json:"highlight_ms"`
	MismatchRevealMS int `json:"mismatch_reveal_ms"`
	TickMS           int `json:"tick_ms"`
}

// Config holds all configurable server and game parameters.
type Config struct {
	HTTPPort       int    `json:"http_port"`
	ThemesDir      string `json:"themes_dir"`
	AssetURLPrefix string `json:"asset_url_prefix"`
	ClientOrigin   string `json:"client_origin"`
	LogLevel       string `json:"log_level"`

	// SQLitePath is used for the unlock ledger when DatabaseURL is empty.
	SQLitePath  string `json:"sqlite_path"`
	DatabaseURL string `json:"database_url"`

	NeonAuthBaseURL string `json:"neon_auth_base_url"`

	// StrictInvariants panics on state-machine invariant violations (dev and test builds).
	StrictInvariants bool `json:"strict_invariants"`

	// MaxMessagesPerSec bounds inbound WebSocket messages per client.
	MaxMessagesPerSec int `json:"max_messages_per_sec"`

	Pacing PacingConfig `json:"pacing"`

	// SecretChance is the per-difficulty probability that a deck slot draws a secret card.
	SecretChance map[string]float64 `json:"secret_chance"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		HTTPPort:          8080,
		ThemesDir:         "assets/Illustration",
		AssetURLPrefix:    "/assets/Illustration",
		ClientOrigin:      "*",
		LogLevel:          "info",
		SQLitePath:        "data/ledger.db",
		MaxMessagesPerSec: 20,
		Pacing: PacingConfig{
			MatchRevealMS:    300,
			HighlightMS:      700,
			MismatchRevealMS: 600,
			TickMS:           1000,
		},
		SecretChance: map[string]float64{
			"easy":   0.05,
			"medium": 0.06,
			"hard":   0.08,
			"hell":   0.10,
		},
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			slog.Warn("failed to parse config.json", "tag", "config", "err", err)
		}
	}

	overrideInt(&cfg.HTTPPort, "HTTP_PORT")
	overrideString(&cfg.ThemesDir, "THEMES_DIR")
	overrideString(&cfg.AssetURLPrefix, "ASSET_URL_PREFIX")
	overrideString(&cfg.ClientOrigin, "CLIENT_ORIGIN")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.SQLitePath, "SQLITE_PATH")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.NeonAuthBaseURL, "NEON_AUTH_BASE_URL")
	overrideBool(&cfg.StrictInvariants, "STRICT_INVARIANTS")
	overrideInt(&cfg.MaxMessagesPerSec, "MAX_MESSAGES_PER_SEC")
	overrideInt(&cfg.Pacing.MatchRevealMS, "MATCH_REVEAL_MS")
	overrideInt(&cfg.Pacing.HighlightMS, "HIGHLIGHT_MS")
	overrideInt(&cfg.Pacing.MismatchRevealMS, "MISMATCH_REVEAL_MS")
	overrideInt(&cfg.Pacing.TickMS, "TICK_MS")

	if cfg.SecretChance == nil {
		cfg.SecretChance = make(map[string]float64)
	}
	for _, name := range DifficultyNames {
		v := cfg.SecretChance[name]
		overrideFloat(&v, "SECRET_CHANCE_"+strings.ToUpper(name))
		cfg.SecretChance[name] = clampChance(name, v)
	}

	return cfg
}

// clampChance keeps a spawn probability inside [0,1). NaN and infinities
// fall back to the default for that difficulty.
func clampChance(name string, v float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		def := Defaults().SecretChance[name]
		slog.Warn("secret chance is not a number, using default", "tag", "config", "difficulty", name, "value", v, "default", def)
		return def
	case v < 0:
		slog.Warn("secret chance below 0, clamping", "tag", "config", "difficulty", name, "value", v)
		return 0
	case v >= 1:
		slog.Warn("secret chance must be below 1, clamping", "tag", "config", "difficulty", name, "value", v)
		return 0.99
	}
	return v
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			slog.Warn("invalid int value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*field = f
		} else {
			slog.Warn("invalid float value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*field = b
		} else {
			slog.Warn("invalid bool value", "tag", "config", "key", envKey, "value", val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
