package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Addr           string        `yaml:"addr"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"` // "json" or "console"
	AllowedOrigins []string      `yaml:"allowed_origins"`
	IdleNudgeAfter time.Duration `yaml:"idle_nudge_after"`
	IdleDropAfter  time.Duration `yaml:"idle_drop_after"`
	IdleSweepEvery time.Duration `yaml:"idle_sweep_every"`
	OutboxSize     int           `yaml:"outbox_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

func Defaults() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		LogFormat:      "json",
		IdleNudgeAfter: 5 * time.Second,
		IdleDropAfter:  30 * time.Second,
		IdleSweepEvery: 5 * time.Second,
		OutboxSize:     64,
		WriteTimeout:   3 * time.Second,
	}
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment overrides.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf(".env: %w", err)
	}
	return LoadFrom(os.Getenv("CONFIG_FILE"), os.LookupEnv)
}

func LoadFrom(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Defaults()

	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
		}
		*dst = d
		return nil
	}

	str("ADDR", &cfg.Addr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if v, ok := lookup("OUTBOX_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: OUTBOX_SIZE: %v", ErrInvalid, err)
		}
		cfg.OutboxSize = n
	}

	for key, dst := range map[string]*time.Duration{
		"IDLE_NUDGE_AFTER": &cfg.IdleNudgeAfter,
		"IDLE_DROP_AFTER":  &cfg.IdleDropAfter,
		"IDLE_SWEEP_EVERY": &cfg.IdleSweepEvery,
		"WRITE_TIMEOUT":    &cfg.WriteTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalid)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalid, c.LogFormat)
	}
	if c.OutboxSize <= 0 {
		return fmt.Errorf("%w: outbox_size must be positive", ErrInvalid)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: write_timeout must be positive", ErrInvalid)
	}
	if c.IdleNudgeAfter < 0 || c.IdleDropAfter < 0 || c.IdleSweepEvery < 0 {
		return fmt.Errorf("%w: idle durations must not be negative", ErrInvalid)
	}
	if c.IdleDropAfter > 0 && c.IdleNudgeAfter > 0 && c.IdleDropAfter <= c.IdleNudgeAfter {
		return fmt.Errorf("%w: idle_drop_after must exceed idle_nudge_after", ErrInvalid)
	}
	return nil
}
