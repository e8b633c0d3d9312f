package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"voice-quiz-control/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// TTL bounds how long a dispatch latch key lives.
		TTL string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		// Catalog is a YAML question file; empty means Postgres or the built-in set.
		Catalog string `yaml:"catalog"`
	} `yaml:"quiz"`
	LiveKit struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		AgentName string `yaml:"agent_name"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"livekit"`
	UI struct {
		ModeDebounce string `yaml:"mode_debounce"`
	} `yaml:"ui"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path and applies environment overrides. A missing file
// yields a config built from the environment alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	ApplyEnv(&cfg)
	if cfg.LiveKit.AgentName == "" {
		cfg.LiveKit.AgentName = "voice-assistant"
	}
	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides file values with the environment.
func ApplyEnv(cfg *Config) {
	override(&cfg.Server.Port, "PORT")
	override(&cfg.LiveKit.URL, "LIVEKIT_URL")
	override(&cfg.LiveKit.APIKey, "LIVEKIT_API_KEY")
	override(&cfg.LiveKit.APISecret, "LIVEKIT_API_SECRET")
	override(&cfg.LiveKit.AgentName, "LIVEKIT_AGENT_NAME")
	override(&cfg.Log.Level, "LOG_LEVEL")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Postgres.URL, "DATABASE_URL")
}

func override(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

type catalogFile struct {
	Questions []domain.QuizQuestion `yaml:"questions"`
}

// LoadCatalogFile reads and validates a YAML question file.
func LoadCatalogFile(path string) ([]domain.QuizQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := domain.ValidateCatalog(file.Questions); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file.Questions, nil
}
