package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		CatalogTTL         string `yaml:"catalog_ttl"`
		MinQuestions       int    `yaml:"min_questions"`
		MaxQuestions       int    `yaml:"max_questions"`
		SecondsPerQuestion int    `yaml:"seconds_per_question"`
		SeedFile           string `yaml:"seed_file"`
	} `yaml:"quiz"`
	Session struct {
		PointerTTL string `yaml:"pointer_ttl"`
	} `yaml:"session"`
	Progression struct {
		BaseXP       int     `yaml:"base_xp"`
		Multiplier   float64 `yaml:"multiplier"`
		XPPerCorrect int     `yaml:"xp_per_correct"`
		Policy       string  `yaml:"policy"`
	} `yaml:"progression"`
	Leaderboard struct {
		GlobalLimit   int `yaml:"global_limit"`
		CategoryLimit int `yaml:"category_limit"`
	} `yaml:"leaderboard"`
}

// Default returns the configuration used for keys the YAML file leaves out.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "5s"
	cfg.Log.Level = "info"
	cfg.Quiz.CatalogTTL = "10m"
	cfg.Quiz.MinQuestions = 5
	cfg.Quiz.MaxQuestions = 20
	cfg.Quiz.SecondsPerQuestion = 30
	cfg.Progression.BaseXP = 1000
	cfg.Progression.Multiplier = 1.2
	cfg.Progression.XPPerCorrect = 10
	cfg.Progression.Policy = "exponential"
	cfg.Session.PointerTTL = "2h"
	cfg.Leaderboard.GlobalLimit = 50
	cfg.Leaderboard.CategoryLimit = 10
	return cfg
}

// Load reads YAML config from path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the bounds the services rely on.
func (c Config) Validate() error {
	if c.Quiz.MinQuestions <= 0 || c.Quiz.MaxQuestions < c.Quiz.MinQuestions {
		return fmt.Errorf("quiz question bounds %d..%d are invalid", c.Quiz.MinQuestions, c.Quiz.MaxQuestions)
	}
	for name, raw := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"quiz.catalog_ttl":        c.Quiz.CatalogTTL,
		"session.pointer_ttl":     c.Session.PointerTTL,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
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
