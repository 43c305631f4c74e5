package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Exam struct {
		TTL string `yaml:"ttl"` // cache lifetime for exam content
	} `yaml:"exam"`
	Grading Grading `yaml:"grading"`
}

// Grading selects and configures the grading backend.
type Grading struct {
	// Service picks the grader: "local" or "remote".
	Service string `yaml:"service"`
	// Backend is the remote oracle flavor: "gemini" or "openai".
	Backend string `yaml:"backend"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// Load reads YAML config from path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv builds a config without a file, for deployments that configure
// everything through the environment.
func FromEnv() Config {
	cfg := Config{}
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	overlay(&c.Server.Port, "PORT")
	overlay(&c.Postgres.URL, "POSTGRES_URL")
	overlay(&c.Redis.Addr, "REDIS_ADDR")
	overlay(&c.Grading.Service, "GRADING_SERVICE")
	overlay(&c.Grading.Backend, "LLM_BACKEND")
	overlay(&c.Grading.APIKey, "LLM_API_KEY")
	overlay(&c.Grading.Model, "LLM_MODEL")
	overlay(&c.Grading.BaseURL, "LLM_BASE_URL")
	if c.Grading.Service == "" {
		c.Grading.Service = "local"
	}
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
