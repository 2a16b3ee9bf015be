package app

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the production backend, used when neither the
// config file nor DOCAI_API_URL provides a base URL.
const DefaultBaseURL = "https://docaibackend-41i1.onrender.com"

type Config struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	QueryLimit     int    `yaml:"query_limit"`
	AnswerCacheTTL int    `yaml:"answer_cache_ttl"`
	LogFile        string `yaml:"log_file"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		TimeoutSeconds: 30,
		QueryLimit:     10,
		AnswerCacheTTL: 300,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.QueryLimit <= 0 {
		cfg.QueryLimit = 10
	}
	return cfg, nil
}

func SaveConfig(cfg Config, path string) error {
	if path == "" {
		return errors.New("no path provided for config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "docai", "config.yml")
}

// ResolveBaseURL applies the environment override and mock switch on
// top of the configured value.
func ResolveBaseURL(cfg Config) string {
	if os.Getenv("DOCAI_MOCK") == "1" {
		return MockBaseURL
	}
	if v := os.Getenv("DOCAI_API_URL"); v != "" {
		return v
	}
	if cfg.BaseURL == "" {
		return DefaultBaseURL
	}
	return cfg.BaseURL
}

func DefaultLogPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "docai", "docai.log")
	}
	return filepath.Join(base, "docai", "docai.log")
}
