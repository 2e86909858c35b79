package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Search    SearchConfig    `mapstructure:"search"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type AuthConfig struct {
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
	AdminUsername     string        `mapstructure:"admin_username"`
	AdminEmail        string        `mapstructure:"admin_email"`
	AdminPassword     string        `mapstructure:"admin_password"`
}

type SearchConfig struct {
	TopK          int           `mapstructure:"top_k"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
}

type EmbeddingConfig struct {
	Provider     string `mapstructure:"provider"` // "gemini", "openai" or "local"
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	Model        string `mapstructure:"model"`
}

// Load reads configuration from an optional YAML file plus environment
// variables, with sensible defaults for everything else.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.path", "unic.db")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.sweep_interval", time.Hour)
	v.SetDefault("auth.min_password_length", 6)
	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.search_timeout", 5*time.Second)
	v.SetDefault("embedding.provider", "local")

	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			// Missing file is fine: defaults plus environment apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment overrides for secrets and deployment settings.
	if port := v.GetString("HTTP_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if dbPath := v.GetString("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if key := v.GetString("GEMINI_API_KEY"); key != "" {
		cfg.Embedding.GeminiAPIKey = key
		if cfg.Embedding.Provider == "local" {
			cfg.Embedding.Provider = "gemini"
		}
	}
	if key := v.GetString("OPENAI_API_KEY"); key != "" {
		cfg.Embedding.OpenAIAPIKey = key
		if cfg.Embedding.Provider == "local" {
			cfg.Embedding.Provider = "openai"
		}
	}
	if pw := v.GetString("ADMIN_PASSWORD"); pw != "" {
		cfg.Auth.AdminPassword = pw
	}

	return &cfg, nil
}
