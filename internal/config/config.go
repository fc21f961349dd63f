package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Keys      KeysConfig      `mapstructure:"keys"`
	Chat      ChatConfig      `mapstructure:"chat"`

	// DotEnvLoaded reports whether a .env file was found.
	DotEnvLoaded bool `mapstructure:"-"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	TokenKey string        `mapstructure:"token_key"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type VectorConfig struct {
	Backend     string  `mapstructure:"backend"`
	PostgresURL string  `mapstructure:"postgres_url"`
	SQLitePath  string  `mapstructure:"sqlite_path"`
	Table       string  `mapstructure:"table"`
	Similarity  float64 `mapstructure:"similarity"`
	Limit       int     `mapstructure:"limit"`
}

type EmbeddingConfig struct {
	Provider   string  `mapstructure:"provider"`
	Model      string  `mapstructure:"model"`
	BaseURL    string  `mapstructure:"base_url"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

// KeysConfig holds the platform credentials.
type KeysConfig struct {
	OpenAI string `mapstructure:"openai"`
	Claude string `mapstructure:"claude"`
	Gemini string `mapstructure:"gemini"`
}

type ChatConfig struct {
	HistoryLimit int `mapstructure:"history_limit"`
}

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	VectorPgVector = "pgvector"
	VectorSQLite   = "sqlite"

	EmbeddingOpenAI = "openai"
	EmbeddingGemini = "gemini"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.token_key", "")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)
	v.SetDefault("store.backend", StoreMongo)
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "kbchat")
	v.SetDefault("vector.backend", VectorPgVector)
	v.SetDefault("vector.postgres_url", "")
	v.SetDefault("vector.sqlite_path", "kbchat_vectors.db")
	v.SetDefault("vector.table", "modelData")
	v.SetDefault("vector.similarity", 0.2)
	v.SetDefault("vector.limit", 20)
	v.SetDefault("embedding.provider", EmbeddingOpenAI)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.rate_per_sec", 0)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("keys.openai", "")
	v.SetDefault("keys.claude", "")
	v.SetDefault("keys.gemini", "")
	v.SetDefault("chat.history_limit", 50)
}

// Load reads .env, then the file named by CONFIG_FILE (config.yaml when unset), then the environment.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

func LoadFrom(path string) (*Config, error) {
	dotEnv := godotenv.Load() == nil

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names the platform keys have always been deployed with
	for key, env := range map[string]string{
		"keys.openai":         "OPENAIKEY",
		"keys.claude":         "LAFKEY",
		"keys.gemini":         "GEMINI_API_KEY",
		"vector.postgres_url": "DATABASE_URL",
	} {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DotEnvLoaded = dotEnv

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.TokenKey == "" {
		return fmt.Errorf("auth.token_key (AUTH_TOKEN_KEY) is required")
	}
	switch c.Store.Backend {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Vector.Backend {
	case VectorPgVector:
		if c.Vector.PostgresURL == "" {
			return fmt.Errorf("vector.postgres_url is required for the pgvector backend")
		}
	case VectorSQLite:
	default:
		return fmt.Errorf("unknown vector backend %q", c.Vector.Backend)
	}
	switch c.Embedding.Provider {
	case EmbeddingOpenAI:
	case EmbeddingGemini:
		if c.Keys.Gemini == "" {
			return fmt.Errorf("keys.gemini (GEMINI_API_KEY) is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat.history_limit must be positive")
	}
	return nil
}
