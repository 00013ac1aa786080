package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App      AppConfig      `toml:"app"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	LLM      LLMConfig      `toml:"llm"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	RabbitMQ RabbitMQConfig `toml:"rabbitmq"`
}

type AppConfig struct {
	Name    string `toml:"name"`
	Env     string `toml:"env"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	GinMode string `toml:"gin_mode"`
}

type AuthConfig struct {
	// Mode "development" allows identity via the X-Dev-Email header;
	// "production" requires a verified provider token.
	Mode string `toml:"mode"`
	// IdentityJWTSecret verifies the identity provider's token signature
	// at the transport boundary. The core never validates tokens itself.
	IdentityJWTSecret string `toml:"identity_jwt_secret"`
}

type DatabaseConfig struct {
	Driver          string `toml:"driver"` // postgres or sqlite
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	Name            string `toml:"name"`
	SSLMode         string `toml:"ssl_mode"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	ConnMaxLifeMins int    `toml:"conn_max_life_minutes"`
}

type SecurityConfig struct {
	MasterEncryptionKey string `toml:"master_encryption_key"`
	EmailHashKey        string `toml:"email_hash_key"`
	EnableEncryption    bool   `toml:"enable_encryption"`
	MaxFileSizeMB       int    `toml:"max_file_size_mb"`
}

type LLMConfig struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	Model               string `toml:"model"`
	EmbeddingModel      string `toml:"embedding_model"`
	EmbeddingDimensions int    `toml:"embedding_dimensions"`
	TopK                int    `toml:"top_k"`
}

type StorageConfig struct {
	Backend string `toml:"backend"` // fs or memory
	RootDir string `toml:"root_dir"`
}

type RedisConfig struct {
	Addr                   string `toml:"addr"`
	Password               string `toml:"password"`
	DB                     int    `toml:"db"`
	HistoryTTLSeconds      int    `toml:"history_ttl_seconds"`
	HistoryDirtyTTLSeconds int    `toml:"history_dirty_ttl_seconds"`
}

type RabbitMQConfig struct {
	URL           string `toml:"url"`
	FeedbackQueue string `toml:"feedback_queue"`
}

func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", "configs/config.toml")
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file failed: %w", err)
		}
	}

	overrideByEnv(cfg)
	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.App.Host, c.App.Port)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Security.MaxFileSizeMB) * 1024 * 1024
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:    "docuvault",
			Env:     "development",
			Host:    "0.0.0.0",
			Port:    8080,
			GinMode: "debug",
		},
		Auth: AuthConfig{
			Mode:              "development",
			IdentityJWTSecret: "",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "127.0.0.1",
			Port:            5432,
			User:            "docuvault",
			Password:        "",
			Name:            "docuvault",
			SSLMode:         "disable",
			MaxIdleConns:    10,
			MaxOpenConns:    50,
			ConnMaxLifeMins: 60,
		},
		Security: SecurityConfig{
			MasterEncryptionKey: "",
			EmailHashKey:        "",
			EnableEncryption:    true,
			MaxFileSizeMB:       50,
		},
		LLM: LLMConfig{
			BaseURL:             "https://api.openai.com/v1",
			APIKey:              "",
			Model:               "gpt-4o-mini",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1024,
			TopK:                5,
		},
		Storage: StorageConfig{
			Backend: "fs",
			RootDir: "data/blobs",
		},
		Redis: RedisConfig{
			Addr:                   "",
			Password:               "",
			DB:                     0,
			HistoryTTLSeconds:      60,
			HistoryDirtyTTLSeconds: 5,
		},
		RabbitMQ: RabbitMQConfig{
			URL:           "",
			FeedbackQueue: "feedback.notify",
		},
	}
}

func overrideByEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnvAsInt("APP_PORT", cfg.App.Port)
	cfg.App.GinMode = getEnv("GIN_MODE", cfg.App.GinMode)

	cfg.Auth.Mode = getEnv("AUTH_MODE", cfg.Auth.Mode)
	cfg.Auth.IdentityJWTSecret = getEnv("IDENTITY_JWT_SECRET", cfg.Auth.IdentityJWTSecret)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", cfg.Database.SSLMode)

	cfg.Security.MasterEncryptionKey = getEnv("MASTER_ENCRYPTION_KEY", cfg.Security.MasterEncryptionKey)
	cfg.Security.EmailHashKey = getEnv("EMAIL_HASH_KEY", cfg.Security.EmailHashKey)
	cfg.Security.EnableEncryption = getEnvAsBool("ENABLE_ENCRYPTION", cfg.Security.EnableEncryption)
	cfg.Security.MaxFileSizeMB = getEnvAsInt("MAX_FILE_SIZE_MB", cfg.Security.MaxFileSizeMB)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnv("LLM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.EmbeddingDimensions = getEnvAsInt("LLM_EMBEDDING_DIMENSIONS", cfg.LLM.EmbeddingDimensions)
	cfg.LLM.TopK = getEnvAsInt("LLM_TOP_K", cfg.LLM.TopK)

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.RootDir = getEnv("STORAGE_ROOT_DIR", cfg.Storage.RootDir)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.HistoryTTLSeconds = getEnvAsInt("REDIS_HISTORY_TTL_SECONDS", cfg.Redis.HistoryTTLSeconds)
	cfg.Redis.HistoryDirtyTTLSeconds = getEnvAsInt("REDIS_HISTORY_DIRTY_TTL_SECONDS", cfg.Redis.HistoryDirtyTTLSeconds)

	cfg.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.RabbitMQ.FeedbackQueue = getEnv("RABBITMQ_FEEDBACK_QUEUE", cfg.RabbitMQ.FeedbackQueue)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
