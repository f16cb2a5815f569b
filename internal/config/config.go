package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Storage     StorageConfig             `json:"storage"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Gemini      GeminiConfig              `json:"gemini"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address" env:"AGRIMATE_ADDR"`
	MediaDir          string `json:"media_dir" env:"AGRIMATE_MEDIA_DIR"`
	MinWorkers        int    `json:"min_workers" env:"AGRIMATE_MIN_WORKERS"`
	MaxWorkers        int    `json:"max_workers" env:"AGRIMATE_MAX_WORKERS"`
	QueueSize         int    `json:"queue_size" env:"AGRIMATE_QUEUE_SIZE"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout" env:"AGRIMATE_WORKER_IDLE_MINUTES"` // minutes
	TokenTTL          int    `json:"token_ttl" env:"AGRIMATE_TOKEN_TTL_HOURS"`               // hours
}

// StorageConfig selects the backend of the persisted-state port.
type StorageConfig struct {
	Backend string `json:"backend" env:"AGRIMATE_STORAGE"` // memory, sql, redis
	Driver  string `json:"driver" env:"AGRIMATE_DB"`       // sqlite3, sqlite, mysql, postgres
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host" env:"AGRIMATE_REDIS_HOST"`
	Port     int    `json:"port" env:"AGRIMATE_REDIS_PORT"`
	Username string `json:"username"`
	Password string `json:"password" env:"AGRIMATE_REDIS_PASSWORD"`
	DB       int    `json:"db"`
}

// GeminiConfig holds the hosted model settings used for replies and media.
type GeminiConfig struct {
	APIKey        string `json:"api_key" env:"GEMINI_API_KEY"`
	ChatModel     string `json:"chat_model"`
	SpeechModel   string `json:"speech_model"`
	ImageModel    string `json:"image_model"`
	VideoModel    string `json:"video_model"`
	PollInterval  int    `json:"poll_interval"` // seconds
	PollAttempts  int    `json:"poll_attempts"`
	ReplyProvider string `json:"reply_provider" env:"AGRIMATE_REPLY_PROVIDER"` // "", gemini, openai, claude
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

const (
	DefaultChatModel    = "gemini-3-flash-preview"
	DefaultSpeechModel  = "gemini-2.5-flash-preview-tts"
	DefaultImageModel   = "gemini-2.5-flash-image"
	DefaultVideoModel   = "veo-3.1-fast-generate-preview"
	DefaultPollInterval = 5
	DefaultPollAttempts = 120
)

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error: defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()

	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.MediaDir == "" {
		c.BasicConfig.MediaDir = "./data/media"
	}
	if c.BasicConfig.MinWorkers <= 0 {
		c.BasicConfig.MinWorkers = 1
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 4
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "sql"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite3"
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "agrimate.db"}
	}
	if c.Gemini.ChatModel == "" {
		c.Gemini.ChatModel = DefaultChatModel
	}
	if c.Gemini.SpeechModel == "" {
		c.Gemini.SpeechModel = DefaultSpeechModel
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = DefaultImageModel
	}
	if c.Gemini.VideoModel == "" {
		c.Gemini.VideoModel = DefaultVideoModel
	}
	if c.Gemini.PollInterval <= 0 {
		c.Gemini.PollInterval = DefaultPollInterval
	}
	if c.Gemini.PollAttempts <= 0 {
		c.Gemini.PollAttempts = DefaultPollAttempts
	}
}

// Validate reports configuration that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "redis":
	case "sql":
		if _, ok := c.Databases[c.Storage.Driver]; !ok {
			return fmt.Errorf("database config for %s not found", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		return fmt.Errorf("max_workers (%d) must be >= min_workers (%d)", c.BasicConfig.MaxWorkers, c.BasicConfig.MinWorkers)
	}
	switch c.Gemini.ReplyProvider {
	case "", "gemini", "openai", "claude":
	default:
		return fmt.Errorf("unsupported reply provider: %s", c.Gemini.ReplyProvider)
	}
	return nil
}
