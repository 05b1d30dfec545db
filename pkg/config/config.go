// Package config loads process configuration: defaults, then an optional
// YAML file named by DOCQA_CONFIG, then DOCQA_* environment variables (a .env
// file in the working directory is loaded first when present).
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

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "DOCQA_CONFIG"

type Config struct {
	Log     LogConfig     `yaml:"log"`
	NATS    NATSConfig    `yaml:"nats"`
	Storage StorageConfig `yaml:"storage"`
	Vector  VectorConfig  `yaml:"vector"`
	Model   ModelConfig   `yaml:"model"`
	Index   IndexConfig   `yaml:"index"`
	RAG     RAGConfig     `yaml:"rag"`
	Session SessionConfig `yaml:"session"`
	HTTP    HTTPConfig    `yaml:"http"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NATSConfig struct {
	URL        string        `yaml:"url"`
	Subject    string        `yaml:"subject"`
	DLQSubject string        `yaml:"dlq_subject"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Workers    int           `yaml:"workers"`
	// HandlerTimeout bounds one message's processing.
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// StorageConfig selects the blob backend: objectstore, file or memory.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	Dir     string `yaml:"dir"`
}

// VectorConfig selects the collection backend: qdrant, opensearch or memory.
type VectorConfig struct {
	Backend       string `yaml:"backend"`
	Collection    string `yaml:"collection"`
	Dimension     int    `yaml:"dimension"`
	QdrantAddr    string `yaml:"qdrant_addr"`
	OpenSearchURL string `yaml:"opensearch_url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
}

// ModelConfig selects the model provider: ollama or openai.
type ModelConfig struct {
	Provider         string        `yaml:"provider"`
	BaseURL          string        `yaml:"base_url"`
	Token            string        `yaml:"token"`
	EmbedModel       string        `yaml:"embed_model"`
	ChatModel        string        `yaml:"chat_model"`
	RateLimit        float64       `yaml:"rate_limit"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

type IndexConfig struct {
	MaxEmbedChars   int           `yaml:"max_embed_chars"`
	ReadAttempts    int           `yaml:"read_attempts"`
	ReadInitialWait time.Duration `yaml:"read_initial_wait"`
	AcceptInline    bool          `yaml:"accept_inline"`
}

type RAGConfig struct {
	TopK             int           `yaml:"top_k"`
	ContextChars     int           `yaml:"context_chars"`
	HistoryTurns     int           `yaml:"history_turns"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float32       `yaml:"temperature"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout"`
	CondenseQuestion bool          `yaml:"condense_question"`
}

// SessionConfig selects the conversation store: memory, redis or badger.
type SessionConfig struct {
	Backend   string        `yaml:"backend"`
	RedisURL  string        `yaml:"redis_url"`
	BadgerDir string        `yaml:"badger_dir"`
	TTL       time.Duration `yaml:"ttl"`
}

type HTTPConfig struct {
	Addr       string `yaml:"addr"`
	CORSOrigin string `yaml:"cors_origin"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Subject:        "storage.object.created",
			DLQSubject:     "storage.object.dlq",
			MaxRetries:     3,
			RetryDelay:     time.Second,
			Workers:        8,
			HandlerTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{Backend: "objectstore", Bucket: "documents", Dir: "./data"},
		Vector: VectorConfig{
			Backend:       "qdrant",
			Collection:    "documents",
			QdrantAddr:    "localhost:6334",
			OpenSearchURL: "http://localhost:9200",
		},
		Model: ModelConfig{
			Provider:         "ollama",
			BaseURL:          "http://localhost:11434",
			EmbedModel:       "nomic-embed-text",
			ChatModel:        "llama3.1",
			Burst:            1,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Index: IndexConfig{
			MaxEmbedChars:   8000,
			ReadAttempts:    5,
			ReadInitialWait: 500 * time.Millisecond,
		},
		RAG: RAGConfig{
			TopK:            3,
			ContextChars:    4000,
			HistoryTurns:    10,
			MaxTokens:       1000,
			Temperature:     0.1,
			GenerateTimeout: 60 * time.Second,
		},
		Session: SessionConfig{Backend: "memory", RedisURL: "redis://localhost:6379/0", BadgerDir: "./data/sessions", TTL: 24 * time.Hour},
		HTTP:    HTTPConfig{Addr: ":8080", CORSOrigin: "*"},
		Metrics: MetricsConfig{Port: 9091},
	}
}

// Load applies defaults, the YAML file named by DOCQA_CONFIG, then the
// environment, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. A missing file is an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	applyString("DOCQA_LOG_LEVEL", &c.Log.Level)
	applyString("DOCQA_LOG_FORMAT", &c.Log.Format)

	applyString("DOCQA_NATS_URL", &c.NATS.URL)
	applyString("DOCQA_NATS_SUBJECT", &c.NATS.Subject)
	applyString("DOCQA_NATS_DLQ_SUBJECT", &c.NATS.DLQSubject)
	applyInt("DOCQA_NATS_MAX_RETRIES", &c.NATS.MaxRetries)
	applyDuration("DOCQA_NATS_RETRY_DELAY", &c.NATS.RetryDelay)
	applyInt("DOCQA_WORKERS", &c.NATS.Workers)
	applyDuration("DOCQA_HANDLER_TIMEOUT", &c.NATS.HandlerTimeout)

	applyString("DOCQA_STORAGE_BACKEND", &c.Storage.Backend)
	applyString("DOCQA_BUCKET", &c.Storage.Bucket)
	applyString("DOCQA_STORAGE_DIR", &c.Storage.Dir)

	applyString("DOCQA_VECTOR_BACKEND", &c.Vector.Backend)
	applyString("DOCQA_COLLECTION", &c.Vector.Collection)
	applyInt("DOCQA_DIMENSION", &c.Vector.Dimension)
	applyString("DOCQA_QDRANT_ADDR", &c.Vector.QdrantAddr)
	applyString("DOCQA_OPENSEARCH_URL", &c.Vector.OpenSearchURL)
	applyString("DOCQA_OPENSEARCH_USERNAME", &c.Vector.Username)
	applyString("DOCQA_OPENSEARCH_PASSWORD", &c.Vector.Password)

	applyString("DOCQA_MODEL_PROVIDER", &c.Model.Provider)
	applyString("DOCQA_MODEL_BASE_URL", &c.Model.BaseURL)
	applyString("DOCQA_MODEL_TOKEN", &c.Model.Token)
	applyString("DOCQA_EMBED_MODEL", &c.Model.EmbedModel)
	applyString("DOCQA_CHAT_MODEL", &c.Model.ChatModel)
	applyFloat("DOCQA_MODEL_RATE_LIMIT", &c.Model.RateLimit)

	applyInt("DOCQA_MAX_EMBED_CHARS", &c.Index.MaxEmbedChars)
	applyInt("DOCQA_READ_ATTEMPTS", &c.Index.ReadAttempts)
	applyBool("DOCQA_ACCEPT_INLINE", &c.Index.AcceptInline)

	applyInt("DOCQA_TOP_K", &c.RAG.TopK)
	applyInt("DOCQA_HISTORY_TURNS", &c.RAG.HistoryTurns)
	applyInt("DOCQA_MAX_TOKENS", &c.RAG.MaxTokens)
	applyDuration("DOCQA_GENERATE_TIMEOUT", &c.RAG.GenerateTimeout)
	applyBool("DOCQA_CONDENSE_QUESTION", &c.RAG.CondenseQuestion)

	applyString("DOCQA_SESSION_BACKEND", &c.Session.Backend)
	applyString("DOCQA_REDIS_URL", &c.Session.RedisURL)
	applyString("DOCQA_BADGER_DIR", &c.Session.BadgerDir)
	applyDuration("DOCQA_SESSION_TTL", &c.Session.TTL)

	applyString("DOCQA_HTTP_ADDR", &c.HTTP.Addr)
	applyString("DOCQA_CORS_ORIGIN", &c.HTTP.CORSOrigin)
	applyInt("DOCQA_METRICS_PORT", &c.Metrics.Port)
}

// Validate checks backend names and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	if !oneOf(c.Storage.Backend, "objectstore", "file", "memory") {
		errs = append(errs, fmt.Errorf("storage.backend %q", c.Storage.Backend))
	}
	if !oneOf(c.Vector.Backend, "qdrant", "opensearch", "memory") {
		errs = append(errs, fmt.Errorf("vector.backend %q", c.Vector.Backend))
	}
	if !oneOf(c.Model.Provider, "ollama", "openai") {
		errs = append(errs, fmt.Errorf("model.provider %q", c.Model.Provider))
	}
	if !oneOf(c.Session.Backend, "memory", "redis", "badger") {
		errs = append(errs, fmt.Errorf("session.backend %q", c.Session.Backend))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", c.RAG.TopK))
	}
	if c.Vector.Dimension < 0 {
		errs = append(errs, fmt.Errorf("vector.dimension must not be negative, got %d", c.Vector.Dimension))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat(key string, target *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func applyDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
