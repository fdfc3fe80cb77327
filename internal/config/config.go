package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChunkSize    = 900
	DefaultChunkOverlap = 120

	// DefaultEmbeddingDimensions is the fixed vector width persisted by
	// the index; provider results of any other width are rejected.
	DefaultEmbeddingDimensions = 768
)

// Config is the full service configuration. Values load from a YAML file
// with environment variable overrides on top.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	ListenAddr  string `yaml:"listen_addr"`
	LogLevel    string `yaml:"log_level"`

	Storage StorageConfig `yaml:"storage"`

	ChunkSize       int    `yaml:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap"`
	TextChunkerMode string `yaml:"text_chunker_mode"` // simple | structured

	MaxContextChars         int    `yaml:"max_context_chars"`
	MaxTopK                 int    `yaml:"max_top_k"`
	MaxConversationMessages int    `yaml:"max_conversation_messages"`
	PromptVersion           string `yaml:"prompt_version"`
	PromptDir               string `yaml:"prompt_dir"`
	DefaultUseMMR           bool   `yaml:"default_use_mmr"`

	Retry RetryConfig `yaml:"retry"`

	FakeLLM        bool   `yaml:"fake_llm"`
	FakeEmbeddings bool   `yaml:"fake_embeddings"`
	LLMBaseURL     string `yaml:"llm_base_url"`
	LLMModel       string `yaml:"llm_model"`
	EmbeddingModel string `yaml:"embedding_model"`

	EmbeddingCacheBackend string `yaml:"embedding_cache_backend"` // memory | redis
	EmbeddingDimensions   int    `yaml:"embedding_dimensions"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	ConversationDir string `yaml:"conversation_dir"` // empty keeps history in memory only

	WorkerConcurrency int `yaml:"worker_concurrency"`
}

// StorageConfig configures the object store adapter.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RetryConfig configures the resilience helper.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	BaseDelaySeconds float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds  float64 `yaml:"max_delay_seconds"`
}

// BaseDelay returns the initial backoff delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds * float64(time.Second))
}

// MaxDelay returns the backoff ceiling.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds * float64(time.Second))
}

func Default() *Config {
	return &Config{
		ListenAddr:              ":8080",
		RedisAddr:               "127.0.0.1:6379",
		LogLevel:                "info",
		ChunkSize:               DefaultChunkSize,
		ChunkOverlap:            DefaultChunkOverlap,
		TextChunkerMode:         "simple",
		MaxContextChars:         8000,
		MaxTopK:                 20,
		MaxConversationMessages: 12,
		PromptVersion:           "v1",
		PromptDir:               "prompts",
		DefaultUseMMR:           false,
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseDelaySeconds: 1,
			MaxDelaySeconds:  30,
		},
		EmbeddingCacheBackend: "memory",
		EmbeddingDimensions:   DefaultEmbeddingDimensions,
		MaxUploadBytes:        32 << 20,
		WorkerConcurrency:     4,
		LLMBaseURL:            "http://127.0.0.1:11434",
		LLMModel:              "default",
		EmbeddingModel:        "default",
	}
}

// Load reads the config file at path (optional), layers environment
// overrides, and validates the result. A missing file is not an error;
// defaults apply. A .env file in the working directory is honored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setStr("DATABASE_URL", &c.DatabaseURL)
	setStr("REDIS_ADDR", &c.RedisAddr)
	setStr("LISTEN_ADDR", &c.ListenAddr)
	setStr("LOG_LEVEL", &c.LogLevel)
	setStr("STORAGE_ENDPOINT", &c.Storage.Endpoint)
	setStr("STORAGE_ACCESS_KEY", &c.Storage.AccessKey)
	setStr("STORAGE_SECRET_KEY", &c.Storage.SecretKey)
	setStr("STORAGE_BUCKET", &c.Storage.Bucket)
	setInt("CHUNK_SIZE", &c.ChunkSize)
	setInt("CHUNK_OVERLAP", &c.ChunkOverlap)
	setStr("TEXT_CHUNKER_MODE", &c.TextChunkerMode)
	setInt("MAX_CONTEXT_CHARS", &c.MaxContextChars)
	setInt("MAX_TOP_K", &c.MaxTopK)
	setInt("MAX_CONVERSATION_MESSAGES", &c.MaxConversationMessages)
	setStr("PROMPT_VERSION", &c.PromptVersion)
	setStr("PROMPT_DIR", &c.PromptDir)
	setBool("DEFAULT_USE_MMR", &c.DefaultUseMMR)
	setBool("FAKE_LLM", &c.FakeLLM)
	setBool("FAKE_EMBEDDINGS", &c.FakeEmbeddings)
	setStr("LLM_BASE_URL", &c.LLMBaseURL)
	setStr("LLM_MODEL", &c.LLMModel)
	setStr("EMBEDDING_MODEL", &c.EmbeddingModel)
	setStr("EMBEDDING_CACHE_BACKEND", &c.EmbeddingCacheBackend)
	setStr("CONVERSATION_DIR", &c.ConversationDir)
	setInt("WORKER_CONCURRENCY", &c.WorkerConcurrency)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	if c.TextChunkerMode != "simple" && c.TextChunkerMode != "structured" {
		return fmt.Errorf("text_chunker_mode must be simple or structured, got %q", c.TextChunkerMode)
	}
	if c.MaxContextChars <= 0 {
		return fmt.Errorf("max_context_chars must be positive, got %d", c.MaxContextChars)
	}
	if c.MaxTopK <= 0 {
		return fmt.Errorf("max_top_k must be positive, got %d", c.MaxTopK)
	}
	if c.MaxConversationMessages <= 0 {
		return fmt.Errorf("max_conversation_messages must be positive, got %d", c.MaxConversationMessages)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("embedding_dimensions must be positive, got %d", c.EmbeddingDimensions)
	}
	if c.EmbeddingCacheBackend != "memory" && c.EmbeddingCacheBackend != "redis" {
		return fmt.Errorf("embedding_cache_backend must be memory or redis, got %q", c.EmbeddingCacheBackend)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelaySeconds <= 0 {
		return fmt.Errorf("retry.base_delay_seconds must be positive, got %f", c.Retry.BaseDelaySeconds)
	}
	if c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return fmt.Errorf("retry.max_delay_seconds must be >= base_delay_seconds")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("worker_concurrency must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
}
