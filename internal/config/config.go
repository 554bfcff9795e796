package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port     string
	LogLevel string

	StorageBackend string // "memory", "postgres" or "firestore"
	PostgresDSN    string

	GCPProjectID string
	GCPLocation  string

	ModelName  string
	GenAIKey   string // Gemini API key; empty means Vertex AI via project/location
	UseMockLLM bool   // true = use mock even on GCP

	EmbeddingProvider   string // "hash" or "genai"
	EmbeddingModel      string
	EmbeddingDimensions int

	VectorBackend    string // "memory" or "mongo"
	MongoURI         string
	MongoDatabase    string
	MongoCollection  string
	MongoVectorIndex string

	SigningKeys []string

	RateLimitRPS   float64
	RateLimitBurst int

	IndexWorkers   int
	IndexQueueSize int
	IndexTimeout   time.Duration

	ShutdownTimeout time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getIntEnv(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getFloatEnv(key string, def float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load reads .env (if present) and the STACKS_* environment and builds the config.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	var errs []error

	modeStr := getEnv("STACKS_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port:     getEnv("STACKS_PORT", getEnv("PORT", "8080")),
		LogLevel: getEnv("STACKS_LOG_LEVEL", "info"),

		StorageBackend: getEnv("STACKS_STORAGE_BACKEND", "memory"),
		PostgresDSN:    getEnv("STACKS_POSTGRES_DSN", ""),

		GCPProjectID: getEnv("STACKS_GCP_PROJECT", ""),
		GCPLocation:  getEnv("STACKS_GCP_LOCATION", "us-central1"),

		ModelName:  getEnv("STACKS_MODEL_NAME", "gemini-2.5-flash"),
		GenAIKey:   getEnv("STACKS_GENAI_API_KEY", ""),
		UseMockLLM: getBoolEnv("STACKS_USE_MOCK_LLM", mode == ModeLocal),

		EmbeddingProvider:   getEnv("STACKS_EMBEDDING_PROVIDER", "hash"),
		EmbeddingModel:      getEnv("STACKS_EMBEDDING_MODEL", "gemini-embedding-001"),
		EmbeddingDimensions: getIntEnv("STACKS_EMBEDDING_DIMENSIONS", 768, &errs),

		VectorBackend:    getEnv("STACKS_VECTOR_BACKEND", "memory"),
		MongoURI:         getEnv("STACKS_MONGO_URI", ""),
		MongoDatabase:    getEnv("STACKS_MONGO_DATABASE", "stacks"),
		MongoCollection:  getEnv("STACKS_MONGO_COLLECTION", "message_embeddings"),
		MongoVectorIndex: getEnv("STACKS_MONGO_VECTOR_INDEX", "message_embedding_index"),

		SigningKeys: splitList(getEnv("STACKS_SIGNING_KEYS", "")),

		RateLimitRPS:   getFloatEnv("STACKS_RATE_LIMIT_RPS", 2, &errs),
		RateLimitBurst: getIntEnv("STACKS_RATE_LIMIT_BURST", 10, &errs),

		IndexWorkers:   getIntEnv("STACKS_INDEX_WORKERS", 2, &errs),
		IndexQueueSize: getIntEnv("STACKS_INDEX_QUEUE_SIZE", 256, &errs),
		IndexTimeout:   getDurationEnv("STACKS_INDEX_TIMEOUT", 15*time.Second, &errs),

		ShutdownTimeout: getDurationEnv("STACKS_SHUTDOWN_TIMEOUT", 20*time.Second, &errs),
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks backend selections and the settings they need.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case "memory":
	case "postgres":
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("STACKS_POSTGRES_DSN is required for the postgres storage backend"))
		}
	case "firestore":
		if c.GCPProjectID == "" {
			errs = append(errs, errors.New("STACKS_GCP_PROJECT is required for the firestore storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}

	if !c.UseMockLLM && c.GenAIKey == "" && c.GCPProjectID == "" {
		errs = append(errs, errors.New("STACKS_GENAI_API_KEY or STACKS_GCP_PROJECT is required unless STACKS_USE_MOCK_LLM is set"))
	}

	switch c.EmbeddingProvider {
	case "hash":
	case "genai":
		if c.GenAIKey == "" && c.GCPProjectID == "" {
			errs = append(errs, errors.New("genai embeddings need STACKS_GENAI_API_KEY or STACKS_GCP_PROJECT"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.EmbeddingProvider))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("STACKS_EMBEDDING_DIMENSIONS must be positive"))
	}

	switch c.VectorBackend {
	case "memory":
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("STACKS_MONGO_URI is required for the mongo vector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector backend %q", c.VectorBackend))
	}

	if c.IndexWorkers <= 0 || c.IndexQueueSize <= 0 {
		errs = append(errs, errors.New("indexer workers and queue size must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
