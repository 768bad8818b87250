// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the retrieval service.
type Config struct {
	Server    ServerConfig
	Qdrant    QdrantConfig
	Neo4j     Neo4jConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Reranker  RerankerConfig
	Retrieval RetrievalConfig
	Indexing  IndexingConfig
	Language  LanguageConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	Mode         string // "debug" or "release"
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type QdrantConfig struct {
	URL              string
	APIKey           string
	Timeout          time.Duration
	CollectionPrefix string
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
	Enabled  bool
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
	CacheTTL time.Duration
}

type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	BatchSize int
}

type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

type RerankerConfig struct {
	Endpoint  string
	APIKey    string
	Model     string
	Timeout   time.Duration
	BatchSize int
	Enabled   bool
}

type RetrievalConfig struct {
	TopK           int
	VectorWeight   float64
	KeywordWeight  float64
	ContextWindow  int
	ParentBoost    float64
	SiblingBoost   float64
	EnableHybrid   bool
	EnableGraph    bool
	RerankTopN     int
	PreRetrieveMul int
}

type IndexingConfig struct {
	MaxWorkers         int
	QuestionsPerChunk  int
	MinKeywordCorpus   int
	EmbedRetryInterval time.Duration
}

type LanguageConfig struct {
	Default   string
	Supported []string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			Mode:         getEnv("SERVER_MODE", "release"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Qdrant: QdrantConfig{
			URL:              getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:           getEnv("QDRANT_API_KEY", ""),
			Timeout:          getDurationEnv("QDRANT_TIMEOUT", 30*time.Second),
			CollectionPrefix: getEnv("QDRANT_COLLECTION_PREFIX", "regdocs"),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
			Enabled:  getBoolEnv("NEO4J_ENABLED", true),
			Timeout:  getDurationEnv("NEO4J_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			CacheTTL: getDurationEnv("REDIS_CACHE_TTL", 5*time.Minute),
		},
		Embedding: EmbeddingConfig{
			BaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:11434"),
			APIKey:    getEnv("EMBEDDING_API_KEY", ""),
			Model:     getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			Dimension: getIntEnv("EMBEDDING_DIMENSION", 768),
			Timeout:   getDurationEnv("EMBEDDING_TIMEOUT", 30*time.Second),
			BatchSize: getIntEnv("EMBEDDING_BATCH_SIZE", 32),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "llama3.1"),
			Timeout:     getDurationEnv("LLM_TIMEOUT", 60*time.Second),
			MaxTokens:   getIntEnv("LLM_MAX_TOKENS", 512),
			Temperature: getFloatEnv("LLM_TEMPERATURE", 0.2),
		},
		Reranker: RerankerConfig{
			Endpoint:  getEnv("RERANKER_ENDPOINT", ""),
			APIKey:    getEnv("RERANKER_API_KEY", ""),
			Model:     getEnv("RERANKER_MODEL", "BAAI/bge-reranker-v2-m3"),
			Timeout:   getDurationEnv("RERANKER_TIMEOUT", 30*time.Second),
			BatchSize: getIntEnv("RERANKER_BATCH_SIZE", 32),
			Enabled:   getBoolEnv("RERANKER_ENABLED", false),
		},
		Retrieval: RetrievalConfig{
			TopK:           getIntEnv("RETRIEVAL_TOP_K", 10),
			VectorWeight:   getFloatEnv("RETRIEVAL_VECTOR_WEIGHT", 0.6),
			KeywordWeight:  getFloatEnv("RETRIEVAL_KEYWORD_WEIGHT", 0.4),
			ContextWindow:  getIntEnv("RETRIEVAL_CONTEXT_WINDOW", 2),
			ParentBoost:    getFloatEnv("RETRIEVAL_PARENT_BOOST", 0.8),
			SiblingBoost:   getFloatEnv("RETRIEVAL_SIBLING_BOOST", 0.7),
			EnableHybrid:   getBoolEnv("RETRIEVAL_ENABLE_HYBRID", true),
			EnableGraph:    getBoolEnv("RETRIEVAL_ENABLE_GRAPH", true),
			RerankTopN:     getIntEnv("RETRIEVAL_RERANK_TOP_N", 10),
			PreRetrieveMul: getIntEnv("RETRIEVAL_PRE_RETRIEVE_MULTIPLIER", 3),
		},
		Indexing: IndexingConfig{
			MaxWorkers:         getIntEnv("INDEXING_MAX_WORKERS", 4),
			QuestionsPerChunk:  getIntEnv("INDEXING_QUESTIONS_PER_CHUNK", 3),
			MinKeywordCorpus:   getIntEnv("INDEXING_MIN_KEYWORD_CORPUS", 5),
			EmbedRetryInterval: getDurationEnv("INDEXING_EMBED_RETRY_INTERVAL", time.Second),
		},
		Language: LanguageConfig{
			Default:   getEnv("LANGUAGE_DEFAULT", "en"),
			Supported: getSliceEnv("LANGUAGE_SUPPORTED", []string{"en", "fr", "de", "es", "it", "pt", "nl"}),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getSliceEnv(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
