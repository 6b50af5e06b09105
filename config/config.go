package config

import (
	"os"
	"strconv"
	"time"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

type LLMConfig struct {
	Provider  string
	Model     string
	MaxTokens int
}

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type BlobConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
}

type Config struct {
	Addr           string
	RequestTimeout time.Duration

	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	LLM        LLMConfig
	Embeddings EmbeddingConfig
	Blob       BlobConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	SystemPromptPath string
	DataDir          string
}

func Load() Config {
	return Config{
		Addr:           getEnv("ADDR", ":5000"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 2*time.Minute),

		// An empty POSTGRES_DSN disables search, ingestion, and document listing.
		PostgresDSN: getEnv("POSTGRES_DSN", ""),
		// An empty NEO4J_URI disables the provenance graph.
		Neo4jURI:  getEnv("NEO4J_URI", ""),
		Neo4jUser: getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass: getEnv("NEO4J_PASSWORD", "password"),

		LLM: LLMConfig{
			Provider:  getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:     getEnv("CHAT_MODEL", "gpt-4o-mini"),
			MaxTokens: getInt("CHAT_MAX_TOKENS", 1500),
		},
		Embeddings: EmbeddingConfig{
			Provider:  getEnv("EMBEDDING_PROVIDER", ProviderOpenAI),
			Model:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getInt("EMBEDDING_DIMENSION", 1536),
		},
		Blob: BlobConfig{
			// An empty BLOB_BUCKET disables document generation and upload.
			Bucket:    getEnv("BLOB_BUCKET", ""),
			Region:    getEnv("BLOB_REGION", "us-east-1"),
			Endpoint:  getEnv("BLOB_ENDPOINT", ""),
			PublicURL: getEnv("BLOB_PUBLIC_URL", ""),
		},

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		SystemPromptPath: getEnv("SYSTEM_PROMPT_PATH", "system_prompt.txt"),
		DataDir:          getEnv("DATA_DIR", "data"),
	}
}

// SearchEnabled reports whether the semantic index is configured.
func (c Config) SearchEnabled() bool {
	return c.PostgresDSN != ""
}

// GraphEnabled reports whether the document provenance graph is configured.
func (c Config) GraphEnabled() bool {
	return c.Neo4jURI != ""
}

// BlobEnabled reports whether the document store is configured.
func (c Config) BlobEnabled() bool {
	return c.Blob.Bucket != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
