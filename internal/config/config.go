package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	LLMProvider  string `yaml:"llm_provider"`
	ChatModel    string `yaml:"chat_model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`

	OpenAIAPIKey  string `yaml:"openai_api_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url"`
	EmbeddingAPIKey   string `yaml:"embedding_api_key"`

	DatabaseURL        string `yaml:"database_url"`
	HTTPPort           string `yaml:"http_port"`
	LogLevel           string `yaml:"log_level"`
	IndexDir           string `yaml:"index_dir"`
	UploadDir          string `yaml:"upload_dir"`
	DocumentCollection string `yaml:"document_collection"`
	RetrievalTopK      int    `yaml:"retrieval_top_k"`
	ChunkSize          int    `yaml:"chunk_size"`
}

var AppConfig Config

// LoadConfig fills AppConfig and exits the process when it is unusable.
func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := Load(getEnv("CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg
}

// Load reads the optional YAML file at path and applies environment overrides
// on top of it. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.EmbeddingProvider = getEnv("EMBEDDING_PROVIDER", cfg.EmbeddingProvider)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", cfg.EmbeddingBaseURL)
	cfg.EmbeddingAPIKey = getEnv("EMBEDDING_API_KEY", cfg.EmbeddingAPIKey)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.IndexDir = getEnv("INDEX_DIR", cfg.IndexDir)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.DocumentCollection = getEnv("DOCUMENT_COLLECTION", cfg.DocumentCollection)
	cfg.RetrievalTopK = getEnvAsInt("RETRIEVAL_TOP_K", cfg.RetrievalTopK)
	cfg.ChunkSize = getEnvAsInt("CHUNK_SIZE", cfg.ChunkSize)

	// The embedding endpoint falls back to the chat endpoint credentials.
	if cfg.EmbeddingBaseURL == "" {
		cfg.EmbeddingBaseURL = cfg.OpenAIBaseURL
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.OpenAIAPIKey
	}

	return cfg, nil
}

func Defaults() Config {
	return Config{
		LLMProvider:        ProviderGemini,
		OpenAIBaseURL:      "https://api.groq.com/openai/v1",
		EmbeddingProvider:  ProviderGemini,
		DatabaseURL:        "chat_history.db",
		HTTPPort:           "8080",
		LogLevel:           "INFO",
		IndexDir:           "faiss_index",
		UploadDir:          "uploads",
		DocumentCollection: "default",
		RetrievalTopK:      3,
		ChunkSize:          500,
	}
}

func (c Config) Validate() error {
	for _, p := range []string{c.LLMProvider, c.EmbeddingProvider} {
		if p != ProviderGemini && p != ProviderOpenAI {
			return fmt.Errorf("unknown provider %q (want %q or %q)", p, ProviderGemini, ProviderOpenAI)
		}
	}
	if (c.LLMProvider == ProviderGemini || c.EmbeddingProvider == ProviderGemini) && c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if c.LLMProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if c.EmbeddingProvider == ProviderOpenAI && c.EmbeddingAPIKey == "" {
		return errors.New("EMBEDDING_API_KEY or OPENAI_API_KEY environment variable is required")
	}
	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.RetrievalTopK)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
