package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Env         string           `json:"env"`
	Port        int              `json:"port"`
	Database    DatabaseConfig   `json:"database"`
	LogConfig   logger.LogConfig `json:"log_config"`
	FileStore   FileStoreConfig  `json:"file_store"`
	Upload      UploadConfig     `json:"upload"`
	AI          AIConfig         `json:"ai"`
	Embedding   EmbeddingConfig  `json:"embedding"`
	Chunking    ChunkingConfig   `json:"chunking"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	WebSearch   WebSearchConfig  `json:"web_search"`
	RateLimit   RateLimitConfig  `json:"rate_limit"`
	CORSOrigins []string         `json:"cors_origins"`
	Worker      WorkerConfig     `json:"worker"`
	Jobs        JobsConfig       `json:"jobs"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path"`
	DSN    string `json:"dsn"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type UploadConfig struct {
	MaxFileSize int64 `json:"max_file_size"`
}

type AIConfig struct {
	Provider   string                            `json:"provider"`
	Model      string                            `json:"model"`
	Timeout    int                               `json:"timeout"`
	Providers  map[string]map[string]interface{} `json:"providers"`
	Generation GenerationConfig                  `json:"generation"`
}

type GenerationConfig struct {
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	TopK             int     `json:"top_k"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

type EmbeddingConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	// FallbackProvider is tried when Provider fails, before the local hash embedding.
	FallbackProvider string `json:"fallback_provider"`
	FallbackModel    string `json:"fallback_model"`
	LRUSize          int    `json:"lru_size"`
	LRUTTLSeconds    int    `json:"lru_ttl_seconds"`
	DBCache          bool   `json:"db_cache"`
}

type ChunkingConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

type RetrievalConfig struct {
	// Threshold is nil until set; zero and negative values are kept.
	Threshold     *float64 `json:"threshold"`
	Limit         int      `json:"limit"`
	ContextChunks int      `json:"context_chunks"`
	WebResults    int      `json:"web_results"`
}

type WebSearchConfig struct {
	SerpAPIKey string `json:"serpapi_key"`
	BingKey    string `json:"bing_key"`
	Timeout    int    `json:"timeout"`
}

type RateLimitConfig struct {
	WindowSeconds int `json:"window_seconds"`
	MaxRequests   int `json:"max_requests"`
}

type WorkerConfig struct {
	Concurrency int `json:"concurrency"`
}

type JobsConfig struct {
	IndexRefresh           string `json:"index_refresh"`
	StaleDocuments         string `json:"stale_documents"`
	StaleAfterMinutes      int    `json:"stale_after_minutes"`
	EmbeddingCacheCleanup  string `json:"embedding_cache_cleanup"`
	EmbeddingCacheKeepDays int    `json:"embedding_cache_keep_days"`
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads the config file, applies environment overrides and fills defaults.
// A .env file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Getenv)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a JSON or YAML document. YAML goes through JSON so both formats share the json tags.
func Parse(data []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		converted, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		data = converted
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func ApplyEnv(cfg *Config, getenv func(string) string) {
	setKey := func(provider, env string) {
		value := strings.TrimSpace(getenv(env))
		if value == "" {
			return
		}
		if cfg.AI.Providers == nil {
			cfg.AI.Providers = map[string]map[string]interface{}{}
		}
		if cfg.AI.Providers[provider] == nil {
			cfg.AI.Providers[provider] = map[string]interface{}{}
		}
		cfg.AI.Providers[provider]["api_key"] = value
	}
	setKey("openai", "OPENAI_API_KEY")
	setKey("gemini", "GEMINI_API_KEY")
	setKey("openrouter", "OPENROUTER_API_KEY")

	if v := strings.TrimSpace(getenv("LLM_PROVIDER")); v != "" {
		cfg.AI.Provider = v
	}
	if v := strings.TrimSpace(getenv("LLM_MODEL")); v != "" {
		cfg.AI.Model = v
	}
	if v := strings.TrimSpace(getenv("EMBEDDINGS_PROVIDER")); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := strings.TrimSpace(getenv("SERPAPI_KEY")); v != "" {
		cfg.WebSearch.SerpAPIKey = v
	}
	if v := strings.TrimSpace(getenv("BING_SEARCH_KEY")); v != "" {
		cfg.WebSearch.BingKey = v
	}
	if v := strings.TrimSpace(getenv("DATABASE_PATH")); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(getenv("UPLOAD_DIR")); v != "" && (cfg.FileStore.Type == "" || cfg.FileStore.Type == "local") {
		cfg.FileStore.Type = "local"
		cfg.FileStore.Data = map[string]interface{}{"dir": v}
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := strings.TrimSpace(getenv("APP_ENV")); v != "" {
		cfg.Env = v
	}
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Env == "" {
		c.Env = EnvDevelopment
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	switch c.Database.Driver {
	case "", "sqlite":
		c.Database.Driver = "sqlite"
		if c.Database.Path == "" {
			c.Database.Path = "./data/pal.db"
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres")
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
	}
	if c.FileStore.Type == "local" && c.FileStore.Data == nil {
		c.FileStore.Data = map[string]interface{}{"dir": "./uploads"}
	}
	if c.Upload.MaxFileSize <= 0 {
		c.Upload.MaxFileSize = 10 * 1024 * 1024
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	if c.AI.Model == "" {
		c.AI.Model = defaultChatModel(c.AI.Provider)
	}
	g := &c.AI.Generation
	if g.MaxTokens <= 0 {
		g.MaxTokens = 1000
	}
	if g.Temperature <= 0 {
		g.Temperature = 0.7
	}
	if g.TopP <= 0 {
		g.TopP = 0.9
	}
	if g.TopK <= 0 {
		g.TopK = 30
	}
	if g.FrequencyPenalty == 0 {
		g.FrequencyPenalty = 0.1
	}
	if g.PresencePenalty == 0 {
		g.PresencePenalty = 0.1
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = defaultEmbeddingModel(c.Embedding.Provider)
	}
	if c.Embedding.LRUSize == 0 {
		c.Embedding.LRUSize = 2048
	}
	if c.Embedding.LRUTTLSeconds == 0 {
		c.Embedding.LRUTTLSeconds = 3600
	}
	if c.Embedding.FallbackProvider != "" && c.Embedding.FallbackModel == "" {
		c.Embedding.FallbackModel = defaultEmbeddingModel(c.Embedding.FallbackProvider)
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = min(200, c.Chunking.Size/5)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, chunking.size)")
	}
	if c.Retrieval.Threshold == nil {
		threshold := 0.3
		c.Retrieval.Threshold = &threshold
	}
	if t := *c.Retrieval.Threshold; t < -1 || t > 1 {
		return fmt.Errorf("retrieval.threshold must be in [-1, 1]")
	}
	if c.Retrieval.Limit <= 0 {
		c.Retrieval.Limit = 5
	}
	if c.Retrieval.ContextChunks <= 0 {
		c.Retrieval.ContextChunks = 3
	}
	if c.Retrieval.WebResults <= 0 {
		c.Retrieval.WebResults = 3
	}
	if c.WebSearch.Timeout <= 0 {
		c.WebSearch.Timeout = 10
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = 15 * 60
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 100
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Jobs.IndexRefresh == "" {
		c.Jobs.IndexRefresh = "*/10 * * * *"
	}
	if c.Jobs.StaleDocuments == "" {
		c.Jobs.StaleDocuments = "*/5 * * * *"
	}
	if c.Jobs.StaleAfterMinutes <= 0 {
		c.Jobs.StaleAfterMinutes = 30
	}
	if c.Jobs.EmbeddingCacheCleanup == "" {
		c.Jobs.EmbeddingCacheCleanup = "0 3 * * *"
	}
	if c.Jobs.EmbeddingCacheKeepDays <= 0 {
		c.Jobs.EmbeddingCacheKeepDays = 30
	}
	return nil
}

func defaultChatModel(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return "gemini-2.0-flash"
	case "openrouter":
		return "openai/gpt-4o-mini"
	default:
		return "gpt-3.5-turbo"
	}
}

func defaultEmbeddingModel(provider string) string {
	switch strings.ToLower(provider) {
	case "gemini":
		return "text-embedding-004"
	case "openai":
		return "text-embedding-ada-002"
	default:
		return "local-hash-384"
	}
}
