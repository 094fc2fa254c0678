package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port       int              `json:"port"`
	LogConfig  logger.LogConfig `json:"log_config"`
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	AI         AIConfig         `json:"ai"`
	Expansion  ExpansionConfig  `json:"expansion"`
	Index      IndexConfig      `json:"index"`
	Query      QueryConfig      `json:"query"`
	EmbedCache EmbedCacheConfig `json:"embed_cache"`
}

type ServerConfig struct {
	CORSAllowlist        []string `json:"cors_allowlist"`
	RateLimitWindowMsecs int      `json:"rate_limit_window_msecs"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// ProviderConfig selects one concrete LLM provider variant by name; Data is
// passed through to the provider factory untouched.
type ProviderConfig struct {
	Provider string                 `json:"provider"`
	Model    string                 `json:"model"`
	Data     map[string]interface{} `json:"data"`
}

type AIConfig struct {
	// Generators and Embedders are tried in order; entries after the first
	// are fallbacks.
	Generators     []ProviderConfig `json:"generators"`
	Embedders      []ProviderConfig `json:"embedders"`
	TimeoutSeconds int              `json:"timeout_seconds"`
	MaxRetries     int              `json:"max_retries"`
}

type ExpansionConfig struct {
	BatchSize  int    `json:"batch_size"`
	WindowSize int    `json:"window_size"`
	Workers    int    `json:"workers"`
	Cron       string `json:"cron"`
	RunOnStart bool   `json:"run_on_start"`
}

type IndexConfig struct {
	RebuildCron string `json:"rebuild_cron"`
	Workers     int    `json:"workers"`
}

type QueryConfig struct {
	TopK              int     `json:"top_k"`
	OverfetchFactor   int     `json:"overfetch_factor"`
	RelevanceFloor    float64 `json:"relevance_floor"`
	MaxSourceMessages int     `json:"max_source_messages"`
}

type EmbedCacheConfig struct {
	LruSize       int    `json:"lru_size"`
	LruTTLMinutes int    `json:"lru_ttl_minutes"`
	MaxAgeDays    int    `json:"max_age_days"`
	CleanupCron   string `json:"cleanup_cron"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if len(cfg.AI.Generators) == 0 {
		return nil, fmt.Errorf("ai.generators requires at least one provider")
	}
	for i, gen := range cfg.AI.Generators {
		if gen.Provider == "" || gen.Model == "" {
			return nil, fmt.Errorf("ai.generators[%d] provider and model are required", i)
		}
	}
	if len(cfg.AI.Embedders) == 0 {
		return nil, fmt.Errorf("ai.embedders requires at least one provider")
	}
	for i, emb := range cfg.AI.Embedders {
		if emb.Provider == "" || emb.Model == "" {
			return nil, fmt.Errorf("ai.embedders[%d] provider and model are required", i)
		}
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.MaxRetries <= 0 {
		cfg.AI.MaxRetries = 3
	}
	if cfg.Expansion.BatchSize <= 0 {
		cfg.Expansion.BatchSize = 50
	}
	if cfg.Expansion.WindowSize <= 0 {
		cfg.Expansion.WindowSize = 5
	}
	if cfg.Expansion.Workers <= 0 {
		cfg.Expansion.Workers = 2
	}
	if cfg.Expansion.Cron == "" {
		cfg.Expansion.Cron = "*/10 * * * *"
	}
	if cfg.Index.RebuildCron == "" {
		cfg.Index.RebuildCron = "0 4 * * *"
	}
	if cfg.Index.Workers <= 0 {
		cfg.Index.Workers = 4
	}
	if cfg.Query.TopK <= 0 {
		cfg.Query.TopK = 8
	}
	if cfg.Query.OverfetchFactor <= 0 {
		cfg.Query.OverfetchFactor = 4
	}
	if cfg.Query.MaxSourceMessages <= 0 {
		cfg.Query.MaxSourceMessages = 20
	}
	if cfg.EmbedCache.LruSize <= 0 {
		cfg.EmbedCache.LruSize = 10000
	}
	if cfg.EmbedCache.LruTTLMinutes <= 0 {
		cfg.EmbedCache.LruTTLMinutes = 120
	}
	if cfg.EmbedCache.MaxAgeDays <= 0 {
		cfg.EmbedCache.MaxAgeDays = 30
	}
	if cfg.EmbedCache.CleanupCron == "" {
		cfg.EmbedCache.CleanupCron = "30 4 * * *"
	}
	return &cfg, nil
}
