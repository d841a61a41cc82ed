package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	PostgreSQL PostgreSQLConfig
	Redis      RedisConfig
	Session    SessionConfig
	Catalog    CatalogConfig
	Matcher    MatcherConfig
	Policy     PolicyConfig
	Tools      ToolsConfig
	Ranking    RankingConfig
	LLM        LLMConfig
	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Ollama     OllamaConfig
	Logging    LoggingConfig
	Metrics    MetricsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	GinMode         string
	AllowedOrigins  string
	AllowedMethods  string
	AllowedHeaders  string
	ShutdownTimeout time.Duration
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // Full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// SessionConfig selects and tunes the session backend
type SessionConfig struct {
	Backend string        // memory | redis
	TTL     time.Duration // 0 keeps sessions for the process lifetime
}

// CatalogConfig selects where the read-only catalog comes from
type CatalogConfig struct {
	Source  string // json | postgres
	DataDir string
}

// MatcherConfig holds vector similarity settings
type MatcherConfig struct {
	Threshold         float64
	EmbeddingProvider string // openai | ollama | lexical | auto (ollama, else lexical)
	LexicalDimensions int
}

// PolicyConfig holds dialogue policy and tour scheduling settings
type PolicyConfig struct {
	RetentionThreshold float64
	TourTurnThreshold  int
	TourLeadDays       int
	TourHour           int
	TourTimezone       string
}

// ToolsConfig holds domain tool settings
type ToolsConfig struct {
	Timeout time.Duration
}

// RankingConfig holds unit ranking weights
type RankingConfig struct {
	WeightPrice  float64
	WeightTiming float64
	WeightSize   float64
}

// LLMConfig selects the reply composer
type LLMConfig struct {
	Provider         string // anthropic | openai | template
	Timeout          time.Duration
	HistoryTurns     int
	ExtractionAssist bool
}

// AnthropicConfig holds Anthropic API configuration
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Enabled     bool
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string // Model for reply composition
	ChatTemperature     float64
	ChatTopP            float64
	ChatMaxTokens       int
	ChatExtraBody       string // JSON string for extra_body (e.g., {"chat_template_kwargs":{"thinking":true}})
	EmbeddingModel      string // Model for embeddings
	EmbeddingDimensions int
	EmbeddingExtraBody  string // JSON string for extra_body (e.g., {"truncate":"NONE"})
	BatchSize           int
	Timeout             int
	Enabled             bool
}

// OllamaConfig holds local Ollama embedding configuration
type OllamaConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:         getEnv("GIN_MODE", "release"),
			AllowedOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods:  getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders:  getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,X-Request-ID"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "renterchat"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
		},
		Redis: RedisConfig{
			Address:   getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "renterchat:memory:"),
		},
		Session: SessionConfig{
			Backend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
			TTL:     getEnvAsDuration("SESSION_TTL", 0),
		},
		Catalog: CatalogConfig{
			Source:  strings.ToLower(getEnv("CATALOG_SOURCE", "json")),
			DataDir: getEnv("CATALOG_DATA_DIR", "data"),
		},
		Matcher: MatcherConfig{
			Threshold:         getEnvAsFloat("MATCHER_THRESHOLD", 0.6),
			EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", "")),
			LexicalDimensions: getEnvAsInt("LEXICAL_EMBEDDING_DIMENSIONS", 256),
		},
		Policy: PolicyConfig{
			RetentionThreshold: getEnvAsFloat("POLICY_RETENTION_THRESHOLD", 0.6),
			TourTurnThreshold:  getEnvAsInt("POLICY_TOUR_TURN_THRESHOLD", 2),
			TourLeadDays:       getEnvAsInt("TOUR_LEAD_DAYS", 2),
			TourHour:           getEnvAsInt("TOUR_HOUR", 14),
			TourTimezone:       getEnv("TOUR_TIMEZONE", "UTC"),
		},
		Tools: ToolsConfig{
			Timeout: getEnvAsDuration("TOOL_TIMEOUT", 5*time.Second),
		},
		Ranking: RankingConfig{
			WeightPrice:  getEnvAsFloat("RANK_WEIGHT_PRICE", 0.5),
			WeightTiming: getEnvAsFloat("RANK_WEIGHT_TIMING", 0.3),
			WeightSize:   getEnvAsFloat("RANK_WEIGHT_SIZE", 0.2),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", "")),
			Timeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			HistoryTurns:     getEnvAsInt("LLM_HISTORY_TURNS", 20),
			ExtractionAssist: getEnvAsBool("EXTRACTION_LLM_ASSIST", false),
		},
		Anthropic: AnthropicConfig{
			APIKey:      getEnv("ANTHROPIC_API_KEY", ""),
			Model:       getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			MaxTokens:   getEnvAsInt("ANTHROPIC_MAX_TOKENS", 1024),
			Temperature: getEnvAsFloat("ANTHROPIC_TEMPERATURE", 0.3),
			Enabled:     getEnv("ANTHROPIC_API_KEY", "") != "",
		},
		OpenAI: OpenAIConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			APIBase:             getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
			ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature:     getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.3),
			ChatTopP:            getEnvAsFloat("OPENAI_CHAT_TOP_P", 0),
			ChatMaxTokens:       getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 1024),
			ChatExtraBody:       getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 0),
			EmbeddingExtraBody:  getEnv("OPENAI_EMBEDDING_EXTRA_BODY", ""),
			BatchSize:           getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			Timeout:             getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:             getEnv("OPENAI_API_KEY", "") != "",
		},
		Ollama: OllamaConfig{
			Endpoint: getEnv("OLLAMA_ENDPOINT", "http://localhost:11434"),
			Model:    getEnv("OLLAMA_EMBEDDING_MODEL", "all-minilm"),
			Timeout:  getEnvAsDuration("OLLAMA_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults picks providers from the credentials that are present
func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		switch {
		case c.Anthropic.Enabled:
			c.LLM.Provider = "anthropic"
		case c.OpenAI.Enabled:
			c.LLM.Provider = "openai"
		default:
			c.LLM.Provider = "template"
		}
	}

	if c.Matcher.EmbeddingProvider == "" {
		if c.OpenAI.Enabled {
			c.Matcher.EmbeddingProvider = "openai"
		} else {
			c.Matcher.EmbeddingProvider = "auto"
		}
	}
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		return fmt.Errorf("MATCHER_THRESHOLD must be within [0,1], got %v", c.Matcher.Threshold)
	}
	if c.Policy.RetentionThreshold < 0 || c.Policy.RetentionThreshold > 1 {
		return fmt.Errorf("POLICY_RETENTION_THRESHOLD must be within [0,1], got %v", c.Policy.RetentionThreshold)
	}
	if c.Policy.TourHour < 0 || c.Policy.TourHour > 23 {
		return fmt.Errorf("TOUR_HOUR must be within 0-23, got %d", c.Policy.TourHour)
	}
	if c.Policy.TourTurnThreshold < 1 {
		return fmt.Errorf("POLICY_TOUR_TURN_THRESHOLD must be positive, got %d", c.Policy.TourTurnThreshold)
	}
	if _, err := time.LoadLocation(c.Policy.TourTimezone); err != nil {
		return fmt.Errorf("invalid TOUR_TIMEZONE %q: %w", c.Policy.TourTimezone, err)
	}

	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q (memory, redis)", c.Session.Backend)
	}
	switch c.Catalog.Source {
	case "json", "postgres":
	default:
		return fmt.Errorf("unknown CATALOG_SOURCE %q (json, postgres)", c.Catalog.Source)
	}
	switch c.Matcher.EmbeddingProvider {
	case "openai", "ollama", "lexical", "auto":
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q (openai, ollama, lexical, auto)", c.Matcher.EmbeddingProvider)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "template":
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (anthropic, openai, template)", c.LLM.Provider)
	}

	if c.Matcher.EmbeddingProvider == "openai" && !c.OpenAI.Enabled {
		return fmt.Errorf("EMBEDDING_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if c.LLM.Provider == "openai" && !c.OpenAI.Enabled {
		return fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY")
	}
	if c.LLM.Provider == "anthropic" && !c.Anthropic.Enabled {
		return fmt.Errorf("LLM_PROVIDER=anthropic requires ANTHROPIC_API_KEY")
	}

	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// TourLocation returns the time zone tours are scheduled in
func (c *Config) TourLocation() *time.Location {
	loc, err := time.LoadLocation(c.Policy.TourTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}
