package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderGemini  = "gemini"
	ProviderOffline = "offline"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Qdrant    QdrantConfig
	Reasoning ReasoningConfig
	Matching  MatchingConfig
	Cache     CacheConfig
	Worker    WorkerConfig
	Log       LogConfig

	// EnvFileLoaded is false when no .env file was found and only the process environment was used.
	EnvFileLoaded bool
}

type ServerConfig struct {
	Port      string
	Env       string
	BodyLimit int
}

type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

type QdrantConfig struct {
	Enabled    bool
	URL        string
	APIKey     string
	Collection string
	VectorSize uint64
	Neighbours int
}

type ReasoningConfig struct {
	Provider   string
	APIKey     string
	Model      string
	EmbedModel string
	MaxRetries int
}

type MatchingConfig struct {
	ScoringVersion             string
	ProfilePath                string
	SkillTablePath             string
	ExtractionTimeout          time.Duration
	CallTimeout                time.Duration
	TransferabilityConcurrency int
	AssessNiceToHave           bool
}

type CacheConfig struct {
	TTL           time.Duration
	PurgeInterval time.Duration
}

type WorkerConfig struct {
	Concurrency int
	QueueSize   int
}

type LogConfig struct {
	JSON  bool
	Debug bool
}

func Load() *Config {
	loaded := godotenv.Load() == nil

	return &Config{
		EnvFileLoaded: loaded,
		Server: ServerConfig{
			Port:      getEnv("PORT", "3000"),
			Env:       getEnv("ENV", "development"),
			BodyLimit: getEnvAsInt("BODY_LIMIT", 4*1024*1024),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverMemory)),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "cv_matcher"),
			SQLitePath: getEnv("SQLITE_PATH", "./data/match_cache.db"),
		},
		Qdrant: QdrantConfig{
			Enabled:    getEnvAsBool("QDRANT_ENABLED", false),
			URL:        getEnv("QDRANT_URL", "http://localhost:6334"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "canonical_skills"),
			VectorSize: uint64(getEnvAsInt("QDRANT_VECTOR_SIZE", 768)),
			Neighbours: getEnvAsInt("QDRANT_NEIGHBOURS", 3),
		},
		Reasoning: ReasoningConfig{
			Provider:   strings.ToLower(getEnv("REASONING_PROVIDER", ProviderGemini)),
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			Model:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
			MaxRetries: getEnvAsInt("GEMINI_MAX_RETRIES", 3),
		},
		Matching: MatchingConfig{
			ScoringVersion:             getEnv("SCORING_VERSION", "v4.0"),
			ProfilePath:                getEnv("SCORING_PROFILE", ""),
			SkillTablePath:             getEnv("SKILL_TABLE", ""),
			ExtractionTimeout:          getEnvAsDuration("EXTRACTION_TIMEOUT", "60s"),
			CallTimeout:                getEnvAsDuration("REASONING_CALL_TIMEOUT", "30s"),
			TransferabilityConcurrency: getEnvAsInt("TRANSFERABILITY_CONCURRENCY", 4),
			AssessNiceToHave:           getEnvAsBool("ASSESS_NICE_TO_HAVE", true),
		},
		Cache: CacheConfig{
			TTL:           getEnvAsDuration("CACHE_TTL", "168h"),
			PurgeInterval: getEnvAsDuration("CACHE_PURGE_INTERVAL", "1h"),
		},
		Worker: WorkerConfig{
			Concurrency: getEnvAsInt("WORKER_CONCURRENCY", 3),
			QueueSize:   getEnvAsInt("WORKER_QUEUE_SIZE", 100),
		},
		Log: LogConfig{
			JSON:  getEnvAsBool("LOG_JSON", false),
			Debug: getEnvAsBool("LOG_DEBUG", false),
		},
	}
}

// Validate checks the settings that would otherwise fail late, on the first request.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Reasoning.Provider {
	case ProviderOffline:
	case ProviderGemini:
		if c.Reasoning.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown REASONING_PROVIDER %q", c.Reasoning.Provider)
	}

	if c.Matching.TransferabilityConcurrency < 1 {
		return fmt.Errorf("TRANSFERABILITY_CONCURRENCY must be at least 1")
	}
	if c.Matching.CallTimeout <= 0 || c.Matching.ExtractionTimeout <= 0 {
		return fmt.Errorf("reasoning timeouts must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	return nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
