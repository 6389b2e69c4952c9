package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Token store
	TokenTTL time.Duration

	// Kafka
	KafkaBrokers []string
	AlertTopic   string

	// Detection
	DetectorBaseURL string
	DetectorTimeout time.Duration
	DetectorRules   string

	// LLM verifier
	OllamaURL     string
	OllamaModel   string
	OllamaTimeout time.Duration
	RiskMode      bool

	// Risk tier thresholds, ordered log <= alert <= purge
	LogThreshold   float64
	AlertThreshold float64
	PurgeThreshold float64

	// Verification worker pool
	VerifyWorkers   int
	VerifyQueueSize int

	// Policy engine
	DefaultPolicyContext string
	PolicyFile           string
	AllowPolicyOverride  bool

	// Gateway
	RateLimitRPS   int
	RateLimitBurst int
}

func Load() *Config {
	// Local development keeps settings in a .env file; missing file is fine.
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "sentinel"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "sentinel"),
		PostgresDB:       getEnv("POSTGRES_DB", "sentinel"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		TokenTTL: getDuration("TOKEN_TTL", 24*time.Hour),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		AlertTopic:   getEnv("ALERT_TOPIC", "risk-alerts"),

		DetectorBaseURL: getEnv("DETECTOR_BASE_URL", ""),
		DetectorTimeout: getDuration("DETECTOR_TIMEOUT", 10*time.Second),
		DetectorRules:   getEnv("DETECTOR_RULES", ""),

		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434/api/generate"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "phi3"),
		OllamaTimeout: getDuration("OLLAMA_TIMEOUT", 30*time.Second),
		RiskMode:      getBoolEnv("RISK_MODE", true),

		LogThreshold:   getFloatEnv("LOG_THRESHOLD", 0.3),
		AlertThreshold: getFloatEnv("ALERT_THRESHOLD", 0.5),
		PurgeThreshold: getFloatEnv("PURGE_THRESHOLD", 0.7),

		VerifyWorkers:   getIntEnv("VERIFY_WORKERS", 4),
		VerifyQueueSize: getIntEnv("VERIFY_QUEUE_SIZE", 256),

		DefaultPolicyContext: getEnv("DEFAULT_POLICY_CONTEXT", "general"),
		PolicyFile:           getEnv("POLICY_FILE", ""),
		AllowPolicyOverride:  getBoolEnv("ALLOW_POLICY_OVERRIDE", true),

		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
