package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	AuditPort      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database (audit service only)
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

	// Kafka
	KafkaBrokers         []string
	KafkaGroupID         string
	PredictionEventTopic string
	EventsEnabled        bool

	// Upstream RDX services
	PredictBaseURL      string
	MappingBaseURL      string
	RelatedTermsBaseURL string
	CatalogBaseURL      string
	AuthBaseURL         string
	AuthEmail           string
	AuthPassword        string
	AuthTokenTTL        time.Duration
	UpstreamTimeout     time.Duration
	UpstreamRetries     int

	// Match registry
	RegistryBackend     string
	RegistryTTL         time.Duration
	RegistryMaxSessions int

	// Session snapshots
	SessionBackend string
	SessionTTL     time.Duration

	// Prediction behaviour
	FallbackToDemo bool
	MaxCandidates  int
	MinSymptoms    int

	// Local resources
	CatalogPath  string
	DLPRulesPath string

	// Gateway specific
	GatewayRateLimitRPS   int
	GatewayRateLimitBurst int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		AuditPort:      getEnv("AUDIT_PORT", "8090"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 60*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "raredx"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "raredx"),
		PostgresDB:       getEnv("POSTGRES_DB", "raredx"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:         getEnv("KAFKA_GROUP_ID", "raredx-triage"),
		PredictionEventTopic: getEnv("PREDICTION_EVENT_TOPIC", "prediction-events"),
		EventsEnabled:        getBoolEnv("EVENTS_ENABLED", false),

		PredictBaseURL:      getEnv("RDX_PREDICT_BASE_URL", "http://localhost:8081"),
		MappingBaseURL:      getEnv("RDX_MAPPING_BASE_URL", "http://localhost:5000"),
		RelatedTermsBaseURL: getEnv("RDX_RELATED_BASE_URL", "http://localhost:5000"),
		CatalogBaseURL:      getEnv("RDX_CATALOG_BASE_URL", ""),
		AuthBaseURL:         getEnv("RDX_AUTH_BASE_URL", "http://localhost:3001"),
		AuthEmail:           getEnv("RDX_AUTH_EMAIL", ""),
		AuthPassword:        getEnv("RDX_AUTH_PASSWORD", ""),
		AuthTokenTTL:        getDuration("RDX_AUTH_TOKEN_TTL", 30*time.Minute),
		UpstreamTimeout:     getDuration("RDX_UPSTREAM_TIMEOUT", 20*time.Second),
		UpstreamRetries:     getIntEnv("RDX_UPSTREAM_RETRIES", 3),

		RegistryBackend:     strings.ToLower(getEnv("REGISTRY_BACKEND", "memory")),
		RegistryTTL:         getDuration("REGISTRY_TTL", 24*time.Hour),
		RegistryMaxSessions: getIntEnv("REGISTRY_MAX_SESSIONS", 10000),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		SessionTTL:     getDuration("SESSION_TTL", 24*time.Hour),

		FallbackToDemo: getBoolEnv("PREDICT_FALLBACK_TO_DEMO", true),
		MaxCandidates:  getIntEnv("PREDICT_MAX_CANDIDATES", 20),
		MinSymptoms:    getIntEnv("PREDICT_MIN_SYMPTOMS", 3),

		CatalogPath:  getEnv("PHENOTYPE_CATALOG_PATH", ""),
		DLPRulesPath: getEnv("DLP_RULES_PATH", ""),

		GatewayRateLimitRPS:   getIntEnv("GATEWAY_RATE_LIMIT_RPS", 50),
		GatewayRateLimitBurst: getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
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
