package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	AppEnv  string
	AppPort int

	DatabaseURL                string
	DatabaseMaxConnections     int
	DatabaseMaxIdleConnections int
	DatabaseConnectionLifetime time.Duration
	RunMigrations              bool
	MigrationsPath             string

	NATSURL string

	CORSAllowedOrigins   string
	CORSAllowCredentials bool

	LogLevel string

	// SMTP intake
	SMTPListenAddr  string
	SMTPDomain      string
	SMTPMaxBytes    int64
	UploadMaxBytes  int64

	// LLM / embedding provider
	OpenAIAPIKey            string
	OpenAIBaseURL           string
	LLMModelText            string
	LLMModelVision          string
	EmbeddingModel          string
	EmbeddingDimension      int
	ProviderTimeoutText     time.Duration
	ProviderTimeoutVision   time.Duration

	// C4 extraction budget gate
	MaxLLMPageCount       int
	MaxLLMTokensPerCall   int
	DailyAICostBudgetUSD  float64

	// C3/C7 backpressure
	ExtractionQueueCapacityPerTenant int

	// C12 dropzone
	DropzoneRootPath string
	DropzoneAckPath  string
	AckPollEnabled   bool
	AckPollInterval  time.Duration

	// Operator surface actor header (no auth layer in core; see DESIGN.md)
	ActorHeaderName string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnvAsInt("APP_PORT", 8080),

		DatabaseURL:                getEnv("DATABASE_URL", ""),
		DatabaseMaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
		DatabaseMaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		DatabaseConnectionLifetime: getEnvAsDuration("DATABASE_CONNECTION_LIFETIME", 5*time.Minute),
		RunMigrations:              getEnvAsBool("RUN_MIGRATIONS", false),
		MigrationsPath:             getEnv("MIGRATIONS_PATH", "./internal/db/migrations"),

		NATSURL: getEnv("NATS_URL", "nats://localhost:4222"),

		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		CORSAllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		SMTPListenAddr: getEnv("SMTP_LISTEN_ADDR", ":2525"),
		SMTPDomain:     getEnv("SMTP_DOMAIN", "orders.orderflow.example.com"),
		SMTPMaxBytes:   int64(getEnvAsInt("SMTP_MAX_BYTES", 25*1024*1024)),
		UploadMaxBytes: int64(getEnvAsInt("UPLOAD_MAX_BYTES", 25*1024*1024)),

		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		LLMModelText:          getEnv("LLM_MODEL_TEXT", "gpt-4o-mini"),
		LLMModelVision:        getEnv("LLM_MODEL_VISION", "gpt-4o"),
		EmbeddingModel:        getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension:    getEnvAsInt("EMBEDDING_DIMENSION", 1536),
		ProviderTimeoutText:   getEnvAsDuration("PROVIDER_TIMEOUT_TEXT", 40*time.Second),
		ProviderTimeoutVision: getEnvAsDuration("PROVIDER_TIMEOUT_VISION", 60*time.Second),

		MaxLLMPageCount:      getEnvAsInt("MAX_LLM_PAGE_COUNT", 25),
		MaxLLMTokensPerCall:  getEnvAsInt("MAX_LLM_TOKENS_PER_CALL", 60000),
		DailyAICostBudgetUSD: getEnvAsFloat("DAILY_AI_COST_BUDGET_USD", 25.0),

		ExtractionQueueCapacityPerTenant: getEnvAsInt("EXTRACTION_QUEUE_CAPACITY_PER_TENANT", 50),

		DropzoneRootPath: getEnv("DROPZONE_ROOT_PATH", "./dropzone"),
		DropzoneAckPath:  getEnv("DROPZONE_ACK_PATH", "./dropzone/ack"),
		AckPollEnabled:   getEnvAsBool("ACK_POLL_ENABLED", false),
		AckPollInterval:  getEnvAsDuration("ACK_POLL_INTERVAL", 30*time.Second),

		ActorHeaderName: getEnv("ACTOR_HEADER_NAME", "X-OrderFlow-Actor"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
