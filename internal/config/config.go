package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// MaxSlots is the number of telephony credential environment variables that
// participate in allocation. Credentials left empty are excluded from the pool.
const MaxSlots = 5

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// Telephony credential pool (slot 1..MaxSlots)
	TelephonyTokens []string

	// Slot allocation
	HeartbeatTimeout time.Duration
	SlotWriteRetries int
	SlotWriteBackoff time.Duration

	// Recording ingestion pipeline
	PipelineLockTTL    time.Duration
	PipelineBatchSize  int
	PipelineMaxRetries int
	StuckThreshold     time.Duration
	DownloadAttempts   int
	DownloadTimeout    time.Duration
	DownloadRetryDelay time.Duration
	DedupWindow        time.Duration
	SchedulerEnabled   bool
	PipelineCronSpec   string

	// Durable storage (S3-compatible, e.g. Cloudflare R2)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	PublicBaseURL    string

	// Push notifications (FCM HTTP v1)
	PushEnabled         bool
	PushCredentialsFile string

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	tokens := make([]string, MaxSlots)
	for i := range tokens {
		tokens[i] = getEnv(fmt.Sprintf("TELEPHONY_TOKEN_%d", i+1), "")
	}

	return &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/switchboard?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "switchboard"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 900) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Telephony credentials
		TelephonyTokens: tokens,

		// Slot allocation
		HeartbeatTimeout: getDurationEnv("HEARTBEAT_TIMEOUT_SEC", 30) * time.Second,
		SlotWriteRetries: getIntEnv("SLOT_WRITE_RETRIES", 3),
		SlotWriteBackoff: getDurationEnv("SLOT_WRITE_BACKOFF_MS", 500) * time.Millisecond,

		// Pipeline
		PipelineLockTTL:    getDurationEnv("PIPELINE_LOCK_TTL_MIN", 15) * time.Minute,
		PipelineBatchSize:  getIntEnv("PIPELINE_BATCH_SIZE", 5),
		PipelineMaxRetries: getIntEnv("PIPELINE_MAX_RETRIES", 3),
		StuckThreshold:     getDurationEnv("PIPELINE_STUCK_THRESHOLD_MIN", 20) * time.Minute,
		DownloadAttempts:   getIntEnv("DOWNLOAD_ATTEMPTS", 2),
		DownloadTimeout:    getDurationEnv("DOWNLOAD_TIMEOUT_MIN", 12) * time.Minute,
		DownloadRetryDelay: getDurationEnv("DOWNLOAD_RETRY_DELAY_SEC", 5) * time.Second,
		DedupWindow:        getDurationEnv("DEDUP_WINDOW_SEC", 60) * time.Second,
		SchedulerEnabled:   getBoolEnv("SCHEDULER_ENABLED", true),
		PipelineCronSpec:   getEnv("PIPELINE_CRON", "*/5 * * * *"),

		// Storage
		StorageEndpoint:  getEnv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getEnv("STORAGE_SECRET_KEY", ""),
		StorageBucket:    getEnv("STORAGE_BUCKET", "call-recordings"),
		StorageUseSSL:    getBoolEnv("STORAGE_USE_SSL", true),
		PublicBaseURL:    getEnv("STORAGE_PUBLIC_BASE_URL", ""),

		// Push
		PushEnabled:         getBoolEnv("PUSH_ENABLED", false),
		PushCredentialsFile: getEnv("PUSH_CREDENTIALS_FILE", ""),

		// CORS
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, DELETE, OPTIONS"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
