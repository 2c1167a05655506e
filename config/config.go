package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string

	JWTSecret   string
	AccessToken string
	RealtimeURL string

	Sync SyncConfig
}

// SyncConfig carries the tunables of the chat sync engine.
type SyncConfig struct {
	WindowPageSize   int
	HistoryPageSize  int
	ScrollThreshold  float64
	ReconcileWindow  time.Duration
	TypingIdle       time.Duration
	RetryMaxAttempts int
	RetryMaxInterval time.Duration
	MaxUploadBytes   int64
	AttachmentBucket string
}

// DefaultSyncConfig returns the engine defaults.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		WindowPageSize:   20,
		HistoryPageSize:  100,
		ScrollThreshold:  50,
		ReconcileWindow:  time.Minute,
		TypingIdle:       time.Second,
		RetryMaxAttempts: 5,
		RetryMaxInterval: 30 * time.Second,
		MaxUploadBytes:   10 * 1024 * 1024,
		AttachmentBucket: "chat-attachments",
	}
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	def := DefaultSyncConfig()

	return &Config{
		AppPort:       getEnv("APP_PORT", "8080"),
		AppMode:       getEnv("APP_MODE", "debug"),
		DBHost:        getEnv("DB_HOST", "localhost"),
		DBUser:        getEnv("DB_USER", "postgres"),
		DBPassword:    getEnv("DB_PASSWORD", "postgres"),
		DBName:        getEnv("DB_NAME", "hola_chat"),
		DBPort:        getEnv("DB_PORT", "5432"),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		S3Region:      getEnv("S3_REGION", "us-east-1"),
		S3Bucket:      getEnv("S3_BUCKET", def.AttachmentBucket),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:    getEnv("S3_ENDPOINT", ""),
		S3PublicBase:  getEnv("S3_PUBLIC_BASE", ""),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		AccessToken:   getEnv("HOLA_ACCESS_TOKEN", ""),
		RealtimeURL:   getEnv("REALTIME_URL", "ws://localhost:8080/v1/realtime"),
		Sync: SyncConfig{
			WindowPageSize:   getEnvAsInt("SYNC_WINDOW_PAGE_SIZE", def.WindowPageSize),
			HistoryPageSize:  getEnvAsInt("SYNC_HISTORY_PAGE_SIZE", def.HistoryPageSize),
			ScrollThreshold:  float64(getEnvAsInt("SYNC_SCROLL_THRESHOLD", int(def.ScrollThreshold))),
			ReconcileWindow:  getEnvAsDuration("SYNC_RECONCILE_WINDOW", def.ReconcileWindow),
			TypingIdle:       getEnvAsDuration("SYNC_TYPING_IDLE", def.TypingIdle),
			RetryMaxAttempts: getEnvAsInt("SYNC_RETRY_MAX_ATTEMPTS", def.RetryMaxAttempts),
			RetryMaxInterval: getEnvAsDuration("SYNC_RETRY_MAX_INTERVAL", def.RetryMaxInterval),
			MaxUploadBytes:   int64(getEnvAsInt("SYNC_MAX_UPLOAD_BYTES", int(def.MaxUploadBytes))),
			AttachmentBucket: getEnv("SYNC_ATTACHMENT_BUCKET", def.AttachmentBucket),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
