package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Auth      AuthConfig
	S3        S3Config
	Redis     RedisConfig
	Render    RenderConfig
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket settings
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// CORSConfig CORS settings
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// AuthConfig session-token settings. The token secret is shared with the host
// LMS, which signs the per-connection session tokens during handshake.
type AuthConfig struct {
	TokenSecret string
	TokenExpiry time.Duration
}

// S3Config AWS S3 settings for rendered-image uploads
type S3Config struct {
	Region          string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// RedisConfig Redis settings (optional; enables the shared dirty set)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RenderConfig rendering worker and thumbnail scheduler settings
type RenderConfig struct {
	// WorkerCmd is the rasterizer executable; WorkerArgs are passed verbatim.
	WorkerCmd  string
	WorkerArgs []string
	// Timeout is the hard wall-clock kill for one worker invocation.
	Timeout time.Duration
	// Interval is the thumbnail scheduler period. Independent of Timeout.
	Interval time.Duration
	// PreviewServiceURL, when set, receives fire-and-forget thumbnail requests.
	PreviewServiceURL string
	// CallbackSecret authorizes inbound preview-generation callbacks.
	CallbackSecret string
}

// Load reads configuration from the environment.
func Load() *Config {
	// .env is optional
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	tokenSecret := getRequiredEnv("TOKEN_SECRET")
	if tokenSecret == "change-this-secret-in-production" {
		log.Fatal("CRITICAL: TOKEN_SECRET must be changed from default value in production!")
	}

	var workerArgs []string
	if raw := getEnv("RENDER_WORKER_ARGS", ""); raw != "" {
		workerArgs = strings.Fields(raw)
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getInt("WS_READ_BUFFER_SIZE", 4096),
			WriteBufferSize: getInt("WS_WRITE_BUFFER_SIZE", 4096),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Auth: AuthConfig{
			TokenSecret: tokenSecret,
			TokenExpiry: getDuration("TOKEN_EXPIRY", 12*time.Hour),
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "ap-northeast-2"),
			BucketName:      getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getEnv("AWS_S3_PUBLIC_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Render: RenderConfig{
			WorkerCmd:         getEnv("RENDER_WORKER_CMD", "whiteboard-render-worker"),
			WorkerArgs:        workerArgs,
			Timeout:           getDuration("RENDER_TIMEOUT", 30*time.Second),
			Interval:          getDuration("THUMBNAIL_INTERVAL", 30*time.Second),
			PreviewServiceURL: getEnv("PREVIEW_SERVICE_URL", ""),
			CallbackSecret:    getEnv("PREVIEW_CALLBACK_SECRET", ""),
		},
	}
}

// getRequiredEnv fetches a required variable (Fatal when missing)
func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("CRITICAL: Required environment variable %s is not set!", key)
	}
	return value
}

// getEnv fetches a variable with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt fetches an integer variable
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getDuration fetches a duration variable; bare numbers are seconds
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
