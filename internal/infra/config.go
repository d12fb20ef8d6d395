package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Storage backend: "minio" or "filesystem".
	StorageBackend string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Filesystem backend settings (development only).
	StorageBasePath string
	StorageBaseURL  string

	// Inference sidecar.
	InferenceURL     string
	InferenceTimeout time.Duration

	FFmpegPath  string
	FFprobePath string

	ConfidenceThreshold      float64
	PresignTTL               time.Duration
	MaxConcurrentEstimations int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "8080"),

		StorageBackend:  getEnv("STORAGE_BACKEND", "minio"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "gait-artifacts"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		StorageBasePath: getEnv("STORAGE_BASE_PATH", "./data"),
		StorageBaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),

		InferenceURL:     os.Getenv("INFERENCE_URL"),
		InferenceTimeout: time.Second * time.Duration(getEnvInt("INFERENCE_TIMEOUT_SECONDS", 30)),

		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		ConfidenceThreshold:      getEnvFloat("CONFIDENCE_THRESHOLD", 0.5),
		PresignTTL:               time.Second * time.Duration(getEnvInt("PRESIGN_TTL_SECONDS", 300)),
		MaxConcurrentEstimations: getEnvInt("MAX_CONCURRENT_ESTIMATIONS", 2),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 60)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StorageBackend {
	case "minio":
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return nil, fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	case "filesystem":
		// Development backend, no credentials.
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be minio or filesystem, got %q", cfg.StorageBackend)
	}

	if cfg.InferenceURL == "" {
		return nil, fmt.Errorf("INFERENCE_URL is required")
	}
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0, 1], got %v", cfg.ConfidenceThreshold)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
