package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Extractor ExtractorConfig
	Predictor PredictorConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// StorageConfig holds artifact store configuration
type StorageConfig struct {
	DataDir        string
	MaxUploadBytes int64
}

// PipelineConfig holds orchestrator and worker pool configuration
type PipelineConfig struct {
	StageTimeout time.Duration
	Workers      int
	QueueSize    int
}

// ExtractorConfig holds the external extraction command configuration
type ExtractorConfig struct {
	Command string
	Args    []string
}

// PredictorConfig holds the external feasibility classifier configuration
type PredictorConfig struct {
	URL     string
	Enabled bool
	Timeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("DPRD_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			DataDir:        getEnv("DATA_DIR", "./data"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 16<<20),
		},
		Pipeline: PipelineConfig{
			StageTimeout: getEnvAsDuration("STAGE_TIMEOUT", 2*time.Minute),
			Workers:      getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:    getEnvAsInt("QUEUE_SIZE", 64),
		},
		Extractor: ExtractorConfig{
			Command: getEnv("EXTRACTOR_CMD", "dpr-extract"),
			Args:    getEnvAsList("EXTRACTOR_ARGS", nil),
		},
		Predictor: PredictorConfig{
			URL:     getEnv("PREDICTOR_URL", "http://localhost:5001/predict"),
			Enabled: getEnvAsBool("PREDICTOR_ENABLED", true),
			Timeout: getEnvAsDuration("PREDICTOR_TIMEOUT", 30*time.Second),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Fields(value)
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "DPRD_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.DataDir == "" {
		return NewAppError("CONFIG_ERROR", "DATA_DIR is required", ErrInvalidInput)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_UPLOAD_BYTES must be positive", ErrInvalidInput)
	}
	if c.Pipeline.StageTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "STAGE_TIMEOUT must be positive", ErrInvalidInput)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrInvalidInput)
	}
	if c.Extractor.Command == "" {
		return NewAppError("CONFIG_ERROR", "EXTRACTOR_CMD is required", ErrInvalidInput)
	}
	if c.Predictor.Enabled && c.Predictor.URL == "" {
		return NewAppError("CONFIG_ERROR", "PREDICTOR_URL is required when PREDICTOR_ENABLED", ErrInvalidInput)
	}
	return nil
}
