package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the dictation gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Recognition service configuration
	RecognitionProvider string `envconfig:"RECOGNITION_PROVIDER" default:"websocket"` // websocket, deepgram
	RecognitionURL      string `envconfig:"RECOGNITION_URL" default:"wss://api.deepgram.com/v1/listen"`
	RecognitionModel    string `envconfig:"RECOGNITION_MODEL" default:"nova-2-medical"`
	RecognitionLanguage string `envconfig:"RECOGNITION_LANGUAGE" default:"en"`
	InterimResults      bool   `envconfig:"INTERIM_RESULTS" default:"true"`
	SmartFormat         bool   `envconfig:"SMART_FORMAT" default:"true"`
	ConnectTimeoutMs    int    `envconfig:"CONNECT_TIMEOUT_MS" default:"5000"` // Deadline for the transport to reach open

	// Session credential endpoint. Each connection attempt fetches one
	// single-use key from here; keys are never cached or reused.
	TokenEndpoint string `envconfig:"TOKEN_ENDPOINT" required:"true"`
	TokenSecret   string `envconfig:"TOKEN_API_SECRET" required:"true"`

	// Audio capture configuration
	CaptureSource   string `envconfig:"CAPTURE_SOURCE" default:""`    // Pulse source name; empty uses the default input
	SampleRate      int    `envconfig:"SAMPLE_RATE" default:"16000"`  // Hz, linear16
	Channels        int    `envconfig:"CHANNELS" default:"1"`         // Mono
	ChunkIntervalMs int    `envconfig:"CHUNK_INTERVAL_MS" default:"200"` // Producer tick; shorter trades overhead for latency
	CaptureBufferMs int    `envconfig:"CAPTURE_BUFFER_MS" default:"1000"` // Ring buffer depth between device and producer

	// Input level meter configuration
	LevelEnergyThreshold float64 `envconfig:"LEVEL_ENERGY_THRESHOLD" default:"500.0"` // RMS threshold for the speech-active flag
	LevelSilenceChunks   int     `envconfig:"LEVEL_SILENCE_CHUNKS" default:"5"`       // Quiet chunks before speech-active clears

	// Resilience configuration (credential fetch only; a failed session is
	// never reconnected automatically)
	TokenRetryMaxAttempts      int `envconfig:"TOKEN_RETRY_MAX_ATTEMPTS" default:"3"`
	TokenRetryInitialBackoff   int `envconfig:"TOKEN_RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.TokenEndpoint == "" {
		return nil, fmt.Errorf("TOKEN_ENDPOINT is required")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_API_SECRET is required")
	}
	if cfg.RecognitionProvider != "websocket" && cfg.RecognitionProvider != "deepgram" {
		return nil, fmt.Errorf("unknown RECOGNITION_PROVIDER %q", cfg.RecognitionProvider)
	}
	if cfg.ChunkIntervalMs < 100 || cfg.ChunkIntervalMs > 250 {
		return nil, fmt.Errorf("CHUNK_INTERVAL_MS must be between 100 and 250, got %d", cfg.ChunkIntervalMs)
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
