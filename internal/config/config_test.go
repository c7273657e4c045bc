package config

import (
	"os"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TOKEN_ENDPOINT", "https://auth.example.com/v1/session-key")
	t.Setenv("TOKEN_API_SECRET", "test-secret")
}

func TestLoad(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TokenEndpoint != "https://auth.example.com/v1/session-key" {
		t.Errorf("Unexpected TokenEndpoint '%s'", cfg.TokenEndpoint)
	}
	if cfg.TokenSecret != "test-secret" {
		t.Errorf("Unexpected TokenSecret '%s'", cfg.TokenSecret)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("TOKEN_ENDPOINT")
	os.Unsetenv("TOKEN_API_SECRET")

	if _, err := Load(); err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}
	if cfg.RecognitionProvider != "websocket" {
		t.Errorf("Expected default RecognitionProvider 'websocket', got '%s'", cfg.RecognitionProvider)
	}
	if cfg.RecognitionModel != "nova-2-medical" {
		t.Errorf("Expected default RecognitionModel 'nova-2-medical', got '%s'", cfg.RecognitionModel)
	}
	if cfg.RecognitionLanguage != "en" {
		t.Errorf("Expected default RecognitionLanguage 'en', got '%s'", cfg.RecognitionLanguage)
	}
	if !cfg.InterimResults {
		t.Error("Expected default InterimResults true")
	}
	if !cfg.SmartFormat {
		t.Error("Expected default SmartFormat true")
	}
	if cfg.ConnectTimeoutMs != 5000 {
		t.Errorf("Expected default ConnectTimeoutMs 5000, got %d", cfg.ConnectTimeoutMs)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("Expected default SampleRate 16000, got %d", cfg.SampleRate)
	}
	if cfg.Channels != 1 {
		t.Errorf("Expected default Channels 1, got %d", cfg.Channels)
	}
	if cfg.ChunkIntervalMs != 200 {
		t.Errorf("Expected default ChunkIntervalMs 200, got %d", cfg.ChunkIntervalMs)
	}
}

func TestLoad_UnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RECOGNITION_PROVIDER", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestLoad_ChunkIntervalBounds(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("CHUNK_INTERVAL_MS", "50")
	if _, err := Load(); err == nil {
		t.Error("Expected error for chunk interval below 100ms")
	}

	t.Setenv("CHUNK_INTERVAL_MS", "250")
	if _, err := Load(); err != nil {
		t.Errorf("Expected 250ms to be accepted, got %v", err)
	}
}

func TestLoad_ResilienceDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.TokenRetryMaxAttempts != 3 {
		t.Errorf("Expected default TokenRetryMaxAttempts 3, got %d", cfg.TokenRetryMaxAttempts)
	}
	if cfg.TokenRetryInitialBackoff != 100 {
		t.Errorf("Expected default TokenRetryInitialBackoff 100, got %d", cfg.TokenRetryInitialBackoff)
	}
	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}
	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
}

func TestLoad_ObservabilityDefaults(t *testing.T) {
	setRequiredEnv(t)
	os.Unsetenv("LOG_LEVEL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}
	if cfg.LogPretty {
		t.Error("Expected default LogPretty false")
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_KEY", "test-value")

	if v := GetEnv("TEST_KEY", "default"); v != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", v)
	}
	if v := GetEnv("NON_EXISTENT_KEY", "default"); v != "default" {
		t.Errorf("Expected 'default', got '%s'", v)
	}
}
