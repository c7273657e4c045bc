package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicscribe/dictation-gateway/internal/audio"
	"github.com/clinicscribe/dictation-gateway/internal/auth"
	"github.com/clinicscribe/dictation-gateway/internal/capture"
	"github.com/clinicscribe/dictation-gateway/internal/config"
	"github.com/clinicscribe/dictation-gateway/internal/observability"
	"github.com/clinicscribe/dictation-gateway/internal/recognition"
	"github.com/clinicscribe/dictation-gateway/internal/server"
	"github.com/clinicscribe/dictation-gateway/internal/session"
	"github.com/clinicscribe/dictation-gateway/internal/transcript"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("provider", cfg.RecognitionProvider).
		Str("model", cfg.RecognitionModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Dictation Gateway Service starting")

	// Pipeline components
	meter := audio.NewLevelMeter(&audio.LevelConfig{
		EnergyThreshold: cfg.LevelEnergyThreshold,
		SilenceChunks:   cfg.LevelSilenceChunks,
	})

	captureCtrl := capture.NewController(capture.NewPulseDevice(), capture.ControllerConfig{
		Device: capture.DeviceConfig{
			Source:           cfg.CaptureSource,
			SampleRate:       cfg.SampleRate,
			Channels:         cfg.Channels,
			NoiseSuppression: true,
			EchoCancellation: true,
		},
		ChunkInterval: time.Duration(cfg.ChunkIntervalMs) * time.Millisecond,
		BufferMillis:  cfg.CaptureBufferMs,
	}, meter)

	tokens := auth.NewTokenClient(cfg)

	var transport recognition.Transport
	switch cfg.RecognitionProvider {
	case "deepgram":
		transport = recognition.NewDeepgramTransport()
	default:
		transport = recognition.NewWebSocketTransport(cfg.RecognitionURL)
	}

	manager := recognition.NewManager(transport, tokens, recognition.ManagerConfig{
		Options: recognition.Options{
			Model:          cfg.RecognitionModel,
			Language:       cfg.RecognitionLanguage,
			InterimResults: cfg.InterimResults,
			SmartFormat:    cfg.SmartFormat,
			Encoding:       "linear16",
			SampleRate:     cfg.SampleRate,
			Channels:       cfg.Channels,
		},
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
	}, nil)

	sessions := session.NewController(captureCtrl, manager, transcript.NewEngine(), meter, session.Config{})

	// HTTP server
	mux := http.NewServeMux()
	server.NewHandler(sessions).Register(mux)

	mux.HandleFunc("/health", observability.HealthCheckHandler())

	tokenCheck := func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.TokenEndpoint, nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		resp.Body.Close()
		return resp.StatusCode < http.StatusInternalServerError, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"token_endpoint":  tokenCheck,
		"capture_backend": capture.ProbeBackend,
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/session", cfg.Port)).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// End any active session before the process goes away so the microphone
	// and the recognizer connection are released cleanly.
	sessions.Reset()
	captureCtrl.Teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
