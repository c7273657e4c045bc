// Package auth fetches single-use session credentials for the recognition
// service. Keys are minted by an external endpoint, used for exactly one
// connection attempt, and never cached.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicscribe/dictation-gateway/internal/config"
	"github.com/clinicscribe/dictation-gateway/internal/observability"
	"github.com/clinicscribe/dictation-gateway/internal/resilience"
)

// TokenClient fetches session keys from the credential endpoint.
type TokenClient struct {
	endpoint       string
	secret         string
	httpClient     *http.Client
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
}

// tokenResponse is the credential endpoint's reply.
type tokenResponse struct {
	Key       string `json:"key"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// NewTokenClient creates a token client from service configuration.
func NewTokenClient(cfg *config.Config) *TokenClient {
	return &TokenClient{
		endpoint: cfg.TokenEndpoint,
		secret:   cfg.TokenSecret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       cfg.TokenRetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.TokenRetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			"token-endpoint",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
	}
}

// FetchSessionKey requests one fresh single-use key. Transient HTTP failures
// are retried with backoff; repeated failures open the circuit so a flapping
// credential endpoint fails fast instead of stalling session starts.
func (c *TokenClient) FetchSessionKey(ctx context.Context) (string, error) {
	start := time.Now()

	var key string
	err := c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func() error {
			fetched, err := c.fetchOnce(ctx)
			if err != nil {
				return err
			}
			key = fetched
			return nil
		}, c.retryConfig, func(err error) bool {
			return resilience.IsRetryable(err) || resilience.IsRetryableNetworkError(err)
		})
	})

	observability.UpdateCircuitBreakerState("token-endpoint", int(c.circuitBreaker.GetState()))
	observability.RecordTokenFetch(time.Since(start), err == nil)
	if err != nil {
		observability.IncrementCircuitBreakerFailures("token-endpoint")
		return "", fmt.Errorf("fetch session key: %w", err)
	}
	return key, nil
}

func (c *TokenClient) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("token endpoint returned %d", resp.StatusCode)
		// 5xx responses are worth another attempt; auth failures are not.
		if resp.StatusCode >= 500 {
			return "", resilience.NewRetryableError(err)
		}
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.Key == "" {
		return "", fmt.Errorf("token endpoint returned an empty key")
	}
	return tr.Key, nil
}
