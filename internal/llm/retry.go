package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig defines retry behavior for Ollama calls
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig provides sensible defaults for a local model server
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// sendGenerateWithRetry wraps sendGenerate with retry logic
func (c *OllamaClient) sendGenerateWithRetry(ctx context.Context, request generateRequest) (*generateResponse, error) {
	config := DefaultRetryConfig
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		response, err := c.sendGenerate(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}

		// Last attempt - don't wait, just return the error
		if attempt == config.MaxRetries {
			break
		}

		delay := calculateBackoff(attempt, config.BaseDelay, config.MaxDelay)

		select {
		case <-time.After(delay):
			continue
		case <-ctx.Done():
			return nil, fmt.Errorf("request cancelled during retry: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// isRetryableError determines if an error should be retried
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()

	// Retry server errors and overload (429, 5xx)
	if strings.Contains(errMsg, "API error 429") ||
		strings.Contains(errMsg, "API error 500") ||
		strings.Contains(errMsg, "API error 502") ||
		strings.Contains(errMsg, "API error 503") ||
		strings.Contains(errMsg, "API error 504") {
		return true
	}

	// Retry timeouts. Local models can be slow on a cold start
	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") {
		return true
	}

	// Retry connection errors
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "EOF") {
		return true
	}

	// Don't retry bad requests (unknown model, malformed payload)
	if strings.Contains(errMsg, "API error 400") ||
		strings.Contains(errMsg, "API error 404") {
		return false
	}

	// Default: don't retry unknown errors
	return false
}

// calculateBackoff calculates the delay before the next retry attempt
// Uses exponential backoff with jitter to avoid thundering herd
func calculateBackoff(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt))) * baseDelay

	if delay > maxDelay {
		delay = maxDelay
	}

	// Jitter: random factor between 0.5 and 1.5
	jitter := 0.5 + rand.Float64()
	delay = time.Duration(float64(delay) * jitter)

	return delay
}
