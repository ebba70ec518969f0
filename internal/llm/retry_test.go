package llm

import (
	"testing"
	"time"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		expected bool
	}{
		{
			name:     "overload error should be retryable",
			errMsg:   "API error 429: too many requests",
			expected: true,
		},
		{
			name:     "500 error should be retryable",
			errMsg:   "API error 500: internal server error",
			expected: true,
		},
		{
			name:     "503 error should be retryable",
			errMsg:   "API error 503: model loading",
			expected: true,
		},
		{
			name:     "timeout should be retryable",
			errMsg:   "request timeout exceeded",
			expected: true,
		},
		{
			name:     "deadline exceeded should be retryable",
			errMsg:   "context deadline exceeded",
			expected: true,
		},
		{
			name:     "connection refused should be retryable",
			errMsg:   "connection refused by server",
			expected: true,
		},
		{
			name:     "400 error should not be retryable",
			errMsg:   "API error 400: invalid request",
			expected: false,
		},
		{
			name:     "unknown model should not be retryable",
			errMsg:   "API error 404: model not found",
			expected: false,
		},
		{
			name:     "unknown error should not be retryable",
			errMsg:   "something unexpected happened",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &testError{msg: tt.errMsg}
			result := isRetryableError(err)
			if result != tt.expected {
				t.Errorf("isRetryableError() = %v, expected %v for error: %s", result, tt.expected, tt.errMsg)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	baseDelay := 100 * time.Millisecond
	maxDelay := 5 * time.Second

	tests := []struct {
		name        string
		attempt     int
		expectedMin time.Duration
		expectedMax time.Duration
	}{
		{
			name:        "first retry (attempt 0)",
			attempt:     0,
			expectedMin: 50 * time.Millisecond,
			expectedMax: 150 * time.Millisecond,
		},
		{
			name:        "second retry (attempt 1)",
			attempt:     1,
			expectedMin: 100 * time.Millisecond,
			expectedMax: 300 * time.Millisecond,
		},
		{
			name:        "third retry (attempt 2)",
			attempt:     2,
			expectedMin: 200 * time.Millisecond,
			expectedMax: 600 * time.Millisecond,
		},
		{
			name:        "large attempt should cap at maxDelay",
			attempt:     10,
			expectedMin: 2500 * time.Millisecond,
			expectedMax: 7500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Run multiple times to account for jitter
			for i := 0; i < 10; i++ {
				delay := calculateBackoff(tt.attempt, baseDelay, maxDelay)

				if delay < tt.expectedMin {
					t.Errorf("calculateBackoff() = %v, expected >= %v", delay, tt.expectedMin)
				}
				if delay > tt.expectedMax {
					t.Errorf("calculateBackoff() = %v, expected <= %v", delay, tt.expectedMax)
				}
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	if DefaultRetryConfig.MaxRetries != 3 {
		t.Errorf("DefaultRetryConfig.MaxRetries = %d, expected 3", DefaultRetryConfig.MaxRetries)
	}
	if DefaultRetryConfig.BaseDelay != 100*time.Millisecond {
		t.Errorf("DefaultRetryConfig.BaseDelay = %v, expected 100ms", DefaultRetryConfig.BaseDelay)
	}
	if DefaultRetryConfig.MaxDelay != 5*time.Second {
		t.Errorf("DefaultRetryConfig.MaxDelay = %v, expected 5s", DefaultRetryConfig.MaxDelay)
	}
}

// testError is a simple error type for testing
type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
