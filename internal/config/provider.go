package config

import (
	"context"
	"fmt"
	"os"
)

// SecretProvider is one source of configuration values. The loader never
// talks to a source directly; it goes through a provider chain so the same
// getString/getInt helpers work against env vars, mounted secret files, or
// anything else that implements this.
type SecretProvider interface {
	GetSecret(ctx context.Context, key string) (string, error)

	// Name identifies the source in log output
	Name() string

	// IsAvailable reports whether the source can be consulted at all,
	// e.g. whether the secrets mount exists
	IsAvailable(ctx context.Context) bool
}

// ChainProvider consults providers in order and returns the first non-empty
// value. An unavailable provider is skipped, not treated as a failure.
type ChainProvider struct {
	providers []SecretProvider
}

func NewChainProvider(providers ...SecretProvider) *ChainProvider {
	return &ChainProvider{providers: providers}
}

func (c *ChainProvider) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable(ctx) {
			continue
		}
		if value, err := p.GetSecret(ctx, key); err != nil {
			lastErr = err
		} else if value != "" {
			return value, nil
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("every configured source failed for %s: %w", key, lastErr)
	}
	return "", fmt.Errorf("no source holds a value for %s", key)
}

func (c *ChainProvider) Name() string {
	return "chain"
}

func (c *ChainProvider) IsAvailable(ctx context.Context) bool {
	for _, p := range c.providers {
		if p.IsAvailable(ctx) {
			return true
		}
	}
	return false
}

// EnvProvider reads values straight from the process environment. It sits
// last in the default chain as the source that is always present.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (e *EnvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

func (e *EnvProvider) Name() string {
	return "env"
}

func (e *EnvProvider) IsAvailable(ctx context.Context) bool {
	return true
}
