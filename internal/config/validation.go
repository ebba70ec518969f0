package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation error(s):\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are any validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate performs comprehensive validation on the configuration
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateOllama()...)
	errors = append(errors, c.validateAuth()...)
	errors = append(errors, c.validateServer()...)
	errors = append(errors, c.validateQuery()...)

	if errors.HasErrors() {
		return errors
	}

	return nil
}

func (c *Config) validateDatabase() []ValidationError {
	var errors []ValidationError

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Host",
			Message: "database host is required",
		})
	}

	if c.Database.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Port",
			Message: "database port is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Database",
			Message: "database name is required",
		})
	}

	if c.Database.Username == "" {
		errors = append(errors, ValidationError{
			Field:   "Database.Username",
			Message: "database username is required",
		})
	}

	return errors
}

func (c *Config) validateRedis() []ValidationError {
	var errors []ValidationError

	if c.Redis.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "Redis.Addr",
			Message: "redis address is required",
		})
	}

	return errors
}

func (c *Config) validateOllama() []ValidationError {
	var errors []ValidationError

	if !c.Ollama.Enabled {
		return errors
	}

	if c.Ollama.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "Ollama.URL",
			Message: "Ollama URL is required when the model fallback is enabled",
		})
	}

	if c.Ollama.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "Ollama.Model",
			Message: "Ollama model is required when the model fallback is enabled",
		})
	}

	if c.Ollama.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Ollama.Timeout",
			Message: "Ollama timeout must be positive",
		})
	}

	return errors
}

func (c *Config) validateAuth() []ValidationError {
	var errors []ValidationError

	if c.Auth.JWTSecret == "" && !c.Auth.AllowAnonymous {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret is required unless anonymous access is allowed",
		})
	}

	if c.Auth.JWTExpiry <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTExpiry",
			Message: "JWT expiry must be positive",
		})
	}

	return errors
}

func (c *Config) validateServer() []ValidationError {
	var errors []ValidationError

	if c.Server.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "Server.Port",
			Message: "server port is required",
		})
	}

	validModes := []string{"debug", "release", "test"}
	isValid := false
	for _, mode := range validModes {
		if c.Server.GinMode == mode {
			isValid = true
			break
		}
	}
	if !isValid {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: fmt.Sprintf("invalid gin mode: %s (must be 'debug', 'release', or 'test')", c.Server.GinMode),
		})
	}

	return errors
}

func (c *Config) validateQuery() []ValidationError {
	var errors []ValidationError

	if c.Query.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.Timeout",
			Message: "query timeout must be positive",
		})
	}

	if c.Query.CacheTTL < 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.CacheTTL",
			Message: "cache TTL must be non-negative",
		})
	}

	if c.Query.MaxQueryLength <= 0 {
		errors = append(errors, ValidationError{
			Field:   "Query.MaxQueryLength",
			Message: "max query length must be positive",
		})
	}

	return errors
}

// ValidateProduction performs additional validation for production environments.
// It checks for insecure default values that should not be used in production.
func (c *Config) ValidateProduction() error {
	var errors ValidationErrors

	if c.Database.Password == "" || c.Database.Password == "changeme" {
		errors = append(errors, ValidationError{
			Field:   "Database.Password",
			Message: "production deployment must not use default or empty database password",
		})
	}

	insecureJWTSecrets := []string{
		"",
		"your-secret-key-change-in-production",
		"change-this-in-production",
		"secret",
		"jwt-secret",
	}
	for _, insecure := range insecureJWTSecrets {
		if c.Auth.JWTSecret == insecure {
			errors = append(errors, ValidationError{
				Field:   "Auth.JWTSecret",
				Message: "production deployment must not use default or insecure JWT secret",
			})
			break
		}
	}

	// JWT secret should be at least 32 characters
	if len(c.Auth.JWTSecret) < 32 {
		errors = append(errors, ValidationError{
			Field:   "Auth.JWTSecret",
			Message: "JWT secret should be at least 32 characters for production use",
		})
	}

	if c.Server.GinMode != "release" {
		errors = append(errors, ValidationError{
			Field:   "Server.GinMode",
			Message: "production deployment should use 'release' mode",
		})
	}

	if c.Auth.AllowAnonymous {
		errors = append(errors, ValidationError{
			Field:   "Auth.AllowAnonymous",
			Message: "production deployment should not allow anonymous access",
		})
	}

	if errors.HasErrors() {
		return errors
	}

	return nil
}

// IsProduction determines if the current environment is production
// based on the GinMode setting
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// ValidateWithContext validates configuration and runs production checks if appropriate
func (c *Config) ValidateWithContext() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.IsProduction() {
		if err := c.ValidateProduction(); err != nil {
			return fmt.Errorf("production validation failed: %w", err)
		}
	}

	return nil
}
