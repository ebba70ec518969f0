// Package errors provides typed error values with helpful context and suggestions
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Resolution errors (intent -> SQL)
	ErrCodeUnsupportedMetric     ErrorCode = "UNSUPPORTED_METRIC"
	ErrCodeInvalidJoinPlan       ErrorCode = "INVALID_JOIN_PLAN"
	ErrCodeInvalidRange          ErrorCode = "INVALID_RANGE"
	ErrCodeMissingDistinctColumn ErrorCode = "MISSING_DISTINCT_COLUMN"
	ErrCodeConflictingFilters    ErrorCode = "CONFLICTING_FILTERS"

	// Question processing errors
	ErrCodeUnrecognizedQuestion ErrorCode = "UNRECOGNIZED_QUESTION"
	ErrCodeSQLGeneration        ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeSafetyValidation     ErrorCode = "SAFETY_VALIDATION_FAILED"
	ErrCodeEmbeddingGeneration  ErrorCode = "EMBEDDING_GENERATION_FAILED"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY_FAILED"

	// Authentication errors
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeTokenCreation      ErrorCode = "TOKEN_CREATION_FAILED"
	ErrCodeNotAuthenticated   ErrorCode = "NOT_AUTHENTICATED"
	ErrCodeInsufficientPerms  ErrorCode = "INSUFFICIENT_PERMISSIONS"

	// Input validation errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED_FIELD"

	// Cache errors
	ErrCodeCacheRead  ErrorCode = "CACHE_READ_FAILED"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE_FAILED"
)

// QueryError represents an error with additional context and helpful information
type QueryError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *QueryError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))
	if e.Details != "" {
		sb.WriteString(fmt.Sprintf(": %s", e.Details))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(" (cause: %v)", e.Cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain unwrapping
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// UserMessage returns a user-friendly error message with suggestions
func (e *QueryError) UserMessage() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString(fmt.Sprintf("\n\nDetails: %s", e.Details))
	}

	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\nSuggestion: %s", e.Suggestion))
	}

	return sb.String()
}

// New creates a new QueryError
func New(code ErrorCode, message string) *QueryError {
	return &QueryError{
		Code:     code,
		Message:  message,
		Metadata: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with typed context
func Wrap(err error, code ErrorCode, message string) *QueryError {
	return &QueryError{
		Code:     code,
		Message:  message,
		Cause:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithDetails adds detailed information about the error
func (e *QueryError) WithDetails(details string) *QueryError {
	e.Details = details
	return e
}

// WithSuggestion adds a suggestion on how to fix the error
func (e *QueryError) WithSuggestion(suggestion string) *QueryError {
	e.Suggestion = suggestion
	return e
}

// WithMetadata adds additional metadata to the error
func (e *QueryError) WithMetadata(key string, value interface{}) *QueryError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HasCode reports whether err is a QueryError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	qe, ok := err.(*QueryError)
	return ok && qe.Code == code
}

// Common error constructors with pre-configured messages

// NewUnsupportedMetricError creates an error for metric/aggregation combinations
// outside the fixed mapping table
func NewUnsupportedMetricError(metric, aggregation string) *QueryError {
	return New(ErrCodeUnsupportedMetric, "Metric and aggregation combination is not supported").
		WithDetails(fmt.Sprintf("No rule maps metric %q with aggregation %q to a SQL expression", metric, aggregation)).
		WithSuggestion("Ask about totals (views, likes), hourly growth, video counts, snapshot counts, or distinct days.").
		WithMetadata("metric", metric).
		WithMetadata("aggregation", aggregation)
}

// NewInvalidJoinPlanError creates an error for join plans that contradict the
// computed metric/filter requirements
func NewInvalidJoinPlanError(detail string) *QueryError {
	return New(ErrCodeInvalidJoinPlan, "Requested join plan contradicts the metric").
		WithDetails(detail).
		WithSuggestion("Do not set the creator-join flag yourself; the resolver derives it from the metric and filters.")
}

// NewInvalidRangeError creates an error for inverted or malformed ranges
func NewInvalidRangeError(detail string) *QueryError {
	return New(ErrCodeInvalidRange, "Range filter bounds are invalid").
		WithDetails(detail).
		WithSuggestion("Ranges are inclusive and the lower bound must not exceed the upper bound.")
}

// NewMissingDistinctColumnError creates an error for distinct counts with no column
func NewMissingDistinctColumnError() *QueryError {
	return New(ErrCodeMissingDistinctColumn, "Distinct day count requires a timestamp column").
		WithDetails("The intent asks for COUNT(DISTINCT DATE(...)) but names no column to take the date of").
		WithSuggestion("Set distinct_on to video_created_at (publication days) or created_at (snapshot days).")
}

// NewConflictingFiltersError creates an error for filters on tables the metric never reads
func NewConflictingFiltersError(column, table string) *QueryError {
	return New(ErrCodeConflictingFilters, "Filter references a table the metric does not read").
		WithDetails(fmt.Sprintf("Filter column %q lives on %q, which this metric's statement never touches", column, table)).
		WithSuggestion("Drop the filter or ask about a metric stored in the same table as the filter column.").
		WithMetadata("column", column).
		WithMetadata("table", table)
}

// NewUnrecognizedQuestionError creates an error for questions the parser cannot map
func NewUnrecognizedQuestionError(question string) *QueryError {
	return New(ErrCodeUnrecognizedQuestion, "Could not understand the question").
		WithDetails(fmt.Sprintf("No supported metric was recognized in: %q", question)).
		WithSuggestion("Try questions like 'Сколько всего видео?', 'На сколько просмотров выросли все видео 2025-11-28?' or 'Сумма лайков всех видео'.")
}

// NewSQLGenerationError creates an error for LLM fallback failures
func NewSQLGenerationError(err error) *QueryError {
	return Wrap(err, ErrCodeSQLGeneration, "Failed to generate SQL for the question").
		WithDetails("The language model fallback could not produce a usable SELECT statement").
		WithSuggestion("Rephrase the question or ask about one of the supported statistics.").
		WithMetadata("retryable", true)
}

// NewSafetyValidationError creates an error for statements rejected by the SQL validator
func NewSafetyValidationError(reason string) *QueryError {
	return New(ErrCodeSafetyValidation, "Generated SQL failed safety validation").
		WithDetails(reason).
		WithSuggestion("Only read-only SELECT statements against the video analytics schema are allowed.")
}

// NewEmbeddingGenerationError creates an error for embedding failures
func NewEmbeddingGenerationError(err error) *QueryError {
	return Wrap(err, ErrCodeEmbeddingGeneration, "Failed to generate question embedding").
		WithDetails("The language model could not embed the question for similarity search").
		WithSuggestion("This is typically a temporary issue. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewInvalidCredentialsError creates an error for authentication failures
func NewInvalidCredentialsError() *QueryError {
	return New(ErrCodeInvalidCredentials, "Invalid username or password").
		WithDetails("Authentication failed with the provided credentials").
		WithSuggestion("Please check your username and password and try again.")
}

// NewTokenCreationError creates an error for token creation failures
func NewTokenCreationError(err error) *QueryError {
	return Wrap(err, ErrCodeTokenCreation, "Failed to create authentication token").
		WithDetails("The system was unable to generate an authentication token").
		WithSuggestion("Please try logging in again. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}

// NewNotAuthenticatedError creates an error for unauthenticated requests
func NewNotAuthenticatedError() *QueryError {
	return New(ErrCodeNotAuthenticated, "Authentication required").
		WithDetails("This endpoint requires authentication").
		WithSuggestion("Log in via /api/v1/auth/login, or include a valid API key in the 'X-API-Key' header.")
}

// NewInvalidInputError creates an error for invalid input
func NewInvalidInputError(field string, reason string) *QueryError {
	return New(ErrCodeInvalidInput, "Invalid input").
		WithDetails(fmt.Sprintf("Field '%s' is invalid: %s", field, reason)).
		WithSuggestion("Please check the API documentation for the expected format and try again.")
}

// NewDatabaseConnectionError creates an error for database connection failures
func NewDatabaseConnectionError(err error) *QueryError {
	return Wrap(err, ErrCodeDatabaseConnection, "Database connection failed").
		WithDetails("Unable to connect to the analytics database").
		WithSuggestion("The service may be experiencing issues. Please try again in a moment.").
		WithMetadata("retryable", true)
}

// NewDatabaseQueryError creates an error for database query failures
func NewDatabaseQueryError(err error, operation string) *QueryError {
	return Wrap(err, ErrCodeDatabaseQuery, "Database query failed").
		WithDetails(fmt.Sprintf("Failed to execute database operation: %s", operation)).
		WithSuggestion("This is an internal server error. If the problem persists, contact support.").
		WithMetadata("retryable", true)
}
