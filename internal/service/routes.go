package service

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/videolytics/query-service/internal/errors"
	"github.com/videolytics/query-service/internal/intent"
	"github.com/videolytics/query-service/internal/observability"
)

// AuthMiddleware is an interface for authentication middleware
type AuthMiddleware interface {
	Middleware() gin.HandlerFunc
}

// SetupRoutes configures HTTP routes. The auth middleware and login handler
// are optional; without them every endpoint is public.
func (s *Service) SetupRoutes(authMiddleware AuthMiddleware, loginHandler gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	logger := observability.NewLogger("http")
	r.Use(observability.RecoveryMiddleware(logger))
	r.Use(observability.RequestLoggingMiddleware(logger))
	r.Use(observability.CORSMiddleware())

	// Public endpoints
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", s.handleMetrics)

	if loginHandler != nil {
		r.POST("/api/v1/auth/login", loginHandler)
	}

	api := r.Group("/api/v1")
	if authMiddleware != nil {
		api.Use(authMiddleware.Middleware())
	}
	{
		api.POST("/ask", s.handleAsk)
		api.POST("/resolve", s.handleResolve)
		api.GET("/history", s.handleHistory)
	}

	return r
}

func (s *Service) handleAsk(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(apperrors.NewInvalidInputError("request body", err.Error())))
		return
	}

	response, err := s.AskQuestion(c.Request.Context(), &req)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Service) handleResolve(c *gin.Context) {
	var in intent.Intent
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(apperrors.NewInvalidInputError("request body", err.Error())))
		return
	}

	stmt, err := s.ResolveIntent(c.Request.Context(), in)
	if err != nil {
		c.JSON(getErrorStatusCode(err), formatErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sql":    stmt.Text,
		"tables": stmt.Tables,
		"joined": stmt.Joined,
	})
}

func (s *Service) handleHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusOK, gin.H{"questions": []interface{}{}, "count": 0})
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	records, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, formatErrorResponse(apperrors.NewDatabaseQueryError(err, "fetching question history")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"questions": records,
		"count":     len(records),
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	if s.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "query-service",
		})
		return
	}

	response := s.healthChecker.GetHealthResponse(c.Request.Context())
	statusCode := http.StatusOK
	if response.Status == observability.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (s *Service) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics": observability.GetGlobalMetrics().GetAll(),
	})
}

// formatErrorResponse formats an error into a user-facing response body
func formatErrorResponse(err error) gin.H {
	qe, ok := err.(*apperrors.QueryError)
	if !ok {
		return gin.H{
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": err.Error(),
			},
		}
	}

	body := gin.H{
		"code":    qe.Code,
		"message": qe.Message,
	}
	if qe.Details != "" {
		body["details"] = qe.Details
	}
	if qe.Suggestion != "" {
		body["suggestion"] = qe.Suggestion
	}
	if len(qe.Metadata) > 0 {
		body["metadata"] = qe.Metadata
	}

	return gin.H{"error": body}
}

// getErrorStatusCode maps typed errors to HTTP status codes
func getErrorStatusCode(err error) int {
	qe, ok := err.(*apperrors.QueryError)
	if !ok {
		return http.StatusInternalServerError
	}

	switch qe.Code {
	case apperrors.ErrCodeUnsupportedMetric,
		apperrors.ErrCodeInvalidJoinPlan,
		apperrors.ErrCodeInvalidRange,
		apperrors.ErrCodeMissingDistinctColumn,
		apperrors.ErrCodeConflictingFilters,
		apperrors.ErrCodeUnrecognizedQuestion,
		apperrors.ErrCodeSafetyValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired:
		return http.StatusBadRequest
	case apperrors.ErrCodeInvalidCredentials, apperrors.ErrCodeNotAuthenticated:
		return http.StatusUnauthorized
	case apperrors.ErrCodeInsufficientPerms:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
