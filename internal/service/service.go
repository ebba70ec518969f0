// Package service orchestrates question answering: cache lookup, pattern
// resolution, model fallback, safety validation, and query execution.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/videolytics/query-service/internal/errors"
	"github.com/videolytics/query-service/internal/history"
	"github.com/videolytics/query-service/internal/intent"
	"github.com/videolytics/query-service/internal/llm"
	"github.com/videolytics/query-service/internal/observability"
	"github.com/videolytics/query-service/internal/parser"
	"github.com/videolytics/query-service/internal/resolver"
	"github.com/videolytics/query-service/internal/store"
)

// Answer sources
const (
	SourcePattern = "pattern"
	SourceModel   = "model"
	SourceHistory = "history"
)

// QuestionRequest is an incoming natural language question
type QuestionRequest struct {
	Question string `json:"question" binding:"required"`
}

// QuestionResponse is the answer to a question
type QuestionResponse struct {
	Question       string        `json:"question"`
	SQL            string        `json:"sql"`
	Source         string        `json:"source"`
	Answer         string        `json:"answer,omitempty"`
	Result         *store.Result `json:"result,omitempty"`
	CacheHit       bool          `json:"cache_hit"`
	ProcessingTime int64         `json:"processing_time_ms"`
}

// Executor runs validated analytics SQL
type Executor interface {
	ExecuteScalar(ctx context.Context, query string) (string, error)
	ExecuteQuery(ctx context.Context, query string) (*store.Result, error)
	Ping(ctx context.Context) error
}

// HistoryStore persists answered questions for similarity reuse
type HistoryStore interface {
	Save(ctx context.Context, question, sqlText, source string, embedding []float32) error
	FindSimilar(ctx context.Context, embedding []float32) ([]history.SimilarQuestion, error)
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

// Config holds orchestration settings
type Config struct {
	CacheTTL time.Duration
}

// Service is the question answering service
type Service struct {
	parser        *parser.Parser
	model         llm.Client
	executor      Executor
	history       HistoryStore
	cache         *redis.Client
	safety        *SafetyChecker
	logger        *observability.Logger
	healthChecker *observability.HealthChecker
	cacheTTL      time.Duration
}

// New creates a question answering service. The model client, history store,
// and cache are optional; the pattern path works without them.
func New(model llm.Client, executor Executor, historyStore HistoryStore, cache *redis.Client, config Config) *Service {
	if config.CacheTTL == 0 {
		config.CacheTTL = 5 * time.Minute
	}

	return &Service{
		parser:   parser.New(),
		model:    model,
		executor: executor,
		history:  historyStore,
		cache:    cache,
		safety:   NewSafetyChecker(),
		logger:   observability.NewLogger("query-service"),
		cacheTTL: config.CacheTTL,
	}
}

// SetHealthChecker sets the health checker used by the health endpoint
func (s *Service) SetHealthChecker(hc *observability.HealthChecker) {
	s.healthChecker = hc
}

// AskQuestion answers a natural language question
func (s *Service) AskQuestion(ctx context.Context, req *QuestionRequest) (*QuestionResponse, error) {
	start := time.Now()

	var response *QuestionResponse
	var processingErr error
	var errorType string

	defer func() {
		duration := time.Since(start)
		success := processingErr == nil
		cached := response != nil && response.CacheHit
		observability.RecordQuestionMetrics(duration, success, cached, errorType)

		if processingErr != nil {
			s.logger.Error(ctx, "Question processing failed", processingErr, map[string]interface{}{
				"question":    req.Question,
				"duration_ms": duration.Milliseconds(),
				"error_type":  errorType,
			})
		} else {
			s.logger.Info(ctx, "Question answered", map[string]interface{}{
				"question":    req.Question,
				"source":      response.Source,
				"duration_ms": duration.Milliseconds(),
				"cache_hit":   cached,
			})
		}
	}()

	if cached, err := s.getCachedAnswer(ctx, req.Question); err == nil {
		cached.CacheHit = true
		cached.ProcessingTime = time.Since(start).Milliseconds()
		response = cached
		return cached, nil
	}

	sqlText, source, err := s.translateQuestion(ctx, req.Question)
	if err != nil {
		errorType = errorTypeOf(err)
		processingErr = err
		return nil, err
	}

	if err := s.safety.ValidateQuery(sqlText); err != nil {
		errorType = "safety_validation"
		processingErr = err
		observability.GetGlobalMetrics().Inc(observability.MetricQuestionSafetyViolation, map[string]string{
			"source": source,
		})
		return nil, err
	}

	observability.GetGlobalMetrics().Inc(observability.MetricQuestionResolvedBy, map[string]string{
		"source": source,
	})

	response = &QuestionResponse{
		Question: req.Question,
		SQL:      sqlText,
		Source:   source,
	}

	if s.executor != nil {
		result, err := s.executeSQL(ctx, sqlText)
		if err != nil {
			errorType = "database_query"
			processingErr = err
			return nil, err
		}
		response.Result = result
		if len(result.Rows) == 1 && len(result.Rows[0]) == 1 {
			response.Answer = result.Rows[0][0]
		}
	}

	// Model answers are worth remembering for similarity reuse
	if source == SourceModel {
		s.rememberAnswer(ctx, req.Question, sqlText, source)
	}

	response.ProcessingTime = time.Since(start).Milliseconds()

	if err := s.cacheAnswer(ctx, req.Question, response); err != nil {
		s.logger.Warn(ctx, "Failed to cache answer", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return response, nil
}

// ResolveIntent compiles a structured intent into SQL without executing it
func (s *Service) ResolveIntent(ctx context.Context, in intent.Intent) (*resolver.Statement, error) {
	stmt, err := resolver.Resolve(in)
	if err != nil {
		s.logger.Warn(ctx, "Intent resolution failed", map[string]interface{}{
			"metric": string(in.Metric),
			"error":  err.Error(),
		})
		return nil, err
	}
	return stmt, nil
}

// translateQuestion turns a question into SQL through the pattern path,
// falling back to history similarity and then the model for questions the
// patterns do not cover
func (s *Service) translateQuestion(ctx context.Context, question string) (string, string, error) {
	in, err := s.parser.Parse(question)
	if err == nil {
		stmt, resolveErr := resolver.Resolve(*in)
		if resolveErr != nil {
			// A parsed intent that fails resolution is a hard error; the
			// model must not get a chance to guess around the rules.
			return "", "", resolveErr
		}
		return stmt.Text, SourcePattern, nil
	}

	if !apperrors.HasCode(err, apperrors.ErrCodeUnrecognizedQuestion) {
		return "", "", err
	}

	if s.model == nil {
		return "", "", err
	}

	// Unrecognized question: try previously answered similar questions first
	embedding := s.embedQuestion(ctx, question)
	if embedding != nil && s.history != nil {
		if matches, histErr := s.history.FindSimilar(ctx, embedding); histErr == nil && len(matches) > 0 {
			return matches[0].SQL, SourceHistory, nil
		}
	}

	modelStart := time.Now()
	modelResp, modelErr := s.model.GenerateSQL(ctx, question)
	observability.RecordModelMetrics("generate_sql", time.Since(modelStart), modelErr)
	if modelErr != nil {
		return "", "", apperrors.NewSQLGenerationError(modelErr)
	}

	return modelResp.SQL, SourceModel, nil
}

func (s *Service) executeSQL(ctx context.Context, sqlText string) (*store.Result, error) {
	dbStart := time.Now()
	result, err := s.executor.ExecuteQuery(ctx, sqlText)
	observability.RecordDBMetrics("analytics_query", time.Since(dbStart), err)
	return result, err
}

// embedQuestion generates an embedding, returning nil on failure. Embeddings
// are an optimization; their absence never fails a question.
func (s *Service) embedQuestion(ctx context.Context, question string) []float32 {
	start := time.Now()
	embedding, err := s.model.GetEmbedding(ctx, question)
	observability.RecordModelMetrics("embedding", time.Since(start), err)
	if err != nil {
		s.logger.Warn(ctx, "Failed to embed question", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return embedding
}

func (s *Service) rememberAnswer(ctx context.Context, question, sqlText, source string) {
	if s.history == nil {
		return
	}

	embedding := s.embedQuestion(ctx, question)
	if embedding == nil {
		return
	}

	if err := s.history.Save(ctx, question, sqlText, source, embedding); err != nil {
		s.logger.Warn(ctx, "Failed to store question history", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Service) getCachedAnswer(ctx context.Context, question string) (*QuestionResponse, error) {
	if s.cache == nil {
		return nil, apperrors.New(apperrors.ErrCodeCacheRead, "cache is not configured")
	}

	key := cacheKey(question)
	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var response QuestionResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		return nil, err
	}

	return &response, nil
}

func (s *Service) cacheAnswer(ctx context.Context, question string, response *QuestionResponse) error {
	if s.cache == nil {
		return nil
	}

	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return s.cache.Set(ctx, cacheKey(question), data, s.cacheTTL).Err()
}

func cacheKey(question string) string {
	return fmt.Sprintf("question:%s", question)
}

// errorTypeOf maps typed errors onto metric labels
func errorTypeOf(err error) string {
	if qe, ok := err.(*apperrors.QueryError); ok {
		return string(qe.Code)
	}
	return "internal"
}
