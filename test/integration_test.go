//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videolytics/query-service/internal/auth"
	"github.com/videolytics/query-service/internal/history"
	"github.com/videolytics/query-service/internal/llm"
	"github.com/videolytics/query-service/internal/service"
	"github.com/videolytics/query-service/internal/store"
)

// Integration tests verify end-to-end behavior through the HTTP surface.
// Run with: go test -tags=integration ./test/...

// fakeExecutor records the SQL the service executes and returns a fixed value
type fakeExecutor struct {
	lastQuery string
	value     string
}

func (f *fakeExecutor) ExecuteScalar(ctx context.Context, query string) (string, error) {
	f.lastQuery = query
	return f.value, nil
}

func (f *fakeExecutor) ExecuteQuery(ctx context.Context, query string) (*store.Result, error) {
	f.lastQuery = query
	return &store.Result{Columns: []string{"value"}, Rows: [][]string{{f.value}}}, nil
}

func (f *fakeExecutor) Ping(ctx context.Context) error { return nil }

// memoryHistory is an in-memory stand-in for the pgvector-backed store
type memoryHistory struct {
	records []history.Record
}

func (m *memoryHistory) Save(ctx context.Context, question, sqlText, source string, embedding []float32) error {
	m.records = append(m.records, history.Record{
		Question:  question,
		SQL:       sqlText,
		Source:    source,
		CreatedAt: time.Now(),
	})
	return nil
}

func (m *memoryHistory) FindSimilar(ctx context.Context, embedding []float32) ([]history.SimilarQuestion, error) {
	return nil, nil
}

func (m *memoryHistory) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

// newFakeOllamaServer returns an httptest server speaking the Ollama API
func newFakeOllamaServer(t *testing.T, sql string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"response": sql,
				"done":     true,
			})
		case "/api/embeddings":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"embedding": []float32{0.1, 0.2, 0.3},
			})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

type testEnv struct {
	router   *gin.Engine
	executor *fakeExecutor
	history  *memoryHistory
	token    string
}

func setupEnv(t *testing.T, modelSQL string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ollamaServer := newFakeOllamaServer(t, modelSQL)
	t.Cleanup(ollamaServer.Close)

	model := llm.NewCircuitBreakerClient(
		llm.NewOllamaClient(ollamaServer.URL, "llama3.2:3b"),
		"ollama-test",
		llm.DefaultCircuitBreakerConfig,
	)

	executor := &fakeExecutor{value: "42"}
	hist := &memoryHistory{}

	svc := service.New(model, executor, hist, rdb, service.Config{CacheTTL: time.Minute})

	authManager := auth.NewManager(auth.Config{
		JWTSecret: "integration-test-secret",
		JWTExpiry: time.Hour,
	})
	user, err := authManager.CreateUser("analyst", "analyst@example.com", "pa55word", []string{"user"})
	require.NoError(t, err)
	token, err := authManager.CreateJWTToken(user)
	require.NoError(t, err)

	return &testEnv{
		router:   svc.SetupRoutes(authManager, authManager.LoginHandler()),
		executor: executor,
		history:  hist,
		token:    token,
	}
}

func (e *testEnv) ask(t *testing.T, question string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"question": question})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAskEndToEndPatternPath(t *testing.T) {
	env := setupEnv(t, "")

	w := env.ask(t, "Сколько всего видео?")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp service.QuestionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SELECT COUNT(*) FROM videos;", resp.SQL)
	assert.Equal(t, service.SourcePattern, resp.Source)
	assert.Equal(t, "42", resp.Answer)
	assert.False(t, resp.CacheHit)
	assert.Equal(t, "SELECT COUNT(*) FROM videos;", env.executor.lastQuery)
}

func TestAskEndToEndCacheHit(t *testing.T) {
	env := setupEnv(t, "")

	first := env.ask(t, "Сколько всего видео?")
	require.Equal(t, http.StatusOK, first.Code)

	env.executor.lastQuery = ""
	second := env.ask(t, "Сколько всего видео?")
	require.Equal(t, http.StatusOK, second.Code)

	var resp service.QuestionResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)
	assert.Empty(t, env.executor.lastQuery, "cached answer must not hit the executor")
}

func TestAskEndToEndModelFallback(t *testing.T) {
	env := setupEnv(t, "SELECT AVG(delta_views_count) FROM video_snapshots;")

	w := env.ask(t, "какой средний почасовой прилив зрителей?")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp service.QuestionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, service.SourceModel, resp.Source)
	assert.Equal(t, "SELECT AVG(delta_views_count) FROM video_snapshots;", resp.SQL)
	assert.Len(t, env.history.records, 1, "model answers are remembered")
}

func TestAskEndToEndRejectsUnsafeModelSQL(t *testing.T) {
	env := setupEnv(t, "DROP TABLE videos;")

	w := env.ask(t, "удали пожалуйста все видео")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "SAFETY_VALIDATION")
	assert.Empty(t, env.executor.lastQuery)
}

func TestAskRequiresAuthentication(t *testing.T) {
	env := setupEnv(t, "")

	body := `{"question":"Сколько всего видео?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginThenAsk(t *testing.T) {
	env := setupEnv(t, "")

	loginBody := `{"username":"analyst","password":"pa55word"}`
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(loginBody))
	loginReq.Header.Set("Content-Type", "application/json")
	loginW := httptest.NewRecorder()
	env.router.ServeHTTP(loginW, loginReq)
	require.Equal(t, http.StatusOK, loginW.Code)

	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(loginW.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	body := `{"question":"Сколько всего видео?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := setupEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "status")
}

func TestResolveEndpoint(t *testing.T) {
	env := setupEnv(t, "")

	body := `{
		"metric": "DELTA_VIEWS",
		"aggregation": "SUM",
		"filters": [
			{"column": "creator_id", "comparator": "=", "value": "aaaabbbbccccddddeeeeffff00001111"},
			{"column": "date(created_at)", "comparator": "=", "value": "2025-11-28"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "JOIN videos ON video_snapshots.video_id = videos.id")
}
