package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerateSQL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:3b", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "video_snapshots")
		assert.InDelta(t, 0.1, req.Options["temperature"], 0.001)

		json.NewEncoder(w).Encode(generateResponse{
			Response: "Вот запрос:\n```sql\nSELECT COUNT(*) FROM videos;\n```",
			Done:     true,
		})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	response, err := client.GenerateSQL(context.Background(), "сколько всего видео?")

	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM videos;", response.SQL)
	assert.Greater(t, response.Confidence, 0.0)
}

func TestOllamaGenerateSQLNoSelect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "Не могу построить запрос", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	_, err := client.GenerateSQL(context.Background(), "что-то странное")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SELECT")
}

func TestOllamaGenerateSQLServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	_, err := client.GenerateSQL(context.Background(), "вопрос")

	assert.Error(t, err)
	// 400 is not retryable, so exactly one call
	assert.Equal(t, 1, calls)
}

func TestOllamaGenerateSQLRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "SELECT COUNT(*) FROM videos;", Done: true})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	response, err := client.GenerateSQL(context.Background(), "сколько всего видео?")

	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM videos;", response.SQL)
	assert.Equal(t, 3, calls)
}

func TestOllamaGetEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "сколько всего видео?", req.Prompt)

		json.NewEncoder(w).Encode(embeddingResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	embedding, err := client.GetEmbedding(context.Background(), "сколько всего видео?")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embedding)
}

func TestOllamaGetEmbeddingEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{Embedding: nil})
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	_, err := client.GetEmbedding(context.Background(), "текст")

	assert.Error(t, err)
}

func TestOllamaPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "")
	assert.NoError(t, client.Ping(context.Background()))
}

func TestOllamaDefaults(t *testing.T) {
	client := NewOllamaClient("", "")
	assert.Equal(t, DefaultOllamaURL, client.baseURL)
	assert.Equal(t, DefaultOllamaModel, client.model)
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		expected string
	}{
		{
			name:     "bare statement",
			answer:   "SELECT COUNT(*) FROM videos;",
			expected: "SELECT COUNT(*) FROM videos;",
		},
		{
			name:     "fenced with prose",
			answer:   "Вот SQL запрос:\n```sql\nSELECT SUM(delta_views_count) FROM video_snapshots;\n```\nГотово.",
			expected: "SELECT SUM(delta_views_count) FROM video_snapshots;",
		},
		{
			name:     "multiline statement",
			answer:   "SELECT COUNT(*)\nFROM videos\nWHERE creator_id = 'abc';",
			expected: "SELECT COUNT(*) FROM videos WHERE creator_id = 'abc';",
		},
		{
			name:     "stops at first semicolon",
			answer:   "SELECT COUNT(*) FROM videos;\nSELECT 1;",
			expected: "SELECT COUNT(*) FROM videos;",
		},
		{
			name:     "no select",
			answer:   "Не понимаю вопрос",
			expected: "",
		},
		{
			name:     "select without from",
			answer:   "SELECT 1;",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractSQL(tt.answer))
		})
	}
}
