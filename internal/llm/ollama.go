package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2:3b"

	// Low temperature keeps SQL generation consistent between calls
	generateTemperature = 0.1
)

// schemaPrompt describes the analytics schema and the rules the model must
// follow. It is written in Russian because the questions are.
const schemaPrompt = `База данных видео-аналитики:

ТАБЛИЦА videos:
- id (UUID), creator_id (VARCHAR), video_created_at (TIMESTAMPTZ)
- views_count, likes_count, comments_count, reports_count (INTEGER)

ТАБЛИЦА video_snapshots:
- id, video_id, created_at (TIMESTAMPTZ)
- delta_views_count, delta_likes_count, delta_comments_count, delta_reports_count

ПРАВИЛА:
1. COUNT(*) для подсчёта
2. SUM() для суммирования
3. WHERE для фильтров
4. DATE() для дат
5. views_count — накопленный итог, delta_views_count — почасовой прирост; никогда не путать
6. Только SELECT запросы
`

// OllamaClient implements Client against a local Ollama server
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// Ollama API request/response structures

type generateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaClient creates a client for the Ollama generate/embeddings API
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithTimeout overrides the HTTP client timeout. Local models on CPU can need
// well over the default 30s for a first generation.
func (c *OllamaClient) WithTimeout(timeout time.Duration) *OllamaClient {
	if timeout > 0 {
		c.client.Timeout = timeout
	}
	return c
}

// GenerateSQL asks the model to translate a question into a SELECT statement
func (c *OllamaClient) GenerateSQL(ctx context.Context, question string) (*Response, error) {
	prompt := fmt.Sprintf("%s\nЗапрос: %q\nSQL запрос:", schemaPrompt, question)

	request := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": generateTemperature,
		},
	}

	response, err := c.sendGenerateWithRetry(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to call model: %w", err)
	}

	sql := extractSQL(response.Response)
	if sql == "" {
		return nil, fmt.Errorf("model did not return a SELECT statement")
	}

	return &Response{
		SQL:        sql,
		RawAnswer:  response.Response,
		Confidence: 0.8,
	}, nil
}

// GetEmbedding returns the model embedding for a question
func (c *OllamaClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d", resp.StatusCode)
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("model returned an empty embedding")
	}

	return er.Embedding, nil
}

// Ping checks the Ollama server is reachable
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return nil
}

// sendGenerate performs one /api/generate call
func (c *OllamaClient) sendGenerate(ctx context.Context, request generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode generate response: %w", err)
	}

	return &gr, nil
}

// extractSQL pulls the first SELECT statement out of a model answer. Models
// wrap SQL in code fences and prose; everything before SELECT and after the
// first ';' is dropped.
func extractSQL(answer string) string {
	answer = strings.ReplaceAll(answer, "```sql", "")
	answer = strings.ReplaceAll(answer, "```", "")

	var lines []string
	inSQL := false

	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "SELECT") {
			inSQL = true
		}
		if inSQL {
			lines = append(lines, line)
		}
		if inSQL && strings.HasSuffix(line, ";") {
			break
		}
	}

	sql := strings.Join(lines, " ")
	upper := strings.ToUpper(sql)
	if sql == "" || !strings.Contains(upper, "SELECT") || !strings.Contains(upper, "FROM") {
		return ""
	}
	return sql
}
