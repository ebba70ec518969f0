package llm

import (
	"context"
)

// Client is the language-model fallback: it is consulted only for questions
// the deterministic parser rejects
type Client interface {
	GenerateSQL(ctx context.Context, question string) (*Response, error)
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Response holds the SQL extracted from a model answer
type Response struct {
	SQL        string  `json:"sql"`
	RawAnswer  string  `json:"raw_answer,omitempty"`
	Confidence float64 `json:"confidence"`
}

