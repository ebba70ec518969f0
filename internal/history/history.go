// Package history persists answered questions with their generated SQL and
// an embedding, so later questions can reuse answers by vector similarity.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// similarityThreshold is the minimum cosine similarity for a stored question
// to count as a match.
const similarityThreshold = 0.8

// Record is a stored question with the SQL that answered it
type Record struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Source    string    `json:"source"` // "pattern" or "model"
	CreatedAt time.Time `json:"created_at"`
}

// SimilarQuestion is a history record with its similarity to the probe
type SimilarQuestion struct {
	Record
	Similarity float64 `json:"similarity"`
}

// Store persists question history in PostgreSQL with pgvector embeddings
type Store struct {
	db *sql.DB
}

// New creates a history store over an existing connection pool
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save records an answered question. Re-asking the same question updates the
// stored SQL and embedding in place.
func (s *Store) Save(ctx context.Context, question, sqlText, source string, embedding []float32) error {
	vector := pgvector.NewVector(embedding)

	query := `
		INSERT INTO question_history (id, question, sql_text, source, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (question) DO UPDATE SET
			sql_text = $3,
			source = $4,
			embedding = $5,
			updated_at = $6
	`

	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.ExecContext(ctx, query, id, question, sqlText, source, vector, now)
	if err != nil {
		return fmt.Errorf("failed to store question history: %w", err)
	}

	return nil
}

// FindSimilar returns stored questions close to the given embedding,
// most similar first
func (s *Store) FindSimilar(ctx context.Context, embedding []float32) ([]SimilarQuestion, error) {
	vector := pgvector.NewVector(embedding)

	query := `
		SELECT id, question, sql_text, source,
		       1 - (embedding <=> $1) as similarity,
		       created_at
		FROM question_history
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY similarity DESC
		LIMIT 5
	`

	rows, err := s.db.QueryContext(ctx, query, vector, similarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar questions: %w", err)
	}
	defer rows.Close()

	var matches []SimilarQuestion
	for rows.Next() {
		var sq SimilarQuestion
		err := rows.Scan(
			&sq.ID,
			&sq.Question,
			&sq.SQL,
			&sq.Source,
			&sq.Similarity,
			&sq.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan similar question row: %w", err)
		}

		matches = append(matches, sq)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar question rows: %w", err)
	}

	return matches, nil
}

// Recent returns the latest answered questions
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, question, sql_text, source, created_at
		FROM question_history
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query question history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Question, &r.SQL, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}

	return records, nil
}
