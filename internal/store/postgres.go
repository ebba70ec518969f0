package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	apperrors "github.com/videolytics/query-service/internal/errors"
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// Result holds the outcome of an executed analytics query. Values are kept
// as strings for direct rendering in API responses.
type Result struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Store executes resolved analytics queries against PostgreSQL
type Store struct {
	db *sql.DB
}

// New opens a connection pool to the analytics database
func New(config Config) (*Store, error) {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, apperrors.NewDatabaseConnectionError(err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool, used by tests
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool so the history store can share it
func (s *Store) DB() *sql.DB {
	return s.db
}

// ExecuteScalar runs a single-value analytics query. Aggregates over an
// empty set come back as SQL NULL, which is reported as "0".
func (s *Store) ExecuteScalar(ctx context.Context, query string) (string, error) {
	var value sql.NullString

	err := s.db.QueryRowContext(ctx, query).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "0", nil
		}
		return "", apperrors.NewDatabaseQueryError(err, "scalar query")
	}

	if !value.Valid {
		return "0", nil
	}
	return value.String, nil
}

// ExecuteQuery runs an analytics query and returns all rows as strings
func (s *Store) ExecuteQuery(ctx context.Context, query string) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "analytics query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewDatabaseQueryError(err, "analytics query")
	}

	result := &Result{
		Columns: columns,
		Rows:    [][]string{},
	}

	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}

		row := make([]string, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "0"
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return result, nil
}
