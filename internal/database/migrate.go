package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// MigrationConfig holds migration configuration
type MigrationConfig struct {
	DatabaseURL    string
	MigrationsPath string
}

// RunMigrations runs database migrations
func RunMigrations(config MigrationConfig) error {
	db, err := sql.Open("postgres", config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", config.MigrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// VerifyDatabase checks the target database exists and is accessible
func VerifyDatabase(host, port, username, password, dbname, sslMode string) error {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, username, password, dbname, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var exists bool
	checkQuery := `SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)`
	if err := db.QueryRow(checkQuery, dbname).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		return fmt.Errorf("database %s does not exist", dbname)
	}

	return nil
}

// HealthCheck verifies connectivity, the pgvector extension, and the core tables
func HealthCheck(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// question_history embeddings need pgvector
	var hasVector bool
	err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&hasVector)
	if err != nil {
		return fmt.Errorf("failed to check vector extension: %w", err)
	}

	if !hasVector {
		return fmt.Errorf("pgvector extension is not installed")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM videos").Scan(&count); err != nil {
		return fmt.Errorf("failed to query videos table: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM video_snapshots").Scan(&count); err != nil {
		return fmt.Errorf("failed to query video_snapshots table: %w", err)
	}

	return nil
}
