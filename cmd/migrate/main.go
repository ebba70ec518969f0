package main

import (
	"context"
	"fmt"
	"log"

	"github.com/videolytics/query-service/internal/config"
	"github.com/videolytics/query-service/internal/database"
)

func main() {
	ctx := context.Background()

	cfg := config.NewDefaultLoader().MustLoad(ctx)
	db := cfg.Database

	fmt.Println("=== Running Database Migrations ===")
	fmt.Printf("Connecting to database: %s@%s:%s/%s\n", db.Username, db.Host, db.Port, db.Database)

	if err := database.VerifyDatabase(db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode); err != nil {
		log.Fatalf("Database connectivity failed: %v", err)
	}
	fmt.Println("✓ Database connectivity verified")

	migrationConfig := database.MigrationConfig{
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode),
		MigrationsPath: "./migrations",
	}

	if err := database.RunMigrations(migrationConfig); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println("✓ Database migrations completed successfully!")
}
