package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/videolytics/query-service/internal/auth"
	"github.com/videolytics/query-service/internal/config"
	"github.com/videolytics/query-service/internal/history"
	"github.com/videolytics/query-service/internal/llm"
	"github.com/videolytics/query-service/internal/observability"
	"github.com/videolytics/query-service/internal/service"
	"github.com/videolytics/query-service/internal/store"
)

func main() {
	ctx := context.Background()
	logger := observability.NewLogger("main")

	// Load and validate configuration
	cfg := config.NewDefaultLoader().MustLoad(ctx)
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	// PostgreSQL
	pgStore, err := store.New(store.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer pgStore.Close()

	historyStore := history.New(pgStore.DB())

	// Redis cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn(ctx, "Redis unavailable, answers will not be cached", map[string]interface{}{
			"addr": cfg.Redis.Addr,
		})
	}

	// Ollama fallback, wrapped in a circuit breaker so a wedged model server
	// cannot stall every unrecognized question
	var modelClient llm.Client
	var ollama *llm.OllamaClient
	if cfg.Ollama.Enabled {
		ollama = llm.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.Model).WithTimeout(cfg.Ollama.Timeout)
		modelClient = llm.NewCircuitBreakerClient(ollama, "ollama", llm.DefaultCircuitBreakerConfig)
	}

	// Auth
	authManager := auth.NewManager(auth.Config{
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTExpiry:      cfg.Auth.JWTExpiry,
		AllowAnonymous: cfg.Auth.AllowAnonymous,
	})
	seedAdminUser(authManager, cfg)

	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			authManager.CleanupExpired()
		}
	}()

	// Health checks
	healthChecker := observability.NewHealthChecker()
	healthChecker.Register("database", observability.DatabaseHealthCheck(pgStore.Ping))
	healthChecker.Register("redis", observability.RedisHealthCheck(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}))
	if ollama != nil {
		healthChecker.Register("model", observability.ModelHealthCheck(ollama.Ping))
	}
	healthChecker.Register("memory", observability.MemoryHealthCheck(1<<30))

	// Question service
	svc := service.New(modelClient, pgStore, historyStore, rdb, service.Config{
		CacheTTL: cfg.Query.CacheTTL,
	})
	svc.SetHealthChecker(healthChecker)

	router := svc.SetupRoutes(authManager, authManager.LoginHandler())

	logger.Info(ctx, "Query service starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"model":   cfg.Ollama.Model,
		"version": "1.0.0",
	})
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		logger.Error(ctx, "Failed to start server", err, nil)
		log.Fatal("Failed to start server: ", err)
	}
}

// seedAdminUser creates the bootstrap admin account when credentials are provided
func seedAdminUser(m *auth.Manager, cfg *config.Config) {
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		if !cfg.Auth.AllowAnonymous {
			log.Println("ADMIN_PASSWORD not set, no admin user created")
		}
		return
	}

	if _, err := m.CreateUser("admin", "admin@videolytics.local", adminPassword, []string{"admin", "user"}); err != nil {
		log.Println("Failed to create admin user: ", err)
	}
}
