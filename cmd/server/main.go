package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"loom/internal/completion"
	"loom/internal/config"
	"loom/internal/handler"
	"loom/internal/middleware"
	"loom/internal/repository/postgres"
	"loom/internal/security"
	"loom/internal/service/catalog"
	"loom/internal/service/chat"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names and make sure the schema exists
	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Secret box for API keys at rest
	box, err := security.NewBox(cfg.EncryptionSecret)
	if err != nil {
		log.Fatalf("Failed to initialize encryption: %v", err)
	}

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	conversationStore := postgres.NewConversationStore(repoConfig)
	modelCatalog := postgres.NewModelCatalog(repoConfig)
	userStore := postgres.NewUserStore(repoConfig)
	settingsStore := postgres.NewSettingsStore(repoConfig, box)

	// Seed the model catalog and, if configured, the first account
	if err := catalog.EnsureSeeded(ctx, modelCatalog, cfg.ModelsFile, logger); err != nil {
		log.Fatalf("Failed to seed model catalog: %v", err)
	}
	if err := seedAdmin(ctx, userStore, cfg.SeedAdminPassword, logger); err != nil {
		log.Fatalf("Failed to seed admin account: %v", err)
	}

	// Completion client and orchestrator
	completionClient := completion.NewClient(cfg.DefaultBaseURL, logger)
	txManager := postgres.NewTransactionManager(pool)
	orchestrator := chat.NewService(conversationStore, completionClient, txManager, logger)

	// Create handlers
	secureCookies := cfg.Environment != "dev"
	authHandler := handler.NewAuthHandler(userStore, userStore, secureCookies, logger)
	chatHandler := handler.NewChatHandler(orchestrator, conversationStore, settingsStore, logger)
	conversationHandler := handler.NewConversationHandler(conversationStore, logger)
	modelsHandler := handler.NewModelsHandler(modelCatalog, settingsStore, completionClient, logger)
	settingsHandler := handler.NewSettingsHandler(settingsStore, logger)
	workspaceHandler := handler.NewWorkspaceHandler(conversationStore, modelCatalog, logger)
	captionHandler := handler.NewCaptionHandler(completionClient, settingsStore, logger)

	// Setup routes
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.Health)

	// Auth routes
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/status", authHandler.Status)

	// Chat streaming route
	mux.HandleFunc("POST /api/chat", chatHandler.Stream)

	// Conversation routes
	mux.HandleFunc("POST /api/conversations", conversationHandler.Create)
	mux.HandleFunc("GET /api/conversations", conversationHandler.List)
	mux.HandleFunc("GET /api/conversations/{id}", conversationHandler.Get)
	mux.HandleFunc("PATCH /api/conversations/{id}", conversationHandler.Update)
	mux.HandleFunc("DELETE /api/conversations/{id}", conversationHandler.Delete)

	// Model catalog routes
	mux.HandleFunc("GET /api/models", modelsHandler.List)
	mux.HandleFunc("POST /api/models", modelsHandler.Upsert)
	mux.HandleFunc("GET /api/models/remote", modelsHandler.ListRemote)

	// Settings routes
	mux.HandleFunc("GET /api/settings", settingsHandler.Get)
	mux.HandleFunc("PATCH /api/settings", settingsHandler.Update)

	// Workspace snapshot
	mux.HandleFunc("GET /api/workspace", workspaceHandler.Get)

	// Media caption
	mux.HandleFunc("POST /api/media/caption", captionHandler.Caption)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	httpHandler = middleware.Auth(userStore, logger)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

// seedAdmin creates the initial admin account on an empty user table.
func seedAdmin(ctx context.Context, users *postgres.UserStore, password string, logger *slog.Logger) error {
	if password == "" {
		return nil
	}

	count, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}

	id, err := users.CreateUser(ctx, "admin", hash, "admin")
	if err != nil {
		return err
	}
	logger.Info("admin account created", "user_id", id)
	return nil
}
