package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quizbank/importer/internal/config"
	"github.com/quizbank/importer/internal/db"
	"github.com/quizbank/importer/internal/export"
	"github.com/quizbank/importer/internal/importer"
	"github.com/quizbank/importer/internal/logger"
	"github.com/quizbank/importer/internal/middleware"
	"github.com/quizbank/importer/internal/repository"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	migrationsPath := flag.String("migrations", "./migrations", "directory containing SQL migrations")
	mode := flag.String("mode", "dev", "logging mode: dev or prod")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(*mode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Run migrations before opening the pool.
	if err := db.RunMigrations(cfg.Database, *migrationsPath); err != nil {
		zlog.Fatalw("failed to run migrations", "error", err)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		zlog.Fatalw("failed to connect to database", "error", err)
	}
	defer conn.Close()

	// Create repositories
	questionRepo := repository.NewQuestionRepository(conn.Pool)
	batchRepo := repository.NewBatchRepository(conn.Pool)
	auditRepo := repository.NewAuditRepository(conn.Pool)

	// Create the import pipeline
	var rules importer.Rules = importer.BaseRules{}
	if len(cfg.Import.Schema) > 0 {
		rules, err = importer.NewSchemaRules(cfg.Import.Schema)
		if err != nil {
			zlog.Fatalw("invalid payload schema", "error", err)
		}
	}
	service := importer.NewService(batchRepo, questionRepo, auditRepo, rules, cfg.Import, zlog)
	handler := importer.NewHandler(service, auditRepo, zlog)
	exportHandler := export.NewHandler(export.NewService(questionRepo), zlog)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logging(zlog))
	router.Use(middleware.Operator)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	}).Handler)

	router.Route("/api", func(r chi.Router) {
		handler.Routes(r)
		exportHandler.Routes(r)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Infow("starting import server", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatalw("server failed", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Fatalw("server forced to shutdown", "error", err)
	}

	zlog.Info("server exited")
}
