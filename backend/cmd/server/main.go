package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/orderflow/orderflow/internal/aicache"
	"github.com/orderflow/orderflow/internal/api"
	"github.com/orderflow/orderflow/internal/config"
	"github.com/orderflow/orderflow/internal/customerdetect"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/dedup"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/extract/llm"
	extractrouter "github.com/orderflow/orderflow/internal/extract/router"
	"github.com/orderflow/orderflow/internal/feedback"
	"github.com/orderflow/orderflow/internal/intake"
	"github.com/orderflow/orderflow/internal/matching"
	"github.com/orderflow/orderflow/internal/providers"
	"github.com/orderflow/orderflow/internal/push"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/validate"
	"github.com/orderflow/orderflow/internal/workers"

	"log"
)

func main() {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	database.SetMaxOpenConns(cfg.DatabaseMaxConnections)
	database.SetMaxIdleConns(cfg.DatabaseMaxIdleConnections)
	database.SetConnMaxLifetime(cfg.DatabaseConnectionLifetime)

	if err := database.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	if cfg.RunMigrations {
		log.Println("Running database migrations...")
		if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed successfully")
	} else {
		log.Println("Skipping migrations (RUN_MIGRATIONS=false)")
	}

	queries := db.New(database)

	log.Println("Connecting to NATS...")
	natsManager, err := queue.NewManager(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsManager.Close()
	log.Println("NATS connection established")

	objectStore := providers.NewLocalObjectStore(cfg.DropzoneRootPath + "/objects")
	dropzone := providers.NewLocalDropzone(cfg.DropzoneRootPath, cfg.DropzoneAckPath)

	var llmProvider providers.LLMProviderPort = providers.NewOpenAILLM(
		cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModelText, cfg.LLMModelVision,
		cfg.ProviderTimeoutText, cfg.ProviderTimeoutVision,
	)
	var embedder providers.EmbeddingProviderPort = providers.NewOpenAIEmbedding(
		cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimension,
	)

	cache := aicache.New(queries, false, cfg.DailyAICostBudgetUSD)
	llmExtractor := llm.New(llmProvider, cache)
	router := extractrouter.New(llmExtractor, cache, extractrouter.Limits{
		MaxPageCount:     cfg.MaxLLMPageCount,
		MaxTokensPerCall: cfg.MaxLLMTokensPerCall,
		DailyBudgetUSD:   cfg.DailyAICostBudgetUSD,
	})

	dedupChecker := dedup.New(queries)
	feedbackRecorder := feedback.New(queries)
	engine := draftengine.New(queries)
	detector := customerdetect.New(queries)
	matcher := matching.New(embedder)
	validator := validate.New(queries)
	tenantSlugFn := func(ctx context.Context, tenantID string) (string, error) {
		t, err := queries.GetTenant(ctx, tenantID)
		if err != nil {
			return "", err
		}
		return t.Slug, nil
	}
	pusher := push.New(queries, engine, dropzone, tenantSlugFn)

	intakePipeline := intake.New(queries, dedupChecker, objectStore, natsManager)
	smtpServer := intake.NewSMTPServer(cfg.SMTPListenAddr, cfg.SMTPDomain, cfg.SMTPMaxBytes, intakePipeline)

	// Pipeline workers: one NATS queue-group consumer per stage (C3-C12).
	pipelineWorkers := []interface{ Start() error }{
		workers.NewIntakeWorker(natsManager, intakePipeline),
		workers.NewExtractionWorker(natsManager, queries, objectStore, router, feedbackRecorder, engine),
		workers.NewCustomerDetectWorker(natsManager, queries, objectStore, detector, engine),
		workers.NewMatchingWorker(natsManager, queries, embedder, cfg.EmbeddingModel, matcher, engine),
		workers.NewValidationWorker(natsManager, queries, validator, engine),
		workers.NewPushWorker(natsManager, pusher),
	}
	for _, w := range pipelineWorkers {
		if err := w.Start(); err != nil {
			log.Fatalf("Failed to start worker: %v", err)
		}
	}
	log.Println("Pipeline workers started")

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	go func() {
		log.Printf("SMTP intake listening on %s", cfg.SMTPListenAddr)
		if err := smtpServer.ListenAndServe(rootCtx); err != nil {
			log.Printf("SMTP server stopped: %v", err)
		}
	}()

	if cfg.AckPollEnabled {
		ackPoller := workers.NewAckPoller(pusher, queries.ListTenantIDs, cfg.DropzoneAckPath, cfg.AckPollInterval)
		go ackPoller.Run(rootCtx)
		log.Println("Ack poller started")
	}

	server := api.NewServer(cfg, queries, natsManager, database, intakePipeline, pusher, engine, feedbackRecorder)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %d (environment: %s)", cfg.AppPort, cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func runMigrations(cfg *config.Config) {
	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := db.RunMigrations(database, cfg.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")
}
