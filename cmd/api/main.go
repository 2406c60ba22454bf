package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marandi/trollreel/internal/api"
	"github.com/marandi/trollreel/internal/config"
	"github.com/marandi/trollreel/internal/db"
	"github.com/marandi/trollreel/internal/queue"
	"github.com/marandi/trollreel/internal/services"
	"github.com/marandi/trollreel/internal/storage"
	"github.com/marandi/trollreel/internal/worker"
)

func main() {
	log.Println("Starting TrollReel API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		resolverSvc := services.NewResolverService(cfg.GeminiKey, cfg.ResolverModel)
		plannerSvc := services.NewPlannerService(cfg.GeminiKey, cfg.PlannerModel)
		keyframeSvc := services.NewKeyframeService(cfg.GeminiKey, cfg.ImageModel)
		ffmpegSvc := services.NewFFmpegService(cfg.TempDir)
		veoSvc := services.NewVeoService(cfg.GeminiKey, cfg.VeoModel, ffmpegSvc)
		log.Printf("Models: resolver=%s planner=%s image=%s video=%s", cfg.ResolverModel, cfg.PlannerModel, cfg.ImageModel, cfg.VeoModel)

		pipeline := worker.NewPipeline(keyframeSvc, veoSvc, cfg.SegmentCooldown)

		w := worker.New(database, q, stor, resolverSvc, plannerSvc, pipeline, ffmpegSvc)

		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
