package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/rpattn/dashlens/internal/api"
	"github.com/rpattn/dashlens/internal/catalog"
	"github.com/rpattn/dashlens/internal/config"
	"github.com/rpattn/dashlens/internal/db"
	"github.com/rpattn/dashlens/internal/export"
	"github.com/rpattn/dashlens/internal/middleware"
	"github.com/rpattn/dashlens/internal/repository"
	"github.com/rpattn/dashlens/internal/store"
	"github.com/rpattn/dashlens/internal/upstream"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadServerConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Pick the storage driver
	var stateRepo repository.StateRepository
	var catalogRepo repository.CatalogRepository
	switch cfg.StorageDriver {
	case "postgres":
		dbConfig, err := config.LoadDBConfig(".")
		if err != nil {
			log.Fatalf("Failed to load database configuration: %v", err)
		}
		conn, err := db.NewConnection(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()

		// Run migrations
		if err := db.RunMigrations(dbConfig); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		stateRepo = repository.NewStateRepository(conn.Pool)
		catalogRepo = repository.NewCatalogRepository(conn.Pool)
	default:
		stateRepo = repository.NewMemoryStateRepository()
		catalogRepo = repository.NewMemoryCatalogRepository()
	}

	// Create the page state registry
	registry := store.NewRegistry(stateRepo,
		store.WithNamespace(cfg.Namespace),
		store.WithDebounceWindow(cfg.DebounceWindow))
	defer registry.Close()

	// Create the shared upstream request layer
	limiter := upstream.NewLimiter(cfg.Upstream.Concurrency)
	cache := upstream.NewCache(cfg.Upstream.CacheTTL)
	client := upstream.NewClient(cfg.Upstream.BaseURL, limiter, cache,
		upstream.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}))

	// Create services
	var exportOpts []export.Option
	if cfg.ExportDir != "" {
		exportOpts = append(exportOpts, export.WithExportDirectory(cfg.ExportDir))
	}
	exportService := export.NewService(client, exportOpts...)
	catalogService := catalog.NewService(catalogRepo)

	// Seed the district catalog from disk when one is configured
	if cfg.CatalogPath != "" {
		if err := seedCatalog(ctx, catalogService, cfg.CatalogPath); err != nil {
			log.Fatalf("Failed to load catalog %s: %v", cfg.CatalogPath, err)
		}
	}

	// Create HTTP handlers
	apiHandler := api.NewHandler(registry, catalogRepo, client)
	exportHandler := export.NewHTTPHandler(exportService, registry)
	catalogImportHandler := catalog.NewHTTPHandler(catalogService)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	wrap := func(h http.Handler) http.Handler {
		return corsHandler.Handler(
			middleware.RequestIDMiddleware(
				middleware.LoggingMiddleware(
					middleware.DataLoaderMiddleware(registry)(h),
				),
			),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", wrap(apiHandler))
	mux.Handle("/api/pages", wrap(apiHandler))
	mux.Handle("/api/pages/", wrap(apiHandler))
	mux.Handle("/api/navigate", wrap(apiHandler))
	mux.Handle("/api/catalog", wrap(apiHandler))
	mux.Handle("/api/catalog/", wrap(apiHandler))
	mux.Handle("/api/catalog/import", wrap(catalogImportHandler))
	mux.Handle("/api/exports", wrap(exportHandler))
	mux.Handle("/api/exports/", wrap(exportHandler))

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting dashboard state server on %s", cfg.Addr)
		log.Printf("Page state API available at http://localhost%s/api/pages", cfg.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// seedCatalog loads the district reference file shipped with the deployment.
func seedCatalog(ctx context.Context, service *catalog.Service, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	summary, err := service.Import(ctx, filepath.Base(path), file)
	if err != nil {
		return err
	}
	log.Printf("[catalog] loaded %d districts across %d regions (%d rows skipped)",
		summary.Loaded, len(summary.Regions), summary.Skipped)
	return nil
}
