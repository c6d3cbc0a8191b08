package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/lohithk/tallysync/internal/config"
	"github.com/lohithk/tallysync/internal/db"
	"github.com/lohithk/tallysync/internal/export"
	"github.com/lohithk/tallysync/internal/middleware"
	"github.com/lohithk/tallysync/internal/notify"
	"github.com/lohithk/tallysync/internal/persist"
	"github.com/lohithk/tallysync/internal/repository"
	"github.com/lohithk/tallysync/internal/runlog"
	"github.com/lohithk/tallysync/internal/scheduler"
	syncengine "github.com/lohithk/tallysync/internal/sync"
	"github.com/lohithk/tallysync/internal/tally"
	"github.com/lohithk/tallysync/internal/web"
)

func main() {
	// Tee the process log into the in-memory tail served by the dashboard.
	tail := runlog.NewBuffer(runlog.DefaultCapacity)
	log.SetOutput(io.MultiWriter(os.Stderr, tail))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup database connection with host failover
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	manager := db.NewManager(cfg.Database, conn)
	defer manager.Close()

	// Run migrations for the bookkeeping tables
	if err := db.RunMigrations(cfg.Database, conn.Host); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	jobRepo := repository.NewJobRepository(conn.Pool)
	runRepo := repository.NewRunRepository(conn.Pool)

	// Wire the sync engine
	client := tally.NewClient(cfg.Tally.URL, cfg.Tally.Timeout)
	orchestrator := syncengine.NewOrchestrator(client)

	notifiers := []syncengine.Notifier{
		notify.NewEmailNotifier(cfg.Notify.SMTPHost, cfg.Notify.SMTPPort,
			cfg.Notify.SMTPUser, cfg.Notify.SMTPPass, cfg.Notify.MailFrom, cfg.Notify.MailTo),
		notify.NewTelegramNotifier(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID),
	}
	service := syncengine.NewService(orchestrator, &persisterProvider{manager: manager}, runRepo, notifiers...)

	// Scheduler picks up the enabled jobs
	registry := scheduler.NewRegistry(jobRepo, service)
	if err := registry.Reload(ctx); err != nil {
		log.Printf("Initial scheduler load failed: %v", err)
	}
	registry.Start()
	defer registry.Stop()

	// Workbook exports
	exportService := export.NewService(conn.Pool,
		export.WithExportDirectory(cfg.Export.Dir),
		export.WithSigningKey(cfg.Export.SecretKey),
	)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	apiServer := web.NewServer(service, jobRepo, runRepo, client, conn, manager, registry, tail)
	mux := apiServer.Routes()
	mux.Handle("/api/exports", export.NewHTTPHandler(exportService))
	mux.Handle("/api/exports/", export.NewHTTPHandler(exportService))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting dashboard server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// persisterProvider resolves a run's destination database to a persister
// over that database's pool.
type persisterProvider struct {
	manager *db.Manager
}

func (p *persisterProvider) PersisterFor(ctx context.Context, database string) (syncengine.Persister, error) {
	conn, err := p.manager.Get(ctx, database)
	if err != nil {
		return nil, err
	}
	return persist.NewPersister(conn.Pool), nil
}
