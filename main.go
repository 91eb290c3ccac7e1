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

	"github.com/gorilla/mux"

	"mail-tracker/config"
	"mail-tracker/database"
	"mail-tracker/handlers"
	"mail-tracker/services"
)

func main() {
	// Load configuration from .env
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// The connection manager dials lazily; the pixel path must come up
	// even when the database is down.
	manager := database.NewManager(database.ManagerConfig{
		DatabaseURL:    cfg.DatabaseURL,
		PoolSize:       cfg.DBPoolSize,
		ConnectTimeout: cfg.DBConnectTimeout,
		IdleTimeout:    cfg.DBIdleTimeout,
	})
	defer manager.Close()

	// Apply database migrations. Non-fatal: the service still serves
	// pixels while the store is unreachable.
	migrationsPath := filepath.Join(".", "database", "migrations")
	if err := database.ApplyMigrations(cfg.DatabaseURL, migrationsPath); err != nil {
		log.Printf("Warning: could not apply database migrations: %v", err)
	}

	recorder := services.NewOpenRecorder(manager, cfg.RecordTimeout)
	mailService := services.NewMailService(cfg, manager)
	tracking := handlers.NewTrackingHandler(recorder, manager, cfg.TrustCloudflare)

	// Set up router
	r := mux.NewRouter()

	// Tracking routes
	r.HandleFunc("/icon/{trackingId}", tracking.ServePixel).Methods("GET")
	r.HandleFunc("/ping", tracking.Ping).Methods("GET")

	// API Routes
	r.HandleFunc("/api/send", handlers.SendMailHandler(mailService, manager, cfg)).Methods("POST")
	r.HandleFunc("/api/records", handlers.GetRecordsHandler(manager)).Methods("GET")
	r.HandleFunc("/api/records/{trackingId}", handlers.GetRecordHandler(manager)).Methods("GET")
	r.HandleFunc("/api/bounce", handlers.BounceWebhookHandler(manager)).Methods("POST")
	r.HandleFunc("/api/limit", handlers.GetDailyLimitHandler(manager, cfg.DailyMailLimit)).Methods("GET")
	r.HandleFunc("/api/stats", handlers.GetStatsHandler(manager)).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // Default port if not specified
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s...", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
