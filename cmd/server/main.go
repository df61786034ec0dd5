/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the capital ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port             HTTP server port (default: 8080)
  -db               SQLite database path (default: ledger.db)
                    Use ":memory:" for an in-memory database
  -grace-days       Days past due before an unpaid call defaults (default: 30)
  -allow-overpay    Record flagged overpayments instead of rejecting them
  -chunk-size       Batch aggregation chunk size (default: 50)
  -batch-deadline   Batch aggregation deadline (default: 10s)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Permit flagged overpayments with a tighter default window
  ./server -allow-overpay -grace-days=14

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian/capital-ledger/api"
	"github.com/meridian/capital-ledger/ledger"
	"github.com/meridian/capital-ledger/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	graceDays := flag.Int("grace-days", 30, "days past due before an unpaid call defaults")
	allowOverpay := flag.Bool("allow-overpay", false, "record flagged overpayments instead of rejecting them")
	chunkSize := flag.Int("chunk-size", 50, "batch aggregation chunk size")
	batchDeadline := flag.Duration("batch-deadline", 10*time.Second, "batch aggregation deadline")
	flag.Parse()

	cfg := ledger.DefaultConfig()
	cfg.GracePeriod = time.Duration(*graceDays) * 24 * time.Hour
	cfg.AllowOverpayment = *allowOverpay
	cfg.BatchChunkSize = *chunkSize
	cfg.BatchDeadline = *batchDeadline

	// Initialize store. The SQLite store doubles as fund/deal directory and
	// audit sink.
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, store, store, store, cfg)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
