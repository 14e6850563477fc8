package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phishdefender/phishdefender/internal/adapters/httpapi"
	"github.com/phishdefender/phishdefender/internal/adapters/smtpgw"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/di"
	"github.com/phishdefender/phishdefender/internal/sched"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	store core.Store,
	controller *sched.Controller,
	server *httpapi.Server,
	gateway *smtpgw.Gateway,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the polling scheduler
	go controller.Run(ctx)

	// Start the SMTP ingestion gateway when configured
	if gateway != nil {
		if err := gateway.Start(); err != nil {
			logger.Fatal("Failed to start SMTP gateway", zap.Error(err))
			return err
		}
	}

	// Start the HTTP API
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	if gateway != nil {
		if err := gateway.Stop(); err != nil {
			logger.Error("Failed to stop SMTP gateway", zap.Error(err))
		}
	}

	// Close the store if it holds a database connection
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
	}

	logger.Info("Shutdown complete")
	return nil
}
