package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skybridge-systems/mavsessiond/internal/config"
	"github.com/skybridge-systems/mavsessiond/internal/httpapi"
	"github.com/skybridge-systems/mavsessiond/internal/logging"
	"github.com/skybridge-systems/mavsessiond/internal/sessionmanager"
)

func main() {
	cfg := config.Load()

	logger := logging.New("mavsessiond", logging.ParseLevel(cfg.Logging.Level))

	var drones *config.DroneRegistry
	if reg, err := config.LoadDroneRegistry(cfg.Server.DroneRegistryPath); err == nil {
		drones = reg
	} else {
		logger.Infof("no drone registry loaded from %s: %v", cfg.Server.DroneRegistryPath, err)
	}

	manager := sessionmanager.New(*cfg, logger)
	manager.Start()

	router := httpapi.New(manager, *cfg, logger, drones)

	httpServer := &http.Server{
		Addr:    cfg.ServerAddr(),
		Handler: router.Handler(),
	}

	go handleShutdown(httpServer, manager, logger)

	logger.Infof("listening on %s", cfg.ServerAddr())
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("server error: %v", err)
		os.Exit(1)
	}
}

// handleShutdown waits for SIGINT/SIGTERM, then drains the HTTP server and
// stops the session manager's receiver goroutine.
func handleShutdown(httpServer *http.Server, manager *sessionmanager.Manager, logger *logging.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Infof("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("http server shutdown: %v", err)
	}

	manager.Shutdown()
	os.Exit(0)
}
