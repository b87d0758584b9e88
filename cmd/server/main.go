package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"blastline/internal/api"
	"blastline/internal/config"
	"blastline/internal/game"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Printf("📋 loaded .env")
	}

	cfg := config.Load()

	log.Printf("🎮 blastline room server starting")
	log.Printf("   port: %d, debug: %s", cfg.Server.Port, cfg.Observability.DebugAddr)

	events := game.NewEventLog()
	if err := events.Start(cfg.Observability.EventLogPath); err != nil {
		log.Printf("⚠️ event log disabled: %v", err)
	}

	manager := game.NewManager(api.PromMetrics{}, events)

	server := api.NewServer(api.ServerConfig{
		Addr:       fmt.Sprintf(":%d", cfg.Server.Port),
		Manager:    manager,
		MaxWSPerIP: cfg.Server.MaxWSPerIP,
		RateLimitConfig: &api.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			CleanupInterval:   5 * time.Minute,
		},
	})
	server.Start()

	debug := api.StartDebugServer(cfg.Observability.DebugAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("🛑 received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server.Stop(ctx)
	debug.Shutdown(ctx)
	events.Stop()

	log.Printf("👋 bye")
}
