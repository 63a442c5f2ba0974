package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"tiercache/internal/config"
	"tiercache/pkg/cache"
)

func main() {
	nCPU := runtime.NumCPU()
	runtime.GOMAXPROCS(nCPU)
	fmt.Printf("Number of CPUs: %d\n", nCPU)

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Build the three-tier engine
	engine, err := cache.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to build cache engine: %v", err)
	}
	defer engine.Close()

	// Pre-load the hottest durable entries
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	loaded, err := engine.WarmCache(ctx, cache.WarmOptions{})
	cancel()
	if err != nil {
		log.Printf("Initial warming failed: %v", err)
	} else {
		log.Printf("Warmed %d entries", loaded)
	}

	if schedule := os.Getenv("WARM_SCHEDULE"); schedule != "" {
		if err := engine.StartWarming(schedule, cache.WarmOptions{}); err != nil {
			log.Fatalf("Failed to schedule warming: %v", err)
		}
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cache engine...")
	engine.Flush()

	stats, _ := json.Marshal(engine.GetStatistics())
	log.Printf("Final statistics: %s", stats)
}
