// The worker consumes sourcing jobs from Redis, runs the scraping services
// and executes debounced materialized-view refreshes. It also serves the ops
// API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/api"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/config"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/db"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/geocode"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/ingest"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/refresh"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[worker] config: %v", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[worker] database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("[worker] migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[worker] redis: %v", err)
	}

	registry, err := ingest.LoadRegistry()
	if err != nil {
		log.Fatalf("[worker] source registry: %v", err)
	}

	scrapingQ := queue.New(rdb, cfg.ScrapingQueue)
	refreshQ := queue.New(rdb, cfg.RefreshQueue)

	geocoder := geocode.NewClient(cfg.GeocodeBaseURL)
	trigger := refresh.NewTrigger(refreshQ, cfg.RefreshDelay)
	runs := db.NewRunStore(pool)

	processor := ingest.NewProcessor(
		ingest.NewAuctionService(sourceOrEmpty(registry, "auctions"), db.NewAuctionStore(pool), geocoder, trigger),
		ingest.NewListingService(sourceOrEmpty(registry, "notary-listings"), db.NewListingStore(pool), geocoder, trigger),
		ingest.NewDeceaseService(db.NewSuccessionStore(pool), geocoder, trigger),
		ingest.NewEnergyService(sourceOrEmpty(registry, "energy-diagnostics"), db.NewEnergyStore(pool), geocoder, trigger),
		runs,
	)

	scrapingConsumer := queue.NewConsumer(scrapingQ, processor.Handle)
	refreshConsumer := queue.NewConsumer(refreshQ, refresh.NewWorker(pool).Handle)

	go func() {
		if err := scrapingConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[worker] scraping consumer stopped: %v", err)
		}
	}()
	go func() {
		if err := refreshConsumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[worker] refresh consumer stopped: %v", err)
		}
	}()

	srv := api.New(scrapingQ, refreshQ, runs)
	go func() {
		log.Printf("[worker] ops API listening on %s", cfg.OpsAddr)
		if err := srv.Start(cfg.OpsAddr); err != nil {
			log.Printf("[worker] ops API stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("[worker] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[worker] ops API shutdown: %v", err)
	}
}

func sourceOrEmpty(registry *ingest.Registry, id string) ingest.SourceConfig {
	if src := registry.Source(id); src != nil {
		return *src
	}
	log.Printf("[worker] source %q missing from registry, using defaults", id)
	return ingest.SourceConfig{ID: id}
}
