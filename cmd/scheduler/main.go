// The scheduler promotes due delayed jobs onto the ready lists and enqueues
// the recurring scraping jobs on their cron schedules. Run exactly one
// instance.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/config"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/ingest"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

const (
	promoteInterval = time.Second
	promoteBatch    = 100

	// Recurring energy scrapes only look back far enough to catch late
	// filings; backfills go through the enqueue tool.
	energyLookback = 90 * 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scheduler] config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[scheduler] redis: %v", err)
	}

	registry, err := ingest.LoadRegistry()
	if err != nil {
		log.Fatalf("[scheduler] source registry: %v", err)
	}

	scrapingQ := queue.New(rdb, cfg.ScrapingQueue)
	refreshQ := queue.New(rdb, cfg.RefreshQueue)

	c := cron.New()
	if err := registerSchedules(ctx, c, registry, scrapingQ, cfg); err != nil {
		log.Fatalf("[scheduler] cron: %v", err)
	}
	c.Start()
	defer c.Stop()

	log.Printf("[scheduler] running, promoting due jobs every %s", promoteInterval)
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[scheduler] shutting down")
			return
		case now := <-ticker.C:
			for _, q := range []*queue.Queue{scrapingQ, refreshQ} {
				n, err := q.PromoteDue(ctx, now, promoteBatch)
				if err != nil {
					log.Printf("[scheduler] promote %s: %v", q.Name(), err)
					continue
				}
				if n > 0 {
					log.Printf("[scheduler] promoted %d job(s) on %s", n, q.Name())
				}
			}
		}
	}
}

func registerSchedules(ctx context.Context, c *cron.Cron, registry *ingest.Registry, q *queue.Queue, cfg config.Config) error {
	enqueue := func(name string, payload any) {
		id, err := q.Enqueue(ctx, name, payload)
		if err != nil {
			log.Printf("[scheduler] enqueue %s: %v", name, err)
			return
		}
		log.Printf("[scheduler] enqueued %s job %s", name, id)
	}

	for _, src := range registry.Sources {
		if src.Schedule == "" {
			continue
		}

		var job func()
		switch src.ID {
		case ingest.JobAuctions:
			job = func() {
				enqueue(ingest.JobAuctions, ingest.AuctionJobParams{})
			}
		case ingest.JobNotaryListings:
			job = func() {
				for _, dept := range cfg.Departments {
					enqueue(ingest.JobNotaryListings, ingest.ListingJobParams{DepartmentID: dept})
				}
			}
		case ingest.JobDeceases:
			if cfg.DeathsFile == "" {
				log.Printf("[scheduler] DEATHS_FILE unset, skipping %s schedule", src.ID)
				continue
			}
			job = func() {
				enqueue(ingest.JobDeceases, ingest.DeceaseJobParams{
					SourceFile: cfg.DeathsFile,
					SinceDate:  time.Now().AddDate(0, -2, 0).Format("2006-01-02"),
				})
			}
		case ingest.JobEnergyDiagnostics:
			job = func() {
				since := time.Now().Add(-energyLookback).Format("2006-01-02")
				for _, dept := range cfg.Departments {
					enqueue(ingest.JobEnergyDiagnostics, ingest.EnergyJobParams{DepartmentID: dept, SinceDate: since})
				}
			}
		default:
			log.Printf("[scheduler] no job mapped for source %q, skipping", src.ID)
			continue
		}

		if _, err := c.AddFunc(src.Schedule, job); err != nil {
			return err
		}
		log.Printf("[scheduler] %s scheduled at %q", src.ID, src.Schedule)
	}
	return nil
}
