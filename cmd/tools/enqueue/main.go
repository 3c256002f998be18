// enqueue submits a single sourcing job, for backfills and local testing.
//
// Usage:
//
//	enqueue -job auctions -start-page 1 -end-page 10
//	enqueue -job notary-listings -department 33
//	enqueue -job deceases -file ./deces-2026-m08.csv -since 2026-07-01
//	enqueue -job energy-diagnostics -department 75 -since 2026-01-01 -delay 10m
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/config"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/ingest"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

func main() {
	var (
		jobName    = flag.String("job", "", "job name: auctions | notary-listings | deceases | energy-diagnostics")
		department = flag.Int("department", 0, "department number")
		startPage  = flag.Int("start-page", 0, "first calendar page (auctions)")
		endPage    = flag.Int("end-page", 0, "last calendar page (auctions)")
		file       = flag.String("file", "", "deaths file path (deceases)")
		since      = flag.String("since", "", "ISO lower bound date (deceases, energy-diagnostics)")
		delay      = flag.Duration("delay", 0, "optional delay before the job becomes ready")
	)
	flag.Parse()

	var payload any
	switch *jobName {
	case ingest.JobAuctions:
		payload = ingest.AuctionJobParams{StartPage: *startPage, EndPage: *endPage}
	case ingest.JobNotaryListings:
		payload = ingest.ListingJobParams{DepartmentID: *department}
	case ingest.JobDeceases:
		payload = ingest.DeceaseJobParams{SourceFile: *file, SinceDate: *since, DepartmentID: *department}
	case ingest.JobEnergyDiagnostics:
		payload = ingest.EnergyJobParams{DepartmentID: *department, SinceDate: *since}
	default:
		log.Fatalf("unknown -job %q", *jobName)
	}

	cfg, err := config.LoadQueue()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	var opts []queue.EnqueueOption
	if *delay > 0 {
		opts = append(opts, queue.WithDelay(*delay))
	}

	id, err := queue.New(rdb, cfg.ScrapingQueue).Enqueue(ctx, *jobName, payload, opts...)
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	log.Printf("enqueued %s job %s on %q", *jobName, id, cfg.ScrapingQueue)
}
