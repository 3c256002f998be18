// verifydb prints per-domain row counts, queue depth and the latest sourcing
// runs, as a quick health check after deployments and backfills.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/config"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/db"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	counts, err := db.CountByDomain(ctx, pool)
	if err != nil {
		log.Fatalf("counting opportunities: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Table", "Rows"})
	total := 0
	for _, c := range counts {
		t.AppendRow(table.Row{c.Source, c.Table, c.Count})
		total += c.Count
	}
	t.AppendFooter(table.Row{"", "total", total})
	t.Render()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	qt := table.NewWriter()
	qt.SetOutputMirror(os.Stdout)
	qt.AppendHeader(table.Row{"Queue", "Ready", "Delayed", "Dead"})
	for _, name := range []string{cfg.ScrapingQueue, cfg.RefreshQueue} {
		stats, err := queue.New(rdb, name).Stats(ctx)
		if err != nil {
			log.Printf("queue %s: %v", name, err)
			continue
		}
		qt.AppendRow(table.Row{stats.Queue, stats.Ready, stats.Delayed, stats.Dead})
	}
	qt.Render()

	runs, err := db.NewRunStore(pool).RecentRuns(ctx, 10)
	if err != nil {
		log.Fatalf("listing runs: %v", err)
	}

	rt := table.NewWriter()
	rt.SetOutputMirror(os.Stdout)
	rt.AppendHeader(table.Row{"Job", "Status", "Found", "Inserted", "Geo Fail", "Duration", "Started At"})
	for _, r := range runs {
		duration := "running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		rt.AppendRow(table.Row{r.JobName, r.Status, r.ItemsFound, r.ItemsInserted, r.GeocodeFailures, duration, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	rt.Render()
}
