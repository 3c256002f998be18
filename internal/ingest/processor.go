package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

// Per-domain scraper contracts, satisfied by the services in this package.

type AuctionScraper interface {
	Scrape(ctx context.Context, params AuctionJobParams) (ScrapeStats, error)
}

type ListingScraper interface {
	Scrape(ctx context.Context, params ListingJobParams) (ScrapeStats, error)
}

type DeceaseScraper interface {
	Scrape(ctx context.Context, params DeceaseJobParams) (ScrapeStats, error)
}

type EnergyScraper interface {
	Scrape(ctx context.Context, params EnergyJobParams) (ScrapeStats, error)
}

// Processor routes dequeued sourcing jobs to the matching scraper. It is
// driven by a single queue consumer, so at most one scrape runs at a time.
type Processor struct {
	auctions AuctionScraper
	listings ListingScraper
	deceases DeceaseScraper
	energy   EnergyScraper
	runs     RunRecorder // optional
}

func NewProcessor(auctions AuctionScraper, listings ListingScraper, deceases DeceaseScraper, energy EnergyScraper, runs RunRecorder) *Processor {
	return &Processor{
		auctions: auctions,
		listings: listings,
		deceases: deceases,
		energy:   energy,
		runs:     runs,
	}
}

// Handle implements queue.Handler. Unknown job names are dropped without an
// error so a stale producer cannot wedge the queue with unprocessable jobs.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	start := time.Now()
	log.Printf("[worker] job %s (%s) started, attempt %d", job.ID, job.Name, job.Attempt+1)

	runID := p.startRun(ctx, job)

	stats, err := p.dispatch(ctx, job)
	if err != nil {
		p.finishRun(ctx, runID, "failed", stats, time.Since(start))
		log.Printf("[worker] job %s (%s) failed after %s: %v", job.ID, job.Name, time.Since(start).Round(time.Millisecond), err)
		return err
	}

	p.finishRun(ctx, runID, "succeeded", stats, time.Since(start))
	log.Printf("[worker] job %s (%s) done in %s: %s", job.ID, job.Name, time.Since(start).Round(time.Millisecond), stats)
	return nil
}

func (p *Processor) dispatch(ctx context.Context, job *queue.Job) (ScrapeStats, error) {
	switch job.Name {
	case JobAuctions:
		var params AuctionJobParams
		if err := unmarshalParams(job, &params); err != nil {
			return ScrapeStats{}, err
		}
		return p.auctions.Scrape(ctx, params)

	case JobNotaryListings:
		var params ListingJobParams
		if err := unmarshalParams(job, &params); err != nil {
			return ScrapeStats{}, err
		}
		return p.listings.Scrape(ctx, params)

	case JobDeceases:
		var params DeceaseJobParams
		if err := unmarshalParams(job, &params); err != nil {
			return ScrapeStats{}, err
		}
		return p.deceases.Scrape(ctx, params)

	case JobEnergyDiagnostics:
		var params EnergyJobParams
		if err := unmarshalParams(job, &params); err != nil {
			return ScrapeStats{}, err
		}
		return p.energy.Scrape(ctx, params)

	default:
		log.Printf("[worker] unknown job name %q (job %s), dropping", job.Name, job.ID)
		return ScrapeStats{}, nil
	}
}

func unmarshalParams(job *queue.Job, dst any) error {
	if len(job.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w", job.Name, err)
	}
	return nil
}

func (p *Processor) startRun(ctx context.Context, job *queue.Job) string {
	if p.runs == nil {
		return ""
	}
	runID, err := p.runs.StartRun(ctx, job.ID, job.Name)
	if err != nil {
		log.Printf("[worker] recording run start for job %s: %v", job.ID, err)
		return ""
	}
	return runID
}

func (p *Processor) finishRun(ctx context.Context, runID, status string, stats ScrapeStats, elapsed time.Duration) {
	if p.runs == nil || runID == "" {
		return
	}
	if err := p.runs.FinishRun(ctx, runID, status, stats.Found, stats.Inserted, stats.GeocodeFailed, elapsed); err != nil {
		log.Printf("[worker] recording run end %s: %v", runID, err)
	}
}
