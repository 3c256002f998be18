package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

type fakeAuctions struct {
	calls []AuctionJobParams
	stats ScrapeStats
	err   error
}

func (f *fakeAuctions) Scrape(ctx context.Context, p AuctionJobParams) (ScrapeStats, error) {
	f.calls = append(f.calls, p)
	return f.stats, f.err
}

type fakeListings struct {
	calls []ListingJobParams
	err   error
}

func (f *fakeListings) Scrape(ctx context.Context, p ListingJobParams) (ScrapeStats, error) {
	f.calls = append(f.calls, p)
	return ScrapeStats{}, f.err
}

type fakeDeceases struct {
	calls []DeceaseJobParams
}

func (f *fakeDeceases) Scrape(ctx context.Context, p DeceaseJobParams) (ScrapeStats, error) {
	f.calls = append(f.calls, p)
	return ScrapeStats{}, nil
}

type fakeEnergy struct {
	calls []EnergyJobParams
}

func (f *fakeEnergy) Scrape(ctx context.Context, p EnergyJobParams) (ScrapeStats, error) {
	f.calls = append(f.calls, p)
	return ScrapeStats{}, nil
}

type fakeRuns struct {
	started  []string // job names
	statuses []string
	inserted []int
}

func (f *fakeRuns) StartRun(ctx context.Context, jobID, jobName string) (string, error) {
	f.started = append(f.started, jobName)
	return "run-1", nil
}

func (f *fakeRuns) FinishRun(ctx context.Context, runID, status string, found, inserted, geocodeFailures int, duration time.Duration) error {
	f.statuses = append(f.statuses, status)
	f.inserted = append(f.inserted, inserted)
	return nil
}

func newTestProcessor() (*Processor, *fakeAuctions, *fakeListings, *fakeDeceases, *fakeEnergy, *fakeRuns) {
	a := &fakeAuctions{}
	l := &fakeListings{}
	d := &fakeDeceases{}
	e := &fakeEnergy{}
	r := &fakeRuns{}
	return NewProcessor(a, l, d, e, r), a, l, d, e, r
}

func job(name, payload string) *queue.Job {
	j := &queue.Job{ID: "job-1", Name: name, MaxAttempts: 3}
	if payload != "" {
		j.Payload = json.RawMessage(payload)
	}
	return j
}

func TestHandle_DispatchesByName(t *testing.T) {
	p, a, l, d, e, _ := newTestProcessor()
	ctx := context.Background()

	if err := p.Handle(ctx, job(JobAuctions, `{"startPage":2,"endPage":5}`)); err != nil {
		t.Fatalf("auctions job failed: %v", err)
	}
	if len(a.calls) != 1 || a.calls[0].StartPage != 2 || a.calls[0].EndPage != 5 {
		t.Errorf("auction params not forwarded: %+v", a.calls)
	}

	if err := p.Handle(ctx, job(JobNotaryListings, `{"departmentId":33}`)); err != nil {
		t.Fatalf("listings job failed: %v", err)
	}
	if len(l.calls) != 1 || l.calls[0].DepartmentID != 33 {
		t.Errorf("listing params not forwarded: %+v", l.calls)
	}

	if err := p.Handle(ctx, job(JobDeceases, `{"sourceFile":"deaths.csv","sinceDate":"2026-01-01"}`)); err != nil {
		t.Fatalf("deceases job failed: %v", err)
	}
	if len(d.calls) != 1 || d.calls[0].SourceFile != "deaths.csv" || d.calls[0].SinceDate != "2026-01-01" {
		t.Errorf("decease params not forwarded: %+v", d.calls)
	}

	if err := p.Handle(ctx, job(JobEnergyDiagnostics, `{"departmentId":75}`)); err != nil {
		t.Fatalf("energy job failed: %v", err)
	}
	if len(e.calls) != 1 || e.calls[0].DepartmentID != 75 {
		t.Errorf("energy params not forwarded: %+v", e.calls)
	}
}

func TestHandle_UnknownJobIsDropped(t *testing.T) {
	p, a, l, d, e, _ := newTestProcessor()

	// Unknown names must not error: an error would spin the retry loop on a
	// job no handler will ever accept.
	if err := p.Handle(context.Background(), job("reindex-everything", `{}`)); err != nil {
		t.Fatalf("unknown job should be a no-op, got %v", err)
	}
	if len(a.calls)+len(l.calls)+len(d.calls)+len(e.calls) != 0 {
		t.Error("unknown job must not reach any scraper")
	}
}

func TestHandle_ServiceErrorPropagates(t *testing.T) {
	p, a, _, _, _, r := newTestProcessor()
	boom := errors.New("site unreachable")
	a.err = boom

	err := p.Handle(context.Background(), job(JobAuctions, `{}`))
	if !errors.Is(err, boom) {
		t.Fatalf("expected scraper error to propagate, got %v", err)
	}
	if len(r.statuses) != 1 || r.statuses[0] != "failed" {
		t.Errorf("run not recorded as failed: %v", r.statuses)
	}
}

func TestHandle_BadPayloadErrors(t *testing.T) {
	p, a, _, _, _, _ := newTestProcessor()

	if err := p.Handle(context.Background(), job(JobAuctions, `{"startPage":"two"}`)); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
	if len(a.calls) != 0 {
		t.Error("malformed payload must not reach the scraper")
	}
}

func TestHandle_RecordsSuccessfulRun(t *testing.T) {
	p, a, _, _, _, r := newTestProcessor()
	a.stats = ScrapeStats{Found: 10, Inserted: 7}

	if err := p.Handle(context.Background(), job(JobAuctions, "")); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(r.started) != 1 || r.started[0] != JobAuctions {
		t.Errorf("run start not recorded: %v", r.started)
	}
	if len(r.statuses) != 1 || r.statuses[0] != "succeeded" {
		t.Errorf("run end not recorded: %v", r.statuses)
	}
	if r.inserted[0] != 7 {
		t.Errorf("inserted counter = %d, want 7", r.inserted[0])
	}
}

func TestHandle_NilRunRecorder(t *testing.T) {
	a := &fakeAuctions{}
	p := NewProcessor(a, &fakeListings{}, &fakeDeceases{}, &fakeEnergy{}, nil)

	if err := p.Handle(context.Background(), job(JobAuctions, "")); err != nil {
		t.Fatalf("Handle with nil recorder failed: %v", err)
	}
}
