// Package api exposes the ops HTTP surface: health, queue depth, the runs
// journal and manual job submission.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/db"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/ingest"
	"github.com/greg-easycraft/linkinvests-sourcing/internal/queue"
)

var knownJobs = map[string]bool{
	ingest.JobAuctions:          true,
	ingest.JobNotaryListings:    true,
	ingest.JobDeceases:          true,
	ingest.JobEnergyDiagnostics: true,
}

// Server is the ops API. It never serves opportunity data; the map frontend
// reads the database directly.
type Server struct {
	echo     *echo.Echo
	scraping *queue.Queue
	refresh  *queue.Queue
	runs     *db.RunStore
}

func New(scraping, refresh *queue.Queue, runs *db.RunStore) *Server {
	s := &Server{
		echo:     echo.New(),
		scraping: scraping,
		refresh:  refresh,
		runs:     runs,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())

	s.echo.GET("/health", s.health)
	v1 := s.echo.Group("/api/v1")
	v1.GET("/queues", s.queueStats)
	v1.GET("/runs", s.recentRuns)
	v1.POST("/jobs/:name", s.submitJob)

	return s
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.echo.Start(addr)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) queueStats(c echo.Context) error {
	ctx := c.Request().Context()

	out := make([]queue.Stats, 0, 2)
	for _, q := range []*queue.Queue{s.scraping, s.refresh} {
		stats, err := q.Stats(ctx)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		out = append(out, stats)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) recentRuns(c echo.Context) error {
	runs, err := s.runs.RecentRuns(c.Request().Context(), 50)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []db.SourcingRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

// submitJob enqueues one sourcing job by name, with the request body as the
// job payload. Meant for manual backfills and testing.
func (s *Server) submitJob(c echo.Context) error {
	name := c.Param("name")
	if !knownJobs[name] {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job name: "+name)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var payload any
	if len(body) > 0 {
		var raw json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "payload must be valid JSON")
		}
		payload = raw
	}

	id, err := s.scraping.Enqueue(c.Request().Context(), name, payload)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"jobId": id, "job": name})
}
