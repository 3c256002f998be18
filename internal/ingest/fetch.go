package ingest

import (
	"log"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// newCollector builds a rate-limited Colly collector from a source's fetch
// configuration. Scraping stays polite: one request at a time per domain,
// with a delay derived from rate_limit_rps.
func newCollector(cfg FetchConfig) *colly.Collector {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxRetries := 3
	if cfg.MaxRetries > 0 {
		maxRetries = cfg.MaxRetries
	}
	delay := 1 * time.Second
	if cfg.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}

	c := colly.NewCollector(
		colly.UserAgent(defaultUserAgent),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	})
	c.SetRequestTimeout(timeout)

	c.OnError(func(r *colly.Response, err error) {
		if r.Request.Ctx.GetAny("retries") == nil {
			r.Request.Ctx.Put("retries", 0)
		}
		retries := r.Request.Ctx.GetAny("retries").(int)
		if retries < maxRetries {
			r.Request.Ctx.Put("retries", retries+1)
			log.Printf("[fetch] retry %d/%d for %s: %v", retries+1, maxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			r.Request.Retry()
		}
	})

	return c
}
