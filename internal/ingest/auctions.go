package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// AuctionService crawls the judicial auction calendar and stores upcoming
// lots as auction opportunities.
type AuctionService struct {
	cfg     SourceConfig
	repo    AuctionRepository
	geo     Geocoder
	refresh RefreshScheduler
}

func NewAuctionService(cfg SourceConfig, repo AuctionRepository, geo Geocoder, refresh RefreshScheduler) *AuctionService {
	return &AuctionService{cfg: cfg, repo: repo, geo: geo, refresh: refresh}
}

// Scrape crawls calendar pages startPage..endPage, skips lots already in the
// table, geocodes the rest and inserts them. An empty page ends the crawl
// early. Geocoding failures never drop a lot.
func (s *AuctionService) Scrape(ctx context.Context, params AuctionJobParams) (ScrapeStats, error) {
	var stats ScrapeStats

	startPage := params.StartPage
	if startPage < 1 {
		startPage = 1
	}
	endPage := params.EndPage
	if endPage < startPage {
		endPage = startPage + s.cfg.MaxPages - 1
		if s.cfg.MaxPages <= 0 {
			endPage = startPage
		}
	}

	ids, err := s.repo.GetAllExternalIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading known auction ids: %w", err)
	}
	existing := newExistingIDSet(ids)

	var (
		lots      []models.AuctionOpportunity
		pageCount int
		parseErrs int
	)

	c := newCollector(s.cfg.Fetch)
	c.OnHTML(s.cfg.Selectors.Container, func(e *colly.HTMLElement) {
		pageCount++
		lot, err := auctionFromSelection(e.DOM, s.cfg.Selectors, e.Request.URL)
		if err != nil {
			parseErrs++
			log.Printf("[auctions] skipping lot on %s: %v", e.Request.URL, err)
			return
		}
		stats.Found++
		if existing.has(lot.ExternalID) {
			return
		}
		existing[lot.ExternalID] = struct{}{}
		lots = append(lots, lot)
	})

	for page := startPage; page <= endPage; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pageCount = 0
		pageURL := fmt.Sprintf("%s/ventes-judiciaires?page=%d", strings.TrimRight(s.cfg.BaseURL, "/"), page)
		if err := c.Visit(pageURL); err != nil {
			log.Printf("[auctions] page %d failed: %v", page, err)
			continue
		}
		if pageCount == 0 {
			log.Printf("[auctions] page %d is empty, stopping crawl", page)
			break
		}
	}

	stats.New = len(lots)
	if parseErrs > 0 {
		log.Printf("[auctions] %d lots skipped due to parse errors", parseErrs)
	}
	if len(lots) == 0 {
		log.Printf("[auctions] no new lots: %s", stats)
		return stats, nil
	}

	for i := range lots {
		lot := &lots[i]
		if len(lot.PhotoURLs) > 0 {
			stats.WithMedia++
		}
		if models.HasCoordinates(lot.Lat, lot.Lng) {
			continue
		}
		coords, err := s.geo.Geocode(ctx, auctionGeocodeQuery(lot))
		if err != nil {
			stats.GeocodeFailed++
			continue
		}
		lot.Lat, lot.Lng = coords.PointTo()
		stats.Geocoded++
	}

	inserted, err := s.repo.InsertOpportunities(ctx, lots, 0)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("inserting auction opportunities: %w", err)
	}

	if inserted > 0 {
		if err := s.refresh.Schedule(ctx); err != nil {
			log.Printf("[auctions] scheduling map refresh: %v", err)
		}
	}

	log.Printf("[auctions] scrape complete: %s", stats)
	return stats, nil
}

func auctionGeocodeQuery(lot *models.AuctionOpportunity) string {
	parts := make([]string, 0, 3)
	if lot.Address != "" {
		parts = append(parts, lot.Address)
	}
	if lot.ZipCode != "" {
		parts = append(parts, lot.ZipCode)
	}
	if lot.City != "" {
		parts = append(parts, lot.City)
	}
	return strings.Join(parts, " ")
}

// auctionFromSelection extracts one lot from its list-page wrapper element.
func auctionFromSelection(sel *goquery.Selection, cfg SelectorConfig, pageURL *url.URL) (models.AuctionOpportunity, error) {
	var lot models.AuctionOpportunity

	href, _ := sel.Find(cfg.Link).First().Attr("href")
	lot.ExternalID = auctionExternalID(href)
	if lot.ExternalID == "" {
		return lot, errors.New("no lot reference in link")
	}

	lot.Label = cleanText(sel.Find(cfg.Label).First().Text())
	if lot.Label == "" {
		return lot, fmt.Errorf("lot %s has no label", lot.ExternalID)
	}
	lot.Description = cleanText(sel.Find(cfg.Description).First().Text())

	street, zip, city := splitAddress(sel.Find(cfg.Address).First().Text())
	lot.Address = street
	lot.ZipCode = zip
	lot.City = city
	lot.Department = departmentFromZip(zip)

	dateText := cleanText(sel.Find(cfg.Date).First().Text())
	auctionAt, ok := parseFrenchDate(dateText)
	if !ok {
		return lot, fmt.Errorf("lot %s has unparseable sale date %q", lot.ExternalID, dateText)
	}
	lot.AuctionAt = auctionAt

	lot.ReservePrice = parseEuroAmount(sel.Find(cfg.Price).First().Text())
	lot.SurfaceArea = parseEuroAmount(sel.Find(cfg.Surface).First().Text())
	if roomsText := cleanText(sel.Find(cfg.Rooms).First().Text()); roomsText != "" {
		lot.Rooms = parseIntPtr(strings.Fields(roomsText)[0])
	}
	lot.Venue = cleanText(sel.Find(cfg.Venue).First().Text())

	sel.Find(cfg.Photo).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		lot.PhotoURLs = append(lot.PhotoURLs, absoluteURL(pageURL, src))
	})

	return lot, nil
}

// auctionExternalID derives a stable id from the lot detail link, e.g.
// "/vente/vl-123456.html" -> "licitor-vl-123456".
func auctionExternalID(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	slug := strings.Trim(href, "/")
	if i := strings.LastIndex(slug, "/"); i >= 0 {
		slug = slug[i+1:]
	}
	slug = strings.TrimSuffix(slug, ".html")
	if slug == "" {
		return ""
	}
	return "licitor-" + slug
}

func absoluteURL(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
