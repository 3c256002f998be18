// Package geocode resolves free-text French addresses to coordinates via the
// BAN address API (api-adresse.data.gouv.fr).
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/greg-easycraft/linkinvests-sourcing/internal/models"
)

// ErrNoMatch is returned when the API yields no usable feature for a query.
// Callers treat any geocoding error as "keep the record without coordinates";
// errors never abort a scrape.
var ErrNoMatch = errors.New("no matching address")

// Client calls the address search endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a geocoding client for the given base URL
// (e.g. https://api-adresse.data.gouv.fr).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// featureCollection mirrors the GeoJSON response of the /search endpoint.
type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	Geometry struct {
		Coordinates []float64 `json:"coordinates"` // [lon, lat]
	} `json:"geometry"`
	Properties struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"properties"`
}

// Geocode resolves an address to the best-scored candidate's coordinates.
func (c *Client) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("limit", "5")

	reqURL := fmt.Sprintf("%s/search/?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Coordinates{}, fmt.Errorf("address search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Coordinates{}, fmt.Errorf("address API returned %d: %s", resp.StatusCode, string(body))
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return models.Coordinates{}, fmt.Errorf("decoding address response: %w", err)
	}

	best, ok := bestFeature(fc.Features)
	if !ok {
		return models.Coordinates{}, fmt.Errorf("geocoding %q: %w", address, ErrNoMatch)
	}

	return models.Coordinates{
		Lat: best.Geometry.Coordinates[1],
		Lng: best.Geometry.Coordinates[0],
	}, nil
}

// bestFeature picks the highest-scored feature carrying a valid point.
func bestFeature(features []feature) (feature, bool) {
	var best feature
	found := false
	for _, f := range features {
		if len(f.Geometry.Coordinates) != 2 {
			continue
		}
		if !found || f.Properties.Score > best.Properties.Score {
			best = f
			found = true
		}
	}
	return best, found
}
