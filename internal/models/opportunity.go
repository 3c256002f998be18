// Package models defines the normalized opportunity records shared by the
// scraping services and the per-domain repositories.
package models

import "time"

// Source identifies which external collector produced a record. The values
// match the source column of the opportunity_map view.
type Source string

const (
	SourceAuction    Source = "auction"
	SourceListing    Source = "notary-listing"
	SourceSuccession Source = "succession"
	SourceEnergy     Source = "energy-diagnostic"
)

// Coordinates is a WGS84 point resolved by the geocoding adapter.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Contact is a free-form contact block attached to a record (auction house,
// notary office). Stored as JSONB.
type Contact struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// AuctionOpportunity is a property put up for judicial or voluntary auction.
// Lat/Lng are nil until the geocoding step resolves the address; records that
// fail geocoding are persisted without coordinates.
type AuctionOpportunity struct {
	ExternalID   string
	Label        string
	Description  string
	Address      string
	City         string
	ZipCode      string
	Department   int
	Lat          *float64
	Lng          *float64
	AuctionAt    time.Time
	ReservePrice *float64
	EstimateLow  *float64
	EstimateHigh *float64
	PropertyType string
	SurfaceArea  *float64
	Rooms        *int
	Venue        string
	Contact      *Contact
	PhotoURLs    []string
}

// ListingOpportunity is a property advertised by a notary office.
type ListingOpportunity struct {
	ExternalID   string
	Label        string
	Description  string
	Address      string
	City         string
	ZipCode      string
	Department   int
	Lat          *float64
	Lng          *float64
	PublishedAt  time.Time
	Price        *float64
	PropertyType string
	SurfaceArea  *float64
	Rooms        *int
	Contact      *Contact
	PhotoURLs    []string
}

// SuccessionOpportunity is derived from an INSEE death record: a potential
// estate sale in a given commune. Only city-level location is known, so
// geocoding resolves the commune centroid.
type SuccessionOpportunity struct {
	ExternalID string
	FullName   string
	BirthDate  time.Time
	DeathDate  time.Time
	City       string
	ZipCode    string
	Department int
	Lat        *float64
	Lng        *float64
	AgeAtDeath int
	SourceFile string
}

// EnergyOpportunity is an energy-performance diagnostic (DPE) filed for a
// dwelling, used to surface poorly rated properties.
type EnergyOpportunity struct {
	ExternalID       string
	Label            string
	Address          string
	City             string
	ZipCode          string
	Department       int
	Lat              *float64
	Lng              *float64
	DiagnosedAt      time.Time
	EnergyClass      string
	GESClass         string
	SurfaceArea      *float64
	ConstructionYear *int
}

// HasCoordinates reports whether both latitude and longitude are set.
func HasCoordinates(lat, lng *float64) bool {
	return lat != nil && lng != nil
}

// PointTo returns the coordinate pair as pointers, for assignment after a
// successful geocoding call.
func (c Coordinates) PointTo() (*float64, *float64) {
	lat, lng := c.Lat, c.Lng
	return &lat, &lng
}
