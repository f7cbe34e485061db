package models

import (
	"crypto/sha256"
	"fmt"
)

// QueryParams describes one recurring travel search
type QueryParams struct {
	Destination string
	DateFrom    string // YYYY-MM-DD, earliest departure
	DateTo      string // YYYY-MM-DD, latest return
	Adults      int
	Children    int
	PriceMin    float64
	PriceMax    float64
	MaxOffers   int // pagination limit per collection run
	SearchURL   string
}

// Fingerprint returns a stable identifier of the search parameters that
// produced a batch. Offers persisted under different fingerprints are never
// compared by the analyzer.
func (q QueryParams) Fingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d|%.2f|%.2f",
		q.Destination, q.DateFrom, q.DateTo, q.Adults, q.Children, q.PriceMin, q.PriceMax)))
	return fmt.Sprintf("%x", sum[:8])
}
