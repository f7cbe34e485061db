package models

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/shopspring/decimal"
)

// RawFragment represents one semi-structured offer block as returned by the
// fetcher, before extraction
type RawFragment struct {
	Text        string // full inner text of the offer block
	HotelName   string
	RawPrice    string // e.g. "6 354 zł"
	RawDates    string // e.g. "24-09-2025 - 01-10-2025" or "24 wrz"
	RawDuration string // e.g. "7 dni"
	RawRating   string // e.g. "4.5"
	URL         string
}

// DateRange holds the travel dates of an offer
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Nights returns the number of nights covered by the range
func (r DateRange) Nights() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Offer represents one observed listing at one point in time,
// extracted and normalized, ready for the history store
type Offer struct {
	HotelName        string
	Price            decimal.Decimal
	PriceIsTotal     bool
	DateRange        *DateRange // nil when dates were unparsable
	DurationNights   int        // 0 when unknown
	Rating           *float64   // nil when absent
	SourceURL        string
	QueryFingerprint string    // set by the store at merge time
	ScrapedAt        time.Time // set by the store at merge time
}

// IdentityKey returns the stable hash used to collapse duplicate listings
// within a single collection batch. Re-observations across runs produce the
// same key but are persisted anyway; only same-batch repeats are suppressed.
func (o *Offer) IdentityKey() string {
	h := fnv.New64a()
	dates := ""
	if o.DateRange != nil {
		dates = o.DateRange.Start.Format("2006-01-02") + ".." + o.DateRange.End.Format("2006-01-02")
	}
	fmt.Fprintf(h, "%s|%s|%s|%d|%s",
		o.HotelName, o.Price.String(), dates, o.DurationNights, o.QueryFingerprint)
	return fmt.Sprintf("%016x", h.Sum64())
}

// MergeResult reports the outcome of merging one batch into the store
type MergeResult struct {
	Persisted           int
	WithinRunDuplicates int
}
