package storage

import (
	"context"
	"fmt"
	"time"

	"travel-monitor/models"
)

// MergeStamp is the collection-time identity the store assigns to every
// row of one batch. All rows of a merge share one stamp; distinct stamps
// are what the analyzer treats as distinct runs.
type MergeStamp struct {
	ScrapedAt   time.Time
	Fingerprint string
}

// Filter narrows a history read. Zero values match everything.
type Filter struct {
	Fingerprint string
	Since       time.Time
	Until       time.Time
}

// HistoryStore is the append-only historical dataset of offers
type HistoryStore interface {
	// Merge stamps the batch, collapses within-run duplicates and appends
	// the survivors. Re-merging the same batch under the same stamp is
	// idempotent. On mid-write failure the result reports how many rows
	// were committed before the error.
	Merge(ctx context.Context, batch []*models.Offer, stamp MergeStamp) (models.MergeResult, error)

	// ReadHistory streams persisted offers ordered by scraped_at
	// ascending, invoking fn for each row that matches the filter.
	// A non-nil error from fn stops the scan and is returned unchanged.
	ReadHistory(ctx context.Context, filter Filter, fn func(models.Offer) error) error

	Close() error
}

// MergeError reports a failed merge along with how many rows of the batch
// were durably committed before the failure
type MergeError struct {
	Persisted int
	Err       error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed after %d committed rows: %v", e.Persisted, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }
