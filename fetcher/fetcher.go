// Package fetcher defines the boundary to the external offer source:
// given search parameters, return raw offer fragments.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"travel-monitor/models"
)

// Searcher is the capability contract the pipeline depends on. The
// production implementation drives a headless browser; tests substitute
// fakes.
type Searcher interface {
	Search(ctx context.Context, params models.QueryParams) ([]models.RawFragment, error)
}

// FetchError classifies a failed fetch. Transient failures (timeouts,
// empty render, structure drift) are retried by the scheduler; permanent
// ones (malformed query) abort the tick.
type FetchError struct {
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s fetch failure: %v", kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a fetch failure worth retrying
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}
