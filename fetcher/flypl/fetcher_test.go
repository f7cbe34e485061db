package flypl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-monitor/config"
	"travel-monitor/fetcher"
	"travel-monitor/models"
	"travel-monitor/utils"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(config.FetchConfig{MaxConcurrency: 2}, utils.NewNopLogger())
}

func pageFrag(hotel string) models.RawFragment {
	return models.RawFragment{HotelName: hotel, RawPrice: "1000 zł"}
}

func TestAssemblePagesRestoresPageOrder(t *testing.T) {
	f := newTestFetcher()

	results := []pageResult{
		{page: 4, fragments: []models.RawFragment{pageFrag("Hotel D")}},
		{page: 2, fragments: []models.RawFragment{pageFrag("Hotel B")}},
		{page: 3, fragments: []models.RawFragment{pageFrag("Hotel C")}},
	}
	out, err := f.assemblePages(results, 4)
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "Hotel B", out[0].HotelName)
	assert.Equal(t, "Hotel C", out[1].HotelName)
	assert.Equal(t, "Hotel D", out[2].HotelName)
}

func TestAssemblePagesSurfacesFailedPage(t *testing.T) {
	// one lost page makes the whole batch incomplete; the fetch must fail
	// so the retry machinery sees it instead of merging a shrunken batch
	f := newTestFetcher()

	results := []pageResult{
		{page: 2, fragments: []models.RawFragment{pageFrag("Hotel B")}},
		{page: 3, err: &fetcher.FetchError{Transient: true, Err: errors.New("navigation timeout")}},
		{page: 4, fragments: []models.RawFragment{pageFrag("Hotel D")}},
	}
	_, err := f.assemblePages(results, 4)
	require.Error(t, err)
	assert.True(t, fetcher.IsTransient(err))
}

func TestPageLink(t *testing.T) {
	assert.Equal(t, "https://fly.pl/szukaj?page=2", pageLink("https://fly.pl/szukaj", 2))
	assert.Equal(t, "https://fly.pl/szukaj?q=turcja&page=3", pageLink("https://fly.pl/szukaj?q=turcja", 3))
}
