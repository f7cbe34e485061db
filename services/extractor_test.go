package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-monitor/models"
	"travel-monitor/utils"
)

func testQuery() models.QueryParams {
	return models.QueryParams{
		Destination: "Turcja",
		DateFrom:    "2025-09-20",
		DateTo:      "2025-10-05",
		Adults:      2,
		MaxOffers:   20,
	}
}

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	return NewExtractor(testQuery(), utils.NewNopLogger())
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"6354 zł", "6354"},
		{"6 354 zł", "6354"},
		{"6 354 zł", "6354"},
		{"6.354 PLN", "6354"},
		{"6,354", "6354"},
		{"1.234.567 zł", "1234567"},
		{"2399,50 zł", "2399.5"},
		{"2399.50", "2399.5"},
		{"1.234,99 zł", "1234.99"},
		{"od 4 999 zł/os", "4999"},
	}
	for _, tc := range cases {
		got, err := ParsePrice(tc.raw)
		require.NoError(t, err, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got.String(), "raw=%q", tc.raw)
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, raw := range []string{"", "invalid", "brak ceny", "0 zł"} {
		_, err := ParsePrice(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestExtractCompleteFragment(t *testing.T) {
	e := newTestExtractor(t)

	offer, err := e.Extract(models.RawFragment{
		HotelName:   "  Hotel   Aquamarine  ",
		RawPrice:    "6 354 zł",
		RawDates:    "24-09-2025 - 01-10-2025",
		RawDuration: "8 dni",
		RawRating:   "4,5",
		URL:         "https://fly.pl/oferta/aquamarine",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hotel Aquamarine", offer.HotelName)
	assert.Equal(t, "6354", offer.Price.String())
	assert.True(t, offer.PriceIsTotal)
	require.NotNil(t, offer.DateRange)
	assert.Equal(t, time.Date(2025, 9, 24, 0, 0, 0, 0, time.UTC), offer.DateRange.Start)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), offer.DateRange.End)
	assert.Equal(t, 7, offer.DurationNights)
	require.NotNil(t, offer.Rating)
	assert.InDelta(t, 4.5, *offer.Rating, 0.001)
	assert.Equal(t, "https://fly.pl/oferta/aquamarine", offer.SourceURL)
}

func TestExtractMissingHotelNameIsHardFailure(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(models.RawFragment{HotelName: "   ", RawPrice: "1000 zł"})
	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "hotel_name", exErr.Field)
	assert.Equal(t, ReasonMissingField, exErr.Reason)
}

func TestExtractUnparsablePriceIsHardFailure(t *testing.T) {
	e := newTestExtractor(t)

	_, err := e.Extract(models.RawFragment{HotelName: "Hotel B", RawPrice: "invalid"})
	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "price", exErr.Field)
	assert.Equal(t, ReasonUnparsableValue, exErr.Reason)
}

func TestExtractKeepsOfferWithoutParseableDates(t *testing.T) {
	e := newTestExtractor(t)

	offer, err := e.Extract(models.RawFragment{
		HotelName: "Hotel C",
		RawPrice:  "2500 zł",
		RawDates:  "termin do uzgodnienia",
	})
	require.NoError(t, err)
	assert.Nil(t, offer.DateRange)
	assert.Equal(t, 0, offer.DurationNights)
}

func TestExtractPolishTextualDates(t *testing.T) {
	e := newTestExtractor(t)

	offer, err := e.Extract(models.RawFragment{
		HotelName: "Hotel D",
		RawPrice:  "3100 zł",
		RawDates:  "24 wrz - 1 paź",
	})
	require.NoError(t, err)
	require.NotNil(t, offer.DateRange)
	// year inferred from the query window
	assert.Equal(t, time.Date(2025, 9, 24, 0, 0, 0, 0, time.UTC), offer.DateRange.Start)
	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), offer.DateRange.End)
	assert.Equal(t, 7, offer.DurationNights)
}

func TestExtractTextualDateCrossingYearBoundary(t *testing.T) {
	e := NewExtractor(models.QueryParams{
		DateFrom: "2025-12-20",
		DateTo:   "2026-01-10",
	}, utils.NewNopLogger())

	offer, err := e.Extract(models.RawFragment{
		HotelName: "Hotel E",
		RawPrice:  "4200 zł",
		RawDates:  "28 gru - 4 sty",
	})
	require.NoError(t, err)
	require.NotNil(t, offer.DateRange)
	assert.Equal(t, 2025, offer.DateRange.Start.Year())
	assert.Equal(t, 2026, offer.DateRange.End.Year())
}

func TestExtractPerPersonPricing(t *testing.T) {
	e := newTestExtractor(t)

	offer, err := e.Extract(models.RawFragment{
		HotelName: "Hotel F",
		RawPrice:  "2 999 zł za osobę",
	})
	require.NoError(t, err)
	assert.False(t, offer.PriceIsTotal)
}

func TestExtractDurationFromNights(t *testing.T) {
	e := newTestExtractor(t)

	offer, err := e.Extract(models.RawFragment{
		HotelName:   "Hotel G",
		RawPrice:    "1800 zł",
		RawDuration: "7 nocy",
	})
	require.NoError(t, err)
	assert.Equal(t, 7, offer.DurationNights)
}
