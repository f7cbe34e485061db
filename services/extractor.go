package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"travel-monitor/models"
	"travel-monitor/utils"
)

// ExtractionReason classifies why a fragment could not become an offer
type ExtractionReason string

const (
	ReasonMissingField    ExtractionReason = "missing_field"
	ReasonUnparsableValue ExtractionReason = "unparsable_value"
)

// ExtractionError is the typed failure for one fragment. The caller counts
// it and skips the fragment; it never aborts the batch.
type ExtractionError struct {
	Field  string
	Reason ExtractionReason
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s %s", e.Field, e.Reason)
}

var (
	numberRegex   = regexp.MustCompile(`\d[\d\s,.]*`)
	ratingRegex   = regexp.MustCompile(`\d+[.,]?\d*`)
	nightsRegex   = regexp.MustCompile(`(\d+)\s*noc`)
	daysRegex     = regexp.MustCompile(`(\d+)\s*dni`)
	numericDate   = regexp.MustCompile(`(\d{1,2})[-.](\d{1,2})[-.](\d{4})`)
	isoDate       = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	textualDate   = regexp.MustCompile(`(\d{1,2})\s+([a-ząćęłńóśźż]{3})\.?(?:\s+(\d{4}))?`)
	perPersonHint = regexp.MustCompile(`(?i)za\s*os|/\s*os\b|os\.`)
)

// Polish short month names as rendered on the source
var plMonths = map[string]time.Month{
	"sty": time.January, "lut": time.February, "mar": time.March,
	"kwi": time.April, "maj": time.May, "cze": time.June,
	"lip": time.July, "sie": time.August, "wrz": time.September,
	"paź": time.October, "pak": time.October, "lis": time.November,
	"gru": time.December,
}

// Extractor parses raw offer fragments into structured offers
type Extractor struct {
	logger *utils.Logger
	query  models.QueryParams
}

// NewExtractor creates an Extractor. The query's date window disambiguates
// fragment dates that omit the year.
func NewExtractor(query models.QueryParams, logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger, query: query}
}

// Extract converts one fragment into an offer. A missing hotel name or an
// unusable price is a hard failure; every other field degrades to absent.
func (e *Extractor) Extract(frag models.RawFragment) (*models.Offer, error) {
	name := strings.Join(strings.Fields(frag.HotelName), " ")
	if name == "" {
		return nil, &ExtractionError{Field: "hotel_name", Reason: ReasonMissingField}
	}

	rawPrice := frag.RawPrice
	if strings.TrimSpace(rawPrice) == "" {
		return nil, &ExtractionError{Field: "price", Reason: ReasonMissingField}
	}
	price, err := ParsePrice(rawPrice)
	if err != nil {
		return nil, &ExtractionError{Field: "price", Reason: ReasonUnparsableValue}
	}

	offer := &models.Offer{
		HotelName:    name,
		Price:        price,
		PriceIsTotal: !perPersonHint.MatchString(frag.RawPrice + " " + frag.Text),
		SourceURL:    strings.TrimSpace(frag.URL),
	}

	if r := e.parseDateRange(frag.RawDates); r != nil {
		offer.DateRange = r
		offer.DurationNights = r.Nights()
	}
	if offer.DurationNights <= 0 {
		offer.DurationNights = parseDuration(frag.RawDuration)
	}
	if offer.DateRange == nil && frag.RawDates != "" {
		e.logger.Debug("Keeping offer %q without parseable dates (%q)", name, frag.RawDates)
	}

	if rating, ok := parseRating(frag.RawRating); ok {
		offer.Rating = &rating
	}

	return offer, nil
}

// ParsePrice extracts a positive decimal amount from a currency string
// like "6 354 zł", "6.354,00 PLN" or "6354". Spaces and NBSP are thousands
// separators; the last of "," or "." is the decimal separator.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' {
			return ' '
		}
		return r
	}, raw)

	match := numberRegex.FindString(cleaned)
	if match == "" {
		return decimal.Zero, fmt.Errorf("no number in %q", raw)
	}
	match = strings.TrimRight(strings.ReplaceAll(match, " ", ""), ",.")
	match = normalizeSeparators(match)

	value, err := decimal.NewFromString(match)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", match, err)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive amount %q", match)
	}
	return value, nil
}

// normalizeSeparators rewrites a localized amount into decimal syntax.
// When both "," and "." appear, the later one is the decimal separator.
// A lone separator followed by exactly three digits is read as a thousands
// separator ("6.354" == 6354), matching how the source renders prices.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	decimalSep := byte(0)
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			decimalSep = ','
		} else {
			decimalSep = '.'
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			decimalSep = ','
		}
	case lastDot >= 0:
		if strings.Count(s, ".") == 1 && len(s)-lastDot-1 != 3 {
			decimalSep = '.'
		}
	default:
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ',', '.':
			if decimalSep != 0 && i == strings.LastIndexByte(s, decimalSep) && s[i] == decimalSep {
				b.WriteByte('.')
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// parseDateRange accepts "24-09-2025 - 01-10-2025", dotted and ISO
// variants, and Polish textual dates like "24 wrz - 1 paź". Years omitted
// from textual dates are inferred from the query's date window.
func (e *Extractor) parseDateRange(raw string) *models.DateRange {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.ToLower(raw)

	dates := parseNumericDates(raw)
	if len(dates) == 0 {
		dates = e.parseTextualDates(raw)
	}
	switch len(dates) {
	case 0:
		return nil
	case 1:
		return nil // a single date carries no stay length
	default:
		start, end := dates[0], dates[1]
		if !end.After(start) {
			return nil
		}
		return &models.DateRange{Start: start, End: end}
	}
}

func parseNumericDates(raw string) []time.Time {
	var out []time.Time
	for _, m := range isoDate.FindAllStringSubmatch(raw, 2) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, month, day); ok {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range numericDate.FindAllStringSubmatch(raw, 2) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, month, day); ok {
			out = append(out, t)
		}
	}
	return out
}

func (e *Extractor) parseTextualDates(raw string) []time.Time {
	var out []time.Time
	for _, m := range textualDate.FindAllStringSubmatch(raw, 2) {
		month, ok := plMonths[m[2]]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		year := 0
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		} else {
			year = e.inferYear(month)
		}
		if t, ok := makeDate(year, int(month), day); ok {
			out = append(out, t)
		}
	}
	return out
}

// inferYear picks the year that lands the month inside (or nearest after)
// the query's requested window
func (e *Extractor) inferYear(month time.Month) int {
	from, err := time.Parse("2006-01-02", e.query.DateFrom)
	if err != nil {
		return time.Now().Year()
	}
	if month < from.Month() {
		return from.Year() + 1
	}
	return from.Year()
}

func makeDate(year, month, day int) (time.Time, bool) {
	if year < 2000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject normalized overflow like Feb 31
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// parseDuration reads "7 nocy" as 7 nights and "8 dni" as 7 nights
func parseDuration(raw string) int {
	raw = strings.ToLower(raw)
	if m := nightsRegex.FindStringSubmatch(raw); len(m) == 2 {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := daysRegex.FindStringSubmatch(raw); len(m) == 2 {
		n, _ := strconv.Atoi(m[1])
		if n > 0 {
			return n - 1
		}
	}
	return 0
}

func parseRating(raw string) (float64, bool) {
	match := ratingRegex.FindString(raw)
	if match == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", "."), 64)
	if err != nil || value <= 0 || value > 10 {
		return 0, false
	}
	return value, true
}
