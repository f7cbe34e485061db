package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"travel-monitor/models"
	"travel-monitor/utils"
)

// header is the fixed column set of the history file. New columns may only
// be appended at the end; readers resolve columns by name so older files
// stay readable.
var header = []string{
	"hotel_name", "price", "price_is_total", "date_start", "date_end",
	"duration_nights", "rating", "source_url", "query_fingerprint", "scraped_at",
}

const (
	dateLayout  = "2006-01-02"
	stampLayout = time.RFC3339
)

// CSVStore is the append-only CSV-backed history store. A single writer
// (the active tick) is serialized by a mutex; readers open independent
// file handles and tolerate a torn trailing row.
type CSVStore struct {
	path   string
	logger *utils.Logger
	mu     sync.Mutex
}

// NewCSVStore creates the store, ensuring the data directory exists
func NewCSVStore(path string, logger *utils.Logger) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &CSVStore{path: path, logger: logger}, nil
}

// Merge appends the batch's non-duplicate rows to the history file.
// Within-run duplicates are rows whose identity key was already seen in
// this batch or already persisted under the same stamp; the latter makes
// re-merging after a crash produce zero net new rows. Each row is written
// with a single file write so readers never observe a partial row.
func (s *CSVStore) Merge(ctx context.Context, batch []*models.Offer, stamp MergeStamp) (models.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result models.MergeResult
	if err := ctx.Err(); err != nil {
		return result, &MergeError{Err: err}
	}

	seen, err := s.persistedKeys(ctx, stamp)
	if err != nil {
		return result, &MergeError{Err: err}
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return result, &MergeError{Err: fmt.Errorf("failed to open history file: %w", err)}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return result, &MergeError{Err: fmt.Errorf("failed to stat history file: %w", err)}
	}
	if info.Size() == 0 {
		if err := writeRecord(file, header); err != nil {
			return result, &MergeError{Err: fmt.Errorf("failed to write header: %w", err)}
		}
	}

	for _, offer := range batch {
		offer.ScrapedAt = stamp.ScrapedAt
		offer.QueryFingerprint = stamp.Fingerprint

		key := offer.IdentityKey()
		if seen[key] {
			result.WithinRunDuplicates++
			continue
		}
		seen[key] = true

		if err := writeRecord(file, encodeOffer(offer)); err != nil {
			return result, &MergeError{Persisted: result.Persisted, Err: err}
		}
		result.Persisted++
	}

	if err := file.Sync(); err != nil {
		return result, &MergeError{Persisted: result.Persisted, Err: fmt.Errorf("failed to sync history file: %w", err)}
	}

	s.logger.Info("Merged batch: %d persisted, %d within-run duplicates",
		result.Persisted, result.WithinRunDuplicates)
	return result, nil
}

// ReadHistory streams rows ascending by scraped_at. Appends happen in
// stamp order, so file order is already the required order.
func (s *CSVStore) ReadHistory(ctx context.Context, filter Filter, fn func(models.Offer) error) error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(head))
	for i, name := range head {
		cols[name] = i
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// A torn trailing row from an interrupted write is not an
			// error; anything else malformed is skipped and logged.
			s.logger.Warn("Skipping unreadable history row: %v", err)
			continue
		}
		offer, err := decodeOffer(record, cols)
		if err != nil {
			s.logger.Warn("Skipping malformed history row: %v", err)
			continue
		}
		if !matches(offer, filter) {
			continue
		}
		if err := fn(offer); err != nil {
			return err
		}
	}
}

// Close is a no-op: the store holds no open handles between calls
func (s *CSVStore) Close() error { return nil }

// persistedKeys collects identity keys of rows already written under the
// given stamp, seeding within-run dedup across crash-recovery re-merges.
func (s *CSVStore) persistedKeys(ctx context.Context, stamp MergeStamp) (map[string]bool, error) {
	seen := make(map[string]bool)
	err := s.ReadHistory(ctx, Filter{Fingerprint: stamp.Fingerprint}, func(o models.Offer) error {
		if o.ScrapedAt.Equal(stamp.ScrapedAt) {
			seen[o.IdentityKey()] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return seen, nil
}

// writeRecord encodes one record and commits it with a single write call
func writeRecord(file *os.File, record []string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	return nil
}

func encodeOffer(o *models.Offer) []string {
	dateStart, dateEnd := "", ""
	if o.DateRange != nil {
		dateStart = o.DateRange.Start.Format(dateLayout)
		dateEnd = o.DateRange.End.Format(dateLayout)
	}
	rating := ""
	if o.Rating != nil {
		rating = strconv.FormatFloat(*o.Rating, 'f', -1, 64)
	}
	return []string{
		o.HotelName,
		o.Price.String(),
		strconv.FormatBool(o.PriceIsTotal),
		dateStart,
		dateEnd,
		strconv.Itoa(o.DurationNights),
		rating,
		o.SourceURL,
		o.QueryFingerprint,
		o.ScrapedAt.Format(stampLayout),
	}
}

func decodeOffer(record []string, cols map[string]int) (models.Offer, error) {
	field := func(name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var offer models.Offer
	offer.HotelName = field("hotel_name")
	if offer.HotelName == "" {
		return offer, errors.New("empty hotel_name")
	}

	price, err := decimal.NewFromString(field("price"))
	if err != nil {
		return offer, fmt.Errorf("bad price %q: %w", field("price"), err)
	}
	offer.Price = price

	offer.PriceIsTotal = field("price_is_total") != "false"

	if start := field("date_start"); start != "" {
		startT, err1 := time.Parse(dateLayout, start)
		endT, err2 := time.Parse(dateLayout, field("date_end"))
		if err1 == nil && err2 == nil {
			offer.DateRange = &models.DateRange{Start: startT, End: endT}
		}
	}
	if nights := field("duration_nights"); nights != "" {
		offer.DurationNights, _ = strconv.Atoi(nights)
	}
	if rating := field("rating"); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err == nil {
			offer.Rating = &v
		}
	}
	offer.SourceURL = field("source_url")
	offer.QueryFingerprint = field("query_fingerprint")

	scrapedAt, err := time.Parse(stampLayout, field("scraped_at"))
	if err != nil {
		return offer, fmt.Errorf("bad scraped_at %q: %w", field("scraped_at"), err)
	}
	offer.ScrapedAt = scrapedAt
	return offer, nil
}

func matches(o models.Offer, f Filter) bool {
	if f.Fingerprint != "" && o.QueryFingerprint != f.Fingerprint {
		return false
	}
	if !f.Since.IsZero() && o.ScrapedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && o.ScrapedAt.After(f.Until) {
		return false
	}
	return true
}
