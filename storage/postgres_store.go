package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"travel-monitor/models"
	"travel-monitor/utils"
)

// PostgresStore mirrors merged offers into PostgreSQL for ad-hoc SQL
// analysis. The CSV file stays the source of truth: mirror failures are
// logged by the caller and never fail a tick.
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgresStore connects, pings and prepares the offers table
func NewPostgresStore(connStr string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	store := &PostgresStore{db: db, logger: logger}
	if err := store.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Connected to PostgreSQL mirror")
	return store, nil
}

func (s *PostgresStore) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS offers (
		id                SERIAL PRIMARY KEY,
		hotel_name        TEXT          NOT NULL,
		price             NUMERIC(12,2) NOT NULL,
		price_is_total    BOOLEAN       NOT NULL DEFAULT TRUE,
		date_start        DATE,
		date_end          DATE,
		duration_nights   INTEGER       DEFAULT 0,
		rating            NUMERIC(4,2),
		source_url        TEXT,
		query_fingerprint VARCHAR(32)   NOT NULL,
		scraped_at        TIMESTAMPTZ   NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_offers_fingerprint ON offers (query_fingerprint);
	CREATE INDEX IF NOT EXISTS idx_offers_scraped_at  ON offers (scraped_at);
	CREATE INDEX IF NOT EXISTS idx_offers_hotel       ON offers (hotel_name);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create offers table: %w", err)
	}
	return nil
}

// Insert mirrors already-merged rows in a single transaction
func (s *PostgresStore) Insert(ctx context.Context, offers []*models.Offer) error {
	if len(offers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO offers (hotel_name, price, price_is_total, date_start, date_end,
			duration_nights, rating, source_url, query_fingerprint, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range offers {
		var dateStart, dateEnd interface{}
		if o.DateRange != nil {
			dateStart, dateEnd = o.DateRange.Start, o.DateRange.End
		}
		var rating interface{}
		if o.Rating != nil {
			rating = *o.Rating
		}
		if _, err = stmt.ExecContext(ctx,
			o.HotelName, o.Price, o.PriceIsTotal, dateStart, dateEnd,
			o.DurationNights, rating, o.SourceURL, o.QueryFingerprint, o.ScrapedAt,
		); err != nil {
			return fmt.Errorf("failed to insert offer %q: %w", o.HotelName, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Mirrored %d offers into PostgreSQL", len(offers))
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
