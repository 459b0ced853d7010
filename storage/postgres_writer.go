package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"flat-aggregator/models"
	"flat-aggregator/utils"
)

const listingColumns = 9

// PostgresWriter mirrors the canonical dataset into PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string, logger *utils.Logger) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, Logger: logger}
	if err := retry.Do(ctx, "postgres ping", func() error { return db.PingContext(ctx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			uid          INTEGER PRIMARY KEY,
			image        TEXT   NOT NULL DEFAULT '',
			locality     TEXT   NOT NULL DEFAULT '',
			type_of_flat TEXT   NOT NULL DEFAULT '',
			size         TEXT   NOT NULL DEFAULT '',
			price_amount BIGINT,
			price_label  TEXT   NOT NULL DEFAULT '',
			link         TEXT   NOT NULL DEFAULT '',
			source       TEXT   NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price_amount);
		CREATE INDEX IF NOT EXISTS idx_listings_type     ON listings(type_of_flat);
		CREATE INDEX IF NOT EXISTS idx_listings_source   ON listings(source);
	`)
	return err
}

// Clear deletes all existing listings from the table.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM listings")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write replaces the table contents with listings.
func (pw *PostgresWriter) Write(listings []*models.Listing) error {
	if err := pw.Clear(); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return fmt.Errorf("postgres: insert batch at %d: %w", i, err)
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.Listing) error {
	query, args := buildInsert(batch)
	_, err := pw.db.Exec(query, args...)
	return err
}

func buildInsert(batch []*models.Listing) (string, []interface{}) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*listingColumns)

	for idx, l := range batch {
		base := idx * listingColumns
		ph := make([]string, listingColumns)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		amount, label := priceColumns(l.Price)
		valueArgs = append(valueArgs,
			l.UID, l.Image, l.Locality, l.TypeOfFlat, l.Size, amount, label, l.Link, l.Source)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (uid, image, locality, type_of_flat, size, price_amount, price_label, link, source)
		VALUES %s
		ON CONFLICT (uid) DO NOTHING
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

// priceColumns splits a price into a nullable amount and the text it was
// received as. Only numeric prices carry an amount.
func priceColumns(p models.Price) (sql.NullInt64, string) {
	if p.Kind == models.PriceNumeric {
		return sql.NullInt64{Int64: p.Amount, Valid: true}, p.Text()
	}
	return sql.NullInt64{}, p.Text()
}

func priceFromColumns(amount sql.NullInt64, label string) models.Price {
	if amount.Valid {
		return models.NumericPrice(amount.Int64)
	}
	if label == "" {
		return models.Price{}
	}
	return models.TextPrice(label)
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored listings ordered by uid.
func (pw *PostgresWriter) FetchAll() ([]*models.Listing, error) {
	rows, err := pw.db.Query(`
		SELECT uid, image, locality, type_of_flat, size, price_amount, price_label, link, source
		FROM listings
		ORDER BY uid
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		var amount sql.NullInt64
		var label string
		if err := rows.Scan(
			&l.UID, &l.Image, &l.Locality, &l.TypeOfFlat, &l.Size,
			&amount, &label, &l.Link, &l.Source,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.Price = priceFromColumns(amount, label)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
