package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuoteRecord is one journaled successful quote.
type QuoteRecord struct {
	ID        uuid.UUID       `json:"id"`
	Model     string          `json:"model"`
	Title     string          `json:"title"`
	URL       string          `json:"url"`
	PriceText string          `json:"price_text"`
	KRW       int64           `json:"krw"`
	TWD       int64           `json:"twd"`
	Settings  json.RawMessage `json:"settings"`
	FetchedAt time.Time       `json:"fetched_at"`
	CreatedAt time.Time       `json:"created_at"`
}

type QuoteRepository struct {
	db *DB
}

func NewQuoteRepository(db *DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// InsertWithTx writes rec inside tx, assigning its ID and creation time.
func (r *QuoteRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, rec *QuoteRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()

	query := `
		INSERT INTO kream_quotes (
			id, model, title, url, price_text,
			krw, twd, settings, fetched_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := tx.Exec(ctx, query,
		rec.ID, rec.Model, rec.Title, rec.URL, rec.PriceText,
		rec.KRW, rec.TWD, rec.Settings, rec.FetchedAt, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}

	return nil
}

// ListRecent returns the newest quotes first. An empty model lists all.
func (r *QuoteRepository) ListRecent(ctx context.Context, model string, limit int) ([]*QuoteRecord, error) {
	query := `
		SELECT
			id, model, title, url, price_text,
			krw, twd, settings, fetched_at, created_at
		FROM kream_quotes
		WHERE ($1::text = '' OR model = $1)
		ORDER BY fetched_at DESC
		LIMIT $2`

	rows, err := r.db.pool.Query(ctx, query, model, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var records []*QuoteRecord
	for rows.Next() {
		rec := &QuoteRecord{}
		err := rows.Scan(
			&rec.ID, &rec.Model, &rec.Title, &rec.URL, &rec.PriceText,
			&rec.KRW, &rec.TWD, &rec.Settings, &rec.FetchedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
