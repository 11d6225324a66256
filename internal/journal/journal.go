// Package journal keeps an optional audit trail of computed quotes and
// publishes each one to a Redis stream through the transactional outbox.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/database"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

const (
	EventTypeQuoteRecorded = "QUOTE_RECORDED"
	aggregateType          = "quote"
	eventSource            = "kream-quote"

	DefaultLimit = 20
	MaxLimit     = 200
)

var ErrNotRecordable = errors.New("only fresh successful quotes are journaled")

// QuoteRecordedPayload is the stream message for one journaled quote.
type QuoteRecordedPayload struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	QuoteID   string         `json:"quote_id"`
	Model     string         `json:"model"`
	Title     string         `json:"title,omitempty"`
	URL       string         `json:"url"`
	PriceText string         `json:"price_text"`
	KRW       int64          `json:"krw"`
	TWD       int64          `json:"twd"`
	Settings  kream.Settings `json:"settings"`
	FetchedAt time.Time      `json:"fetched_at"`
	Source    string         `json:"source"`
}

type TxRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type QuoteStore interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, rec *database.QuoteRecord) error
	ListRecent(ctx context.Context, model string, limit int) ([]*database.QuoteRecord, error)
}

type OutboxStore interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
	Backlog(ctx context.Context) (pending, dead int64, err error)
}

type Journal struct {
	tx     TxRunner
	quotes QuoteStore
	outbox OutboxStore
	stream string
	logger *slog.Logger
}

func New(db *database.DB, stream string, logger *slog.Logger) *Journal {
	return NewWithStores(db, database.NewQuoteRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func NewWithStores(tx TxRunner, quotes QuoteStore, outbox OutboxStore, stream string, logger *slog.Logger) *Journal {
	if stream == "" {
		stream = database.DefaultQuoteStream
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Journal{
		tx:     tx,
		quotes: quotes,
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "journal"),
	}
}

// Record stores a successful quote and its outbox event atomically.
func (j *Journal) Record(ctx context.Context, res *kream.Result, settings kream.Settings) error {
	if res == nil || !res.OK || res.Cached {
		return ErrNotRecordable
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	rec := &database.QuoteRecord{
		ID:        uuid.New(),
		Model:     res.Model,
		Title:     res.Title,
		URL:       res.URL,
		PriceText: res.PriceText,
		KRW:       res.KRW,
		TWD:       res.TWD,
		Settings:  settingsJSON,
		FetchedAt: res.FetchedAt,
	}

	payload := QuoteRecordedPayload{
		EventID:   uuid.New().String(),
		EventType: EventTypeQuoteRecorded,
		Timestamp: time.Now(),
		QuoteID:   rec.ID.String(),
		Model:     rec.Model,
		Title:     rec.Title,
		URL:       rec.URL,
		PriceText: rec.PriceText,
		KRW:       rec.KRW,
		TWD:       rec.TWD,
		Settings:  settings,
		FetchedAt: rec.FetchedAt,
		Source:    eventSource,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   rec.Model,
		EventType:     EventTypeQuoteRecorded,
		Payload:       data,
		TargetStream:  j.stream,
	}

	err = j.tx.Transaction(ctx, func(tx pgx.Tx) error {
		if err := j.quotes.InsertWithTx(ctx, tx, rec); err != nil {
			return err
		}
		return j.outbox.InsertWithTx(ctx, tx, event)
	})
	if err != nil {
		return fmt.Errorf("failed to journal quote: %w", err)
	}

	j.logger.Info("quote journaled",
		"model", rec.Model,
		"quote_id", rec.ID,
		"outbox_id", event.ID,
		"twd", rec.TWD)

	return nil
}

// Recent lists journaled quotes, newest first. limit is clamped to
// [1, MaxLimit] with DefaultLimit for non-positive values.
func (j *Journal) Recent(ctx context.Context, model string, limit int) ([]*database.QuoteRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return j.quotes.ListRecent(ctx, kream.NormalizeModel(model), limit)
}

func (j *Journal) Backlog(ctx context.Context) (pending, dead int64, err error) {
	return j.outbox.Backlog(ctx)
}
