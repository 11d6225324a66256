package journal

import (
	"context"
	"log/slog"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

type recordable interface {
	Record(ctx context.Context, res *kream.Result, settings kream.Settings) error
}

// Recorder is a kream.Quoter that journals every fresh successful quote
// produced by next. Journal failures are logged and never change the result.
type Recorder struct {
	next    kream.Quoter
	journal recordable
	logger  *slog.Logger
}

func NewRecorder(next kream.Quoter, j recordable, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		next:    next,
		journal: j,
		logger:  logger.With("component", "recorder"),
	}
}

func (r *Recorder) Quote(ctx context.Context, model string, settings kream.Settings) (*kream.Result, error) {
	res, err := r.next.Quote(ctx, model, settings)
	if err != nil || !res.OK || res.Cached {
		return res, err
	}

	// Journal writes are not tied to the caller's cancellation.
	if err := r.journal.Record(context.WithoutCancel(ctx), res, settings); err != nil {
		r.logger.Error("failed to journal quote", "model", res.Model, "error", err)
	}

	return res, nil
}
