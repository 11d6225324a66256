package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

const DefaultTTL = 120 * time.Second

type MemoizerConfig struct {
	TTL time.Duration
	// CacheFailures also memoizes failed results, so a blocked origin is
	// not hit again for the same model within the TTL.
	CacheFailures bool
}

// Memoizer is a kream.Quoter that answers repeated (model, settings) pairs
// from a Store and collapses concurrent identical fetches into one.
type Memoizer struct {
	next   kream.Quoter
	store  Store
	config MemoizerConfig
	group  singleflight.Group
	logger *slog.Logger
}

func NewMemoizer(next kream.Quoter, store Store, config MemoizerConfig, logger *slog.Logger) *Memoizer {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Memoizer{
		next:   next,
		store:  store,
		config: config,
		logger: logger.With("component", "memoizer", "backend", store.Name()),
	}
}

// Backend names the underlying store.
func (m *Memoizer) Backend() string {
	return m.store.Name()
}

func (m *Memoizer) Quote(ctx context.Context, model string, settings kream.Settings) (*kream.Result, error) {
	model = kream.NormalizeModel(model)
	if model == "" {
		return nil, kream.ErrEmptyModel
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	key := Key(model, settings)

	cached, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("cache lookup failed", "model", model, "error", err)
	} else if ok {
		m.logger.Debug("cache hit", "model", model)
		hit := cached.Clone()
		hit.Cached = true
		return hit, nil
	}

	ch := m.group.DoChan(key, func() (interface{}, error) {
		// The fetch is shared by every waiting caller, so no single caller's
		// cancellation reaches it. Browser timeouts still bound it.
		fetchCtx := context.WithoutCancel(ctx)

		result, err := m.next.Quote(fetchCtx, model, settings)
		if err != nil {
			return nil, err
		}

		if result.OK || m.config.CacheFailures {
			if err := m.store.Set(fetchCtx, key, result.Clone(), m.config.TTL); err != nil {
				m.logger.Warn("failed to store quote", "model", model, "error", err)
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		m.logger.Debug("caller left before the fetch finished", "model", model, "error", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.logger.Debug("joined in-flight fetch", "model", model)
		}
		return res.Val.(*kream.Result).Clone(), nil
	}
}
