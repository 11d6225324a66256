package kream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/pricing"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/ratelimit"
)

const DefaultBaseURL = "https://kream.co.kr"

const (
	stageSession = "session"
	stageWarmUp  = "warm_up"
	stageSearch  = "search"
	stageLocate  = "locate"
	stageProduct = "product"
	stageExtract = "extract"
	stageConvert = "convert"
)

type Options struct {
	BaseURL    string
	Limiter    ratelimit.RateLimiter
	Sleeper    ratelimit.Sleeper
	Backoff    ratelimit.Backoff
	Strategies []Strategy

	SearchPause  ratelimit.Window
	ProductPause ratelimit.Window
	// ResultsWait bounds the wait for the first product link on the search
	// page. The wait never fails the fetch on its own.
	ResultsWait time.Duration
	// ProductIdleWait bounds the wait for the product page's network to go
	// quiet before the price is read. It is best-effort as well.
	ProductIdleWait time.Duration

	Now func() time.Time
}

func DefaultOptions() Options {
	return Options{
		BaseURL:         DefaultBaseURL,
		Backoff:         ratelimit.DefaultBackoff(),
		SearchPause:     ratelimit.Window{Min: 1000 * time.Millisecond, Max: 2000 * time.Millisecond},
		ProductPause:    ratelimit.Window{Min: 800 * time.Millisecond, Max: 1500 * time.Millisecond},
		ResultsWait:     20 * time.Second,
		ProductIdleWait: 30 * time.Second,
	}
}

// Fetcher runs the full search → product → price pipeline in a fresh
// browser session per quote.
type Fetcher struct {
	sessions  browser.SessionFactory
	navigator *Navigator
	locator   *Locator
	extractor *Extractor
	pacer     ratelimit.Pacer
	opts      Options
	logger    *slog.Logger
}

func NewFetcher(sessions browser.SessionFactory, opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Sleeper == nil {
		opts.Sleeper = ratelimit.RealSleeper
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Fetcher{
		sessions:  sessions,
		navigator: NewNavigator(opts.Limiter, opts.Sleeper, opts.Backoff, logger),
		locator:   NewLocator(opts.Strategies, logger),
		extractor: NewExtractor(logger),
		pacer:     ratelimit.Pacer{Sleeper: opts.Sleeper},
		opts:      opts,
		logger:    logger.With("component", "fetcher"),
	}
}

// Quote validates its input and fetches a price. Fetch failures are
// reported in the Result; the error is non-nil only for invalid input.
func (f *Fetcher) Quote(ctx context.Context, model string, settings Settings) (*Result, error) {
	model = NormalizeModel(model)
	if model == "" {
		return nil, ErrEmptyModel
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	start := f.opts.Now()
	result := f.fetch(ctx, model, settings)
	result.FetchedAt = f.opts.Now()

	if result.OK {
		f.logger.Info("quote fetched",
			"model", model,
			"krw", result.KRW,
			"twd", result.TWD,
			"duration", result.FetchedAt.Sub(start))
	} else {
		f.logger.Warn("quote failed",
			"model", model,
			"kind", result.ErrorKind,
			"stage", result.Diagnostics["stage"],
			"duration", result.FetchedAt.Sub(start))
	}

	return result, nil
}

func (f *Fetcher) fetch(ctx context.Context, model string, settings Settings) (result *Result) {
	sess, err := f.sessions.NewSession(ctx, browser.SessionOptions{Timeout: settings.Timeout()})
	if err != nil {
		return failureResult(model, classify(fmt.Errorf("failed to open session: %w", err), Diagnostics{"stage": stageSession}), nil)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			f.logger.Warn("failed to close session", "model", model, "error", err)
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("panic during fetch", "model", model, "panic", r)
			fe := classify(fmt.Errorf("panic: %v", r), Diagnostics{"stage": "panic"})
			result = failureResult(model, fe, f.screenshot(sess, settings))
		}
	}()

	result, fe := f.run(ctx, sess, model, settings)
	if fe != nil {
		return failureResult(model, fe, f.screenshot(sess, settings))
	}
	return result
}

func (f *Fetcher) run(ctx context.Context, page browser.Page, model string, settings Settings) (*Result, *FetchError) {
	timeout := settings.Timeout()
	searchURL := SearchURL(f.opts.BaseURL, model)

	if settings.WarmUp {
		f.navigator.WarmUp(ctx, page, strings.TrimRight(f.opts.BaseURL, "/")+"/", timeout)
	}

	resp, err := f.navigator.Navigate(ctx, page, searchURL, timeout, settings.Retries)
	if err != nil {
		return nil, classify(err, f.describe(page, stageSearch, resp.Status, searchURL, ""))
	}

	snap := snapshot(page)
	if resp.Blocked() && snap.Empty() {
		return nil, newFetchError(KindBlockedByOrigin, nil, f.withURLs(snap.diagnostics(stageSearch, resp.Status), searchURL, ""))
	}

	if err := f.pacer.Pause(ctx, f.opts.SearchPause); err != nil {
		return nil, classify(err, f.withURLs(snap.diagnostics(stageSearch, resp.Status), searchURL, ""))
	}

	if f.opts.ResultsWait > 0 {
		if err := page.WaitForSelector(productLinkSelector, f.opts.ResultsWait); err != nil {
			f.logger.Debug("product link did not appear", "model", model, "error", err)
		}
		snap = snapshot(page)
	}

	if snap.NoResults != "" {
		return nil, newFetchError(KindNoSearchResults, nil, f.withURLs(snap.diagnostics(stageSearch, resp.Status), searchURL, ""))
	}

	href, strategy, err := f.locator.Locate(ctx, page)
	if err != nil {
		diag := f.withURLs(snap.diagnostics(stageLocate, resp.Status), searchURL, "")
		if errors.Is(err, ErrLinkNotFound) {
			return nil, newFetchError(KindExtractionFailed, err, diag)
		}
		return nil, classify(err, diag)
	}

	productURL, err := ResolveProductURL(f.opts.BaseURL, href)
	if err != nil {
		return nil, newFetchError(KindExtractionFailed, err, f.withURLs(snap.diagnostics(stageLocate, resp.Status), searchURL, href))
	}
	f.logger.Debug("product located", "model", model, "strategy", strategy, "url", productURL)

	resp, err = f.navigator.Navigate(ctx, page, productURL, timeout, settings.Retries)
	if err != nil {
		return nil, classify(err, f.describe(page, stageProduct, resp.Status, searchURL, productURL))
	}

	if resp.Blocked() {
		snap = snapshot(page)
		if snap.Empty() {
			return nil, newFetchError(KindBlockedByOrigin, nil, f.withURLs(snap.diagnostics(stageProduct, resp.Status), searchURL, productURL))
		}
	}

	if f.opts.ProductIdleWait > 0 {
		if err := page.WaitForIdle(f.opts.ProductIdleWait); err != nil {
			f.logger.Debug("product page did not go idle", "model", model, "error", err)
		}
	}

	if err := f.pacer.Pause(ctx, f.opts.ProductPause); err != nil {
		return nil, classify(err, f.describe(page, stageProduct, resp.Status, searchURL, productURL))
	}

	priceText, err := f.extractor.Extract(ctx, page)
	if err != nil {
		diag := f.describe(page, stageExtract, resp.Status, searchURL, productURL)
		if errors.Is(err, ErrPriceNotFound) {
			return nil, newFetchError(KindExtractionFailed, err, diag)
		}
		return nil, classify(err, diag)
	}

	krw, err := pricing.ParseAmount(priceText)
	if err != nil {
		return nil, newFetchError(KindExtractionFailed, fmt.Errorf("%w %q: %w", ErrInvalidPriceText, priceText, err),
			f.describe(page, stageConvert, resp.Status, searchURL, productURL))
	}

	title, err := page.Title()
	if err != nil {
		f.logger.Debug("failed to read title", "model", model, "error", err)
	}

	finalURL := page.URL()
	if finalURL == "" {
		finalURL = productURL
	}

	return &Result{
		OK:        true,
		Model:     model,
		PriceText: priceText,
		KRW:       krw,
		TWD:       settings.Formula.Apply(krw),
		Title:     title,
		URL:       finalURL,
	}, nil
}

func (f *Fetcher) describe(page browser.Page, stage string, status int, searchURL, productURL string) Diagnostics {
	return f.withURLs(snapshot(page).diagnostics(stage, status), searchURL, productURL)
}

func (f *Fetcher) withURLs(d Diagnostics, searchURL, productURL string) Diagnostics {
	if searchURL != "" {
		d["search_url"] = searchURL
	}
	if productURL != "" {
		d["product_url"] = productURL
	}
	return d
}

func (f *Fetcher) screenshot(page browser.Page, settings Settings) []byte {
	if !settings.Debug {
		return nil
	}

	shot, err := page.Screenshot()
	if err != nil {
		f.logger.Warn("failed to capture screenshot", "error", err)
		return nil
	}
	return shot
}

func failureResult(model string, fe *FetchError, shot []byte) *Result {
	return &Result{
		OK:          false,
		Model:       model,
		ErrorKind:   fe.Kind,
		Message:     fe.Message,
		Diagnostics: fe.Diagnostics,
		Screenshot:  shot,
	}
}
