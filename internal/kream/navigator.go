package kream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/ratelimit"
)

var blockedStatuses = map[int]struct{}{
	403: {},
	429: {},
	500: {},
	502: {},
	503: {},
	504: {},
}

// IsBlockedStatus reports whether code means the origin is rate limiting or
// rejecting us.
func IsBlockedStatus(code int) bool {
	_, ok := blockedStatuses[code]
	return ok
}

// Response describes the last load issued by Navigate.
type Response struct {
	URL      string
	Status   int
	Attempts int
}

func (r Response) Blocked() bool {
	return IsBlockedStatus(r.Status)
}

type Navigator struct {
	limiter ratelimit.RateLimiter
	sleeper ratelimit.Sleeper
	backoff ratelimit.Backoff
	logger  *slog.Logger
}

func NewNavigator(limiter ratelimit.RateLimiter, sleeper ratelimit.Sleeper, backoff ratelimit.Backoff, logger *slog.Logger) *Navigator {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	if sleeper == nil {
		sleeper = ratelimit.RealSleeper
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Navigator{
		limiter: limiter,
		sleeper: sleeper,
		backoff: backoff,
		logger:  logger.With("component", "navigator"),
	}
}

// Navigate loads url and retries up to retries times while the status is
// blocked, waiting an exponential backoff between attempts. When the budget
// runs out the last (still blocked) response is returned without error.
// Navigation errors are returned immediately.
func (n *Navigator) Navigate(ctx context.Context, page browser.Page, url string, timeout time.Duration, retries int) (Response, error) {
	if retries < 0 {
		retries = 0
	}

	resp := Response{URL: url}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			wait := n.backoff.Duration(attempt - 1)
			n.logger.Info("retrying navigation", "url", url, "attempt", attempt+1, "status", resp.Status, "wait", wait)

			if err := n.sleeper.Sleep(ctx, wait); err != nil {
				return resp, fmt.Errorf("backoff interrupted: %w", err)
			}
		}

		if err := n.limiter.Wait(ctx); err != nil {
			return resp, fmt.Errorf("rate limiter: %w", err)
		}

		status, err := page.Goto(url, timeout)
		resp.Attempts = attempt + 1
		if err != nil {
			n.logger.Error("navigation failed", "url", url, "attempt", attempt+1, "error", err)
			return resp, err
		}
		resp.Status = status

		if !IsBlockedStatus(status) {
			return resp, nil
		}

		n.logger.Warn("blocked status", "url", url, "status", status, "attempt", attempt+1)
		if attempt >= retries {
			return resp, nil
		}
	}
}

// WarmUp loads the home page once to pick up session cookies. Failures are
// logged and otherwise ignored.
func (n *Navigator) WarmUp(ctx context.Context, page browser.Page, homeURL string, timeout time.Duration) {
	resp, err := n.Navigate(ctx, page, homeURL, timeout, 0)
	if err != nil {
		n.logger.Warn("warm-up failed", "url", homeURL, "error", err)
		return
	}
	n.logger.Debug("warm-up done", "url", homeURL, "status", resp.Status)
}
