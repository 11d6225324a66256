package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the narrow slice of a browser tab the quote pipeline needs.
type Page interface {
	// Goto navigates and returns the main document's HTTP status. Status is 0
	// when the navigation produced no response (same-document or about:blank).
	Goto(url string, timeout time.Duration) (int, error)
	WaitForSelector(selector string, timeout time.Duration) error
	// WaitForIdle blocks until the page has had no network activity for a
	// short while, so client-rendered content is in the DOM.
	WaitForIdle(timeout time.Duration) error
	// Attribute reads name from the first element matching selector. found
	// is false when nothing matches.
	Attribute(selector, name string) (value string, found bool, err error)
	Evaluate(script string, arg ...any) (any, error)
	Title() (string, error)
	URL() string
	Content() (string, error)
	Screenshot() ([]byte, error)
}

type Session interface {
	Page
	Close() error
}

// IsTimeout reports whether err came from a playwright or context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

type session struct {
	page    playwright.Page
	context playwright.BrowserContext
	logger  *slog.Logger
}

func (s *session) Goto(url string, timeout time.Duration) (int, error) {
	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	resp, err := s.page.Goto(url, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if resp == nil {
		return 0, nil
	}

	return resp.Status(), nil
}

func (s *session) WaitForSelector(selector string, timeout time.Duration) error {
	return s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (s *session) WaitForIdle(timeout time.Duration) error {
	return s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (s *session) Attribute(selector, name string) (string, bool, error) {
	locator := s.page.Locator(selector)

	count, err := locator.Count()
	if err != nil {
		return "", false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	if count == 0 {
		return "", false, nil
	}

	value, err := locator.First().GetAttribute(name)
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s of %s: %w", name, selector, err)
	}

	return value, value != "", nil
}

func (s *session) Evaluate(script string, arg ...any) (any, error) {
	return s.page.Evaluate(script, arg...)
}

func (s *session) Title() (string, error) {
	return s.page.Title()
}

func (s *session) URL() string {
	return s.page.URL()
}

func (s *session) Content() (string, error) {
	return s.page.Content()
}

func (s *session) Screenshot() ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
}

// Close releases the page and its browser context. Closing the context also
// drops its routes and cookies.
func (s *session) Close() error {
	var errs []error

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close page: %w", err))
		}
	}

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if len(errs) > 0 {
		s.logger.Warn("session close reported errors", "errors", errs)
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
