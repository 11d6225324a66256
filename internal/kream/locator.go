package kream

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
)

const productLinkSelector = `a[href*="/products/"]`

const productLinkScript = `(selector) => {
	const el = document.querySelector(selector);
	return el ? el.getAttribute("href") : null;
}`

var productPathPattern = regexp.MustCompile(`/products/(\d+)`)

// Strategy is one way of finding the first product link on a search page.
// A miss is ("", false, nil); errors are treated as misses by the Locator.
type Strategy interface {
	Name() string
	Locate(ctx context.Context, page browser.Page) (string, bool, error)
}

// SelectorStrategy reads href from the first element matching Selector.
type SelectorStrategy struct {
	Selector string
}

func (s SelectorStrategy) Name() string { return "selector" }

func (s SelectorStrategy) Locate(ctx context.Context, page browser.Page) (string, bool, error) {
	href, found, err := page.Attribute(s.Selector, "href")
	if err != nil || !found {
		return "", false, err
	}
	return href, strings.TrimSpace(href) != "", nil
}

// ScriptStrategy runs the same query through page script evaluation, which
// sees nodes the locator API sometimes misses on dynamically rendered pages.
type ScriptStrategy struct {
	Selector string
}

func (s ScriptStrategy) Name() string { return "script" }

func (s ScriptStrategy) Locate(ctx context.Context, page browser.Page) (string, bool, error) {
	v, err := page.Evaluate(productLinkScript, s.Selector)
	if err != nil {
		return "", false, err
	}

	href, ok := v.(string)
	if !ok || strings.TrimSpace(href) == "" {
		return "", false, nil
	}
	return href, true, nil
}

// MarkupStrategy scans the raw HTML for the product path.
type MarkupStrategy struct {
	Pattern *regexp.Regexp
}

func (s MarkupStrategy) Name() string { return "markup" }

func (s MarkupStrategy) Locate(ctx context.Context, page browser.Page) (string, bool, error) {
	html, err := page.Content()
	if err != nil {
		return "", false, err
	}

	m := s.Pattern.FindString(html)
	if m == "" {
		return "", false, nil
	}
	return m, true, nil
}

// DefaultStrategies is the selector → script → markup chain.
func DefaultStrategies() []Strategy {
	return []Strategy{
		SelectorStrategy{Selector: productLinkSelector},
		ScriptStrategy{Selector: productLinkSelector},
		MarkupStrategy{Pattern: productPathPattern},
	}
}

type Locator struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewLocator(strategies []Strategy, logger *slog.Logger) *Locator {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Locator{
		strategies: strategies,
		logger:     logger.With("component", "locator"),
	}
}

// Locate tries each strategy in order and returns the first hit together
// with the name of the strategy that produced it.
func (l *Locator) Locate(ctx context.Context, page browser.Page) (string, string, error) {
	for _, s := range l.strategies {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}

		href, ok, err := s.Locate(ctx, page)
		if err != nil {
			l.logger.Warn("strategy failed", "strategy", s.Name(), "error", err)
			continue
		}
		if ok {
			l.logger.Debug("product link found", "strategy", s.Name(), "href", href)
			return href, s.Name(), nil
		}
	}

	return "", "", ErrLinkNotFound
}

// ResolveProductURL makes href absolute against base.
func ResolveProductURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("invalid product href %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

// SearchURL builds the product-tab search URL for an already normalised model.
func SearchURL(base, model string) string {
	return strings.TrimRight(base, "/") + "/search?keyword=" + url.QueryEscape(model) + "&tab=products"
}
