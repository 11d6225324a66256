package kream

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
)

const (
	maxPriceRunes = 20
	minFontSize   = 14.0
)

var pricePattern = regexp.MustCompile(`^[0-9]{1,3}(,[0-9]{3})*원$`)

// candidatesScript lists every visible element whose own rendered text is
// short enough to be a price, with its computed font size in pixels.
const candidatesScript = `(maxLen) => {
	const out = [];
	for (const el of document.querySelectorAll("body *")) {
		const text = (el.innerText || "").trim();
		if (!text || text.length > maxLen) continue;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 && rect.height === 0) continue;
		const style = window.getComputedStyle(el);
		if (style.visibility === "hidden" || style.display === "none") continue;
		out.push({ text: text, fontSize: parseFloat(style.fontSize) || 0 });
	}
	return out;
}`

// Candidate is one short visible text node and its font size.
type Candidate struct {
	Text     string
	FontSize float64
}

// IsPrice reports whether text looks like a whole-won amount such as
// "89,000원".
func IsPrice(text string) bool {
	text = strings.TrimSpace(text)
	return utf8.RuneCountInString(text) <= maxPriceRunes && pricePattern.MatchString(text)
}

// SelectMainPrice picks the price candidate with the largest font. Ties go to
// the first one in document order.
func SelectMainPrice(cands []Candidate) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)

	for _, c := range cands {
		c.Text = strings.TrimSpace(c.Text)
		if c.FontSize < minFontSize || !IsPrice(c.Text) {
			continue
		}
		if !found || c.FontSize > best.FontSize {
			best = c
			found = true
		}
	}

	return best, found
}

// decodeCandidates converts the script result, which arrives as generic JSON
// values. Numbers may be either int or float64 depending on their value.
func decodeCandidates(v any) ([]Candidate, error) {
	if v == nil {
		return nil, nil
	}

	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected candidates type %T", v)
	}

	cands := make([]Candidate, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}

		text, _ := m["text"].(string)
		cands = append(cands, Candidate{
			Text:     text,
			FontSize: toFloat(m["fontSize"]),
		})
	}

	return cands, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract returns the main price text of the product page.
func (e *Extractor) Extract(ctx context.Context, page browser.Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := page.Evaluate(candidatesScript, maxPriceRunes)
	if err != nil {
		return "", fmt.Errorf("failed to collect price candidates: %w", err)
	}

	cands, err := decodeCandidates(raw)
	if err != nil {
		return "", err
	}

	best, ok := SelectMainPrice(cands)
	if !ok {
		e.logger.Debug("no price candidate", "candidates", len(cands))
		return "", ErrPriceNotFound
	}

	e.logger.Debug("main price selected", "text", best.Text, "font_size", best.FontSize)
	return best.Text, nil
}
