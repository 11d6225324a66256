package kream

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
)

const excerptRunes = 300

var noResultsPhrases = []string{
	"검색 결과가 없습니다",
	"검색하신 결과가 없습니다",
	"검색결과가 없습니다",
	"No results",
}

// PageText is the visible text of an HTML document with scripts and styles
// removed and whitespace collapsed.
func PageText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " "), nil
}

// Excerpt truncates text to at most n runes.
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// NoResultsPhrase returns the first known "no results" message found in text.
func NoResultsPhrase(text string) (string, bool) {
	for _, p := range noResultsPhrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// pageSnapshot is what the pipeline learns about a page when something goes
// wrong. Every field is best-effort.
type pageSnapshot struct {
	Title     string
	URL       string
	Text      string
	NoResults string
}

func (s pageSnapshot) Empty() bool {
	return s.Text == ""
}

func snapshot(page browser.Page) pageSnapshot {
	var s pageSnapshot

	s.URL = page.URL()
	if title, err := page.Title(); err == nil {
		s.Title = title
	}

	html, err := page.Content()
	if err != nil {
		return s
	}
	if text, err := PageText(html); err == nil {
		s.Text = text
		s.NoResults, _ = NoResultsPhrase(text)
	}

	return s
}

func (s pageSnapshot) diagnostics(stage string, status int) Diagnostics {
	d := Diagnostics{
		"stage":           stage,
		"status":          strconv.Itoa(status),
		"title":           s.Title,
		"url":             s.URL,
		"body_excerpt":    Excerpt(s.Text, excerptRunes),
		"no_results_text": strconv.FormatBool(s.NoResults != ""),
	}
	if s.NoResults != "" {
		d["no_results_phrase"] = s.NoResults
	}
	return d
}
