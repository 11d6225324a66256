package kream

import (
	"context"
	"time"
)

type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindBlockedByOrigin  ErrorKind = "blocked_by_origin"
	KindNoSearchResults  ErrorKind = "no_search_results"
	KindExtractionFailed ErrorKind = "extraction_failed"
	KindUncategorized    ErrorKind = "uncategorized"
)

// Diagnostics is best-effort operator context attached to failures.
type Diagnostics map[string]string

// Result is the outcome of one quote. OK selects which half is populated.
type Result struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`

	PriceText string `json:"price_text,omitempty"`
	KRW       int64  `json:"krw,omitempty"`
	TWD       int64  `json:"twd,omitempty"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`

	ErrorKind   ErrorKind   `json:"error_kind,omitempty"`
	Message     string      `json:"message,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics,omitempty"`
	Screenshot  []byte      `json:"screenshot,omitempty"`

	Cached    bool      `json:"cached"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Clone returns a copy that shares no maps or slices with r.
func (r *Result) Clone() *Result {
	out := *r
	if r.Diagnostics != nil {
		out.Diagnostics = make(Diagnostics, len(r.Diagnostics))
		for k, v := range r.Diagnostics {
			out.Diagnostics[k] = v
		}
	}
	if r.Screenshot != nil {
		out.Screenshot = append([]byte(nil), r.Screenshot...)
	}
	return &out
}

// Quoter produces a Result for a model. The error return is reserved for
// invalid input and for a caller that gave up waiting; fetch failures are
// reported inside the Result.
type Quoter interface {
	Quote(ctx context.Context, model string, settings Settings) (*Result, error)
}
