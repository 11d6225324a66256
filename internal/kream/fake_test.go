package kream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/browser"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDoc is one URL served by fakePage.
type fakeDoc struct {
	statuses   []int
	err        error
	html       string
	title      string
	href       string
	scriptHref any
	candidates any
	evalPanic  bool
}

type fakePage struct {
	mu      sync.Mutex
	docs    map[string]*fakeDoc
	current string
	visits  []string
	shot    []byte
	closed  int
	waitErr error
	idleErr error
	idled   []string
	attrErr error
}

func newFakePage(docs map[string]*fakeDoc) *fakePage {
	return &fakePage{docs: docs, shot: []byte("png")}
}

func (p *fakePage) doc() *fakeDoc {
	if d, ok := p.docs[p.current]; ok {
		return d
	}
	return &fakeDoc{}
}

func (p *fakePage) Goto(url string, timeout time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.visits = append(p.visits, url)
	p.current = url

	d, ok := p.docs[url]
	if !ok {
		return 200, nil
	}
	if d.err != nil {
		return 0, d.err
	}
	if len(d.statuses) == 0 {
		return 200, nil
	}

	status := d.statuses[0]
	if len(d.statuses) > 1 {
		d.statuses = d.statuses[1:]
	}
	return status, nil
}

func (p *fakePage) WaitForSelector(selector string, timeout time.Duration) error {
	return p.waitErr
}

func (p *fakePage) WaitForIdle(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idled = append(p.idled, p.current)
	return p.idleErr
}

func (p *fakePage) Attribute(selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.attrErr != nil {
		return "", false, p.attrErr
	}
	href := p.doc().href
	return href, href != "", nil
}

func (p *fakePage) Evaluate(script string, arg ...any) (any, error) {
	p.mu.Lock()
	d := p.doc()
	p.mu.Unlock()

	switch script {
	case productLinkScript:
		return d.scriptHref, nil
	case candidatesScript:
		if d.evalPanic {
			panic("renderer crashed")
		}
		return d.candidates, nil
	}
	return nil, errors.New("unexpected script")
}

func (p *fakePage) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc().title, nil
}

func (p *fakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePage) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc().html, nil
}

func (p *fakePage) Screenshot() ([]byte, error) {
	return p.shot, nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePage) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

type fakeFactory struct {
	page   *fakePage
	err    error
	opened int
	opts   browser.SessionOptions
}

func (f *fakeFactory) NewSession(ctx context.Context, opts browser.SessionOptions) (browser.Session, error) {
	f.opened++
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

func (s *recordingSleeper) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

type countingLimiter struct {
	calls int
	err   error
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.calls++
	return l.err
}

func priceCandidates(items ...any) []any {
	out := make([]any, 0, len(items)/2)
	for i := 0; i+1 < len(items); i += 2 {
		out = append(out, map[string]any{"text": items[i], "fontSize": items[i+1]})
	}
	return out
}
