package kream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/ratelimit"
)

const (
	testModel      = "DD1391-100"
	testSearchURL  = "https://kream.co.kr/search?keyword=DD1391-100&tab=products"
	testProductURL = "https://kream.co.kr/products/12345"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func healthyDocs() map[string]*fakeDoc {
	return map[string]*fakeDoc{
		testSearchURL: {
			statuses: []int{200},
			title:    "KREAM 검색",
			href:     "/products/12345",
			html:     `<body><a href="/products/12345">Nike Dunk Low Retro White Black</a></body>`,
		},
		testProductURL: {
			statuses:   []int{200},
			title:      "Nike Dunk Low Retro White Black | KREAM",
			html:       "<body><p>89,000원</p></body>",
			candidates: priceCandidates("89,000원", 32, "69,000원", 14, "즉시 구매가", 13),
		},
	}
}

func newTestFetcher(page *fakePage) (*Fetcher, *fakeFactory) {
	factory := &fakeFactory{page: page}
	opts := DefaultOptions()
	opts.Sleeper = ratelimit.NoSleep
	opts.Backoff = ratelimit.Backoff{Base: time.Millisecond}
	opts.Now = func() time.Time { return fixedNow }
	return NewFetcher(factory, opts, discardLogger()), factory
}

func quietSettings() Settings {
	s := DefaultSettings()
	s.WarmUp = false
	return s
}

func TestFetcher_Success(t *testing.T) {
	page := newFakePage(healthyDocs())
	f, factory := newTestFetcher(page)

	res, err := f.Quote(context.Background(), "  dd1391-100 ", quietSettings())

	require.NoError(t, err)
	require.True(t, res.OK, "unexpected failure: %+v", res)
	assert.Equal(t, testModel, res.Model)
	assert.Equal(t, "89,000원", res.PriceText)
	assert.Equal(t, int64(89000), res.KRW)
	assert.Equal(t, int64(2240), res.TWD)
	assert.Equal(t, "Nike Dunk Low Retro White Black | KREAM", res.Title)
	assert.Equal(t, testProductURL, res.URL)
	assert.Equal(t, fixedNow, res.FetchedAt)
	assert.Empty(t, res.ErrorKind)
	assert.Nil(t, res.Screenshot)

	assert.Equal(t, []string{testSearchURL, testProductURL}, page.Visits())
	assert.Equal(t, 1, factory.opened)
	assert.Equal(t, 60*time.Second, factory.opts.Timeout)
	assert.Equal(t, 1, page.closed)
}

func TestFetcher_WaitsForProductPageToSettle(t *testing.T) {
	page := newFakePage(healthyDocs())
	f, _ := newTestFetcher(page)

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, []string{testProductURL}, page.idled)
}

func TestFetcher_IdleTimeoutStillExtracts(t *testing.T) {
	page := newFakePage(healthyDocs())
	page.idleErr = fmt.Errorf("waiting for networkidle: %w", context.DeadlineExceeded)
	f, _ := newTestFetcher(page)

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	require.True(t, res.OK, "unexpected failure: %+v", res)
	assert.Equal(t, int64(2240), res.TWD)
}

func TestFetcher_RoundToHundred(t *testing.T) {
	f, _ := newTestFetcher(newFakePage(healthyDocs()))

	settings := quietSettings()
	settings.RoundTo = 100

	res, err := f.Quote(context.Background(), testModel, settings)

	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, int64(2300), res.TWD)
}

func TestFetcher_WarmUpVisitsHomeFirst(t *testing.T) {
	page := newFakePage(healthyDocs())
	f, _ := newTestFetcher(page)

	res, err := f.Quote(context.Background(), testModel, DefaultSettings())

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"https://kream.co.kr/", testSearchURL, testProductURL}, page.Visits())
}

func TestFetcher_WarmUpFailureDoesNotAbort(t *testing.T) {
	docs := healthyDocs()
	docs["https://kream.co.kr/"] = &fakeDoc{err: errors.New("net::ERR_CONNECTION_RESET")}
	f, _ := newTestFetcher(newFakePage(docs))

	res, err := f.Quote(context.Background(), testModel, DefaultSettings())

	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestFetcher_RetriesBlockedSearch(t *testing.T) {
	docs := healthyDocs()
	docs[testSearchURL].statuses = []int{503, 503, 200}
	page := newFakePage(docs)
	f, _ := newTestFetcher(page)

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, []string{testSearchURL, testSearchURL, testSearchURL, testProductURL}, page.Visits())
}

func TestFetcher_MarkupFallback(t *testing.T) {
	docs := healthyDocs()
	docs[testSearchURL].href = ""
	docs[testSearchURL].html = `<body><script>{"url":"/products/12345"}</script><div>Nike</div></body>`
	f, _ := newTestFetcher(newFakePage(docs))

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Equal(t, testProductURL, res.URL)
}

func TestFetcher_Failures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(docs map[string]*fakeDoc)
		wantKind  ErrorKind
		wantStage string
	}{
		{
			name: "blocked with empty body",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testSearchURL] = &fakeDoc{statuses: []int{403}, html: "<html><body></body></html>"}
			},
			wantKind:  KindBlockedByOrigin,
			wantStage: stageSearch,
		},
		{
			name: "blocked product page",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testProductURL] = &fakeDoc{statuses: []int{429}}
			},
			wantKind:  KindBlockedByOrigin,
			wantStage: stageProduct,
		},
		{
			name: "explicit no results",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testSearchURL] = &fakeDoc{html: "<body><p>검색 결과가 없습니다</p></body>"}
			},
			wantKind:  KindNoSearchResults,
			wantStage: stageSearch,
		},
		{
			name: "no product link",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testSearchURL] = &fakeDoc{html: "<body><p>인기 검색어</p></body>"}
			},
			wantKind:  KindExtractionFailed,
			wantStage: stageLocate,
		},
		{
			name: "no price on product page",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testProductURL].candidates = priceCandidates("89,000원", 12, "발매가", 30)
			},
			wantKind:  KindExtractionFailed,
			wantStage: stageExtract,
		},
		{
			name: "navigation timeout",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testSearchURL] = &fakeDoc{err: fmt.Errorf("failed to navigate: %w", context.DeadlineExceeded)}
			},
			wantKind:  KindTimeout,
			wantStage: stageSearch,
		},
		{
			name: "unexpected navigation error",
			mutate: func(docs map[string]*fakeDoc) {
				docs[testProductURL] = &fakeDoc{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
			},
			wantKind:  KindUncategorized,
			wantStage: stageProduct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := healthyDocs()
			tt.mutate(docs)
			page := newFakePage(docs)
			f, _ := newTestFetcher(page)

			res, err := f.Quote(context.Background(), testModel, quietSettings())

			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.Equal(t, testModel, res.Model)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
			assert.Equal(t, tt.wantStage, res.Diagnostics["stage"])
			assert.Equal(t, testSearchURL, res.Diagnostics["search_url"])
			assert.NotEmpty(t, res.Message)
			assert.Zero(t, res.KRW)
			assert.Nil(t, res.Screenshot)
			assert.Equal(t, 1, page.closed)
		})
	}
}

func TestFetcher_OnlyUncategorizedCarriesRawError(t *testing.T) {
	docs := healthyDocs()
	docs[testSearchURL] = &fakeDoc{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	f, _ := newTestFetcher(newFakePage(docs))

	res, err := f.Quote(context.Background(), testModel, quietSettings())
	require.NoError(t, err)
	assert.Contains(t, res.Message, "net::ERR_NAME_NOT_RESOLVED")

	docs = healthyDocs()
	docs[testSearchURL] = &fakeDoc{err: context.DeadlineExceeded}
	f, _ = newTestFetcher(newFakePage(docs))

	res, err = f.Quote(context.Background(), testModel, quietSettings())
	require.NoError(t, err)
	assert.Equal(t, Message(KindTimeout), res.Message)
}

func TestFetcher_DebugScreenshot(t *testing.T) {
	docs := healthyDocs()
	docs[testProductURL].candidates = nil
	page := newFakePage(docs)
	f, _ := newTestFetcher(page)

	settings := quietSettings()
	settings.Debug = true

	res, err := f.Quote(context.Background(), testModel, settings)

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []byte("png"), res.Screenshot)
}

func TestFetcher_RecoversPanic(t *testing.T) {
	docs := healthyDocs()
	docs[testProductURL].evalPanic = true
	page := newFakePage(docs)
	f, _ := newTestFetcher(page)

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, KindUncategorized, res.ErrorKind)
	assert.Contains(t, res.Message, "renderer crashed")
	assert.Equal(t, 1, page.closed)
}

func TestFetcher_SessionOpenFailure(t *testing.T) {
	f := NewFetcher(&fakeFactory{err: errors.New("browser has been closed")}, DefaultOptions(), discardLogger())

	res, err := f.Quote(context.Background(), testModel, quietSettings())

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, KindUncategorized, res.ErrorKind)
	assert.Equal(t, stageSession, res.Diagnostics["stage"])
}

func TestFetcher_InvalidInput(t *testing.T) {
	page := newFakePage(healthyDocs())
	f, factory := newTestFetcher(page)

	_, err := f.Quote(context.Background(), "   ", quietSettings())
	assert.ErrorIs(t, err, ErrEmptyModel)

	bad := quietSettings()
	bad.Divisor = 0
	_, err = f.Quote(context.Background(), testModel, bad)
	assert.ErrorIs(t, err, ErrInvalidSettings)

	bad = quietSettings()
	bad.TimeoutSeconds = 0
	_, err = f.Quote(context.Background(), testModel, bad)
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	assert.Zero(t, factory.opened)
	assert.Empty(t, page.Visits())
}
