package news

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/logging"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     int
	lastQuery HeadlinesQuery
	articles  []article.Article
	err       error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Headlines(_ context.Context, q HeadlinesQuery) ([]article.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = q
	return f.articles, f.err
}

func (f *fakeSource) Search(_ context.Context, _ SearchQuery) ([]article.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.articles, f.err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleArticles() []article.Article {
	return []article.Article{
		{Source: article.Source{Name: "CNN"}, Title: "Rates hold", URL: "https://cnn.example/rates"},
		{Source: article.Source{Name: "[Removed]"}, Title: article.RemovedMarker, URL: "https://removed.com"},
		{Source: article.Source{Name: "Local Blog"}, Title: "Fair opens", URL: "https://blog.example/fair"},
		{Title: "No link"},
	}
}

func newTestService(t *testing.T, src Source) *Service {
	t.Helper()
	bias := NewBiasRatings(BiasConfig{
		FallbackPath: writeFallback(t, `[{"news_source":"CNN","rating":"left"}]`),
		Logger:       logging.Discard(),
	})
	svc, err := New(Config{
		Source:         src,
		Bias:           bias,
		DefaultCountry: "gb",
		PageSize:       10,
		Router:         mux.NewRouter(),
		Logger:         logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })
	return svc
}

func TestHeadlines_FiltersAnnotatesAndCaches(t *testing.T) {
	src := &fakeSource{articles: sampleArticles()}
	svc := newTestService(t, src)
	ctx := context.Background()

	list, err := svc.Headlines(ctx, HeadlinesQuery{Category: "Business"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Rates hold", list[0].Title)
	assert.Equal(t, "left", list[0].Bias)
	assert.Empty(t, list[1].Bias)
	assert.Equal(t, HeadlinesQuery{Country: "gb", Category: "business", PageSize: 10}, src.lastQuery)

	again, err := svc.Headlines(ctx, HeadlinesQuery{Category: "business"})
	require.NoError(t, err)
	assert.Equal(t, list, again)
	assert.Equal(t, 1, src.callCount())

	_, err = svc.Headlines(ctx, HeadlinesQuery{Category: "science"})
	require.NoError(t, err)
	assert.Equal(t, 2, src.callCount())
}

func TestHeadlines_UpstreamErrorNotCached(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	svc := newTestService(t, src)

	_, err := svc.Headlines(context.Background(), HeadlinesQuery{})
	require.Error(t, err)

	src.mu.Lock()
	src.err = nil
	src.articles = sampleArticles()
	src.mu.Unlock()

	list, err := svc.Headlines(context.Background(), HeadlinesQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSearch_EmptyQuery(t *testing.T) {
	svc := newTestService(t, &fakeSource{})
	_, err := svc.Search(context.Background(), SearchQuery{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Hour))

	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestHandlers(t *testing.T) {
	src := &fakeSource{articles: sampleArticles()}
	svc := newTestService(t, src)

	do := func(method, target string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, target, &buf)
		rr := httptest.NewRecorder()
		svc.Router().ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, "/news/headlines?country=us&pageSize=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []AnnotatedArticle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "left", list[0].Bias)
	assert.Equal(t, "https://cnn.example/rates", list[0].URL)

	rr = do(http.MethodGet, "/news/search", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodGet, "/news/search?q=rates", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodGet, "/news/bias", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var ratings []Rating
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ratings))
	assert.Equal(t, []Rating{{Source: "CNN", Rating: "left"}}, ratings)

	rr = do(http.MethodGet, "/news/bias/cnn", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = do(http.MethodGet, "/news/bias/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(http.MethodPost, "/news/extract", ExtractRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(http.MethodPost, "/news/extract", ExtractRequest{URL: "https://a.example/x"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	rr = do(http.MethodPost, "/news/summarize", SummarizeRequest{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlers_UpstreamFailure(t *testing.T) {
	svc := newTestService(t, &fakeSource{err: errors.New("down")})

	req := httptest.NewRequest(http.MethodGet, "/news/headlines", nil)
	rr := httptest.NewRecorder()
	svc.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
