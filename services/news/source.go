package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tidwall/gjson"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/httputil"
	"github.com/mynews-app/service_layer/internal/logging"
)

// HeadlinesQuery selects top headlines.
type HeadlinesQuery struct {
	Country  string `json:"country"`
	Category string `json:"category"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// SearchQuery selects articles matching free text.
type SearchQuery struct {
	Query    string `json:"q"`
	SortBy   string `json:"sortBy"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// Source fetches articles from an upstream provider.
type Source interface {
	Name() string
	Headlines(ctx context.Context, q HeadlinesQuery) ([]article.Article, error)
	Search(ctx context.Context, q SearchQuery) ([]article.Article, error)
}

// =============================================================================
// News API
// =============================================================================

// ProviderError is an error body returned by the news API.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("news api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("news api: %s: %s", e.Code, e.Message)
}

// NewsAPIConfig configures NewsAPISource.
type NewsAPIConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// NewsAPISource reads the newsapi.org style top-headlines and everything endpoints.
type NewsAPISource struct {
	client *httputil.APIClient
}

// NewNewsAPISource creates a news API source. The key is sent as X-Api-Key.
func NewNewsAPISource(cfg NewsAPIConfig) *NewsAPISource {
	return &NewsAPISource{client: httputil.NewAPIClient(httputil.APIClientConfig{
		Name:         "newsapi",
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		APIKeyHeader: "X-Api-Key",
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		HTTPClient:   cfg.HTTPClient,
	})}
}

func (s *NewsAPISource) Name() string { return "newsapi" }

// CircuitState reports the breaker state of the underlying client.
func (s *NewsAPISource) CircuitState() string { return s.client.CircuitState() }

func (s *NewsAPISource) Headlines(ctx context.Context, q HeadlinesQuery) ([]article.Article, error) {
	params := url.Values{}
	if q.Country != "" {
		params.Set("country", q.Country)
	}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	setPaging(params, q.Page, q.PageSize)
	return s.fetch(ctx, "/top-headlines", params)
}

func (s *NewsAPISource) Search(ctx context.Context, q SearchQuery) ([]article.Article, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "publishedAt"
	}
	params.Set("sortBy", sortBy)
	setPaging(params, q.Page, q.PageSize)
	return s.fetch(ctx, "/everything", params)
}

func (s *NewsAPISource) fetch(ctx context.Context, path string, params url.Values) ([]article.Article, error) {
	body, err := s.client.GetRaw(ctx, path, params)
	if err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) {
			return nil, providerError(se.StatusCode, []byte(se.Body))
		}
		return nil, err
	}
	if gjson.GetBytes(body, "status").String() == "error" {
		return nil, providerError(http.StatusOK, body)
	}

	var resp struct {
		Articles []article.Article `json:"articles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	return resp.Articles, nil
}

func providerError(status int, body []byte) *ProviderError {
	if !gjson.ValidBytes(body) {
		return &ProviderError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	res := gjson.GetManyBytes(body, "code", "message")
	return &ProviderError{StatusCode: status, Code: res[0].String(), Message: res[1].String()}
}

func setPaging(params url.Values, page, pageSize int) {
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		params.Set("pageSize", strconv.Itoa(pageSize))
	}
}

// =============================================================================
// RSS
// =============================================================================

// RSSSource serves headlines from a fixed list of RSS or Atom feeds.
type RSSSource struct {
	feeds  []string
	parser *gofeed.Parser
	log    *logging.Logger
}

// NewRSSSource creates a source over feeds. httpClient may be nil.
func NewRSSSource(feeds []string, httpClient *http.Client, log *logging.Logger) *RSSSource {
	parser := gofeed.NewParser()
	parser.UserAgent = "mynews-service/1.0"
	if httpClient != nil {
		parser.Client = httpClient
	}
	if log == nil {
		log = logging.NewDefault("news")
	}
	return &RSSSource{feeds: feeds, parser: parser, log: log}
}

func (s *RSSSource) Name() string { return "rss" }

// Headlines merges every feed newest first. A category keeps only items
// tagged with it.
func (s *RSSSource) Headlines(ctx context.Context, q HeadlinesQuery) ([]article.Article, error) {
	items, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	if q.Category != "" {
		items = filterItems(items, func(it feedItem) bool {
			for _, c := range it.item.Categories {
				if strings.EqualFold(strings.TrimSpace(c), q.Category) {
					return true
				}
			}
			return false
		})
	}
	return page(toArticles(items), q.Page, q.PageSize), nil
}

// Search keeps items whose title or description contains every query term.
func (s *RSSSource) Search(ctx context.Context, q SearchQuery) ([]article.Article, error) {
	items, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(q.Query))
	items = filterItems(items, func(it feedItem) bool {
		text := strings.ToLower(it.item.Title + " " + it.item.Description)
		for _, t := range terms {
			if !strings.Contains(text, t) {
				return false
			}
		}
		return true
	})
	return page(toArticles(items), q.Page, q.PageSize), nil
}

type feedItem struct {
	feedTitle string
	item      *gofeed.Item
}

func (s *RSSSource) collect(ctx context.Context) ([]feedItem, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		items    []feedItem
		failures int
		lastErr  error
	)
	for _, feedURL := range s.feeds {
		wg.Add(1)
		go func(feedURL string) {
			defer wg.Done()
			feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				lastErr = err
				s.log.WithContext(ctx).WithError(err).WithField("feed", feedURL).Warn("rss feed failed")
				return
			}
			for _, it := range feed.Items {
				if it == nil || it.Link == "" {
					continue
				}
				items = append(items, feedItem{feedTitle: feed.Title, item: it})
			}
		}(feedURL)
	}
	wg.Wait()

	if len(s.feeds) > 0 && failures == len(s.feeds) {
		return nil, fmt.Errorf("all rss feeds failed: %w", lastErr)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return published(items[i].item).After(published(items[j].item))
	})
	return items, nil
}

func published(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return *it.PublishedParsed
	case it.UpdatedParsed != nil:
		return *it.UpdatedParsed
	default:
		return time.Time{}
	}
}

func filterItems(items []feedItem, keep func(feedItem) bool) []feedItem {
	out := items[:0]
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

func toArticles(items []feedItem) []article.Article {
	out := make([]article.Article, 0, len(items))
	for _, fi := range items {
		it := fi.item
		a := article.Article{
			Source:      article.Source{Name: fi.feedTitle},
			Title:       it.Title,
			Description: it.Description,
			URL:         it.Link,
			Content:     it.Content,
		}
		if it.Author != nil {
			a.Author = it.Author.Name
		}
		if it.Image != nil {
			a.URLToImage = it.Image.URL
		}
		if t := published(it); !t.IsZero() {
			a.PublishedAt = t.UTC().Format(time.RFC3339)
		}
		out = append(out, a)
	}
	return out
}

func page(list []article.Article, pageNum, pageSize int) []article.Article {
	if pageSize <= 0 {
		return list
	}
	if pageNum < 1 {
		pageNum = 1
	}
	start := (pageNum - 1) * pageSize
	if start >= len(list) {
		return []article.Article{}
	}
	end := start + pageSize
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}
