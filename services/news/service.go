// Package news serves headlines and search results from the configured
// provider, annotated with media bias ratings, plus article extraction and
// summarization.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/config"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "news"
	ServiceName = "News Service"
	Version     = "1.0.0"
)

const cacheSweepInterval = time.Minute

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("search query is required")

// AnnotatedArticle is an article with the bias rating of its source.
type AnnotatedArticle struct {
	article.Article
	Bias string `json:"bias,omitempty"`
}

// Service implements the news proxy.
type Service struct {
	*commonservice.BaseService
	source         Source
	cache          Cache
	cacheTTL       time.Duration
	bias           *BiasRatings
	biasSchedule   string
	enricher       *Enricher
	defaultCountry string
	pageSize       int
	log            *logging.Logger
}

// Config configures the news service.
type Config struct {
	Source Source
	// Cache defaults to an in-process MemoryCache.
	Cache    Cache
	CacheTTL time.Duration
	// Bias may be nil, in which case articles are not annotated.
	Bias *BiasRatings
	// BiasRefreshSchedule is a cron spec for reloading Bias.
	BiasRefreshSchedule string
	Enricher            *Enricher
	DefaultCountry      string
	PageSize            int
	Router              *mux.Router
	Logger              *logging.Logger
}

// New creates the news service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("news: source is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Enricher == nil {
		cfg.Enricher = NewEnricher(EnrichConfig{})
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = "us"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 30
	}

	base := commonservice.NewBase(&commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Router:  cfg.Router,
		Logger:  cfg.Logger,
	})
	s := &Service{
		BaseService:    base,
		source:         cfg.Source,
		cache:          cfg.Cache,
		cacheTTL:       cfg.CacheTTL,
		bias:           cfg.Bias,
		biasSchedule:   cfg.BiasRefreshSchedule,
		enricher:       cfg.Enricher,
		defaultCountry: cfg.DefaultCountry,
		pageSize:       cfg.PageSize,
		log:            base.Logger(),
	}

	base.WithHydrate(s.hydrate).WithStats(s.stats)
	if s.bias != nil && s.biasSchedule != "" {
		base.AddWorker(s.runBiasRefresh)
	}
	if mc, ok := s.cache.(*MemoryCache); ok {
		base.AddTickerWorker(cacheSweepInterval, func(context.Context) error {
			if n := mc.Sweep(); n > 0 {
				s.log.WithField("expired", n).Debug("swept news cache")
			}
			return nil
		})
	}

	s.registerRoutes()
	return s, nil
}

// FromConfig builds the source, cache, bias table and enricher described by
// cfg and returns the service.
func FromConfig(ctx context.Context, cfg config.NewsConfig, router *mux.Router, log *logging.Logger) (*Service, error) {
	var source Source
	switch cfg.Source {
	case config.NewsSourceRSS:
		source = NewRSSSource(cfg.RSSFeeds, nil, log)
	default:
		source = NewNewsAPISource(NewsAPIConfig{
			BaseURL:    cfg.APIBaseURL,
			APIKey:     cfg.APIKey,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
		})
	}

	var cache Cache
	if cfg.RedisURL != "" {
		rc, err := OpenRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		cache = rc
	}

	return New(Config{
		Source:   source,
		Cache:    cache,
		CacheTTL: cfg.CacheTTL,
		Bias: NewBiasRatings(BiasConfig{
			URL:          cfg.BiasURL,
			FallbackPath: cfg.BiasFallbackPath,
			ItemsPath:    cfg.BiasItemsPath,
			NameField:    cfg.BiasNameField,
			RatingField:  cfg.BiasRatingField,
			Timeout:      cfg.RequestTimeout,
			Logger:       log,
		}),
		BiasRefreshSchedule: cfg.BiasRefreshSchedule,
		Enricher: NewEnricher(EnrichConfig{
			ExtractURL:         cfg.ExtractURL,
			ExtractAPIKey:      cfg.ExtractAPIKey,
			ExtractTextPath:    cfg.ExtractTextPath,
			SummarizeURL:       cfg.SummarizeURL,
			SummarizeAPIKey:    cfg.SummarizeAPIKey,
			SummarizeTextPath:  cfg.SummarizeTextPath,
			SummarizeSentences: cfg.SummarizeSentences,
			Timeout:            cfg.RequestTimeout,
			MaxRetries:         cfg.MaxRetries,
		}),
		DefaultCountry: cfg.DefaultCountry,
		PageSize:       cfg.PageSize,
		Router:         router,
		Logger:         log,
	})
}

// Headlines returns top headlines, newest provider order preserved.
func (s *Service) Headlines(ctx context.Context, q HeadlinesQuery) ([]AnnotatedArticle, error) {
	if q.Country == "" {
		q.Country = s.defaultCountry
	}
	q.Country = strings.ToLower(q.Country)
	q.Category = strings.ToLower(q.Category)
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	key := fmt.Sprintf("headlines:%s:%s:%s:%d:%d", s.source.Name(), q.Country, q.Category, q.Page, q.PageSize)
	list, err := s.cached(ctx, key, func(ctx context.Context) ([]article.Article, error) {
		return s.source.Headlines(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return s.annotate(list), nil
}

// Search returns articles matching q.Query.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]AnnotatedArticle, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return nil, ErrEmptyQuery
	}
	if q.PageSize <= 0 {
		q.PageSize = s.pageSize
	}
	key := fmt.Sprintf("search:%s:%s:%s:%d:%d", s.source.Name(), strings.ToLower(q.Query), q.SortBy, q.Page, q.PageSize)
	list, err := s.cached(ctx, key, func(ctx context.Context) ([]article.Article, error) {
		return s.source.Search(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return s.annotate(list), nil
}

// Bias returns the bias table.
func (s *Service) Bias() []Rating {
	if s.bias == nil {
		return []Rating{}
	}
	return s.bias.All()
}

// BiasFor returns the rating of one source.
func (s *Service) BiasFor(source string) (Rating, bool) {
	if s.bias == nil {
		return Rating{}, false
	}
	return s.bias.Lookup(source)
}

// Extract returns the text of the article at articleURL.
func (s *Service) Extract(ctx context.Context, articleURL string) (string, error) {
	return s.enricher.Extract(ctx, articleURL)
}

// Summarize returns a summary of the article or text in req.
func (s *Service) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	return s.enricher.Summarize(ctx, req)
}

// cached serves key from the cache or calls fetch and stores the filtered
// result. Cache failures are logged and bypassed.
func (s *Service) cached(ctx context.Context, key string, fetch func(context.Context) ([]article.Article, error)) ([]article.Article, error) {
	raw, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("news cache read failed")
	}
	metrics.RecordCacheLookup(hit)
	if hit {
		var list []article.Article
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
	}

	start := time.Now()
	list, err := fetch(ctx)
	metrics.RecordUpstreamCall(s.source.Name(), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	list = withoutRemoved(list)

	if raw, err := json.Marshal(list); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("news cache write failed")
		}
	}
	return list, nil
}

func withoutRemoved(list []article.Article) []article.Article {
	out := make([]article.Article, 0, len(list))
	for _, a := range list {
		if a.Removed() || a.Validate() != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (s *Service) annotate(list []article.Article) []AnnotatedArticle {
	out := make([]AnnotatedArticle, len(list))
	for i, a := range list {
		out[i] = AnnotatedArticle{Article: a}
		if r, ok := s.BiasFor(a.Source.Name); ok {
			out[i].Bias = r.Rating
		}
	}
	return out
}

func (s *Service) hydrate(ctx context.Context) error {
	if s.bias == nil {
		return nil
	}
	if err := s.bias.Refresh(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("initial bias load failed")
	}
	return nil
}

func (s *Service) runBiasRefresh(ctx context.Context) {
	if err := s.bias.StartRefresh(s.biasSchedule); err != nil {
		s.log.WithError(err).Error("bias refresh disabled")
		return
	}
	select {
	case <-ctx.Done():
	case <-s.StopChan():
	}
	s.bias.StopRefresh()
}

func (s *Service) stats() map[string]any {
	out := map[string]any{
		"source":    s.source.Name(),
		"cache_ttl": s.cacheTTL.String(),
	}
	if mc, ok := s.cache.(*MemoryCache); ok {
		out["cache_entries"] = mc.Len()
	}
	if api, ok := s.source.(*NewsAPISource); ok {
		out["circuit"] = api.CircuitState()
	}
	if s.bias != nil {
		count, via, _ := s.bias.Status()
		out["bias_ratings"] = count
		out["bias_source"] = via
	}
	return out
}
