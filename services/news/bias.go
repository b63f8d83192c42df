package news

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tidwall/gjson"

	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/httputil"
	"github.com/mynews-app/service_layer/internal/logging"
)

// ErrNoBiasData is returned when neither the provider nor the fallback file
// yields any rating.
var ErrNoBiasData = errors.New("no media bias data available")

// Rating is the bias rating of one news source.
type Rating struct {
	Source string `json:"source"`
	Rating string `json:"rating"`
}

// BiasConfig configures BiasRatings.
type BiasConfig struct {
	// URL of the remote provider. Empty means fallback only.
	URL          string
	FallbackPath string
	// ItemsPath is a gjson path to the array of entries.
	ItemsPath   string
	NameField   string
	RatingField string
	Timeout     time.Duration
	Logger      *logging.Logger
}

// BiasRatings holds source name to rating mappings, refreshed from a remote
// provider with a bundled file as fallback.
type BiasRatings struct {
	cfg    BiasConfig
	client *httputil.APIClient
	log    *logging.Logger

	mu        sync.RWMutex
	ratings   map[string]Rating
	loadedAt  time.Time
	loadedVia string

	cron *cron.Cron
}

// NewBiasRatings creates an empty rating table. Call Refresh to populate it.
func NewBiasRatings(cfg BiasConfig) *BiasRatings {
	if cfg.ItemsPath == "" {
		cfg.ItemsPath = "@this"
	}
	if cfg.NameField == "" {
		cfg.NameField = "news_source"
	}
	if cfg.RatingField == "" {
		cfg.RatingField = "rating"
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("news")
	}
	b := &BiasRatings{cfg: cfg, log: log, ratings: map[string]Rating{}}
	if cfg.URL != "" {
		b.client = httputil.NewAPIClient(httputil.APIClientConfig{Name: "bias", BaseURL: cfg.URL, Timeout: cfg.Timeout})
	}
	return b
}

// Refresh reloads ratings from the provider, falling back to the local file.
// Existing ratings are kept when both fail.
func (b *BiasRatings) Refresh(ctx context.Context) error {
	if b.client != nil {
		start := time.Now()
		body, err := b.client.GetRaw(ctx, "", nil)
		metrics.RecordUpstreamCall("bias", time.Since(start), err == nil)
		if err == nil {
			ratings, perr := b.parse(body)
			if perr == nil && len(ratings) > 0 {
				b.swap(ratings, "remote")
				return nil
			}
			err = perr
			if err == nil {
				err = ErrNoBiasData
			}
		}
		b.log.WithContext(ctx).WithError(err).Warn("bias provider unavailable, using fallback")
	}

	if b.cfg.FallbackPath == "" {
		return ErrNoBiasData
	}
	raw, err := os.ReadFile(b.cfg.FallbackPath)
	if err != nil {
		return fmt.Errorf("read bias fallback: %w", err)
	}
	ratings, err := b.parse(raw)
	if err != nil {
		return err
	}
	if len(ratings) == 0 {
		return ErrNoBiasData
	}
	b.swap(ratings, "fallback")
	return nil
}

func (b *BiasRatings) parse(body []byte) (map[string]Rating, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("bias data is not valid json")
	}
	items := gjson.GetBytes(body, b.cfg.ItemsPath)
	if !items.IsArray() {
		return nil, fmt.Errorf("bias data at %q is not an array", b.cfg.ItemsPath)
	}
	out := make(map[string]Rating)
	items.ForEach(func(_, item gjson.Result) bool {
		name := strings.TrimSpace(item.Get(b.cfg.NameField).String())
		rating := strings.TrimSpace(item.Get(b.cfg.RatingField).String())
		if name != "" && rating != "" {
			out[biasKey(name)] = Rating{Source: name, Rating: rating}
		}
		return true
	})
	return out, nil
}

func (b *BiasRatings) swap(ratings map[string]Rating, via string) {
	b.mu.Lock()
	b.ratings = ratings
	b.loadedAt = time.Now()
	b.loadedVia = via
	b.mu.Unlock()
}

// Lookup returns the rating for a source name, case-insensitively.
func (b *BiasRatings) Lookup(source string) (Rating, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.ratings[biasKey(source)]
	return r, ok
}

// All returns every rating sorted by source name.
func (b *BiasRatings) All() []Rating {
	b.mu.RLock()
	out := make([]Rating, 0, len(b.ratings))
	for _, r := range b.ratings {
		out = append(out, r)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return biasKey(out[i].Source) < biasKey(out[j].Source) })
	return out
}

// Status reports the number of ratings and where they were loaded from.
func (b *BiasRatings) Status() (count int, via string, loadedAt time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ratings), b.loadedVia, b.loadedAt
}

// StartRefresh schedules Refresh on a cron spec such as "@every 6h".
func (b *BiasRatings) StartRefresh(spec string) error {
	if spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := b.Refresh(ctx); err != nil {
			b.log.WithError(err).Warn("bias refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule bias refresh: %w", err)
	}
	b.mu.Lock()
	b.cron = c
	b.mu.Unlock()
	c.Start()
	return nil
}

// StopRefresh stops the schedule and waits for a running refresh.
func (b *BiasRatings) StopRefresh() {
	b.mu.Lock()
	c := b.cron
	b.cron = nil
	b.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func biasKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
