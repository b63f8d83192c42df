package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/httputil"
)

var (
	// ErrProviderNotConfigured is returned when an enrichment provider has no URL.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrNoText is returned when the provider response has no text at the
	// configured path.
	ErrNoText = errors.New("provider returned no text")
)

// EnrichConfig configures the extraction and summarization providers.
type EnrichConfig struct {
	ExtractURL         string
	ExtractAPIKey      string
	ExtractTextPath    string
	SummarizeURL       string
	SummarizeAPIKey    string
	SummarizeTextPath  string
	SummarizeSentences int
	Timeout            time.Duration
	MaxRetries         int
}

// Enricher extracts article text and summaries from third-party APIs.
type Enricher struct {
	extract       *httputil.APIClient
	extractPath   string
	summarize     *httputil.APIClient
	summarizePath string
	sentences     int
}

// NewEnricher creates an enricher. Providers with no URL stay disabled.
func NewEnricher(cfg EnrichConfig) *Enricher {
	e := &Enricher{
		extractPath:   cfg.ExtractTextPath,
		summarizePath: cfg.SummarizeTextPath,
		sentences:     cfg.SummarizeSentences,
	}
	if e.extractPath == "" {
		e.extractPath = "$.objects[0].text"
	}
	if e.summarizePath == "" {
		e.summarizePath = "$.summary"
	}
	if e.sentences <= 0 {
		e.sentences = 5
	}
	if cfg.ExtractURL != "" {
		e.extract = httputil.NewAPIClient(httputil.APIClientConfig{
			Name:        "extract",
			BaseURL:     cfg.ExtractURL,
			APIKey:      cfg.ExtractAPIKey,
			APIKeyParam: "token",
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
		})
	}
	if cfg.SummarizeURL != "" {
		e.summarize = httputil.NewAPIClient(httputil.APIClientConfig{
			Name:         "summarize",
			BaseURL:      cfg.SummarizeURL,
			APIKey:       cfg.SummarizeAPIKey,
			APIKeyHeader: "X-Api-Key",
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		})
	}
	return e
}

// Extract returns the main text of the article at articleURL.
func (e *Enricher) Extract(ctx context.Context, articleURL string) (string, error) {
	if e.extract == nil {
		return "", fmt.Errorf("extract: %w", ErrProviderNotConfigured)
	}
	start := time.Now()
	body, err := e.extract.GetRaw(ctx, "", url.Values{"url": {articleURL}})
	metrics.RecordUpstreamCall("extract", time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	return textAt(body, e.extractPath)
}

// SummarizeRequest names either an article URL or raw text to summarize.
type SummarizeRequest struct {
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`
}

// Summarize returns a short summary of the article or text.
func (e *Enricher) Summarize(ctx context.Context, req SummarizeRequest) (string, error) {
	if e.summarize == nil {
		return "", fmt.Errorf("summarize: %w", ErrProviderNotConfigured)
	}
	payload := map[string]any{"sentences": e.sentences}
	if req.Text != "" {
		payload["text"] = req.Text
	} else {
		payload["url"] = req.URL
	}
	start := time.Now()
	body, err := e.summarize.PostRaw(ctx, "", payload)
	metrics.RecordUpstreamCall("summarize", time.Since(start), err == nil)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return textAt(body, e.summarizePath)
}

// textAt evaluates a JSONPath expression against a JSON body. Array results
// are joined with newlines.
func textAt(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoText, err)
	}
	var text string
	switch val := v.(type) {
	case string:
		text = val
	case []any:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
		text = strings.Join(parts, "\n")
	case nil:
	default:
		text = fmt.Sprint(val)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}
