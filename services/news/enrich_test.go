package news

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnricher_Extract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://a.example/story", r.URL.Query().Get("url"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"objects":[{"title":"Story","text":"  Full body text. "}]}`))
	}))
	defer srv.Close()

	e := NewEnricher(EnrichConfig{ExtractURL: srv.URL, ExtractAPIKey: "tok"})
	text, err := e.Extract(context.Background(), "https://a.example/story")
	require.NoError(t, err)
	assert.Equal(t, "Full body text.", text)
}

func TestEnricher_Summarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "long text", body["text"])
		assert.EqualValues(t, 3, body["sentences"])
		_, _ = w.Write([]byte(`{"summary":["First point.","Second point."]}`))
	}))
	defer srv.Close()

	e := NewEnricher(EnrichConfig{SummarizeURL: srv.URL, SummarizeAPIKey: "key", SummarizeSentences: 3})
	text, err := e.Summarize(context.Background(), SummarizeRequest{Text: "long text"})
	require.NoError(t, err)
	assert.Equal(t, "First point.\nSecond point.", text)
}

func TestEnricher_CustomPathAndMissingText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"content":"Body"}}`))
	}))
	defer srv.Close()

	e := NewEnricher(EnrichConfig{ExtractURL: srv.URL, ExtractTextPath: "$.result.content"})
	text, err := e.Extract(context.Background(), "https://a.example/x")
	require.NoError(t, err)
	assert.Equal(t, "Body", text)

	e = NewEnricher(EnrichConfig{ExtractURL: srv.URL})
	_, err = e.Extract(context.Background(), "https://a.example/x")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestEnricher_NotConfigured(t *testing.T) {
	e := NewEnricher(EnrichConfig{})
	_, err := e.Extract(context.Background(), "https://a.example/x")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	_, err = e.Summarize(context.Background(), SummarizeRequest{URL: "https://a.example/x"})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
