package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynews-app/service_layer/internal/logging"
)

func writeFallback(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bias.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBiasRatings_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"name":"CNN","bias":"left"},{"name":"Reuters","bias":"center"},{"name":"","bias":"x"}]}`))
	}))
	defer srv.Close()

	b := NewBiasRatings(BiasConfig{
		URL:         srv.URL,
		ItemsPath:   "data",
		NameField:   "name",
		RatingField: "bias",
		Logger:      logging.Discard(),
	})
	require.NoError(t, b.Refresh(context.Background()))

	r, ok := b.Lookup("  cnn ")
	require.True(t, ok)
	assert.Equal(t, Rating{Source: "CNN", Rating: "left"}, r)

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, "CNN", all[0].Source)

	count, via, _ := b.Status()
	assert.Equal(t, 2, count)
	assert.Equal(t, "remote", via)
}

func TestBiasRatings_FallbackWhenRemoteFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := NewBiasRatings(BiasConfig{
		URL:          srv.URL,
		FallbackPath: writeFallback(t, `[{"news_source":"Fox News","rating":"right"}]`),
		Logger:       logging.Discard(),
	})
	require.NoError(t, b.Refresh(context.Background()))

	r, ok := b.Lookup("Fox News")
	require.True(t, ok)
	assert.Equal(t, "right", r.Rating)
	_, via, _ := b.Status()
	assert.Equal(t, "fallback", via)
}

func TestBiasRatings_KeepsDataWhenRefreshFails(t *testing.T) {
	path := writeFallback(t, `[{"news_source":"NPR","rating":"left-center"}]`)
	b := NewBiasRatings(BiasConfig{FallbackPath: path, Logger: logging.Discard()})
	require.NoError(t, b.Refresh(context.Background()))

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	assert.Error(t, b.Refresh(context.Background()))

	_, ok := b.Lookup("npr")
	assert.True(t, ok)
}

func TestBiasRatings_NoData(t *testing.T) {
	b := NewBiasRatings(BiasConfig{Logger: logging.Discard()})
	assert.ErrorIs(t, b.Refresh(context.Background()), ErrNoBiasData)

	b = NewBiasRatings(BiasConfig{FallbackPath: writeFallback(t, `[]`), Logger: logging.Discard()})
	assert.ErrorIs(t, b.Refresh(context.Background()), ErrNoBiasData)
}

func TestBiasRatings_BundledFile(t *testing.T) {
	b := NewBiasRatings(BiasConfig{FallbackPath: filepath.Join("..", "..", "data", "media_bias.json"), Logger: logging.Discard()})
	require.NoError(t, b.Refresh(context.Background()))

	r, ok := b.Lookup("Reuters")
	require.True(t, ok)
	assert.Equal(t, "center", r.Rating)
}

func TestBiasRatings_RefreshSchedule(t *testing.T) {
	b := NewBiasRatings(BiasConfig{Logger: logging.Discard()})
	assert.Error(t, b.StartRefresh("not a schedule"))

	require.NoError(t, b.StartRefresh("@every 1h"))
	b.StopRefresh()
	b.StopRefresh()
}
