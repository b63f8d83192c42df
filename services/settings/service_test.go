package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/mynews-app/service_layer/internal/app/domain/settings"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	svc, err := New(Config{Store: store, DefaultCountry: "gb", Router: mux.NewRouter(), Logger: logging.Discard()})
	require.NoError(t, err)
	return svc
}

func TestGetDefaultsAndUpdate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	got, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.Default("gb"), got)

	saved, err := svc.Update(ctx, "u1", model.Settings{
		DarkMode:   true,
		FontScale:  1.25,
		Country:    " US ",
		Categories: []string{"Sports", "sports", "science"},
	})
	require.NoError(t, err)
	assert.Equal(t, "us", saved.Country)
	assert.Equal(t, []string{"sports", "science"}, saved.Categories)

	got, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	_, err = svc.Update(ctx, "u1", model.Settings{FontScale: 9, Country: "us"})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestHandlers(t *testing.T) {
	svc := newTestService(t)
	do := func(method string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		req := httptest.NewRequest(method, "/settings", &buf)
		req = req.WithContext(logging.WithUserID(req.Context(), "u1"))
		rr := httptest.NewRecorder()
		svc.Router().ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodGet, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "gb", got.Country)

	rr = do(http.MethodPut, model.Settings{FontScale: 1, Country: "de", Categories: []string{"health"}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(http.MethodPut, model.Settings{FontScale: 1, Country: "de", Categories: []string{"gossip"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodPut, map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
