package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
)

type unhealthyStore struct {
	docstore.Store
}

func (unhealthyStore) Health(context.Context) error { return errors.New("down") }

func newTestBase(store docstore.Store) *BaseService {
	return NewBase(&BaseConfig{ID: "test", Name: "Test Service", Version: "1.2.3", Store: store, Logger: logging.Discard()})
}

func TestBaseService_HydrateAndWorkers(t *testing.T) {
	base := newTestBase(nil)
	var hydrated, ticks atomic.Int32
	started := make(chan struct{})

	base.WithHydrate(func(context.Context) error {
		hydrated.Add(1)
		return nil
	}).AddWorker(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}).AddTickerWorker(5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("logged and ignored")
	})
	assert.Equal(t, 2, base.WorkerCount())

	require.NoError(t, base.Start(context.Background()))
	<-started
	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), hydrated.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, base.Stop(ctx))
	require.NoError(t, base.Stop(ctx))
}

func TestBaseService_HydrateError(t *testing.T) {
	base := newTestBase(nil).WithHydrate(func(context.Context) error { return errors.New("boom") })
	err := base.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hydrate")
}

func TestHealthHandler(t *testing.T) {
	base := newTestBase(docstore.NewMemory())
	base.RegisterStandardRoutes()

	rr := httptest.NewRecorder()
	base.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "Test Service", resp.Service)
	assert.Equal(t, true, resp.Details["store_connected"])

	sick := newTestBase(unhealthyStore{})
	sick.RegisterStandardRoutes()
	rr = httptest.NewRecorder()
	sick.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestInfoHandler(t *testing.T) {
	base := newTestBase(nil).WithStats(func() map[string]any {
		return map[string]any{"subscriptions": 3}
	})
	base.RegisterStandardRoutes()

	rr := httptest.NewRecorder()
	base.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/info", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, float64(3), resp.Statistics["subscriptions"])
	assert.Greater(t, resp.Process.Goroutines, 0)
}
