package users

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynews-app/service_layer/internal/app/domain/friend"
	"github.com/mynews-app/service_layer/internal/app/domain/goals"
	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/app/domain/settings"
	"github.com/mynews-app/service_layer/internal/app/domain/user"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
)

func newTestService(t *testing.T) (*Service, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	svc, err := New(Config{Store: store, Router: mux.NewRouter(), Logger: logging.Discard()})
	require.NoError(t, err)
	return svc, store
}

func serve(svc *Service, uid, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if uid != "" {
		req = req.WithContext(logging.WithUserID(req.Context(), uid))
	}
	rr := httptest.NewRecorder()
	svc.Router().ServeHTTP(rr, req)
	return rr
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{Router: mux.NewRouter()})
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	res := svc.Register(ctx, "u1", "  Alice ", "Alice@Example.COM")
	require.Equal(t, RegisterSuccess, res.State)
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "alice@example.com", res.User.Email)

	var r user.Reservation
	require.NoError(t, store.Get(ctx, user.ReservationPath("alice"), &r))
	assert.Equal(t, "u1", r.UID)

	assert.Equal(t, RegisterAlreadyRegistered, svc.Register(ctx, "u1", "other", "").State)
	assert.Equal(t, RegisterUsernameTaken, svc.Register(ctx, "u2", "ALICE", "").State)
	assert.Equal(t, RegisterInvalidUsername, svc.Register(ctx, "u2", "a!", "").State)

	owner, err := svc.ResolveUsername(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", owner)

	_, err = svc.ResolveUsername(ctx, "nobody")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestIsUsernameAvailable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.Equal(t, RegisterSuccess, svc.Register(ctx, "u1", "alice", "").State)

	ok, err := svc.IsUsernameAvailable(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.IsUsernameAvailable(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsUsernameAvailable(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.Equal(t, RegisterSuccess, svc.Register(ctx, "u1", "alice", "").State)

	uid, err := svc.ResolveUsername(ctx, " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	for _, name := range []string{"", "a/b", ".", "..", "nobody"} {
		_, err := svc.ResolveUsername(ctx, name)
		assert.ErrorIs(t, err, docstore.ErrNotFound, name)
	}
}

func TestSetLoggedIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	assert.ErrorIs(t, svc.SetLoggedIn(ctx, "ghost", true), docstore.ErrNotFound)

	require.Equal(t, RegisterSuccess, svc.Register(ctx, "u1", "alice", "").State)
	require.NoError(t, svc.SetLoggedIn(ctx, "u1", false))

	u, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.LoggedIn)
	assert.Equal(t, "alice", u.Username)
}

func TestDelete_Cascades(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	require.Equal(t, RegisterSuccess, svc.Register(ctx, "u1", "alice", "").State)
	require.Equal(t, RegisterSuccess, svc.Register(ctx, "u2", "bob", "").State)

	now := time.Now()
	require.NoError(t, store.Set(ctx, friend.EdgePath("u1", "u2"), friend.Edge{Username: "bob", Timestamp: now}))
	require.NoError(t, store.Set(ctx, friend.EdgePath("u2", "u1"), friend.Edge{Username: "alice", Timestamp: now}))
	require.NoError(t, store.Set(ctx, reaction.Path("u1", "http://a.com"), reaction.Reaction{UserID: "u1", Reaction: "👍"}))
	require.NoError(t, store.Set(ctx, goals.StreakPath("u1"), goals.Streak{Count: 2}))
	require.NoError(t, store.Set(ctx, goals.MissionPath("u1", "read_1"), goals.Mission{ID: "read_1", TargetCount: 1, Type: goals.MissionReadArticle}))
	require.NoError(t, store.Set(ctx, settings.Path("u1"), settings.Default("us")))

	require.NoError(t, svc.Delete(ctx, "u1"))

	for _, p := range []string{
		user.Path("u1"),
		user.ReservationPath("alice"),
		friend.EdgePath("u1", "u2"),
		reaction.Path("u1", "http://a.com"),
		goals.StreakPath("u1"),
		goals.MissionPath("u1", "read_1"),
		settings.Path("u1"),
	} {
		ok, err := store.Exists(ctx, p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}

	ok, err := store.Exists(ctx, friend.EdgePath("u2", "u1"))
	require.NoError(t, err)
	assert.True(t, ok, "edges held by other users are untouched")

	available, err := svc.IsUsernameAvailable(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, available)

	assert.ErrorIs(t, svc.Delete(ctx, "u1"), docstore.ErrNotFound)
}

func TestHandlers(t *testing.T) {
	svc, _ := newTestService(t)

	rr := serve(svc, "", http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(svc, "u1", http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(svc, "u1", http.MethodPost, "/users", RegisterInput{Username: "alice", Email: "a@b.c"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(svc, "u2", http.MethodPost, "/users", RegisterInput{Username: "alice"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	var res RegisterResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, RegisterUsernameTaken, res.State)

	rr = serve(svc, "u2", http.MethodPost, "/users", RegisterInput{Username: "!!"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(svc, "u1", http.MethodGet, "/users/availability?username=alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var avail AvailabilityResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &avail))
	assert.False(t, avail.Available)

	rr = serve(svc, "u1", http.MethodGet, "/users/availability", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(svc, "u1", http.MethodPatch, "/users/me/session", SessionInput{LoggedIn: false})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = serve(svc, "u1", http.MethodGet, "/users/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var u user.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u))
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.LoggedIn)

	rr = serve(svc, "u1", http.MethodDelete, "/users/me", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = serve(svc, "u1", http.MethodDelete, "/users/me", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
