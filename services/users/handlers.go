package users

import (
	"errors"
	"net/http"

	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/httputil"
)

// RegisterInput is the body of POST /users.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SessionInput is the body of PATCH /users/me/session.
type SessionInput struct {
	LoggedIn bool `json:"loggedIn"`
}

// AvailabilityResponse answers GET /users/availability.
type AvailabilityResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/users/me", s.handleGetMe).Methods(http.MethodGet)
	r.HandleFunc("/users/me", s.handleDeleteMe).Methods(http.MethodDelete)
	r.HandleFunc("/users/me/session", s.handleSession).Methods(http.MethodPatch)
	r.HandleFunc("/users/availability", s.handleAvailability).Methods(http.MethodGet)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input RegisterInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res := s.Register(r.Context(), uid, input.Username, input.Email)
	switch res.State {
	case RegisterSuccess:
		httputil.WriteJSON(w, http.StatusCreated, res)
	case RegisterInvalidUsername:
		httputil.WriteJSON(w, http.StatusBadRequest, res)
	case RegisterUsernameTaken, RegisterAlreadyRegistered:
		httputil.WriteJSON(w, http.StatusConflict, res)
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, res)
	}
}

func (s *Service) handleGetMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	u, err := s.Get(r.Context(), uid)
	if errors.Is(err, docstore.ErrNotFound) {
		httputil.NotFound(w, "user not registered")
		return
	}
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("get profile")
		httputil.InternalError(w, "failed to load profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (s *Service) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	err := s.Delete(r.Context(), uid)
	if errors.Is(err, docstore.ErrNotFound) {
		httputil.NotFound(w, "user not registered")
		return
	}
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("delete user")
		httputil.InternalError(w, "failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input SessionInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	err := s.SetLoggedIn(r.Context(), uid, input.LoggedIn)
	if errors.Is(err, docstore.ErrNotFound) {
		httputil.NotFound(w, "user not registered")
		return
	}
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("set session flag")
		httputil.InternalError(w, "failed to update session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if _, ok := httputil.RequireUserID(w, r); !ok {
		return
	}
	username := r.URL.Query().Get("username")
	if username == "" {
		httputil.BadRequest(w, "username is required")
		return
	}
	available, err := s.IsUsernameAvailable(r.Context(), username)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("check availability")
		httputil.InternalError(w, "failed to check username")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AvailabilityResponse{Username: username, Available: available})
}
