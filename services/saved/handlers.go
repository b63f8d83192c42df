package saved

import (
	"errors"
	"net/http"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/httputil"
)

// SaveResponse answers POST /saved.
type SaveResponse struct {
	Created bool `json:"created"`
}

// IsSavedResponse answers GET /saved?url=.
type IsSavedResponse struct {
	URL   string `json:"url"`
	Saved bool   `json:"saved"`
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/saved", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/saved", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/saved", s.handleRemove).Methods(http.MethodDelete)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	if articleURL := r.URL.Query().Get("url"); articleURL != "" {
		isSaved, err := s.IsSaved(r.Context(), uid, articleURL)
		if err != nil {
			s.log.WithContext(r.Context()).WithError(err).Error("check saved article")
			httputil.InternalError(w, "failed to check saved article")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, IsSavedResponse{URL: articleURL, Saved: isSaved})
		return
	}

	list, err := s.List(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("list saved articles")
		httputil.InternalError(w, "failed to list saved articles")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Service) handleSave(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var a article.Article
	if !httputil.DecodeJSON(w, r, &a) {
		return
	}
	created, err := s.Save(r.Context(), uid, a)
	if errors.Is(err, article.ErrMissingURL) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("save article")
		httputil.InternalError(w, "failed to save article")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, SaveResponse{Created: created})
}

func (s *Service) handleRemove(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	articleURL := r.URL.Query().Get("url")
	if articleURL == "" {
		httputil.BadRequest(w, "url is required")
		return
	}
	if err := s.Remove(r.Context(), uid, articleURL); err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("remove saved article")
		httputil.InternalError(w, "failed to remove saved article")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
