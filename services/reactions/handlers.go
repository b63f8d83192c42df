package reactions

import (
	"net/http"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/httputil"
)

// SetReactionInput is the body of PUT /reactions. A null reaction removes it.
type SetReactionInput struct {
	Article  article.Article `json:"article"`
	Reaction *string         `json:"reaction"`
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/reactions", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/reactions", s.handleSet).Methods(http.MethodPut)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}

	if articleURL := r.URL.Query().Get("url"); articleURL != "" {
		rec, err := s.GetReaction(r.Context(), uid, articleURL)
		if err != nil {
			s.log.WithContext(r.Context()).WithError(err).Error("get reaction")
			httputil.InternalError(w, "failed to load reaction")
			return
		}
		if rec == nil {
			httputil.NotFound(w, "no reaction")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rec)
		return
	}

	list, err := s.ListReactions(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("list reactions")
		httputil.InternalError(w, "failed to list reactions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Service) handleSet(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input SetReactionInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if err := input.Article.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := s.SetReaction(r.Context(), uid, input.Article, input.Reaction)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("set reaction")
		httputil.InternalError(w, "failed to save reaction")
		return
	}
	s.forward(r, uid, res)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (s *Service) forward(r *http.Request, uid string, res reaction.Result) {
	if s.observer == nil {
		return
	}
	switch {
	case res.IsFirstReaction:
		s.observer.LogReactionAdded(r.Context(), uid)
	case res.WasDeleted:
		s.observer.LogReactionRemoved(r.Context(), uid)
	}
}
