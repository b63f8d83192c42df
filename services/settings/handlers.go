package settings

import (
	"errors"
	"net/http"

	model "github.com/mynews-app/service_layer/internal/app/domain/settings"
	"github.com/mynews-app/service_layer/internal/httputil"
)

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/settings", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/settings", s.handlePut).Methods(http.MethodPut)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	out, err := s.Get(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("get settings")
		httputil.InternalError(w, "failed to load settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Service) handlePut(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var in model.Settings
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	out, err := s.Update(r.Context(), uid, in)
	if errors.Is(err, ErrInvalidSettings) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("update settings")
		httputil.InternalError(w, "failed to save settings")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
