package goals

import (
	"net/http"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/domain/goals"
	"github.com/mynews-app/service_layer/internal/httputil"
)

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/goals/reads", s.handleLogRead).Methods(http.MethodPost)
	r.HandleFunc("/goals/streak", s.handleStreak).Methods(http.MethodGet)
	r.HandleFunc("/goals/missions", s.handleMissions).Methods(http.MethodGet)
	r.HandleFunc("/goals/missions/ws", s.handleMissionsStream).Methods(http.MethodGet)
}

func (s *Service) handleLogRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var a article.Article
	if !httputil.DecodeJSON(w, r, &a) {
		return
	}
	if err := a.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	s.LogArticleRead(r.Context(), uid, a)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleStreak(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	streak, err := s.GetStreak(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("get streak")
		httputil.InternalError(w, "failed to load streak")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, streak)
}

func (s *Service) handleMissions(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	missions, err := s.GetMissions(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("get missions")
		httputil.InternalError(w, "failed to load missions")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, missions)
}

func (s *Service) handleMissionsStream(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	stream, err := httputil.UpgradeStream(w, r)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Debug("missions stream: upgrade")
		return
	}
	defer stream.Close()

	ctx := stream.Context()
	sub, err := s.WatchMissions(ctx, uid, func(missions []goals.Mission, err error) {
		if err != nil {
			_ = stream.SendError(err)
			_ = stream.Close()
			return
		}
		_ = stream.Send("missions", missions)
	})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("missions stream: watch")
		_ = stream.SendError(err)
		return
	}
	defer sub.Stop()

	<-stream.Done()
}
