package social

import (
	"net/http"

	"github.com/mynews-app/service_layer/internal/httputil"
)

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/social/feed", s.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/social/feed/ws", s.handleFeedStream).Methods(http.MethodGet)
}

func (s *Service) handleFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	feed, err := s.Feed(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("social feed")
		httputil.InternalError(w, "failed to load feed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, feed)
}

func (s *Service) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	stream, err := httputil.UpgradeStream(w, r)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Debug("feed stream: upgrade")
		return
	}
	defer stream.Close()

	err = s.LiveFeed(stream.Context(), uid, func(entries []FeedEntry) {
		_ = stream.Send("feed", entries)
	})
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("feed stream")
		_ = stream.SendError(err)
	}
}
