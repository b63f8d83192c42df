package friends

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/httputil"
)

// AddFriendInput is the body of POST /friends.
type AddFriendInput struct {
	Username string `json:"username"`
}

// CountResponse answers GET /friends/count.
type CountResponse struct {
	Count int `json:"count"`
}

func (s *Service) registerRoutes() {
	r := s.Router()
	r.HandleFunc("/friends", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/friends", s.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/friends/count", s.handleCount).Methods(http.MethodGet)
	r.HandleFunc("/friends/{username}", s.handleRemove).Methods(http.MethodDelete)
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	list, err := s.ListFriends(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("list friends")
		httputil.InternalError(w, "failed to list friends")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (s *Service) handleAdd(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	var input AddFriendInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	res := s.AddFriend(r.Context(), uid, input.Username)
	status := http.StatusInternalServerError
	switch res.State {
	case AddFriendSuccess:
		status = http.StatusCreated
	case AddFriendAlreadyAdded:
		status = http.StatusConflict
	case AddFriendSelfAttempt:
		status = http.StatusBadRequest
	case AddFriendUserNotFound:
		status = http.StatusNotFound
	}
	httputil.WriteJSON(w, status, res)
}

func (s *Service) handleCount(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	n, err := s.FriendCount(r.Context(), uid)
	if err != nil {
		s.log.WithContext(r.Context()).WithError(err).Error("count friends")
		httputil.InternalError(w, "failed to count friends")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (s *Service) handleRemove(w http.ResponseWriter, r *http.Request) {
	uid, ok := httputil.RequireUserID(w, r)
	if !ok {
		return
	}
	if !s.RemoveFriend(r.Context(), uid, mux.Vars(r)["username"]) {
		httputil.NotFound(w, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
