// Package friends manages one-way friend edges keyed by username lookups.
package friends

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/friend"
	"github.com/mynews-app/service_layer/internal/app/domain/user"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "friends"
	ServiceName = "Friends Service"
	Version     = "1.0.0"
)

// AddFriendState is the outcome of AddFriend.
type AddFriendState string

const (
	AddFriendSuccess      AddFriendState = "success"
	AddFriendAlreadyAdded AddFriendState = "already_added_friend"
	AddFriendSelfAttempt  AddFriendState = "self_add_attempt"
	AddFriendUserNotFound AddFriendState = "user_not_found"
	AddFriendError        AddFriendState = "error"
)

// AddFriendResult carries the state and, on error, a message.
type AddFriendResult struct {
	State   AddFriendState `json:"state"`
	Message string         `json:"message,omitempty"`
	Friend  *friend.Friend `json:"friend,omitempty"`
}

// UsernameResolver maps usernames to uids.
type UsernameResolver interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// Observer is told whenever the edge set of a user changes.
type Observer interface {
	LogAddOrRemoveFriend(ctx context.Context, uid string)
}

// Service implements the friends directory.
type Service struct {
	*commonservice.BaseService
	store    docstore.Store
	resolver UsernameResolver
	observer Observer
	log      *logging.Logger
	now      func() time.Time
}

// Config configures the friends service.
type Config struct {
	Store    docstore.Store
	Resolver UsernameResolver
	Router   *mux.Router
	Logger   *logging.Logger
}

// New creates the friends service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("friends: store is required")
	}
	if cfg.Resolver == nil {
		return nil, errors.New("friends: username resolver is required")
	}
	base := commonservice.NewBase(&commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Store:   cfg.Store,
		Router:  cfg.Router,
		Logger:  cfg.Logger,
	})
	s := &Service{
		BaseService: base,
		store:       cfg.Store,
		resolver:    cfg.Resolver,
		log:         base.Logger(),
		now:         time.Now,
	}
	s.registerRoutes()
	return s, nil
}

// SetObserver registers the observer notified after add and remove.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// AddFriend adds an edge from uid to the owner of username.
func (s *Service) AddFriend(ctx context.Context, uid, username string) AddFriendResult {
	res := s.addFriend(ctx, uid, username)
	metrics.RecordFriendOperation("add", string(res.State))
	if res.State == AddFriendSuccess {
		s.notify(ctx, uid)
	}
	return res
}

func (s *Service) addFriend(ctx context.Context, uid, username string) AddFriendResult {
	username = user.NormalizeUsername(username)
	if username == "" {
		return AddFriendResult{State: AddFriendUserNotFound}
	}

	friendUID, err := s.resolver.ResolveUsername(ctx, username)
	if errors.Is(err, docstore.ErrNotFound) {
		return AddFriendResult{State: AddFriendUserNotFound}
	}
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("add friend: resolve username")
		return AddFriendResult{State: AddFriendError, Message: "failed to look up username"}
	}
	if friendUID == uid {
		return AddFriendResult{State: AddFriendSelfAttempt}
	}

	path := friend.EdgePath(uid, friendUID)
	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("add friend: check edge")
		return AddFriendResult{State: AddFriendError, Message: "failed to check friend"}
	}
	if exists {
		return AddFriendResult{State: AddFriendAlreadyAdded}
	}

	edge := friend.Edge{Username: username, Timestamp: s.now().UTC()}
	if err := s.store.Set(ctx, path, edge); err != nil {
		s.log.WithContext(ctx).WithError(err).Error("add friend: write edge")
		return AddFriendResult{State: AddFriendError, Message: "failed to add friend"}
	}
	return AddFriendResult{
		State:  AddFriendSuccess,
		Friend: &friend.Friend{UID: friendUID, Username: edge.Username, Timestamp: edge.Timestamp},
	}
}

// RemoveFriend deletes the edge to the owner of username. It returns false
// only when the username cannot be resolved.
func (s *Service) RemoveFriend(ctx context.Context, uid, username string) bool {
	friendUID, err := s.resolver.ResolveUsername(ctx, user.NormalizeUsername(username))
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.log.WithContext(ctx).WithError(err).Error("remove friend: resolve username")
		}
		metrics.RecordFriendOperation("remove", "user_not_found")
		return false
	}
	if err := s.store.Delete(ctx, friend.EdgePath(uid, friendUID)); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("remove friend: delete edge")
		metrics.RecordFriendOperation("remove", "error")
	} else {
		metrics.RecordFriendOperation("remove", "success")
	}
	s.notify(ctx, uid)
	return true
}

// FriendCount returns the number of edges uid holds.
func (s *Service) FriendCount(ctx context.Context, uid string) (int, error) {
	n, err := s.store.Count(ctx, friend.CollectionPath(uid))
	if err != nil {
		return 0, fmt.Errorf("count friends: %w", err)
	}
	return n, nil
}

// ListFriends returns the friends of uid ordered by username.
func (s *Service) ListFriends(ctx context.Context, uid string) ([]friend.Friend, error) {
	docs, err := s.store.List(ctx, friend.CollectionPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return s.decode(ctx, docs), nil
}

// WatchFriends streams the friend list of uid on every change.
func (s *Service) WatchFriends(ctx context.Context, uid string, fn func([]friend.Friend, error)) (docstore.Subscription, error) {
	return s.store.Watch(ctx, friend.CollectionPath(uid), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(s.decode(ctx, docs), nil)
	})
}

func (s *Service) decode(ctx context.Context, docs []docstore.Document) []friend.Friend {
	out := make([]friend.Friend, 0, len(docs))
	for _, d := range docs {
		var e friend.Edge
		if err := d.DataTo(&e); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("path", d.Path).Warn("skipping malformed friend edge")
			continue
		}
		out = append(out, friend.Friend{UID: d.ID, Username: e.Username, Timestamp: e.Timestamp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *Service) notify(ctx context.Context, uid string) {
	if s.observer != nil {
		s.observer.LogAddOrRemoveFriend(ctx, uid)
	}
}
