// Package social builds the friend activity feed.
package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/friend"
	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "social"
	ServiceName = "Social Service"
	Version     = "1.0.0"
)

// Friends is the friend directory surface the feed needs.
type Friends interface {
	ListFriends(ctx context.Context, uid string) ([]friend.Friend, error)
	WatchFriends(ctx context.Context, uid string, fn func([]friend.Friend, error)) (docstore.Subscription, error)
}

// Reactions is the reaction store surface the feed needs.
type Reactions interface {
	ReactionWatcher
	ListReactions(ctx context.Context, uid string) ([]reaction.Reaction, error)
}

// FeedEntry is one friend reaction with the friend's username.
type FeedEntry struct {
	reaction.Reaction
	Username string `json:"username"`
}

// Service implements the social feed.
type Service struct {
	*commonservice.BaseService
	friends   Friends
	reactions Reactions
	log       *logging.Logger
	live      atomic.Int64
}

// Config configures the social service.
type Config struct {
	Friends   Friends
	Reactions Reactions
	Store     docstore.Store
	Router    *mux.Router
	Logger    *logging.Logger
}

// New creates the social service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Friends == nil || cfg.Reactions == nil {
		return nil, errors.New("social: friends and reactions are required")
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
		friends:     cfg.Friends,
		reactions:   cfg.Reactions,
		log:         base.Logger(),
	}
	base.WithStats(func() map[string]any {
		return map[string]any{"live_feeds": s.live.Load()}
	})
	s.registerRoutes()
	return s, nil
}

// Friends subscribes to the friend edges of uid and calls onResult with a
// friend id to username map on every change. A failed feed yields an empty map.
func (s *Service) Friends(ctx context.Context, uid string, onResult func(map[string]string)) (docstore.Subscription, error) {
	return s.friends.WatchFriends(ctx, uid, func(list []friend.Friend, err error) {
		out := make(map[string]string, len(list))
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("friend feed ended")
			onResult(out)
			return
		}
		for _, f := range list {
			out[f.UID] = f.Username
		}
		onResult(out)
	})
}

// NewAggregator starts a reaction aggregator backed by the reaction store.
func (s *Service) NewAggregator(ctx context.Context, emit func([]reaction.Reaction)) *Aggregator {
	return NewAggregator(ctx, s.reactions, emit, s.log)
}

// Feed returns the current reactions of every friend of uid, newest first.
func (s *Service) Feed(ctx context.Context, uid string) ([]FeedEntry, error) {
	friends, err := s.friends.ListFriends(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	names := make(map[string]string, len(friends))
	var all []reaction.Reaction
	for _, f := range friends {
		names[f.UID] = f.Username
		list, err := s.reactions.ListReactions(ctx, f.UID)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("friend", f.UID).Warn("feed: skipping friend")
			continue
		}
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	return toEntries(all, names), nil
}

// LiveFeed follows the friends of uid and calls emit with the merged feed
// after every friend or reaction change until ctx ends.
func (s *Service) LiveFeed(ctx context.Context, uid string, emit func([]FeedEntry)) error {
	s.live.Add(1)
	defer s.live.Add(-1)

	var mu sync.Mutex
	names := map[string]string{}

	agg := s.NewAggregator(ctx, func(list []reaction.Reaction) {
		mu.Lock()
		entries := toEntries(list, names)
		mu.Unlock()
		emit(entries)
	})
	defer agg.Close()

	sub, err := s.Friends(ctx, uid, func(m map[string]string) {
		mu.Lock()
		names = m
		mu.Unlock()
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if err := agg.SetFriends(ids); err != nil && !errors.Is(err, ErrAggregatorClosed) {
			s.log.WithContext(ctx).WithError(err).Warn("live feed: set friends")
		}
	})
	if err != nil {
		return fmt.Errorf("watch friends: %w", err)
	}
	defer sub.Stop()

	<-ctx.Done()
	return nil
}

func toEntries(list []reaction.Reaction, names map[string]string) []FeedEntry {
	out := make([]FeedEntry, 0, len(list))
	for _, r := range list {
		out = append(out, FeedEntry{Reaction: r, Username: names[r.UserID]})
	}
	return out
}
