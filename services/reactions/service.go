// Package reactions stores the single current emoji reaction of a user on
// an article and reports the transition each write causes.
package reactions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "reactions"
	ServiceName = "Reactions Service"
	Version     = "1.0.0"
)

// Observer is told about reactions that appear or disappear.
type Observer interface {
	LogReactionAdded(ctx context.Context, uid string)
	LogReactionRemoved(ctx context.Context, uid string)
}

// Service implements the reaction store.
type Service struct {
	*commonservice.BaseService
	store    docstore.Store
	observer Observer
	log      *logging.Logger
	now      func() time.Time
}

// Config configures the reactions service.
type Config struct {
	Store  docstore.Store
	Router *mux.Router
	Logger *logging.Logger
}

// New creates the reactions service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("reactions: store is required")
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
		log:         base.Logger(),
		now:         time.Now,
	}
	s.registerRoutes()
	return s, nil
}

// SetObserver registers the observer the HTTP surface notifies.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// SetReaction records emoji as the reaction of uid on a. A nil emoji
// removes any existing reaction.
func (s *Service) SetReaction(ctx context.Context, uid string, a article.Article, emoji *string) (reaction.Result, error) {
	if err := a.Validate(); err != nil {
		return reaction.Result{}, err
	}
	path := reaction.Path(uid, a.URL)

	var current reaction.Reaction
	err := s.store.Get(ctx, path, &current)
	exists := err == nil
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return reaction.Result{}, fmt.Errorf("load reaction: %w", err)
	}

	var res reaction.Result
	switch {
	case emoji == nil || strings.TrimSpace(*emoji) == "":
		if !exists {
			break
		}
		if err := s.store.Delete(ctx, path); err != nil {
			return reaction.Result{}, fmt.Errorf("delete reaction: %w", err)
		}
		res.WasDeleted = true
	case exists && current.Reaction == *emoji:
	default:
		doc := reaction.Reaction{
			UserID:    uid,
			Article:   a,
			Reaction:  *emoji,
			Timestamp: s.now().UTC(),
		}
		if err := s.store.Set(ctx, path, doc); err != nil {
			return reaction.Result{}, fmt.Errorf("save reaction: %w", err)
		}
		res.IsFirstReaction = !exists
		res.WasSwitched = exists
	}

	metrics.RecordReactionTransition(res.Kind())
	return res, nil
}

// GetReaction returns the reaction of uid on articleURL, or nil.
func (s *Service) GetReaction(ctx context.Context, uid, articleURL string) (*reaction.Reaction, error) {
	var r reaction.Reaction
	err := s.store.Get(ctx, reaction.Path(uid, articleURL), &r)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reaction: %w", err)
	}
	return &r, nil
}

// ListReactions returns every reaction of uid, newest first.
func (s *Service) ListReactions(ctx context.Context, uid string) ([]reaction.Reaction, error) {
	docs, err := s.store.List(ctx, reaction.CollectionPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return s.Decode(ctx, docs), nil
}

// WatchReactions streams the reactions of uid, newest first, on every change.
func (s *Service) WatchReactions(ctx context.Context, uid string, fn func([]reaction.Reaction, error)) (docstore.Subscription, error) {
	return s.store.Watch(ctx, reaction.CollectionPath(uid), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(s.Decode(ctx, docs), nil)
	})
}

// Decode converts reaction documents, skipping malformed ones, and sorts the
// result newest first.
func (s *Service) Decode(ctx context.Context, docs []docstore.Document) []reaction.Reaction {
	out := make([]reaction.Reaction, 0, len(docs))
	for _, d := range docs {
		var r reaction.Reaction
		if err := d.DataTo(&r); err != nil || r.Reaction == "" || r.Article.URL == "" {
			s.log.WithContext(ctx).WithField("path", d.Path).Warn("skipping malformed reaction")
			continue
		}
		out = append(out, r)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders reactions by timestamp descending.
func SortNewestFirst(list []reaction.Reaction) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
}
