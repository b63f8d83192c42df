// Package saved keeps the articles a user has bookmarked.
package saved

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/domain/saved"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "saved"
	ServiceName = "Saved Articles Service"
	Version     = "1.0.0"
)

// Service implements the saved articles store.
type Service struct {
	*commonservice.BaseService
	store docstore.Store
	log   *logging.Logger
	now   func() time.Time
}

// Config configures the saved articles service.
type Config struct {
	Store  docstore.Store
	Router *mux.Router
	Logger *logging.Logger
}

// New creates the saved articles service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("saved: store is required")
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

// Save bookmarks a for uid. It reports false when the article was already
// saved; the existing record is kept.
func (s *Service) Save(ctx context.Context, uid string, a article.Article) (bool, error) {
	if err := a.Validate(); err != nil {
		return false, err
	}
	path := saved.Path(uid, a.URL)
	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("check saved article: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := s.store.Set(ctx, path, saved.SavedArticle{Article: a, Timestamp: s.now().UTC()}); err != nil {
		return false, fmt.Errorf("save article: %w", err)
	}
	return true, nil
}

// Remove deletes the bookmark of articleURL.
func (s *Service) Remove(ctx context.Context, uid, articleURL string) error {
	if err := s.store.Delete(ctx, saved.Path(uid, articleURL)); err != nil {
		return fmt.Errorf("remove saved article: %w", err)
	}
	return nil
}

// IsSaved reports whether uid bookmarked articleURL.
func (s *Service) IsSaved(ctx context.Context, uid, articleURL string) (bool, error) {
	ok, err := s.store.Exists(ctx, saved.Path(uid, articleURL))
	if err != nil {
		return false, fmt.Errorf("check saved article: %w", err)
	}
	return ok, nil
}

// List returns the bookmarks of uid, newest first.
func (s *Service) List(ctx context.Context, uid string) ([]saved.SavedArticle, error) {
	docs, err := s.store.List(ctx, saved.CollectionPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list saved articles: %w", err)
	}
	out := make([]saved.SavedArticle, 0, len(docs))
	for _, d := range docs {
		var sa saved.SavedArticle
		if err := d.DataTo(&sa); err != nil || sa.Article.URL == "" {
			s.log.WithContext(ctx).WithField("path", d.Path).Warn("skipping malformed saved article")
			continue
		}
		out = append(out, sa)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
