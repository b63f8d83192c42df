// Package goals tracks reading streaks and mission progress.
package goals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/article"
	"github.com/mynews-app/service_layer/internal/app/domain/goals"
	"github.com/mynews-app/service_layer/internal/app/metrics"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "goals"
	ServiceName = "Goals Service"
	Version     = "1.0.0"
)

// FriendCounter reports the authoritative number of friends of a user.
type FriendCounter interface {
	FriendCount(ctx context.Context, uid string) (int, error)
}

// Service implements the goals, missions and streak engine.
type Service struct {
	*commonservice.BaseService
	store   docstore.Store
	friends FriendCounter
	catalog []goals.Mission
	order   map[string]int
	loc     *time.Location
	log     *logging.Logger
	now     func() time.Time
}

// Config configures the goals service.
type Config struct {
	Store   docstore.Store
	Friends FriendCounter
	// Catalog defaults to DefaultCatalog.
	Catalog []goals.Mission
	// Location decides day boundaries for streaks. Defaults to UTC.
	Location *time.Location
	Router   *mux.Router
	Logger   *logging.Logger
}

// New creates the goals service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("goals: store is required")
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
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
		friends:     cfg.Friends,
		catalog:     catalog,
		order:       make(map[string]int, len(catalog)),
		loc:         loc,
		log:         base.Logger(),
		now:         time.Now,
	}
	for i, m := range catalog {
		s.order[m.ID] = i
	}
	base.WithStats(func() map[string]any {
		return map[string]any{"catalog_size": len(s.catalog), "timezone": s.loc.String()}
	})
	s.registerRoutes()
	return s, nil
}

func (s *Service) today() time.Time {
	return s.now().In(s.loc)
}

// =============================================================================
// Article reads and streak
// =============================================================================

// LogArticleRead records that uid read a. The activity record is refreshed on
// every call; read_article missions advance only on the first read of a URL.
// The activity, streak and mission writes are committed in one batch.
// Failures are logged, not returned.
func (s *Service) LogArticleRead(ctx context.Context, uid string, a article.Article) {
	if err := a.Validate(); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("log read: invalid article")
		return
	}
	now := s.today()
	activityPath := goals.ActivityPath(uid, a.Key())

	first, err := s.isFirstRead(ctx, activityPath)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("log read: check activity")
		return
	}

	b := s.store.Batch()
	b.Set(activityPath, goals.Activity{
		ArticleURL: a.URL,
		Timestamp:  now.UTC(),
		Date:       now.Format(goals.DateLayout),
	})

	streak, changed, err := s.nextStreak(ctx, uid, now, true)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("log read: load streak")
		return
	}
	if changed {
		b.Set(goals.StreakPath(uid), streak)
	}

	var completed []goals.Mission
	if first {
		missions, err := s.ensureMissions(ctx, uid)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).Error("log read: load missions")
			return
		}
		for _, m := range missions {
			if m.Type != goals.MissionReadArticle || m.IsCompleted {
				continue
			}
			if m.Increment() {
				completed = append(completed, m)
			}
			b.Set(goals.MissionPath(uid, m.ID), m)
		}
	}

	if err := b.Commit(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).Error("log read: commit")
		return
	}

	metrics.RecordArticleRead(first)
	s.recordCompleted(ctx, completed)
	s.log.WithContext(ctx).WithField("first", first).WithField("streak", streak.Count).Debug("article read logged")
}

func (s *Service) isFirstRead(ctx context.Context, activityPath string) (bool, error) {
	exists, err := s.store.Exists(ctx, activityPath)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// UpdateStreak recomputes the streak of uid from today's activity. Without
// an activity record dated today the streak is left untouched.
func (s *Service) UpdateStreak(ctx context.Context, uid string) (goals.Streak, error) {
	streak, changed, err := s.nextStreak(ctx, uid, s.today(), false)
	if err != nil || !changed {
		return streak, err
	}
	if err := s.store.Set(ctx, goals.StreakPath(uid), streak); err != nil {
		return streak, fmt.Errorf("save streak: %w", err)
	}
	return streak, nil
}

// nextStreak returns the streak after a read today. pendingToday reports
// that the caller is about to write an activity record dated today, which
// satisfies the guard without querying.
func (s *Service) nextStreak(ctx context.Context, uid string, today time.Time, pendingToday bool) (goals.Streak, bool, error) {
	current, err := s.GetStreak(ctx, uid)
	if err != nil {
		return goals.Streak{}, false, err
	}

	if !pendingToday {
		docs, err := s.store.Query(ctx, docstore.Query{
			Collection: goals.ActivityCollectionPath(uid),
			Where:      []docstore.Filter{{Field: "date", Value: today.Format(goals.DateLayout)}},
			Limit:      1,
		})
		if err != nil {
			return current, false, fmt.Errorf("query today's activity: %w", err)
		}
		if len(docs) == 0 {
			return current, false, nil
		}
	}

	next := current.Advance(today)
	return next, next != current, nil
}

// GetStreak returns the stored streak of uid, zero when none exists.
func (s *Service) GetStreak(ctx context.Context, uid string) (goals.Streak, error) {
	var streak goals.Streak
	err := s.store.Get(ctx, goals.StreakPath(uid), &streak)
	if errors.Is(err, docstore.ErrNotFound) {
		return goals.Streak{}, nil
	}
	if err != nil {
		return goals.Streak{}, fmt.Errorf("get streak: %w", err)
	}
	return streak, nil
}

// =============================================================================
// Reaction and friend events
// =============================================================================

// LogReactionAdded advances react_to_article missions.
func (s *Service) LogReactionAdded(ctx context.Context, uid string) {
	s.adjust(ctx, uid, goals.MissionReactToArticle, (*goals.Mission).Increment)
}

// LogReactionRemoved walks react_to_article missions back by one. Progress
// never drops below zero and completed missions are not reopened.
func (s *Service) LogReactionRemoved(ctx context.Context, uid string) {
	s.adjust(ctx, uid, goals.MissionReactToArticle, (*goals.Mission).Decrement)
}

// LogAddOrRemoveFriend sets add_friend progress from the current friend count.
func (s *Service) LogAddOrRemoveFriend(ctx context.Context, uid string) {
	if s.friends == nil {
		return
	}
	count, err := s.friends.FriendCount(ctx, uid)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("friend resync: count friends")
		return
	}
	s.adjust(ctx, uid, goals.MissionAddFriend, func(m *goals.Mission) bool {
		before := m.CurrentCount
		completed := m.SetProgress(count)
		return completed || m.CurrentCount != before
	})
}

// adjust applies step to each incomplete mission of type t and writes the
// ones step reports as changed.
func (s *Service) adjust(ctx context.Context, uid string, t goals.MissionType, step func(*goals.Mission) bool) {
	missions, err := s.ensureMissions(ctx, uid)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("type", t).Error("adjust missions: load")
		return
	}

	b := s.store.Batch()
	var completed []goals.Mission
	writes := 0
	for _, m := range missions {
		if m.Type != t || m.IsCompleted {
			continue
		}
		if !step(&m) {
			continue
		}
		if m.IsCompleted {
			completed = append(completed, m)
		}
		b.Set(goals.MissionPath(uid, m.ID), m)
		writes++
	}
	if writes == 0 {
		return
	}
	if err := b.Commit(ctx); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("type", t).Error("adjust missions: commit")
		return
	}
	s.recordCompleted(ctx, completed)
}

func (s *Service) recordCompleted(ctx context.Context, completed []goals.Mission) {
	for _, m := range completed {
		metrics.RecordMissionCompleted(string(m.Type))
		s.log.WithContext(ctx).WithField("mission", m.ID).Info("mission completed")
	}
}

// =============================================================================
// Missions
// =============================================================================

// GetMissions returns the missions of uid, seeding missing defaults first.
func (s *Service) GetMissions(ctx context.Context, uid string) ([]goals.Mission, error) {
	return s.ensureMissions(ctx, uid)
}

// WatchMissions seeds missing defaults, resyncs add_friend progress and then
// streams the mission list of uid on every change.
func (s *Service) WatchMissions(ctx context.Context, uid string, fn func([]goals.Mission, error)) (docstore.Subscription, error) {
	if _, err := s.ensureMissions(ctx, uid); err != nil {
		return nil, err
	}
	s.LogAddOrRemoveFriend(ctx, uid)
	return s.store.Watch(ctx, goals.MissionsCollectionPath(uid), func(docs []docstore.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(s.decodeMissions(ctx, docs), nil)
	})
}

// UpdateMissionProgress sets the progress of one mission, capped at its
// target. Reaching the target completes it.
func (s *Service) UpdateMissionProgress(ctx context.Context, uid, missionID string, count int) (goals.Mission, error) {
	m, err := s.getMission(ctx, uid, missionID)
	if err != nil {
		return goals.Mission{}, err
	}
	completed := m.SetProgress(count)
	err = s.store.Update(ctx, goals.MissionPath(uid, missionID), map[string]any{
		"currentCount": m.CurrentCount,
		"isCompleted":  m.IsCompleted,
	})
	if err != nil {
		return goals.Mission{}, fmt.Errorf("update mission: %w", err)
	}
	if completed {
		s.recordCompleted(ctx, []goals.Mission{m})
	}
	return m, nil
}

// MarkMissionComplete completes a mission and fills its progress.
func (s *Service) MarkMissionComplete(ctx context.Context, uid, missionID string) (goals.Mission, error) {
	m, err := s.getMission(ctx, uid, missionID)
	if err != nil {
		return goals.Mission{}, err
	}
	return s.UpdateMissionProgress(ctx, uid, missionID, m.TargetCount)
}

func (s *Service) getMission(ctx context.Context, uid, missionID string) (goals.Mission, error) {
	var m goals.Mission
	if err := s.store.Get(ctx, goals.MissionPath(uid, missionID), &m); err != nil {
		return goals.Mission{}, err
	}
	return m, nil
}

// ensureMissions lists the missions of uid and creates any catalog entry
// that is missing. Existing progress is never overwritten.
func (s *Service) ensureMissions(ctx context.Context, uid string) ([]goals.Mission, error) {
	docs, err := s.store.List(ctx, goals.MissionsCollectionPath(uid))
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	missions := s.decodeMissions(ctx, docs)

	have := make(map[string]bool, len(missions))
	for _, m := range missions {
		have[m.ID] = true
	}
	var missing []goals.Mission
	for _, m := range s.catalog {
		if !have[m.ID] {
			missing = append(missing, m)
		}
	}
	if len(missing) == 0 {
		return missions, nil
	}

	b := s.store.Batch()
	for _, m := range missing {
		b.Set(goals.MissionPath(uid, m.ID), m)
	}
	if err := b.Commit(ctx); err != nil {
		return nil, fmt.Errorf("seed missions: %w", err)
	}
	missions = append(missions, missing...)
	s.sortMissions(missions)
	return missions, nil
}

func (s *Service) decodeMissions(ctx context.Context, docs []docstore.Document) []goals.Mission {
	out := make([]goals.Mission, 0, len(docs))
	for _, d := range docs {
		var m goals.Mission
		if err := d.DataTo(&m); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("path", d.Path).Warn("skipping malformed mission")
			continue
		}
		if m.ID == "" {
			m.ID = d.ID
		}
		out = append(out, m)
	}
	s.sortMissions(out)
	return out
}

// sortMissions puts catalog missions first in catalog order, then any others by id.
func (s *Service) sortMissions(list []goals.Mission) {
	rank := func(id string) int {
		if i, ok := s.order[id]; ok {
			return i
		}
		return len(s.order)
	}
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := rank(list[i].ID), rank(list[j].ID)
		if ri != rj {
			return ri < rj
		}
		return list[i].ID < list[j].ID
	})
}
