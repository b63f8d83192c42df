package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/system"
	"github.com/mynews-app/service_layer/internal/config"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	"github.com/mynews-app/service_layer/internal/platform/migrations"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
	"github.com/mynews-app/service_layer/services/friends"
	"github.com/mynews-app/service_layer/services/goals"
	"github.com/mynews-app/service_layer/services/news"
	"github.com/mynews-app/service_layer/services/reactions"
	"github.com/mynews-app/service_layer/services/saved"
	"github.com/mynews-app/service_layer/services/settings"
	"github.com/mynews-app/service_layer/services/social"
	"github.com/mynews-app/service_layer/services/users"
	supabase "github.com/mynews-app/service_layer/supabase/client"
)

const (
	ServiceID   = "mynews"
	ServiceName = "MyNews Service Layer"
	Version     = "1.0.0"

	// APIPrefix is where the domain routes are mounted.
	APIPrefix = "/v1"
)

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	root    *commonservice.BaseService
	router  *mux.Router
	store   docstore.Store
	log     *logging.Logger

	Users     *users.Service
	Friends   *friends.Service
	Reactions *reactions.Service
	Saved     *saved.Service
	Goals     *goals.Service
	Social    *social.Service
	Settings  *settings.Service
	News      *news.Service
}

// OpenStore connects the backend selected by cfg and applies migrations to
// SQL backends when enabled.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (docstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return docstore.NewMemory(), nil
	case config.BackendFirestore:
		return docstore.OpenFirestore(ctx, docstore.FirestoreConfig{
			ProjectID:       cfg.FirestoreProject,
			CredentialsFile: cfg.FirestoreCredentialsFile,
		})
	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
		if err != nil {
			return nil, fmt.Errorf("supabase client: %w", err)
		}
		return docstore.NewSupabase(docstore.SupabaseConfig{
			Client:   client,
			Realtime: supabase.NewRealtimeClient(cfg.SupabaseURL, cfg.SupabaseKey),
			Table:    cfg.SupabaseTable,
		})
	case config.BackendPostgres:
		store, err := docstore.OpenPostgres(ctx, cfg.PostgresDSN, cfg.PostgresNotifyChannel)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := migrations.Up(store.DB().DB); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("database migrations applied")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// New builds the application on store. The store is closed by Stop.
func New(ctx context.Context, cfg *config.Config, store docstore.Store, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	router := mux.NewRouter()
	api := router.PathPrefix(APIPrefix).Subrouter()

	loc, err := time.LoadLocation(cfg.Goals.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Goals.Timezone, err)
	}
	catalog, err := goals.LoadCatalog(cfg.Goals.MissionsFile)
	if err != nil {
		return nil, err
	}

	a := &Application{
		manager: system.NewManager(log.Named("system")),
		router:  router,
		store:   store,
		log:     log,
	}

	if a.Users, err = users.New(users.Config{Store: store, Router: api, Logger: log.Named(users.ServiceID)}); err != nil {
		return nil, err
	}
	if a.Friends, err = friends.New(friends.Config{Store: store, Resolver: a.Users, Router: api, Logger: log.Named(friends.ServiceID)}); err != nil {
		return nil, err
	}
	if a.Reactions, err = reactions.New(reactions.Config{Store: store, Router: api, Logger: log.Named(reactions.ServiceID)}); err != nil {
		return nil, err
	}
	if a.Saved, err = saved.New(saved.Config{Store: store, Router: api, Logger: log.Named(saved.ServiceID)}); err != nil {
		return nil, err
	}
	if a.Goals, err = goals.New(goals.Config{
		Store:    store,
		Friends:  a.Friends,
		Catalog:  catalog,
		Location: loc,
		Router:   api,
		Logger:   log.Named(goals.ServiceID),
	}); err != nil {
		return nil, err
	}
	a.Friends.SetObserver(a.Goals)
	a.Reactions.SetObserver(a.Goals)

	if a.Social, err = social.New(social.Config{
		Friends:   a.Friends,
		Reactions: a.Reactions,
		Store:     store,
		Router:    api,
		Logger:    log.Named(social.ServiceID),
	}); err != nil {
		return nil, err
	}
	if a.Settings, err = settings.New(settings.Config{
		Store:          store,
		DefaultCountry: cfg.News.DefaultCountry,
		Router:         api,
		Logger:         log.Named(settings.ServiceID),
	}); err != nil {
		return nil, err
	}
	if a.News, err = news.FromConfig(ctx, cfg.News, api, log.Named(news.ServiceID)); err != nil {
		return nil, err
	}

	a.root = commonservice.NewBase(&commonservice.BaseConfig{
		ID:      ServiceID,
		Name:    ServiceName,
		Version: Version,
		Store:   store,
		Router:  router,
		Logger:  log,
	})
	a.root.WithStats(func() map[string]any {
		names := make([]string, 0)
		for _, svc := range a.manager.Services() {
			names = append(names, svc.Name())
		}
		return map[string]any{
			"store_backend": cfg.Store.Backend,
			"services":      names,
		}
	})
	a.root.RegisterStandardRoutes()

	services := []system.Service{
		storeService{store: store},
		a.root,
		a.Users,
		a.Friends,
		a.Reactions,
		a.Saved,
		a.Goals,
		a.Social,
		a.Settings,
		a.News,
	}
	for _, svc := range services {
		if err := a.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}
	return a, nil
}

// Handler returns the root router: /health, /info and the API under /v1.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Router exposes the root router so callers can add routes such as /metrics.
func (a *Application) Router() *mux.Router {
	return a.router
}

// Store returns the document store.
func (a *Application) Store() docstore.Store {
	return a.store
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services, then closes the store.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// storeService probes the store on start and closes it on stop. It is
// registered first so it stops last.
type storeService struct {
	store docstore.Store
}

func (storeService) Name() string { return "docstore" }

func (s storeService) Start(ctx context.Context) error {
	if err := s.store.Health(ctx); err != nil {
		return fmt.Errorf("store health: %w", err)
	}
	return nil
}

func (s storeService) Stop(context.Context) error {
	return s.store.Close()
}
