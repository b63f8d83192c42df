// Package settings stores per-user preferences.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/mux"

	model "github.com/mynews-app/service_layer/internal/app/domain/settings"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "settings"
	ServiceName = "Settings Service"
	Version     = "1.0.0"
)

// ErrInvalidSettings wraps validation failures.
var ErrInvalidSettings = errors.New("invalid settings")

// Service implements the settings store.
type Service struct {
	*commonservice.BaseService
	store          docstore.Store
	defaultCountry string
	log            *logging.Logger
}

// Config configures the settings service.
type Config struct {
	Store docstore.Store
	// DefaultCountry is used until a user saves settings. Defaults to "us".
	DefaultCountry string
	Router         *mux.Router
	Logger         *logging.Logger
}

// New creates the settings service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("settings: store is required")
	}
	country := cfg.DefaultCountry
	if country == "" {
		country = "us"
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
		BaseService:    base,
		store:          cfg.Store,
		defaultCountry: country,
		log:            base.Logger(),
	}
	s.registerRoutes()
	return s, nil
}

// Get returns the settings of uid, or the defaults when none are stored.
func (s *Service) Get(ctx context.Context, uid string) (model.Settings, error) {
	var out model.Settings
	err := s.store.Get(ctx, model.Path(uid), &out)
	if errors.Is(err, docstore.ErrNotFound) {
		return model.Default(s.defaultCountry), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return out, nil
}

// Update normalizes, validates and stores the settings of uid.
func (s *Service) Update(ctx context.Context, uid string, in model.Settings) (model.Settings, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return model.Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.store.Set(ctx, model.Path(uid), in); err != nil {
		return model.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return in, nil
}
