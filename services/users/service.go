// Package users manages profiles and the username reservation index.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/mux"

	"github.com/mynews-app/service_layer/internal/app/domain/friend"
	"github.com/mynews-app/service_layer/internal/app/domain/goals"
	"github.com/mynews-app/service_layer/internal/app/domain/reaction"
	"github.com/mynews-app/service_layer/internal/app/domain/saved"
	"github.com/mynews-app/service_layer/internal/app/domain/settings"
	"github.com/mynews-app/service_layer/internal/app/domain/user"
	"github.com/mynews-app/service_layer/internal/docstore"
	"github.com/mynews-app/service_layer/internal/logging"
	commonservice "github.com/mynews-app/service_layer/services/common/service"
)

const (
	ServiceID   = "users"
	ServiceName = "Users Service"
	Version     = "1.0.0"
)

// RegisterState is the outcome of Register.
type RegisterState string

const (
	RegisterSuccess           RegisterState = "success"
	RegisterUsernameTaken     RegisterState = "username_taken"
	RegisterInvalidUsername   RegisterState = "invalid_username"
	RegisterAlreadyRegistered RegisterState = "already_registered"
	RegisterError             RegisterState = "error"
)

// RegisterResult carries the state and, on error, a message.
type RegisterResult struct {
	State   RegisterState `json:"state"`
	Message string        `json:"message,omitempty"`
	User    *user.User    `json:"user,omitempty"`
}

// Service implements the users service.
type Service struct {
	*commonservice.BaseService
	store docstore.Store
	log   *logging.Logger
}

// Config configures the users service.
type Config struct {
	Store  docstore.Store
	Router *mux.Router
	Logger *logging.Logger
}

// New creates the users service and mounts its routes.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("users: store is required")
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
	}
	s.registerRoutes()
	return s, nil
}

// Register creates users/{uid} and reserves the username in one batch.
func (s *Service) Register(ctx context.Context, uid, username, email string) RegisterResult {
	username = user.NormalizeUsername(username)
	if err := user.ValidateUsername(username); err != nil {
		return RegisterResult{State: RegisterInvalidUsername, Message: err.Error()}
	}

	exists, err := s.store.Exists(ctx, user.Path(uid))
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("register: check profile")
		return RegisterResult{State: RegisterError, Message: "failed to check profile"}
	}
	if exists {
		return RegisterResult{State: RegisterAlreadyRegistered}
	}

	owner, err := s.ResolveUsername(ctx, username)
	switch {
	case err == nil && owner != uid:
		return RegisterResult{State: RegisterUsernameTaken}
	case err != nil && !errors.Is(err, docstore.ErrNotFound):
		s.log.WithContext(ctx).WithError(err).Error("register: check username")
		return RegisterResult{State: RegisterError, Message: "failed to check username"}
	}

	u := user.User{
		UID:      uid,
		Username: username,
		Email:    user.NormalizeEmail(email),
		LoggedIn: true,
	}
	err = s.store.Batch().
		Set(user.Path(uid), u).
		Set(user.ReservationPath(username), user.Reservation{UID: uid}).
		Commit(ctx)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Error("register: write profile")
		return RegisterResult{State: RegisterError, Message: "failed to save profile"}
	}

	s.log.WithContext(ctx).WithField("username", username).Info("user registered")
	return RegisterResult{State: RegisterSuccess, User: &u}
}

// Get returns the profile of uid or docstore.ErrNotFound.
func (s *Service) Get(ctx context.Context, uid string) (user.User, error) {
	var u user.User
	if err := s.store.Get(ctx, user.Path(uid), &u); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// IsUsernameAvailable reports whether username is valid and unreserved.
func (s *Service) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = user.NormalizeUsername(username)
	if user.ValidateUsername(username) != nil {
		return false, nil
	}
	taken, err := s.store.Exists(ctx, user.ReservationPath(username))
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return !taken, nil
}

// ResolveUsername maps a username to its owner uid.
func (s *Service) ResolveUsername(ctx context.Context, username string) (string, error) {
	username = user.NormalizeUsername(username)
	if user.ValidateUsername(username) != nil {
		return "", docstore.ErrNotFound
	}
	var r user.Reservation
	if err := s.store.Get(ctx, user.ReservationPath(username), &r); err != nil {
		return "", err
	}
	if r.UID == "" {
		return "", docstore.ErrNotFound
	}
	return r.UID, nil
}

// SetLoggedIn records the session flag.
func (s *Service) SetLoggedIn(ctx context.Context, uid string, loggedIn bool) error {
	return s.store.Update(ctx, user.Path(uid), map[string]any{"loggedIn": loggedIn})
}

// Delete removes the profile, the reservation and every document the user
// owns. Edges other users hold towards uid are left in place.
func (s *Service) Delete(ctx context.Context, uid string) error {
	u, err := s.Get(ctx, uid)
	if err != nil {
		return err
	}

	collections := []string{
		friend.CollectionPath(uid),
		reaction.CollectionPath(uid),
		saved.CollectionPath(uid),
		goals.ActivityCollectionPath(uid),
		goals.MissionsCollectionPath(uid),
		goals.StreakCollectionPath(uid),
	}
	removed := 0
	for _, c := range collections {
		n, err := docstore.DeleteCollection(ctx, s.store, c)
		if err != nil {
			return fmt.Errorf("delete %s: %w", c, err)
		}
		removed += n
	}

	b := s.store.Batch().
		Delete(settings.Path(uid)).
		Delete(user.Path(uid))
	if u.Username != "" {
		b.Delete(user.ReservationPath(u.Username))
	}
	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	s.log.WithContext(ctx).WithField("documents", removed).Info("user deleted")
	return nil
}
