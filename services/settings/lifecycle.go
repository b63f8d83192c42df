package settings

import "context"

// Start starts the settings service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the settings service.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
