package saved

import "context"

// Start starts the saved articles service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the saved articles service.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
