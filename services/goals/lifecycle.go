package goals

import "context"

// Start starts the goals service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the goals service.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
