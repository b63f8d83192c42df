package friends

import "context"

// Start starts the friends service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the friends service.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
