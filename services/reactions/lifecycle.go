package reactions

import "context"

// Start starts the reactions service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the reactions service.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
