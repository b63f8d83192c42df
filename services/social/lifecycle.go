package social

import "context"

// Start starts the social service.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the social service. Live feeds end with their connections.
func (s *Service) Stop(ctx context.Context) error {
	return s.BaseService.Stop(ctx)
}
