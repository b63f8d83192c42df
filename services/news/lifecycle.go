package news

import "context"

// Start loads bias ratings and starts the refresh and cache workers.
func (s *Service) Start(ctx context.Context) error {
	return s.BaseService.Start(ctx)
}

// Stop stops the workers and closes the cache.
func (s *Service) Stop(ctx context.Context) error {
	err := s.BaseService.Stop(ctx)
	if cerr := s.cache.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
