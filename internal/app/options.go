package service

import (
	"time"

	"github.com/okian/broutes/internal/adapters/repository"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/route"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the job id deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRoutes sets the routes jobs are resolved against, by name.
func WithRoutes(routes map[string]*route.Route) Option {
	return func(s *Service) {
		for name, r := range routes {
			if r != nil {
				s.routes[name] = r
			}
		}
	}
}

// WithStore sets the outcome store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithEnqueueBackoff sets how long Run waits before retrying a full queue.
func WithEnqueueBackoff(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.enqueueBackoff = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
