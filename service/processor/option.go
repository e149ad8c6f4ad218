package processor

import (
	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/messaging/priority"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/reallocator"
	"github.com/viant/shopfloor/service/registry"
)

// Option customises the Service
type Option func(*Service)

func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) { s.registry = r }
}

func WithAllocator(a *allocator.Service) Option {
	return func(s *Service) { s.allocator = a }
}

func WithReallocator(r *reallocator.Service) Option {
	return func(s *Service) { s.reallocator = r }
}

func WithNotifier(n *notifier.Service) Option {
	return func(s *Service) { s.notifier = n }
}

func WithJournal(j journal.Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithProgress(p *progress.Progress) Option {
	return func(s *Service) { s.progress = p }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(fn clock.Func) Option {
	return func(s *Service) { s.clock = fn }
}

// WithQueue replaces the event queue built from the config
func WithQueue(queue *priority.Queue[model.Event]) Option {
	return func(s *Service) { s.queue = queue }
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) { s.config.WorkerCount = count }
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}
