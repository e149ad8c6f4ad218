package allocator

import (
	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/service/scorer"
	"github.com/viant/shopfloor/service/validator"
)

// Option customises the Service
type Option func(s *Service)

func WithRegistry(r *registry.Registry) Option {
	return func(s *Service) { s.registry = r }
}

func WithValidator(v *validator.Validator) Option {
	return func(s *Service) { s.validator = v }
}

func WithScorer(sc *scorer.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

func WithNotifier(n *notifier.Service) Option {
	return func(s *Service) { s.notifier = n }
}

func WithProgress(p *progress.Progress) Option {
	return func(s *Service) { s.progress = p }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConcurrency bounds goroutines scoring pairs; 0 uses GOMAXPROCS
func WithConcurrency(n int) Option {
	return func(s *Service) { s.concurrency = n }
}
