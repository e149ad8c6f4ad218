package shopfloor

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/viant/afs"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/internal/logging"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/ingest"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/journal/sqlite"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/processor"
	"github.com/viant/shopfloor/service/readmodel"
	"github.com/viant/shopfloor/service/reallocator"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/service/scorer"
	"github.com/viant/shopfloor/service/validator"
	"github.com/viant/shopfloor/tracing"
)

// Service wires the allocation engine
type Service struct {
	config              *Config
	logger              *logr.Logger
	clock               clock.Func
	journal             journal.Journal
	notificationHandler notifier.Handler
	fs                  afs.Service
	tracingInit         func() error
	runtime             *Runtime
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := s.ensureBaseSetup(); err != nil {
		return err
	}
	logger := *s.logger
	cfg := s.config
	rt := s.runtime
	rt.config = cfg
	rt.logger = logger
	rt.journal = s.journal
	rt.handler = s.notificationHandler
	rt.progress = progress.New(s.clock())
	rt.registry = registry.New(registry.WithClock(s.clock), registry.WithLayout(cfg.Engine.Layout))
	rt.notifier = notifier.New(
		notifier.WithClock(s.clock),
		notifier.WithLogger(logger.WithName("notifier")),
		notifier.WithHistory(cfg.Notifier.History))

	var err error
	rt.allocator, err = allocator.New(
		allocator.WithRegistry(rt.registry),
		allocator.WithValidator(validator.New(cfg.Engine.MaxDistance)),
		allocator.WithScorer(scorer.New(
			scorer.WithWeights(cfg.Engine.Weights),
			scorer.WithMaxDistance(cfg.Engine.MaxDistance),
			scorer.WithMaxCost(cfg.Engine.MaxCost))),
		allocator.WithNotifier(rt.notifier),
		allocator.WithProgress(rt.progress),
		allocator.WithLogger(logger.WithName("allocator")),
		allocator.WithConcurrency(cfg.Engine.Concurrency))
	if err != nil {
		return err
	}
	rt.reallocator = reallocator.New(rt.registry, rt.allocator,
		reallocator.WithNotifier(rt.notifier),
		reallocator.WithProgress(rt.progress),
		reallocator.WithPolicy(cfg.Policy),
		reallocator.WithLogger(logger.WithName("reallocator")))
	rt.processor, err = processor.New(
		processor.WithConfig(cfg.Processor),
		processor.WithRegistry(rt.registry),
		processor.WithAllocator(rt.allocator),
		processor.WithReallocator(rt.reallocator),
		processor.WithNotifier(rt.notifier),
		processor.WithJournal(rt.journal),
		processor.WithProgress(rt.progress),
		processor.WithLogger(logger.WithName("processor")),
		processor.WithClock(s.clock))
	if err != nil {
		return err
	}
	rt.ingest = ingest.New(rt.registry, rt.processor,
		ingest.WithJournal(rt.journal),
		ingest.WithNotifier(rt.notifier),
		ingest.WithLogger(logger.WithName("ingest")),
		ingest.WithClock(s.clock))
	rt.readModel = readmodel.New(rt.registry,
		readmodel.WithQueue(rt.processor.Queue()),
		readmodel.WithEvents(rt.processor),
		readmodel.WithProgress(rt.progress),
		readmodel.WithURL(cfg.ReadModel.URL),
		readmodel.WithInterval(cfg.ReadModel.Interval),
		readmodel.WithFS(s.fs),
		readmodel.WithLogger(logger.WithName("readmodel")))
	return nil
}

// Runtime returns the engine runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

func (s *Service) ensureBaseSetup() error {
	if s.logger == nil {
		logger, err := logging.New(s.config.Logging.Level, s.config.Logging.Development)
		if err != nil {
			return err
		}
		s.logger = &logger
	}
	if s.tracingInit == nil {
		s.tracingInit = func() error { return tracing.Setup(s.config.Tracing) }
	}
	if err := s.tracingInit(); err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.journal == nil {
		switch s.config.Journal.Driver {
		case JournalSQLite:
			j, err := sqlite.Open(s.config.Journal.DSN)
			if err != nil {
				return fmt.Errorf("failed to open journal %v: %w", s.config.Journal.DSN, err)
			}
			s.journal = j
		default:
			s.journal = journal.NewMemory()
		}
	}
	return nil
}

// New creates the engine. The journal is opened here and closed by
// Runtime.Shutdown.
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig(), runtime: &Runtime{}}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
