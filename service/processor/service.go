package processor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/internal/logging"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/messaging"
	"github.com/viant/shopfloor/service/messaging/priority"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/reallocator"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/tracing"
)

// Config represents event processor configuration
type Config struct {
	// WorkerCount is the number of workers applying events
	WorkerCount int `yaml:"workerCount" mapstructure:"worker_count"`

	// Throughput is the sustained events per second the class budgets are
	// sized for
	Throughput int `yaml:"throughput" mapstructure:"throughput"`

	// Retry controls redelivery of failed events before dead-lettering
	Retry messaging.RetryPolicy `yaml:"retry" mapstructure:"retry"`

	// ReviewInterval is how often a review event is published; 0 disables it
	ReviewInterval time.Duration `yaml:"reviewInterval" mapstructure:"review_interval"`
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		Throughput:     priority.DefaultThroughput,
		Retry:          messaging.DefaultRetryPolicy(),
		ReviewInterval: 30 * time.Second,
	}
}

// KindStats counts outcomes per event kind
type KindStats struct {
	Kind      string    `json:"kind"`
	Processed uint64    `json:"processed"`
	Failed    uint64    `json:"failed"`
	Rejected  uint64    `json:"rejected"`
	LastAt    time.Time `json:"lastAt"`
}

// Service applies events to the registry
type Service struct {
	config      Config
	queue       *priority.Queue[model.Event]
	registry    *registry.Registry
	allocator   *allocator.Service
	reallocator *reallocator.Service
	notifier    *notifier.Service
	journal     journal.Journal
	progress    *progress.Progress
	logger      logr.Logger
	clock       clock.Func

	statsMux sync.Mutex
	stats    map[model.EventKind]*KindStats

	workers      []*worker
	workerWg     sync.WaitGroup
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// New creates an event processor; registry and allocator are required
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:     DefaultConfig(),
		logger:     logr.Discard(),
		clock:      clock.System(),
		stats:      map[model.EventKind]*KindStats{},
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if s.allocator == nil {
		return nil, fmt.Errorf("allocator is required")
	}
	if s.reallocator == nil {
		s.reallocator = reallocator.New(s.registry, s.allocator, reallocator.WithNotifier(s.notifier),
			reallocator.WithProgress(s.progress), reallocator.WithLogger(s.logger))
	}
	if s.queue == nil {
		config := priority.Config{Budgets: priority.BudgetsFor(s.config.Throughput), Retry: s.config.Retry}
		s.queue = priority.New[model.Event](config, ClassOf,
			priority.WithKey[model.Event](func(e *model.Event) string { return e.Key() }),
			priority.WithOverrunHandler[model.Event](s.onOverrun),
			priority.WithDeadLetterHandler[model.Event](s.onDeadLetter))
	}
	return s, nil
}

// Queue returns the event queue
func (s *Service) Queue() *priority.Queue[model.Event] { return s.queue }

// Publish enqueues an event
func (s *Service) Publish(ctx context.Context, event *model.Event) error {
	if event == nil || event.Payload == nil {
		return dao.ErrNilEntity
	}
	if event.ID == "" {
		event.ID = idgen.WithPrefix("evt")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	return s.queue.Publish(ctx, event)
}

// Start launches the workers and the review ticker
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		w := &worker{id: i, service: s, ctx: workerCtx, cancelFn: cancel}
		s.workers = append(s.workers, w)
		s.workerWg.Add(1)
		go w.run()
	}
	if s.config.ReviewInterval > 0 {
		s.workerWg.Add(1)
		go s.reviewLoop(ctx)
	}
	return nil
}

func (s *Service) reviewLoop(ctx context.Context) {
	defer s.workerWg.Done()
	ticker := time.NewTicker(s.config.ReviewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-ticker.C:
			if err := s.Publish(ctx, &model.Event{Payload: &model.ReviewEvent{}}); err != nil {
				s.logger.Error(err, "failed to publish review")
			}
		}
	}
}

// run processes messages from the queue
func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Error(pErr, "failed to settle event", "worker", w.id)
		}
	}
}

func (s *Service) processMessage(ctx context.Context, message messaging.Message[model.Event]) error {
	event := message.T()
	err := s.Handle(ctx, event)
	switch {
	case err == nil:
		return message.Ack()
	case permanent(err):
		s.reject(ctx, event, err)
		return message.Ack()
	}
	s.logger.Info("event failed, will retry", "event", event.ID, "kind", string(event.Kind()), "attempt", message.Attempt()+1, "error", err.Error())
	s.count(event.Kind(), func(st *KindStats) { st.Failed++ })
	s.progress.Update(progress.Delta{Failed: 1})
	return message.Nack(err)
}

// permanent errors are not retried
func permanent(err error) bool {
	return errors.Is(err, dao.ErrIntegrity) || errors.Is(err, dao.ErrNotFound) ||
		errors.Is(err, dao.ErrInvalidID) || errors.Is(err, dao.ErrNilEntity)
}

// Handle applies a single event synchronously
func (s *Service) Handle(ctx context.Context, event *model.Event) (err error) {
	ctx, span := tracing.StartSpan(ctx, "processor."+string(event.Kind()), tracing.KindConsumer)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"event.id": event.ID, "event.key": event.Key()})

	ctx = logging.IntoContext(ctx, s.logger.WithValues("event", event.ID, "kind", string(event.Kind())))
	if _, ok := progress.FromContext(ctx); !ok {
		ctx = progress.WithTracker(ctx, s.progress)
	}
	progress.UpdateCtx(ctx, progress.Delta{Events: 1})
	if err = s.dispatch(ctx, event); err != nil {
		return err
	}
	s.count(event.Kind(), func(st *KindStats) { st.Processed++ })
	s.record(ctx, event, journal.StatusApplied, "")
	s.logger.V(1).Info("event applied", "event", event.ID, "kind", string(event.Kind()), "entities", event.Entities())
	return nil
}

// Stats returns per kind counters ordered by kind
func (s *Service) Stats() []KindStats {
	s.statsMux.Lock()
	defer s.statsMux.Unlock()
	ret := make([]KindStats, 0, len(s.stats))
	for _, st := range s.stats {
		ret = append(ret, *st)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Kind < ret[j].Kind })
	return ret
}

func (s *Service) count(kind model.EventKind, apply func(st *KindStats)) {
	s.statsMux.Lock()
	defer s.statsMux.Unlock()
	st, ok := s.stats[kind]
	if !ok {
		st = &KindStats{Kind: string(kind)}
		s.stats[kind] = st
	}
	apply(st)
	st.LastAt = s.clock()
}

func (s *Service) reject(ctx context.Context, event *model.Event, err error) {
	s.logger.Error(err, "event rejected", "event", event.ID, "kind", string(event.Kind()))
	s.count(event.Kind(), func(st *KindStats) { st.Rejected++ })
	s.record(ctx, event, journal.StatusRejected, err.Error())
	s.notify(ctx, model.NotificationRejected, model.SeverityWarning, event.Entities(),
		"%s event %s rejected: %v", event.Kind(), event.ID, err)
}

func (s *Service) record(ctx context.Context, event *model.Event, status, detail string) {
	if s.journal == nil {
		return
	}
	entry := &journal.Entry{
		Source:   journal.SourceEvent,
		Kind:     string(event.Kind()),
		EntityID: event.Key(),
		Status:   status,
		Detail:   detail,
		At:       s.clock(),
	}
	if err := s.journal.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to journal event", "event", event.ID)
	}
}

func (s *Service) onOverrun(overrun priority.Overrun) {
	s.logger.Info("event backlog overrun", "class", overrun.Class.String(), "backlog", overrun.Backlog, "capacity", overrun.Capacity)
	s.notify(context.Background(), model.NotificationBacklogOverrun, model.SeverityWarning, nil,
		"%s backlog %d exceeds capacity %d, latency target extended from %s to %s",
		overrun.Class, overrun.Backlog, overrun.Capacity, overrun.Target, overrun.EffectiveTarget)
}

func (s *Service) onDeadLetter(letter priority.DeadLetter[model.Event]) {
	ctx := context.Background()
	event := &letter.Payload
	s.logger.Error(letter.Err, "event dead-lettered", "event", letter.ID, "kind", string(event.Kind()), "attempts", letter.Attempts)
	s.record(ctx, event, journal.StatusDeadLetter, fmt.Sprint(letter.Err))
	s.notify(ctx, model.NotificationDeadLetter, model.SeverityCritical, event.Entities(),
		"%s event %s dead-lettered after %d attempts: %v", event.Kind(), letter.ID, letter.Attempts, letter.Err)
}

func (s *Service) notify(ctx context.Context, kind string, severity model.Severity, entities []string, format string, args ...any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emitf(ctx, kind, severity, entities, format, args...)
}

// Shutdown stops the workers and waits for in-flight events
func (s *Service) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		for _, w := range s.workers {
			w.cancelFn()
		}
		s.workerWg.Wait()
	})
}
