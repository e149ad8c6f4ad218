package notifier

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/internal/logging"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/messaging"
	"github.com/viant/shopfloor/service/messaging/memory"
)

// DefaultHistory is the number of recent notifications retained
const DefaultHistory = 256

// Service emits notifications to a queue consumed by the delivery listener
type Service struct {
	queue       messaging.Queue[model.Notification]
	clock       clock.Func
	logger      logr.Logger
	mux         sync.RWMutex
	history     []model.Notification
	capacity    int
	listener    *Listener
	listenerMux sync.Mutex
}

// Option customises the Service
type Option func(s *Service)

func WithQueue(queue messaging.Queue[model.Notification]) Option {
	return func(s *Service) { s.queue = queue }
}

func WithClock(fn clock.Func) Option {
	return func(s *Service) { s.clock = fn }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithHistory sets how many recent notifications are retained
func WithHistory(n int) Option {
	return func(s *Service) { s.capacity = n }
}

// New creates a notifier; without a queue an in-memory one is used
func New(opts ...Option) *Service {
	ret := &Service{clock: clock.System(), logger: logging.Discard(), capacity: DefaultHistory}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.queue == nil {
		ret.queue = memory.NewQueue[model.Notification](memory.DefaultConfig())
	}
	return ret
}

// Queue returns the outbound queue
func (s *Service) Queue() messaging.Queue[model.Notification] { return s.queue }

// Emit builds and publishes a notification
func (s *Service) Emit(ctx context.Context, kind string, severity model.Severity, message string, entities ...string) (*model.Notification, error) {
	notification := &model.Notification{
		ID:        idgen.New(),
		Kind:      kind,
		Severity:  severity,
		Entities:  entities,
		Message:   message,
		Timestamp: s.clock(),
	}
	return notification, s.Publish(ctx, notification)
}

// Emitf is Emit with a formatted message; publish failures are logged
func (s *Service) Emitf(ctx context.Context, kind string, severity model.Severity, entities []string, format string, args ...any) {
	if _, err := s.Emit(ctx, kind, severity, fmt.Sprintf(format, args...), entities...); err != nil {
		s.logger.Error(err, "failed to publish notification", "kind", kind)
	}
}

// Publish sends a prepared notification
func (s *Service) Publish(ctx context.Context, notification *model.Notification) error {
	if notification.ID == "" {
		notification.ID = idgen.New()
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = s.clock()
	}
	s.remember(*notification)
	s.logger.V(1).Info("notification", "kind", notification.Kind, "severity", notification.Severity, "entities", notification.Entities)
	if !s.delivering() {
		// only history is kept until a handler is attached
		return nil
	}
	return s.queue.Publish(ctx, notification)
}

func (s *Service) delivering() bool {
	s.listenerMux.Lock()
	defer s.listenerMux.Unlock()
	return s.listener != nil
}

func (s *Service) remember(notification model.Notification) {
	if s.capacity <= 0 {
		return
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.history = append(s.history, notification)
	if overflow := len(s.history) - s.capacity; overflow > 0 {
		s.history = append(s.history[:0:0], s.history[overflow:]...)
	}
}

// Recent returns retained notifications, oldest first, optionally filtered by kind
func (s *Service) Recent(kinds ...string) []model.Notification {
	s.mux.RLock()
	defer s.mux.RUnlock()
	ret := make([]model.Notification, 0, len(s.history))
	for _, notification := range s.history {
		if len(kinds) > 0 && !slices.Contains(kinds, notification.Kind) {
			continue
		}
		ret = append(ret, notification)
	}
	return ret
}
