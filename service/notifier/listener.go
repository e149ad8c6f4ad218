package notifier

import (
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/messaging"
)

// Handler delivers a notification to an external collaborator
type Handler func(ctx context.Context, notification *model.Notification) error

// Listener drains the notification queue into a handler. A handler error
// nacks the message so the queue retries or dead-letters it.
type Listener struct {
	queue   messaging.Queue[model.Notification]
	handler Handler
	logger  logr.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewListener(queue messaging.Queue[model.Notification], handler Handler, logger logr.Logger) *Listener {
	return &Listener{queue: queue, handler: handler, logger: logger}
}

// Start runs the listener until Stop or ctx cancellation
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		for {
			msg, err := l.queue.Consume(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				l.logger.Error(err, "failed to consume notification")
				continue
			}
			if err = l.handler(ctx, msg.T()); err != nil {
				l.logger.Error(err, "notification delivery failed", "kind", msg.T().Kind, "attempt", msg.Attempt())
				_ = msg.Nack(err)
				continue
			}
			_ = msg.Ack()
		}
	}()
}

// Stop cancels the listener and waits for it to exit
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

// SetHandler replaces the delivery handler, restarting the listener
func (s *Service) SetHandler(ctx context.Context, handler Handler) {
	s.listenerMux.Lock()
	defer s.listenerMux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
	if handler == nil {
		return
	}
	s.listener = NewListener(s.queue, handler, s.logger)
	s.listener.Start(ctx)
}

// Close stops the delivery listener
func (s *Service) Close() {
	s.SetHandler(context.Background(), nil)
}
