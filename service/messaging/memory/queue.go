package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/service/messaging"
)

// ErrProcessed is returned when a message is acked or nacked twice
var ErrProcessed = errors.New("message already processed")

// Config for memory queue implementation
type Config struct {
	Retry       messaging.RetryPolicy `yaml:"retry" mapstructure:"retry"`
	DeadLetter  bool                  `yaml:"deadLetter" mapstructure:"dead_letter"`
	QueueBuffer int                   `yaml:"queueBuffer" mapstructure:"queue_buffer"`
}

// DefaultConfig returns a standard configuration for memory queue
func DefaultConfig() Config {
	return Config{
		Retry:       messaging.DefaultRetryPolicy(),
		DeadLetter:  true,
		QueueBuffer: 1024,
	}
}

// Message implements messaging.Message for the in-memory queue
type Message[T any] struct {
	id         string
	payload    T
	queue      *Queue[T]
	retryCount int
	mu         sync.Mutex
	processed  bool
	createdAt  time.Time
	lastErr    error
}

func (m *Message[T]) ID() string { return m.id }

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.payload
}

func (m *Message[T]) Attempt() int { return m.retryCount }

// Err returns the last nack error
func (m *Message[T]) Err() error { return m.lastErr }

// Ack acknowledges the message as processed successfully
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.queue.inFlight.Add(-1)
	m.queue.processed.Add(1)
	return nil
}

// Nack indicates a failure in processing the message; it is redelivered
// after the retry delay or moved to the dead letter list.
func (m *Message[T]) Nack(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	m.queue.inFlight.Add(-1)
	attempt := m.retryCount + 1
	retry := &Message[T]{
		id:         m.id,
		payload:    m.payload,
		queue:      m.queue,
		retryCount: attempt,
		createdAt:  m.createdAt,
		lastErr:    err,
	}
	if !m.queue.config.Retry.Exhausted(attempt) {
		m.queue.retried.Add(1)
		delay := m.queue.config.Retry.Delay(attempt)
		m.queue.pending.Add(1)
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			m.queue.messages <- retry
		}()
		return nil
	}
	if m.queue.config.DeadLetter {
		m.queue.dlqMu.Lock()
		m.queue.dlq = append(m.queue.dlq, retry)
		m.queue.dlqMu.Unlock()
	}
	return nil
}

// Queue implements an in-memory messaging.Queue
type Queue[T any] struct {
	messages  chan *Message[T]
	dlq       []*Message[T]
	config    Config
	dlqMu     sync.Mutex
	clock     clock.Func
	pending   atomic.Int64
	inFlight  atomic.Int64
	published atomic.Uint64
	processed atomic.Uint64
	retried   atomic.Uint64
}

// NewQueue creates a new in-memory queue
func NewQueue[T any](config Config) *Queue[T] {
	if config.QueueBuffer <= 0 {
		config.QueueBuffer = DefaultConfig().QueueBuffer
	}
	return &Queue[T]{
		messages: make(chan *Message[T], config.QueueBuffer),
		config:   config,
		clock:    clock.System(),
	}
}

// Publish adds a new item to the queue; it blocks while the buffer is full
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("publish: nil payload")
	}
	msg := &Message[T]{
		id:        idgen.New(),
		payload:   *t,
		queue:     q,
		createdAt: q.clock(),
	}
	q.pending.Add(1)
	select {
	case q.messages <- msg:
		q.published.Add(1)
		return nil
	case <-ctx.Done():
		q.pending.Add(-1)
		return ctx.Err()
	}
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg := <-q.messages:
		q.pending.Add(-1)
		q.inFlight.Add(1)
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of messages in the queue
func (q *Queue[T]) Size() int {
	return len(q.messages)
}

// DLQSize returns the number of messages in the dead letter queue
func (q *Queue[T]) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}

// DeadLetters returns copies of dead-lettered payloads
func (q *Queue[T]) DeadLetters() []T {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	ret := make([]T, len(q.dlq))
	for i, msg := range q.dlq {
		ret[i] = msg.payload
	}
	return ret
}

// Stats returns queue counters
func (q *Queue[T]) Stats() messaging.Stats {
	return messaging.Stats{
		Pending:     int(q.pending.Load()),
		InFlight:    int(q.inFlight.Load()),
		DeadLetters: q.DLQSize(),
		Published:   q.published.Load(),
		Processed:   q.processed.Load(),
		Retried:     q.retried.Load(),
	}
}

// ensure Queue implements messaging.Queue interface
var _ messaging.Queue[any] = (*Queue[any])(nil)
var _ messaging.Inspector = (*Queue[any])(nil)
