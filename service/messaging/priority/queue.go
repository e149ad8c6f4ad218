package priority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/service/messaging"
)

// ErrProcessed is returned when a message is acked or nacked twice
var ErrProcessed = errors.New("message already processed")

// Config controls class budgets and redelivery
type Config struct {
	Budgets map[Class]Budget
	Retry   messaging.RetryPolicy
}

// DefaultConfig returns default budgets and retry policy
func DefaultConfig() Config {
	return Config{Budgets: DefaultBudgets(), Retry: messaging.DefaultRetryPolicy()}
}

// Overrun reports a class backlog above its capacity. Nothing is dropped;
// the class's effective latency target grows with the backlog instead.
type Overrun struct {
	Class           Class
	Backlog         int
	Capacity        int
	Target          time.Duration
	EffectiveTarget time.Duration
	At              time.Time
}

// DeadLetter is a message whose retry budget was exhausted
type DeadLetter[T any] struct {
	ID       string
	Payload  T
	Class    Class
	Attempts int
	Err      error
	At       time.Time
}

// ClassStats reports one class lane
type ClassStats struct {
	Class           string        `json:"class"`
	Pending         int           `json:"pending"`
	InFlight        int           `json:"inFlight"`
	Published       uint64        `json:"published"`
	Processed       uint64        `json:"processed"`
	Retried         uint64        `json:"retried"`
	DeadLettered    uint64        `json:"deadLettered"`
	Overruns        uint64        `json:"overruns"`
	Late            uint64        `json:"late"`
	Overrun         bool          `json:"overrun"`
	Target          time.Duration `json:"target"`
	EffectiveTarget time.Duration `json:"effectiveTarget"`
	MaxWait         time.Duration `json:"maxWait"`
}

type entry[T any] struct {
	id         string
	payload    T
	class      Class
	key        string
	attempt    int
	enqueuedAt time.Time
	notBefore  time.Time
}

// Queue is a messaging.Queue with strict class priority, FIFO order within a
// class and per-key affinity: two messages sharing a key are never in flight
// together and are delivered in publish order.
type Queue[T any] struct {
	mu           sync.Mutex
	config       Config
	classify     func(*T) Class
	key          func(*T) string
	clock        clock.Func
	lanes        [classCount][]*entry[T]
	busy         map[string]bool
	stats        [classCount]ClassStats
	dlq          []DeadLetter[T]
	signal       chan struct{}
	onOverrun    func(Overrun)
	onDeadLetter func(DeadLetter[T])
}

// Option customises a Queue
type Option[T any] func(*Queue[T])

// WithKey sets the ordering key extractor
func WithKey[T any](fn func(*T) string) Option[T] {
	return func(q *Queue[T]) { q.key = fn }
}

// WithClock sets the queue clock
func WithClock[T any](fn clock.Func) Option[T] {
	return func(q *Queue[T]) { q.clock = fn }
}

// WithOverrunHandler is called once each time a class backlog crosses its
// capacity.
func WithOverrunHandler[T any](fn func(Overrun)) Option[T] {
	return func(q *Queue[T]) { q.onOverrun = fn }
}

// WithDeadLetterHandler is called for every dead-lettered message
func WithDeadLetterHandler[T any](fn func(DeadLetter[T])) Option[T] {
	return func(q *Queue[T]) { q.onDeadLetter = fn }
}

// New creates a priority queue; classify assigns each payload to a class
func New[T any](config Config, classify func(*T) Class, opts ...Option[T]) *Queue[T] {
	if config.Budgets == nil {
		config.Budgets = DefaultBudgets()
	}
	ret := &Queue[T]{
		config:   config,
		classify: classify,
		clock:    clock.System(),
		busy:     make(map[string]bool),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(ret)
	}
	for _, class := range Classes() {
		budget := config.Budgets[class]
		ret.stats[class] = ClassStats{Class: class.String(), Target: budget.Target, EffectiveTarget: budget.Target}
	}
	return ret
}

func (q *Queue[T]) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Publish enqueues t in its class lane. It never blocks or drops.
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if t == nil {
		return fmt.Errorf("publish: nil payload")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	class := q.classify(t)
	if class < 0 || class >= classCount {
		class = Routine
	}
	e := &entry[T]{id: idgen.New(), payload: *t, class: class, enqueuedAt: q.clock()}
	if q.key != nil {
		e.key = q.key(t)
	}
	q.mu.Lock()
	q.lanes[class] = append(q.lanes[class], e)
	q.stats[class].Published++
	overrun := q.checkOverrun(class, e.enqueuedAt)
	q.mu.Unlock()
	q.notify()
	if overrun != nil && q.onOverrun != nil {
		q.onOverrun(*overrun)
	}
	return nil
}

// checkOverrun updates the class overrun state; it returns an Overrun only
// when the backlog has just crossed the capacity.
func (q *Queue[T]) checkOverrun(class Class, now time.Time) *Overrun {
	budget := q.config.Budgets[class]
	stats := &q.stats[class]
	if budget.Capacity <= 0 {
		return nil
	}
	backlog := len(q.lanes[class]) + stats.InFlight
	if backlog <= budget.Capacity {
		stats.Overrun = false
		stats.EffectiveTarget = budget.Target
		return nil
	}
	stats.EffectiveTarget = budget.Target * time.Duration(backlog) / time.Duration(budget.Capacity)
	if stats.Overrun {
		return nil
	}
	stats.Overrun = true
	stats.Overruns++
	return &Overrun{Class: class, Backlog: backlog, Capacity: budget.Capacity,
		Target: budget.Target, EffectiveTarget: stats.EffectiveTarget, At: now}
}

// Consume blocks until a message is deliverable or ctx is done
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	for {
		q.mu.Lock()
		now := q.clock()
		e, wait := q.next(now)
		if e != nil {
			if e.key != "" {
				q.busy[e.key] = true
			}
			stats := &q.stats[e.class]
			stats.InFlight++
			waited := now.Sub(e.enqueuedAt)
			if waited > stats.MaxWait {
				stats.MaxWait = waited
			}
			if stats.Target > 0 && waited > stats.EffectiveTarget {
				stats.Late++
			}
			q.mu.Unlock()
			q.notify()
			return &Message[T]{entry: e, queue: q}, nil
		}
		q.mu.Unlock()

		var timer *time.Timer
		var fire <-chan time.Time
		if wait > 0 {
			timer = time.NewTimer(wait)
			fire = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-q.signal:
		case <-fire:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// next removes and returns the first deliverable entry. When nothing is
// deliverable it returns the wait until the earliest delayed retry.
func (q *Queue[T]) next(now time.Time) (*entry[T], time.Duration) {
	var wait time.Duration
	blocked := map[string]bool{}
	for class := range q.lanes {
		lane := q.lanes[class]
		for i, e := range lane {
			if e.key != "" && (q.busy[e.key] || blocked[e.key]) {
				blocked[e.key] = true
				continue
			}
			if e.notBefore.After(now) {
				if d := e.notBefore.Sub(now); wait == 0 || d < wait {
					wait = d
				}
				if e.key != "" {
					blocked[e.key] = true
				}
				continue
			}
			q.lanes[class] = append(lane[:i:i], lane[i+1:]...)
			return e, 0
		}
	}
	return nil, wait
}

func (q *Queue[T]) finish(e *entry[T]) {
	if e.key != "" {
		delete(q.busy, e.key)
	}
	q.stats[e.class].InFlight--
}

func (q *Queue[T]) ack(e *entry[T]) {
	q.mu.Lock()
	q.finish(e)
	q.stats[e.class].Processed++
	q.checkOverrun(e.class, q.clock())
	q.mu.Unlock()
	q.notify()
}

func (q *Queue[T]) nack(e *entry[T], cause error) {
	q.mu.Lock()
	q.finish(e)
	now := q.clock()
	e.attempt++
	var dead *DeadLetter[T]
	if q.config.Retry.Exhausted(e.attempt) {
		q.stats[e.class].DeadLettered++
		letter := DeadLetter[T]{ID: e.id, Payload: e.payload, Class: e.class, Attempts: e.attempt, Err: cause, At: now}
		q.dlq = append(q.dlq, letter)
		dead = &letter
	} else {
		q.stats[e.class].Retried++
		e.notBefore = now.Add(q.config.Retry.Delay(e.attempt))
		q.lanes[e.class] = append([]*entry[T]{e}, q.lanes[e.class]...)
	}
	q.checkOverrun(e.class, now)
	q.mu.Unlock()
	q.notify()
	if dead != nil && q.onDeadLetter != nil {
		q.onDeadLetter(*dead)
	}
}

// Len returns the number of queued messages across classes
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := 0
	for _, lane := range q.lanes {
		ret += len(lane)
	}
	return ret
}

// ClassStats returns per-class statistics in priority order
func (q *Queue[T]) ClassStats() []ClassStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	ret := make([]ClassStats, classCount)
	for class := range q.lanes {
		ret[class] = q.stats[class]
		ret[class].Pending = len(q.lanes[class])
	}
	return ret
}

// Stats returns totals across classes
func (q *Queue[T]) Stats() messaging.Stats {
	var ret messaging.Stats
	for _, stats := range q.ClassStats() {
		ret.Pending += stats.Pending
		ret.InFlight += stats.InFlight
		ret.DeadLetters += int(stats.DeadLettered)
		ret.Published += stats.Published
		ret.Processed += stats.Processed
		ret.Retried += stats.Retried
	}
	return ret
}

// DeadLetters returns dead-lettered messages in order
func (q *Queue[T]) DeadLetters() []DeadLetter[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter[T](nil), q.dlq...)
}

// Message is a delivered priority queue entry
type Message[T any] struct {
	entry *entry[T]
	queue *Queue[T]
	mu    sync.Mutex
	done  bool
}

func (m *Message[T]) ID() string { return m.entry.id }

func (m *Message[T]) T() *T { return &m.entry.payload }

func (m *Message[T]) Attempt() int { return m.entry.attempt }

// Class returns the message class
func (m *Message[T]) Class() Class { return m.entry.class }

func (m *Message[T]) settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return ErrProcessed
	}
	m.done = true
	return nil
}

// Ack releases the message key and counts it as processed
func (m *Message[T]) Ack() error {
	if err := m.settle(); err != nil {
		return err
	}
	m.queue.ack(m.entry)
	return nil
}

// Nack redelivers the message at the head of its lane after the retry delay,
// or dead-letters it once the retry budget is spent.
func (m *Message[T]) Nack(err error) error {
	if e := m.settle(); e != nil {
		return e
	}
	m.queue.nack(m.entry, err)
	return nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
var _ messaging.Inspector = (*Queue[any])(nil)
