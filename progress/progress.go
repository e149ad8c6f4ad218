package progress

import (
	"context"
	"sync"
	"time"
)

// Delta represents an incremental counter change emitted by the allocator,
// reallocator or processor.
type Delta struct {
	Passes      int
	Allocated   int
	Blocked     int
	Reallocated int
	Suppressed  int
	Conflicts   int
	Released    int
	Events      int
	Failed      int
}

// Progress keeps aggregated engine counters. It is safe for concurrent use.
type Progress struct {
	StartedAt  time.Time `json:"startedAt"`
	LastPassAt time.Time `json:"lastPassAt,omitempty"`

	Passes      int `json:"passes"`
	Allocated   int `json:"allocated"`
	Blocked     int `json:"blocked"`
	Reallocated int `json:"reallocated"`
	Suppressed  int `json:"suppressed"`
	Conflicts   int `json:"conflicts"`
	Released    int `json:"released"`
	Events      int `json:"events"`
	Failed      int `json:"failed"`

	mu       sync.Mutex
	onChange func(Progress)
}

// New creates a tracker started at now
func New(now time.Time) *Progress {
	return &Progress{StartedAt: now}
}

// Update applies the supplied delta to the tracker. The onChange callback, if
// any, receives a copy outside the critical section.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.Passes += d.Passes
	p.Allocated += d.Allocated
	p.Blocked += d.Blocked
	p.Reallocated += d.Reallocated
	p.Suppressed += d.Suppressed
	p.Conflicts += d.Conflicts
	p.Released += d.Released
	p.Events += d.Events
	p.Failed += d.Failed
	snapshot := p.copy()
	cb := p.onChange
	p.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// MarkPass records the time of the latest allocation pass
func (p *Progress) MarkPass(at time.Time) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.LastPassAt = at
	p.mu.Unlock()
}

func (p *Progress) copy() Progress {
	return Progress{
		StartedAt: p.StartedAt, LastPassAt: p.LastPassAt,
		Passes: p.Passes, Allocated: p.Allocated, Blocked: p.Blocked, Reallocated: p.Reallocated,
		Suppressed: p.Suppressed, Conflicts: p.Conflicts, Released: p.Released, Events: p.Events, Failed: p.Failed,
	}
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copy()
}

// OnChange registers a callback invoked after every Update; nil disables it.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.onChange = cb
	p.mu.Unlock()
}

type trackerKeyT struct{}

var trackerKey trackerKeyT

// WithTracker embeds tracker in a derived context
func WithTracker(ctx context.Context, tracker *Progress) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, trackerKey, tracker)
}

// FromContext extracts the Progress tracker from ctx.
func FromContext(ctx context.Context) (*Progress, bool) {
	if ctx == nil {
		return nil, false
	}
	tr, ok := ctx.Value(trackerKey).(*Progress)
	return tr, ok
}

// UpdateCtx applies the delta to the tracker carried by ctx, if any.
func UpdateCtx(ctx context.Context, d Delta) {
	if tr, ok := FromContext(ctx); ok {
		tr.Update(d)
	}
}
