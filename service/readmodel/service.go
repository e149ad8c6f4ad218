// Package readmodel builds allocation snapshots and exports them as JSON to
// any storage supported by viant/afs.
package readmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/messaging/priority"
	"github.com/viant/shopfloor/service/processor"
	"github.com/viant/shopfloor/service/registry"
)

// DefaultInterval is the export period
const DefaultInterval = 30 * time.Second

// QueueInspector exposes per class queue statistics
type QueueInspector interface {
	ClassStats() []priority.ClassStats
}

// EventInspector exposes per kind event statistics
type EventInspector interface {
	Stats() []processor.KindStats
}

// Service builds and exports snapshots
type Service struct {
	registry *registry.Registry
	queue    QueueInspector
	events   EventInspector
	progress *progress.Progress
	fs       afs.Service
	url      string
	interval time.Duration
	logger   logr.Logger
}

// Option customises the Service
type Option func(*Service)

func WithQueue(queue QueueInspector) Option {
	return func(s *Service) { s.queue = queue }
}

func WithEvents(events EventInspector) Option {
	return func(s *Service) { s.events = events }
}

func WithProgress(p *progress.Progress) Option {
	return func(s *Service) { s.progress = p }
}

// WithURL sets the export destination, for example file:///var/shopfloor/snapshot.json
func WithURL(URL string) Option {
	return func(s *Service) { s.url = URL }
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a read model over reg
func New(reg *registry.Registry, opts ...Option) *Service {
	ret := &Service{registry: reg, interval: DefaultInterval, logger: logr.Discard()}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.fs == nil {
		ret.fs = afs.New()
	}
	return ret
}

// Snapshot returns the current allocation snapshot
func (s *Service) Snapshot(ctx context.Context) (*AllocationSnapshot, error) {
	state := s.registry.Snapshot()
	decisions, err := s.registry.Decisions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	ret := &AllocationSnapshot{
		TakenAt:    state.TakenAt,
		Revision:   state.Revision,
		Operators:  state.OperatorList(),
		Machines:   state.MachineList(),
		Materials:  state.MaterialList(),
		WorkOrders: state.WorkOrderList(),
		Decisions:  decisions,
	}
	if s.queue != nil {
		ret.Queue = s.queue.ClassStats()
	}
	if s.events != nil {
		ret.Events = s.events.Stats()
	}
	if s.progress != nil {
		counters := s.progress.Snapshot()
		ret.Progress = &counters
	}
	for _, op := range ret.Operators {
		ret.Summary.Operators.add(string(op.Status))
	}
	for _, m := range ret.Machines {
		ret.Summary.Machines.add(string(m.Status))
	}
	for _, wo := range ret.WorkOrders {
		ret.Summary.WorkOrders.add(string(wo.Status))
	}
	for _, material := range ret.Materials {
		if material.BelowReorderPoint() {
			ret.Summary.BelowReorder = append(ret.Summary.BelowReorder, material.ID)
		}
	}
	return ret, nil
}

// Export uploads the current snapshot to the configured URL
func (s *Service) Export(ctx context.Context) (*AllocationSnapshot, error) {
	if s.url == "" {
		return nil, fmt.Errorf("read model export URL is not configured")
	}
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err = s.fs.Upload(ctx, s.url, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to upload snapshot to %s: %w", s.url, err)
	}
	return snapshot, nil
}

// Load reads back an exported snapshot
func (s *Service) Load(ctx context.Context, URL string) (*AllocationSnapshot, error) {
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download snapshot %s: %w", URL, err)
	}
	ret := &AllocationSnapshot{}
	if err = json.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", URL, err)
	}
	return ret, nil
}

// Run exports a snapshot every interval until ctx is done or shutdown is
// closed, with a final export on the way out.
func (s *Service) Run(ctx context.Context, shutdown <-chan struct{}) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			_, err := s.Export(context.WithoutCancel(ctx))
			return err
		case <-ticker.C:
			if _, err := s.Export(ctx); err != nil {
				s.logger.Error(err, "snapshot export failed", "url", s.url)
			}
		}
	}
}
