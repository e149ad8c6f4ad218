package shopfloor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/ingest"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/processor"
	"github.com/viant/shopfloor/service/readmodel"
	"github.com/viant/shopfloor/service/reallocator"
	"github.com/viant/shopfloor/service/registry"
)

// Runtime represents a running allocation engine
type Runtime struct {
	config      *Config
	logger      logr.Logger
	registry    *registry.Registry
	allocator   *allocator.Service
	reallocator *reallocator.Service
	notifier    *notifier.Service
	processor   *processor.Service
	ingest      *ingest.Service
	readModel   *readmodel.Service
	journal     journal.Journal
	progress    *progress.Progress
	handler     notifier.Handler

	mux        sync.Mutex
	started    bool
	shutdownCh chan struct{}
	loops      conc.WaitGroup
	closeOnce  sync.Once
}

// Start launches the event workers, notification delivery, the periodic
// allocation pass and the snapshot exporter, then runs an initial pass.
func (r *Runtime) Start(ctx context.Context) error {
	r.mux.Lock()
	if r.started {
		r.mux.Unlock()
		return fmt.Errorf("runtime already started")
	}
	r.started = true
	r.shutdownCh = make(chan struct{})
	r.mux.Unlock()

	if err := r.processor.Start(ctx); err != nil {
		return err
	}
	if r.handler != nil {
		r.notifier.SetHandler(ctx, r.handler)
	}
	if interval := r.config.Engine.PassInterval; interval > 0 {
		r.loops.Go(func() {
			if err := r.allocator.Run(ctx, interval, r.shutdownCh); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error(err, "allocation loop stopped")
			}
		})
	}
	if r.config.ReadModel.URL != "" {
		r.loops.Go(func() {
			if err := r.readModel.Run(ctx, r.shutdownCh); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error(err, "snapshot export stopped")
			}
		})
	}
	_, err := r.allocator.Pass(ctx)
	return err
}

// Shutdown stops the background loops and the workers, waits for in-flight
// events, then closes notification delivery and the journal.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.mux.Lock()
		if r.shutdownCh != nil {
			close(r.shutdownCh)
		}
		r.mux.Unlock()
		r.processor.Shutdown()
		r.loops.Wait()
		r.notifier.Close()
		err = r.journal.Close()
	})
	return err
}

// Publish enqueues a disruption or status event
func (r *Runtime) Publish(ctx context.Context, payload model.Payload) error {
	if payload == nil {
		return dao.ErrNilEntity
	}
	return r.processor.Publish(ctx, &model.Event{Payload: payload})
}

// Handle applies an event synchronously, bypassing the queue
func (r *Runtime) Handle(ctx context.Context, payload model.Payload) error {
	if payload == nil {
		return dao.ErrNilEntity
	}
	return r.processor.Handle(ctx, &model.Event{Payload: payload})
}

// IngestWorkOrder applies a versioned work order record
func (r *Runtime) IngestWorkOrder(ctx context.Context, record *ingest.WorkOrderRecord) (ingest.Status, error) {
	return r.ingest.WorkOrder(ctx, record)
}

// IngestOperator applies a versioned operator status record
func (r *Runtime) IngestOperator(ctx context.Context, record *ingest.OperatorStatusRecord) (ingest.Status, error) {
	return r.ingest.Operator(ctx, record)
}

// IngestMachine applies a versioned machine status record
func (r *Runtime) IngestMachine(ctx context.Context, record *ingest.MachineStatusRecord) (ingest.Status, error) {
	return r.ingest.Machine(ctx, record)
}

// IngestMaterial applies a versioned material inventory record
func (r *Runtime) IngestMaterial(ctx context.Context, record *ingest.MaterialInventoryRecord) (ingest.Status, error) {
	return r.ingest.Material(ctx, record)
}

// Pass runs one allocation pass over all allocatable work orders
func (r *Runtime) Pass(ctx context.Context) ([]allocator.Outcome, error) {
	return r.allocator.Pass(ctx)
}

// Snapshot returns the current read-only allocation snapshot
func (r *Runtime) Snapshot(ctx context.Context) (*readmodel.AllocationSnapshot, error) {
	return r.readModel.Snapshot(ctx)
}

// Export writes the snapshot to the configured read model URL
func (r *Runtime) Export(ctx context.Context) (*readmodel.AllocationSnapshot, error) {
	return r.readModel.Export(ctx)
}

// WorkOrder returns a work order copy
func (r *Runtime) WorkOrder(id string) (*model.WorkOrder, error) {
	return r.registry.WorkOrder(id)
}

// Decisions lists recorded allocation decisions
func (r *Runtime) Decisions(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Decision, error) {
	return r.registry.Decisions(ctx, parameters...)
}

// Journal lists journal entries
func (r *Runtime) Journal(ctx context.Context, parameters ...*dao.Parameter) ([]*journal.Entry, error) {
	return r.journal.List(ctx, parameters...)
}

// Notifications returns recently emitted notifications, optionally filtered by kind
func (r *Runtime) Notifications(kinds ...string) []model.Notification {
	return r.notifier.Recent(kinds...)
}

// Progress returns a copy of the pass counters
func (r *Runtime) Progress() progress.Progress {
	return r.progress.Snapshot()
}

// Registry returns the resource registry
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}
