// Package ingest applies versioned upstream records to the registry. Records
// are idempotent on (entity id, version). Status changes of resources that
// are currently assigned are routed through the event processor so the
// affected work order is reallocated; everything else is applied directly
// and announced with a record applied event.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/dao/store"
	"github.com/viant/shopfloor/service/journal"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
)

// Publisher accepts events for asynchronous processing
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

type applied struct {
	Key     string
	Version int64
}

// Service applies records
type Service struct {
	mux       sync.Mutex
	registry  *registry.Registry
	publisher Publisher
	versions  dao.Service[string, applied]
	journal   journal.Journal
	notifier  *notifier.Service
	logger    logr.Logger
	clock     clock.Func
}

// Option customises the Service
type Option func(*Service)

func WithJournal(j journal.Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithNotifier(n *notifier.Service) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(fn clock.Func) Option {
	return func(s *Service) { s.clock = fn }
}

// New creates an ingestion service publishing routed changes to publisher
func New(reg *registry.Registry, publisher Publisher, opts ...Option) *Service {
	ret := &Service{
		registry:  reg,
		publisher: publisher,
		versions:  store.NewMemoryStore[string, applied](func(a *applied) string { return a.Key }),
		logger:    logr.Discard(),
		clock:     clock.System(),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// WorkOrder applies a work order record. A priority change of a known work
// order and a completion of a running one are routed as events.
func (s *Service) WorkOrder(ctx context.Context, record *WorkOrderRecord) (Status, error) {
	if record == nil || record.WorkOrder == nil {
		return "", dao.ErrNilEntity
	}
	return s.ingest(ctx, registry.KindWorkOrder, &record.Header, record.WorkOrder.ID, func() ([]model.Payload, error) {
		wo := record.WorkOrder.Clone()
		existing, err := s.registry.WorkOrder(wo.ID)
		if err != nil {
			if _, err = s.registry.PutWorkOrder(ctx, wo); err != nil {
				return nil, err
			}
			return nil, nil
		}
		var routed []model.Payload
		// lifecycle is owned by the engine; only completion is taken from records
		completing := wo.Status == model.WorkOrderCompleted && existing.Status == model.WorkOrderInProgress
		if wo.Priority != existing.Priority {
			// the event applies the new priority and resolves contention
			routed = append(routed, &model.PriorityChangeEvent{WorkOrderID: wo.ID, NewPriority: wo.Priority})
			wo.Priority = existing.Priority
		}
		if _, err = s.registry.PutWorkOrder(ctx, wo); err != nil {
			return nil, err
		}
		if completing {
			routed = append(routed, &model.CompletionEvent{WorkOrderID: wo.ID, Timestamp: record.Timestamp})
		}
		return routed, nil
	})
}

// Operator applies an operator record. Break or unavailability of an
// assigned operator is routed as an availability event.
func (s *Service) Operator(ctx context.Context, record *OperatorStatusRecord) (Status, error) {
	if record == nil || record.Operator == nil {
		return "", dao.ErrNilEntity
	}
	return s.ingest(ctx, registry.KindOperator, &record.Header, record.Operator.ID, func() ([]model.Payload, error) {
		op := record.Operator.Clone()
		existing, err := s.registry.Operator(op.ID)
		if err != nil || existing.Status != model.OperatorAssigned || op.Status == model.OperatorAssigned {
			_, err = s.registry.PutOperator(ctx, op)
			return nil, err
		}
		if op.Status == model.OperatorAvailable {
			return nil, fmt.Errorf("operator %s is assigned and cannot become available: %w", op.ID, dao.ErrIntegrity)
		}
		status := op.Status
		if !status.IsValid() {
			return nil, fmt.Errorf("operator %s: invalid status %q: %w", op.ID, status, dao.ErrIntegrity)
		}
		op.Status = model.OperatorAssigned
		if _, err = s.registry.PutOperator(ctx, op); err != nil {
			return nil, err
		}
		return []model.Payload{&model.AvailabilityEvent{OperatorID: op.ID, NewStatus: status, Timestamp: record.Timestamp}}, nil
	})
}

// Machine applies a machine record. Breakdown or maintenance of a running
// machine is routed as the matching event.
func (s *Service) Machine(ctx context.Context, record *MachineStatusRecord) (Status, error) {
	if record == nil || record.Machine == nil {
		return "", dao.ErrNilEntity
	}
	return s.ingest(ctx, registry.KindMachine, &record.Header, record.Machine.ID, func() ([]model.Payload, error) {
		m := record.Machine.Clone()
		existing, err := s.registry.Machine(m.ID)
		if err != nil || existing.Status != model.MachineRunning || m.Status == model.MachineRunning {
			_, err = s.registry.PutMachine(ctx, m)
			return nil, err
		}
		var payload model.Payload
		switch m.Status {
		case model.MachineBreakdown:
			payload = &model.BreakdownEvent{MachineID: m.ID, Timestamp: record.Timestamp}
		case model.MachineMaintenance:
			event := &model.MaintenanceEvent{MachineID: m.ID, Timestamp: record.Timestamp}
			if m.NextMaintenance != nil && m.NextMaintenance.After(s.clock()) {
				event.Duration = m.NextMaintenance.Sub(s.clock())
			}
			payload = event
		default:
			return nil, fmt.Errorf("machine %s is running and cannot become %q: %w", m.ID, m.Status, dao.ErrIntegrity)
		}
		m.Status = model.MachineRunning
		m.NextMaintenance = existing.NextMaintenance
		if _, err = s.registry.PutMachine(ctx, m); err != nil {
			return nil, err
		}
		return []model.Payload{payload}, nil
	})
}

// Material applies an inventory record. Stock dropping under the reserved
// quantity is routed as a shortage event.
func (s *Service) Material(ctx context.Context, record *MaterialInventoryRecord) (Status, error) {
	if record == nil || record.Material == nil {
		return "", dao.ErrNilEntity
	}
	return s.ingest(ctx, registry.KindMaterial, &record.Header, record.Material.ID, func() ([]model.Payload, error) {
		material := record.Material.Clone()
		existing, err := s.registry.Material(material.ID)
		if err != nil || material.QuantityAvailable >= existing.QuantityReserved {
			_, err = s.registry.PutMaterial(ctx, material)
			return nil, err
		}
		if material.QuantityAvailable < 0 {
			return nil, fmt.Errorf("material %s: negative quantity: %w", material.ID, dao.ErrIntegrity)
		}
		shortage := &model.MaterialShortageEvent{
			MaterialID:       material.ID,
			NewAvailableQty:  material.QuantityAvailable,
			ExpectedDelivery: material.ExpectedDelivery,
		}
		material.QuantityAvailable = existing.QuantityAvailable
		if _, err = s.registry.PutMaterial(ctx, material); err != nil {
			return nil, err
		}
		return []model.Payload{shortage}, nil
	})
}

// ingest serialises records, skips stale versions and journals the outcome
func (s *Service) ingest(ctx context.Context, kind registry.Kind, header *Header, entityID string, apply func() ([]model.Payload, error)) (Status, error) {
	if header.ID == "" {
		header.ID = entityID
	}
	if entityID == "" || header.ID != entityID {
		err := fmt.Errorf("%s record %q for entity %q: %w", kind, header.ID, entityID, dao.ErrInvalidID)
		s.reject(ctx, kind, header, err)
		return "", err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	key := string(kind) + "/" + entityID
	if last, err := s.versions.Load(ctx, key); err == nil && header.Version <= last.Version {
		s.logger.V(1).Info("stale record skipped", "kind", string(kind), "id", entityID, "version", header.Version, "applied", last.Version)
		return StatusStale, nil
	}
	routed, err := apply()
	if err != nil {
		s.reject(ctx, kind, header, err)
		return "", err
	}
	if err = s.versions.Save(ctx, &applied{Key: key, Version: header.Version}); err != nil {
		return "", err
	}
	status := StatusApplied
	if len(routed) == 0 {
		routed = []model.Payload{&model.RecordAppliedEvent{EntityKind: string(kind), EntityID: entityID}}
	} else {
		status = StatusRouted
	}
	for _, payload := range routed {
		if err = s.publisher.Publish(ctx, &model.Event{Timestamp: header.Timestamp, Payload: payload}); err != nil {
			return "", fmt.Errorf("failed to publish %s for %s %s: %w", payload.Kind(), kind, entityID, err)
		}
	}
	s.record(ctx, kind, header, journal.StatusApplied, string(status))
	s.logger.V(1).Info("record ingested", "kind", string(kind), "id", entityID, "version", header.Version, "status", string(status))
	return status, nil
}

func (s *Service) reject(ctx context.Context, kind registry.Kind, header *Header, err error) {
	s.logger.Error(err, "record rejected", "kind", string(kind), "id", header.ID, "version", header.Version)
	s.record(ctx, kind, header, journal.StatusRejected, err.Error())
	if s.notifier != nil {
		s.notifier.Emitf(ctx, model.NotificationRejected, model.SeverityWarning, []string{header.ID},
			"%s record %s version %d rejected: %v", kind, header.ID, header.Version, err)
	}
}

func (s *Service) record(ctx context.Context, kind registry.Kind, header *Header, status, detail string) {
	if s.journal == nil {
		return
	}
	entry := &journal.Entry{
		Source:   journal.SourceRecord,
		Kind:     string(kind),
		EntityID: header.ID,
		Version:  header.Version,
		Status:   status,
		Detail:   detail,
		At:       s.clock(),
	}
	if err := s.journal.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to journal record", "kind", string(kind), "id", header.ID)
	}
}
