package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/shopfloor/internal/clock"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/dao/criteria"
	"github.com/viant/shopfloor/service/dao/store"
)

// Kind identifies an entity table
type Kind string

const (
	KindOperator  Kind = "operator"
	KindMachine   Kind = "machine"
	KindMaterial  Kind = "material"
	KindWorkOrder Kind = "workOrder"
)

// Assignment lists the resources held by a work order
type Assignment struct {
	OperatorID string `json:"operatorId,omitempty"`
	MachineID  string `json:"machineId,omitempty"`
}

type resourceKey struct {
	kind Kind
	id   string
}

// Registry is the single mutation path for shop-floor state
type Registry struct {
	mu         sync.RWMutex
	clock      clock.Func
	layout     *model.Layout
	revision   int64
	operators  *store.Table[model.Operator, *model.Operator]
	machines   *store.Table[model.Machine, *model.Machine]
	materials  *store.Table[model.Material, *model.Material]
	workOrders *store.Table[model.WorkOrder, *model.WorkOrder]
	holders    map[resourceKey]string // resource -> work order
	assigned   map[string]Assignment  // work order -> resources
	decisions  dao.Service[string, model.Decision]
}

// Option customises a Registry
type Option func(*Registry)

// WithClock sets the clock stamping snapshots and transitions
func WithClock(fn clock.Func) Option {
	return func(r *Registry) { r.clock = fn }
}

// WithLayout sets the zone layout exposed to snapshots
func WithLayout(layout *model.Layout) Option {
	return func(r *Registry) { r.layout = layout }
}

// WithDecisions replaces the last-decision store
func WithDecisions(decisions dao.Service[string, model.Decision]) Option {
	return func(r *Registry) { r.decisions = decisions }
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	ret := &Registry{
		clock:      clock.System(),
		operators:  store.NewTable[model.Operator](),
		machines:   store.NewTable[model.Machine](),
		materials:  store.NewTable[model.Material](),
		workOrders: store.NewTable[model.WorkOrder](),
		holders:    make(map[resourceKey]string),
		assigned:   make(map[string]Assignment),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.decisions == nil {
		ret.decisions = newDecisionStore()
	}
	return ret
}

func newDecisionStore() *store.MemoryStore[string, model.Decision] {
	return store.NewMemoryStore[string, model.Decision](
		func(d *model.Decision) string { return d.WorkOrderID },
		store.WithFields[string, model.Decision](func(d *model.Decision) criteria.Fields {
			return func(name string) (string, bool) {
				switch name {
				case "Kind":
					return string(d.Kind), true
				case "Reason":
					return string(d.Reason), true
				}
				return "", false
			}
		}),
		store.WithOrder[string, model.Decision](func(a, b *model.Decision) bool {
			return a.WorkOrderID < b.WorkOrderID
		}),
	)
}

// Now returns the registry clock reading
func (r *Registry) Now() time.Time { return r.clock() }

func (r *Registry) next() int64 {
	r.revision++
	return r.revision
}

// Get returns a copy of the entity of kind with id
func (r *Registry) Get(kind Kind, id string) (any, error) {
	switch kind {
	case KindOperator:
		return r.Operator(id)
	case KindMachine:
		return r.Machine(id)
	case KindMaterial:
		return r.Material(id)
	case KindWorkOrder:
		return r.WorkOrder(id)
	}
	return nil, fmt.Errorf("unsupported entity kind %q: %w", kind, dao.ErrInvalidID)
}

func (r *Registry) Operator(id string) (*model.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operators.Get(id)
	if !ok {
		return nil, notFound(KindOperator, id)
	}
	op.WorkOrderID = r.holders[resourceKey{KindOperator, id}]
	return op, nil
}

func (r *Registry) Machine(id string) (*model.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines.Get(id)
	if !ok {
		return nil, notFound(KindMachine, id)
	}
	m.WorkOrderID = r.holders[resourceKey{KindMachine, id}]
	return m, nil
}

func (r *Registry) Material(id string) (*model.Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.materials.Get(id)
	if !ok {
		return nil, notFound(KindMaterial, id)
	}
	return m, nil
}

func (r *Registry) WorkOrder(id string) (*model.WorkOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wo, ok := r.workOrders.Get(id)
	if !ok {
		return nil, notFound(KindWorkOrder, id)
	}
	r.decorate(wo)
	return wo, nil
}

// AssignmentOf returns resources held by a work order
func (r *Registry) AssignmentOf(workOrderID string) (Assignment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret, ok := r.assigned[workOrderID]
	return ret, ok
}

// HolderOf returns the work order holding an operator or machine
func (r *Registry) HolderOf(kind Kind, id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.holders[resourceKey{kind, id}]
}

// Snapshot returns a deep, immutable copy of the registry state
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := &Snapshot{
		TakenAt:    r.clock(),
		Revision:   r.revision,
		Layout:     r.layout,
		Operators:  r.operators.CloneAll(),
		Machines:   r.machines.CloneAll(),
		Materials:  r.materials.CloneAll(),
		WorkOrders: r.workOrders.CloneAll(),
	}
	for key, workOrderID := range r.holders {
		switch key.kind {
		case KindOperator:
			ret.Operators[key.id].WorkOrderID = workOrderID
		case KindMachine:
			ret.Machines[key.id].WorkOrderID = workOrderID
		}
	}
	for _, wo := range ret.WorkOrders {
		r.decorate(wo)
	}
	return ret
}

func (r *Registry) decorate(wo *model.WorkOrder) {
	assignment := r.assigned[wo.ID]
	wo.OperatorID = assignment.OperatorID
	wo.MachineID = assignment.MachineID
}

// UpdateOperator applies mutation to the operator seen at revision
func (r *Registry) UpdateOperator(_ context.Context, id string, revision int64, mutation func(op *model.Operator) error) (*model.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.operators.Get(id)
	if !ok {
		return nil, notFound(KindOperator, id)
	}
	if op.Revision != revision {
		return nil, conflict(KindOperator, id)
	}
	previous := op.Status
	if err := mutation(op); err != nil {
		return nil, err
	}
	if op.ID != id {
		return nil, integrity("operator %s: id is immutable", id)
	}
	if err := r.checkOperator(op); err != nil {
		return nil, err
	}
	if op.Status != previous {
		op.StatusSince = r.clock()
	}
	r.operators.Put(op, r.next())
	return op.Clone(), nil
}

// UpdateMachine applies mutation to the machine seen at revision
func (r *Registry) UpdateMachine(_ context.Context, id string, revision int64, mutation func(m *model.Machine) error) (*model.Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.machines.Get(id)
	if !ok {
		return nil, notFound(KindMachine, id)
	}
	if m.Revision != revision {
		return nil, conflict(KindMachine, id)
	}
	previous := m.Status
	if err := mutation(m); err != nil {
		return nil, err
	}
	if m.ID != id {
		return nil, integrity("machine %s: id is immutable", id)
	}
	if err := r.checkMachine(m); err != nil {
		return nil, err
	}
	if m.Status != previous {
		m.StatusSince = r.clock()
	}
	r.machines.Put(m, r.next())
	return m.Clone(), nil
}

// UpdateMaterial applies mutation to the material seen at revision. The
// reserved quantity is owned by the registry and cannot be changed here.
func (r *Registry) UpdateMaterial(_ context.Context, id string, revision int64, mutation func(m *model.Material) error) (*model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.materials.Get(id)
	if !ok {
		return nil, notFound(KindMaterial, id)
	}
	if m.Revision != revision {
		return nil, conflict(KindMaterial, id)
	}
	reserved := m.QuantityReserved
	if err := mutation(m); err != nil {
		return nil, err
	}
	if m.ID != id || m.QuantityReserved != reserved {
		return nil, integrity("material %s: reserved quantity is changed only by reservation", id)
	}
	if err := checkMaterial(m); err != nil {
		return nil, err
	}
	r.materials.Put(m, r.next())
	return m.Clone(), nil
}

// UpdateWorkOrder applies mutation to the work order seen at revision. Status
// transitions into or out of in_progress go through Assign and Release.
func (r *Registry) UpdateWorkOrder(_ context.Context, id string, revision int64, mutation func(wo *model.WorkOrder) error) (*model.WorkOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wo, ok := r.workOrders.Get(id)
	if !ok {
		return nil, notFound(KindWorkOrder, id)
	}
	if wo.Revision != revision {
		return nil, conflict(KindWorkOrder, id)
	}
	r.decorate(wo)
	previous := wo.Clone()
	if err := mutation(wo); err != nil {
		return nil, err
	}
	if wo.ID != id || (wo.Status == model.WorkOrderInProgress) != (previous.Status == model.WorkOrderInProgress) {
		return nil, integrity("work order %s: running state is changed only by assign/release", id)
	}
	if wo.OperatorID != previous.OperatorID || wo.MachineID != previous.MachineID {
		return nil, integrity("work order %s: resources are changed only by assign/release", id)
	}
	if wo.Status == model.WorkOrderInProgress && !sameRequirements(previous.RequiredMaterials, wo.RequiredMaterials) {
		return nil, integrity("work order %s: material requirements of a running work order are fixed", id)
	}
	if err := r.checkWorkOrder(wo); err != nil {
		return nil, err
	}
	return r.putWorkOrder(wo), nil
}

// RecordDecision stores the latest decision taken for a work order
func (r *Registry) RecordDecision(ctx context.Context, decision *model.Decision) error {
	if decision == nil {
		return dao.ErrNilEntity
	}
	if decision.WorkOrderID == "" {
		return dao.ErrInvalidID
	}
	return r.decisions.Save(ctx, decision)
}

// LastDecision returns the latest decision taken for a work order
func (r *Registry) LastDecision(ctx context.Context, workOrderID string) (*model.Decision, error) {
	return r.decisions.Load(ctx, workOrderID)
}

// Decisions lists latest decisions, optionally filtered by Kind or Reason
func (r *Registry) Decisions(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Decision, error) {
	return r.decisions.List(ctx, parameters...)
}
