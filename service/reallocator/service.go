package reallocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/viant/shopfloor/internal/logging"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/policy"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/allocator"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/service/validator"
	"github.com/viant/shopfloor/tracing"
)

// Service evaluates reallocation triggers
type Service struct {
	registry  *registry.Registry
	allocator *allocator.Service
	notifier  *notifier.Service
	progress  *progress.Progress
	policy    *policy.Policy
	logger    logr.Logger
	mux       sync.Mutex
	phases    map[string]Phase
	pending   map[string]Trigger
}

// Option customises the Service
type Option func(s *Service)

func WithNotifier(n *notifier.Service) Option {
	return func(s *Service) { s.notifier = n }
}

func WithProgress(p *progress.Progress) Option {
	return func(s *Service) { s.progress = p }
}

// WithPolicy sets the default policy; a policy carried by the context wins
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates a reallocation controller
func New(reg *registry.Registry, alloc *allocator.Service, opts ...Option) *Service {
	ret := &Service{
		registry:  reg,
		allocator: alloc,
		policy:    policy.Default(),
		logger:    logr.Discard(),
		phases:    map[string]Phase{},
		pending:   map[string]Trigger{},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Phase returns the reallocation phase of a work order
func (s *Service) Phase(workOrderID string) Phase {
	s.mux.Lock()
	defer s.mux.Unlock()
	if phase, ok := s.phases[workOrderID]; ok {
		return phase
	}
	return PhaseStable
}

// Handle evaluates trigger. When the work order is already being evaluated
// the trigger is deferred and evaluated by the in-flight call once it
// finishes; the returned result then has StatusDeferred.
func (s *Service) Handle(ctx context.Context, trigger Trigger) (*Result, error) {
	if trigger.At.IsZero() {
		trigger.At = s.registry.Now()
	}
	if !s.enter(trigger) {
		s.logger.V(1).Info("reallocation deferred", "workOrder", trigger.WorkOrderID, "cause", string(trigger.Cause))
		return &Result{Trigger: trigger, Status: StatusDeferred}, nil
	}
	result, err := s.evaluate(ctx, trigger)
	for {
		next, ok := s.leave(trigger.WorkOrderID)
		if !ok {
			break
		}
		if _, nextErr := s.evaluate(ctx, next); nextErr != nil {
			s.logger.Error(nextErr, "deferred reallocation failed", "workOrder", next.WorkOrderID)
		}
	}
	return result, err
}

// enter moves the work order to PendingReallocation, or queues trigger when
// it is not Stable.
func (s *Service) enter(trigger Trigger) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, busy := s.phases[trigger.WorkOrderID]; busy {
		var pending *Trigger
		if prev, ok := s.pending[trigger.WorkOrderID]; ok {
			pending = &prev
		}
		s.pending[trigger.WorkOrderID] = merge(pending, trigger)
		return false
	}
	s.phases[trigger.WorkOrderID] = PhasePendingReallocation
	return true
}

// leave returns a deferred trigger to evaluate next, or moves the work order
// back to Stable.
func (s *Service) leave(workOrderID string) (Trigger, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if next, ok := s.pending[workOrderID]; ok {
		delete(s.pending, workOrderID)
		s.phases[workOrderID] = PhasePendingReallocation
		return next, true
	}
	delete(s.phases, workOrderID)
	return Trigger{}, false
}

func (s *Service) setPhase(workOrderID string, phase Phase) {
	s.mux.Lock()
	s.phases[workOrderID] = phase
	s.mux.Unlock()
}

// evaluate decides trigger against a fresh snapshot. A commit conflict is
// decided once more from scratch, guards included; a second one leaves a
// running work order in place and blocks any other with resource_contention.
func (s *Service) evaluate(ctx context.Context, trigger Trigger) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "reallocator.evaluate", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"workOrder": trigger.WorkOrderID, "cause": string(trigger.Cause)})

	exclude := map[string]bool{}
	if trigger.Cause.excludes() && trigger.Resource != "" {
		exclude[trigger.Resource] = true
	}
	for attempt := 0; ; attempt++ {
		result, err = s.attempt(ctx, trigger, exclude)
		if result != nil {
			span.WithFloat("current", result.Current).WithFloat("best", result.Best)
		}
		if err == nil || !errors.Is(err, dao.ErrConflict) {
			return result, err
		}
		logging.FromContext(ctx, s.logger).V(1).Info("reallocation conflict", "workOrder", trigger.WorkOrderID, "attempt", attempt+1, "error", err.Error())
		if attempt > 0 {
			return s.contention(ctx, result, err)
		}
	}
}

func (s *Service) attempt(ctx context.Context, trigger Trigger, exclude map[string]bool) (*Result, error) {
	pol := policy.FromContext(ctx, s.policy)
	snapshot := s.registry.Snapshot()
	wo := snapshot.WorkOrder(trigger.WorkOrderID)
	if wo == nil {
		return nil, fmt.Errorf("work order %s: %w", trigger.WorkOrderID, dao.ErrNotFound)
	}
	result := &Result{Trigger: trigger}
	if !eligible(wo, trigger.Cause) {
		result.Status = StatusSkipped
		return result, nil
	}

	running := wo.Status == model.WorkOrderInProgress
	bypass := trigger.Cause == CauseResourceLost
	if running {
		op, m := snapshot.Operator(wo.OperatorID), snapshot.Machine(wo.MachineID)
		if op != nil && m != nil {
			result.Current = s.allocator.Scorer().Score(wo, op, m, snapshot)
		}
	}
	proposal, rejection := s.allocator.Propose(wo, snapshot, exclude)
	if proposal != nil {
		result.Best = proposal.Breakdown.Total
		result.Improvement = improvement(result.Current, result.Best)
	}

	switch {
	case !bypass && pol.IsPinned(wo.ID):
		return s.suppress(ctx, wo, result, GuardPinned), nil
	case !bypass && running && wo.CompletionRatio(snapshot.TakenAt) > pol.ProgressGuard:
		return s.suppress(ctx, wo, result, GuardProgress), nil
	case cooling(wo, snapshot.TakenAt, pol) && !(bypass && trigger.Own):
		return s.suppress(ctx, wo, result, GuardCooldown), nil
	}
	if rejection != nil {
		if running {
			result.Status = StatusSkipped
			return result, nil
		}
		result.Status = StatusBlocked
		result.Outcome = s.allocator.Reject(ctx, wo, rejection)
		return result, nil
	}
	if !bypass && running && result.Improvement < pol.MinImprovement {
		return s.suppress(ctx, wo, result, GuardImprovement), nil
	}
	if running && !proposal.Moves(wo) {
		// already on the best resources; nothing to commit
		result.Status = StatusSkipped
		return result, nil
	}

	s.setPhase(wo.ID, PhaseReallocating)
	proposal.Plan.Reallocation = wo.StartedAt != nil
	outcome, err := s.allocator.Commit(ctx, proposal)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			result.Status = StatusSkipped
			return result, nil
		}
		return result, err
	}
	result.Outcome = outcome
	switch outcome.Kind {
	case model.DecisionReallocated:
		result.Status = StatusReallocated
	case model.DecisionAllocated:
		result.Status = StatusAllocated
	default:
		result.Status = StatusBlocked
	}
	logging.FromContext(ctx, s.logger).Info("reallocation", "workOrder", wo.ID, "cause", string(trigger.Cause), "status", string(result.Status),
		"current", result.Current, "best", result.Best)
	return result, nil
}

// contention settles a trigger whose commit conflicted twice
func (s *Service) contention(ctx context.Context, result *Result, cause error) (*Result, error) {
	wo, err := s.registry.WorkOrder(result.Trigger.WorkOrderID)
	if err != nil {
		return result, err
	}
	if wo.Status == model.WorkOrderInProgress || wo.Status == model.WorkOrderCompleted {
		result.Status = StatusSkipped
		return result, nil
	}
	result.Status = StatusBlocked
	result.Outcome = s.allocator.Reject(ctx, wo, &validator.Violation{Reason: model.ReasonResourceContention, Detail: cause.Error()})
	return result, nil
}

// eligible reports whether the work order can be moved for cause
func eligible(wo *model.WorkOrder, cause Cause) bool {
	switch wo.Status {
	case model.WorkOrderInProgress, model.WorkOrderPending:
		return true
	case model.WorkOrderBlocked:
		return cause == CauseResourceLost || cause == CauseUnblocked || wo.BlockReason.Retryable()
	}
	return false
}

func cooling(wo *model.WorkOrder, now time.Time, pol *policy.Policy) bool {
	return wo.LastReallocatedAt != nil && now.Sub(*wo.LastReallocatedAt) < pol.StabilityBuffer
}

// improvement is the relative gain of best over current; anything beats an
// unassigned work order.
func improvement(current, best float64) float64 {
	if current <= 0 {
		return 1
	}
	return (best - current) / current
}

func (s *Service) suppress(ctx context.Context, wo *model.WorkOrder, result *Result, guard Guard) *Result {
	result.Status = StatusSuppressed
	result.Guard = guard
	s.progress.Update(progress.Delta{Suppressed: 1})
	detail := fmt.Sprintf("%s guard, cause %s, improvement %.3f", guard, result.Trigger.Cause, result.Improvement)
	decision := &model.Decision{
		WorkOrderID: wo.ID,
		Kind:        model.DecisionSuppressed,
		OperatorID:  wo.OperatorID,
		MachineID:   wo.MachineID,
		Score:       result.Current,
		Detail:      detail,
		At:          s.registry.Now(),
	}
	if err := s.registry.RecordDecision(ctx, decision); err != nil {
		s.logger.Error(err, "failed to record decision", "workOrder", wo.ID)
	}
	if s.notifier != nil {
		s.notifier.Emitf(ctx, model.NotificationSuppressed, model.SeverityInfo, []string{wo.ID},
			"reallocation of work order %s suppressed: %s", wo.ID, detail)
	}
	logging.FromContext(ctx, s.logger).V(1).Info("reallocation suppressed", "workOrder", wo.ID, "guard", string(guard), "cause", string(result.Trigger.Cause))
	return result
}
