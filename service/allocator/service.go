package allocator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"time"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc/iter"
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/progress"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/notifier"
	"github.com/viant/shopfloor/service/registry"
	"github.com/viant/shopfloor/service/scorer"
	"github.com/viant/shopfloor/service/validator"
	"github.com/viant/shopfloor/tracing"
)

const scoreEpsilon = 1e-9

// Outcome is the result of allocating one work order
type Outcome struct {
	WorkOrderID string
	Kind        model.DecisionKind
	OperatorID  string
	MachineID   string
	Score       float64
	Reason      model.Reason
	// Entity is the resource or material named by Reason
	Entity    string
	Detail    string
	WorkOrder *model.WorkOrder
}

// Allocated reports whether resources were committed
func (o *Outcome) Allocated() bool {
	return o.Kind == model.DecisionAllocated || o.Kind == model.DecisionReallocated
}

// Proposal is the best plan for a work order against a snapshot
type Proposal struct {
	Plan      registry.Plan
	Breakdown scorer.Breakdown
	// Exclude holds the resources the proposal was computed without
	Exclude map[string]bool
}

// Moves reports whether the plan puts wo on other resources than it holds
func (p *Proposal) Moves(wo *model.WorkOrder) bool {
	return p.Plan.OperatorID != wo.OperatorID || p.Plan.MachineID != wo.MachineID
}

// Service runs allocation passes against the registry
type Service struct {
	registry    *registry.Registry
	validator   *validator.Validator
	scorer      *scorer.Scorer
	notifier    *notifier.Service
	progress    *progress.Progress
	logger      logr.Logger
	concurrency int
}

// New creates an allocator; registry is required
func New(opts ...Option) (*Service, error) {
	ret := &Service{logger: logr.Discard()}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.registry == nil {
		return nil, errors.New("allocator: registry is required")
	}
	if ret.validator == nil {
		ret.validator = validator.New(validator.DefaultMaxDistance)
	}
	if ret.scorer == nil {
		ret.scorer = scorer.New()
	}
	return ret, nil
}

// Scorer returns the scorer used by the service
func (s *Service) Scorer() *scorer.Scorer { return s.scorer }

// Validator returns the validator used by the service
func (s *Service) Validator() *validator.Validator { return s.validator }

// RunPass allocates candidates in priority order against snapshot. Resources
// committed earlier in the pass are excluded from later work orders. A nil
// snapshot is taken from the registry.
func (s *Service) RunPass(ctx context.Context, candidates []*model.WorkOrder, snapshot *registry.Snapshot) (outcomes []Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.pass", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	if snapshot == nil {
		snapshot = s.registry.Snapshot()
	}
	span.WithInt("candidates", len(candidates))
	used := map[string]bool{}
	for _, candidate := range Sort(candidates) {
		wo := snapshot.WorkOrder(candidate.ID)
		if wo == nil || !allocatable(wo) {
			continue
		}
		var outcome *Outcome
		outcome, snapshot, err = s.allocate(ctx, wo, snapshot, used, false)
		if err != nil {
			return outcomes, err
		}
		if outcome == nil {
			continue
		}
		s.finish(ctx, outcome)
		outcomes = append(outcomes, *outcome)
	}
	s.progress.Update(progress.Delta{Passes: 1})
	s.progress.MarkPass(s.registry.Now())
	span.WithInt("outcomes", len(outcomes))
	return outcomes, nil
}

// Pass runs a pass over the registry's current candidates
func (s *Service) Pass(ctx context.Context) ([]Outcome, error) {
	snapshot := s.registry.Snapshot()
	return s.RunPass(ctx, Candidates(snapshot), snapshot)
}

// Allocate allocates a single work order, skipping excluded resources. With
// reallocation set a running work order may move to other resources and the
// start time is kept. Only work orders that hold no resources are blocked on
// failure.
func (s *Service) Allocate(ctx context.Context, workOrderID string, exclude []string, reallocation bool) (*Outcome, error) {
	snapshot := s.registry.Snapshot()
	wo := snapshot.WorkOrder(workOrderID)
	if wo == nil {
		return nil, fmt.Errorf("work order %s: %w", workOrderID, dao.ErrNotFound)
	}
	if wo.Status == model.WorkOrderCompleted {
		return nil, fmt.Errorf("work order %s: already completed: %w", workOrderID, dao.ErrIntegrity)
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	outcome, _, err := s.allocate(ctx, wo, snapshot, excluded, reallocation)
	if err != nil || outcome == nil {
		return outcome, err
	}
	s.finish(ctx, outcome)
	return outcome, nil
}

// Commit applies a proposal computed by Propose. A conflict is returned
// unapplied; the caller proposes again against a fresh snapshot with
// proposal.Exclude and re-checks its own rules before committing.
func (s *Service) Commit(ctx context.Context, proposal *Proposal) (*Outcome, error) {
	committed, err := s.registry.Assign(ctx, &proposal.Plan)
	if err != nil {
		if errors.Is(err, dao.ErrConflict) {
			s.count(progress.Delta{Conflicts: 1})
		}
		return nil, err
	}
	outcome := s.allocated(committed, proposal)
	s.finish(ctx, outcome)
	return outcome, nil
}

// Reject blocks wo with the violation returned by Propose. Running work
// orders keep their resources.
func (s *Service) Reject(ctx context.Context, wo *model.WorkOrder, rejection *validator.Violation) *Outcome {
	outcome := blocked(wo, rejection.Reason, rejection.Entity, rejection.Detail)
	s.finish(ctx, outcome)
	return outcome
}

func allocatable(wo *model.WorkOrder) bool {
	switch wo.Status {
	case model.WorkOrderPending:
		return true
	case model.WorkOrderBlocked:
		return wo.BlockReason.Retryable()
	}
	return false
}

// allocate proposes and commits; on conflict it retries once against a fresh
// snapshot, which is returned for the rest of the pass.
func (s *Service) allocate(ctx context.Context, wo *model.WorkOrder, snapshot *registry.Snapshot, exclude map[string]bool, reallocation bool) (*Outcome, *registry.Snapshot, error) {
	status := wo.Status
	for attempt := 0; ; attempt++ {
		proposal, rejection := s.Propose(wo, snapshot, exclude)
		if rejection != nil {
			return blocked(wo, rejection.Reason, rejection.Entity, rejection.Detail), snapshot, nil
		}
		proposal.Plan.Reallocation = reallocation
		committed, err := s.registry.Assign(ctx, &proposal.Plan)
		if err == nil {
			exclude[committed.OperatorID] = true
			exclude[committed.MachineID] = true
			return s.allocated(committed, proposal), snapshot, nil
		}
		if !errors.Is(err, dao.ErrConflict) {
			return nil, snapshot, err
		}
		s.count(progress.Delta{Conflicts: 1})
		s.logger.V(1).Info("allocation conflict", "workOrder", wo.ID, "attempt", attempt+1, "error", err.Error())
		if attempt > 0 {
			return blocked(wo, model.ReasonResourceContention, "", err.Error()), snapshot, nil
		}
		snapshot = s.registry.Snapshot()
		if wo = snapshot.WorkOrder(wo.ID); wo == nil || wo.Status != status {
			// handled elsewhere in the meantime
			return nil, snapshot, nil
		}
	}
}

func (s *Service) allocated(committed *model.WorkOrder, proposal *Proposal) *Outcome {
	kind := model.DecisionAllocated
	if proposal.Plan.Reallocation {
		kind = model.DecisionReallocated
	}
	return &Outcome{
		WorkOrderID: committed.ID,
		Kind:        kind,
		OperatorID:  committed.OperatorID,
		MachineID:   committed.MachineID,
		Score:       proposal.Breakdown.Total,
		WorkOrder:   committed,
	}
}

func blocked(wo *model.WorkOrder, reason model.Reason, entity, detail string) *Outcome {
	return &Outcome{
		WorkOrderID: wo.ID,
		Kind:        model.DecisionBlocked,
		Reason:      reason,
		Entity:      entity,
		Detail:      detail,
		WorkOrder:   wo,
	}
}

// finish persists the outcome: blocks idle work orders, records the decision
// and emits the notification.
func (s *Service) finish(ctx context.Context, outcome *Outcome) {
	wo := outcome.WorkOrder
	switch outcome.Kind {
	case model.DecisionBlocked:
		if wo.Status == model.WorkOrderInProgress {
			// a running work order without a better plan keeps its resources
			return
		}
		updated, err := s.registry.Block(ctx, wo.ID, wo.Revision, outcome.Reason, outcome.Entity)
		if err != nil {
			s.logger.V(1).Info("block skipped", "workOrder", wo.ID, "error", err.Error())
		} else {
			outcome.WorkOrder = updated
		}
		s.count(progress.Delta{Blocked: 1})
		s.notify(ctx, model.NotificationBlocked, model.SeverityWarning, []string{wo.ID, outcome.Entity},
			"work order %s blocked: %s %s", wo.ID, outcome.Reason, outcome.Detail)
	case model.DecisionReallocated:
		s.count(progress.Delta{Reallocated: 1})
		s.notify(ctx, model.NotificationReallocated, model.SeverityInfo, []string{wo.ID, outcome.OperatorID, outcome.MachineID},
			"work order %s reallocated to operator %s, machine %s (score %.3f)", wo.ID, outcome.OperatorID, outcome.MachineID, outcome.Score)
	default:
		s.count(progress.Delta{Allocated: 1})
		s.notify(ctx, model.NotificationAllocated, model.SeverityInfo, []string{wo.ID, outcome.OperatorID, outcome.MachineID},
			"work order %s allocated to operator %s, machine %s (score %.3f)", wo.ID, outcome.OperatorID, outcome.MachineID, outcome.Score)
	}
	decision := &model.Decision{
		WorkOrderID: outcome.WorkOrderID,
		Kind:        outcome.Kind,
		OperatorID:  outcome.OperatorID,
		MachineID:   outcome.MachineID,
		Score:       outcome.Score,
		Reason:      outcome.Reason,
		Detail:      outcome.Detail,
		At:          s.registry.Now(),
	}
	if err := s.registry.RecordDecision(ctx, decision); err != nil {
		s.logger.Error(err, "failed to record decision", "workOrder", outcome.WorkOrderID)
	}
	s.logger.Info("allocation decision", "workOrder", outcome.WorkOrderID, "decision", string(outcome.Kind),
		"operator", outcome.OperatorID, "machine", outcome.MachineID, "score", outcome.Score, "reason", string(outcome.Reason))
}

func (s *Service) notify(ctx context.Context, kind string, severity model.Severity, entities []string, format string, args ...any) {
	if s.notifier == nil {
		return
	}
	var affected []string
	for _, id := range entities {
		if id != "" {
			affected = append(affected, id)
		}
	}
	s.notifier.Emitf(ctx, kind, severity, affected, format, args...)
}

func (s *Service) count(d progress.Delta) {
	s.progress.Update(d)
}

type pair struct {
	operator *model.Operator
	machine  *model.Machine
}

type scored struct {
	pair
	breakdown scorer.Breakdown
	err       error
}

// Propose returns the best valid plan for wo, or the violation explaining why
// there is none. Resources held by wo itself are candidates too.
func (s *Service) Propose(wo *model.WorkOrder, snapshot *registry.Snapshot, exclude map[string]bool) (*Proposal, *validator.Violation) {
	operators, rejection := s.operatorPool(wo, snapshot, exclude)
	if rejection != nil {
		return nil, rejection
	}
	machines, rejection := s.machinePool(wo, snapshot, exclude)
	if rejection != nil {
		return nil, rejection
	}
	if err := s.validator.ValidateMaterials(wo, snapshot); err != nil {
		return nil, asViolation(err, model.ReasonInsufficientMaterial)
	}

	pairs := make([]pair, 0, len(operators)*len(machines))
	for _, op := range operators {
		for _, m := range machines {
			pairs = append(pairs, pair{operator: op, machine: m})
		}
	}
	mapper := iter.Mapper[pair, scored]{MaxGoroutines: s.concurrency}
	results := mapper.Map(pairs, func(p *pair) scored {
		if err := s.validator.ValidatePair(wo, p.operator, p.machine, snapshot); err != nil {
			return scored{pair: *p, err: err}
		}
		return scored{pair: *p, breakdown: s.scorer.Breakdown(wo, p.operator, p.machine, snapshot)}
	})

	var best *scored
	var firstErr error
	for i := range results {
		candidate := &results[i]
		if candidate.err != nil {
			if firstErr == nil {
				firstErr = candidate.err
			}
			continue
		}
		if best == nil || better(candidate, best) {
			best = candidate
		}
	}
	if best == nil {
		return nil, asViolation(firstErr, model.ReasonOutOfRange)
	}
	return &Proposal{
		Plan: registry.Plan{
			WorkOrderID:       wo.ID,
			WorkOrderRevision: wo.Revision,
			OperatorID:        best.operator.ID,
			OperatorRevision:  best.operator.Revision,
			MachineID:         best.machine.ID,
			MachineRevision:   best.machine.Revision,
			Score:             best.breakdown.Total,
		},
		Breakdown: best.breakdown,
		Exclude:   maps.Clone(exclude),
	}, nil
}

// better orders by score, then lower combined cost, operator id and machine id
func better(a, b *scored) bool {
	if math.Abs(a.breakdown.Total-b.breakdown.Total) > scoreEpsilon {
		return a.breakdown.Total > b.breakdown.Total
	}
	if math.Abs(a.breakdown.CombinedCost-b.breakdown.CombinedCost) > scoreEpsilon {
		return a.breakdown.CombinedCost < b.breakdown.CombinedCost
	}
	if a.operator.ID != b.operator.ID {
		return a.operator.ID < b.operator.ID
	}
	return a.machine.ID < b.machine.ID
}

func (s *Service) operatorPool(wo *model.WorkOrder, snapshot *registry.Snapshot, exclude map[string]bool) ([]*model.Operator, *validator.Violation) {
	var ret []*model.Operator
	var firstErr error
	for _, op := range snapshot.OperatorList() {
		own := wo.OperatorID != "" && op.ID == wo.OperatorID
		if exclude[op.ID] || (op.Status != model.OperatorAvailable && !own) {
			continue
		}
		if err := s.validator.ValidateOperator(wo, op, snapshot); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ret = append(ret, op)
	}
	if len(ret) == 0 {
		return nil, asViolation(firstErr, model.ReasonNoOperator)
	}
	return ret, nil
}

func (s *Service) machinePool(wo *model.WorkOrder, snapshot *registry.Snapshot, exclude map[string]bool) ([]*model.Machine, *validator.Violation) {
	var ret []*model.Machine
	var firstErr error
	for _, m := range snapshot.MachineList() {
		own := wo.MachineID != "" && m.ID == wo.MachineID
		if exclude[m.ID] || (m.Status != model.MachineIdle && !own) {
			continue
		}
		if err := s.validator.ValidateMachine(wo, m, snapshot); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ret = append(ret, m)
	}
	if len(ret) == 0 {
		return nil, asViolation(firstErr, model.ReasonNoMachine)
	}
	return ret, nil
}

// asViolation returns err as a violation, or a generic one with reason when
// no candidate was evaluated.
func asViolation(err error, reason model.Reason) *validator.Violation {
	if v, ok := validator.AsViolation(err); ok {
		return v
	}
	detail := "no candidate"
	if err != nil {
		detail = err.Error()
	}
	return &validator.Violation{Reason: reason, Detail: detail}
}

// Run executes passes every interval until ctx is done or shutdown is closed
func (s *Service) Run(ctx context.Context, interval time.Duration, shutdown <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-shutdown:
			return nil
		case <-ticker.C:
			if _, err := s.Pass(ctx); err != nil {
				s.logger.Error(err, "allocation pass failed")
			}
		}
	}
}
