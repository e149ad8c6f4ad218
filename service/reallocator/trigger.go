package reallocator

import (
	"time"

	"github.com/viant/shopfloor/service/allocator"
)

// Cause identifies why a work order is reconsidered
type Cause string

const (
	CauseResourceLost   Cause = "resource_lost"
	CauseHigherPriority Cause = "higher_priority"
	CauseIdleResource   Cause = "idle_resource"
	CauseUnblocked      Cause = "unblocked"
	CauseLowEfficiency  Cause = "low_efficiency"
)

// excludes reports whether the trigger resource must not be proposed again
func (c Cause) excludes() bool {
	switch c {
	case CauseResourceLost, CauseHigherPriority, CauseUnblocked, CauseLowEfficiency:
		return true
	}
	return false
}

// Phase is the reallocation state of a work order
type Phase string

const (
	PhaseStable              Phase = "stable"
	PhasePendingReallocation Phase = "pending_reallocation"
	PhaseReallocating        Phase = "reallocating"
)

// Guard names the stability rule that suppressed a reallocation
type Guard string

const (
	GuardNone        Guard = ""
	GuardProgress    Guard = "progress"
	GuardCooldown    Guard = "cooldown"
	GuardImprovement Guard = "improvement"
	GuardPinned      Guard = "pinned"
)

// Status is the result of evaluating a trigger
type Status string

const (
	// StatusAllocated is a first assignment of a work order that never ran
	StatusAllocated   Status = "allocated"
	StatusReallocated Status = "reallocated"
	StatusSuppressed  Status = "suppressed"
	StatusBlocked     Status = "blocked"
	// StatusDeferred means another trigger for the work order was in flight
	StatusDeferred Status = "deferred"
	// StatusSkipped means the work order no longer needs a decision
	StatusSkipped Status = "skipped"
)

// Trigger asks for a work order to be reconsidered
type Trigger struct {
	WorkOrderID string
	Cause       Cause
	// Resource is the lost, contested or idle resource, if any
	Resource string
	// Own marks a lost resource the work order itself was using
	Own bool
	At  time.Time
}

// Result describes the decision taken for a trigger
type Result struct {
	Trigger     Trigger
	Status      Status
	Guard       Guard
	Current     float64
	Best        float64
	Improvement float64
	Outcome     *allocator.Outcome
}

// merge keeps the strongest cause of two coalesced triggers
func merge(pending *Trigger, next Trigger) Trigger {
	if pending == nil {
		return next
	}
	if pending.Cause == CauseResourceLost && next.Cause != CauseResourceLost {
		return *pending
	}
	return next
}
