package model

import (
	"slices"
	"time"
)

// WorkOrderStatus represents work order lifecycle state
type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderBlocked    WorkOrderStatus = "blocked"
)

// IsValid returns true for known statuses
func (s WorkOrderStatus) IsValid() bool {
	switch s {
	case WorkOrderPending, WorkOrderInProgress, WorkOrderCompleted, WorkOrderBlocked:
		return true
	}
	return false
}

// MaterialRequirement represents quantity of material required by a work order
type MaterialRequirement struct {
	MaterialID string  `json:"materialId" yaml:"materialId"`
	Quantity   float64 `json:"quantity" yaml:"quantity"`
}

// WorkOrder represents a unit of production work
type WorkOrder struct {
	ID                 string                `json:"id" yaml:"id"`
	Priority           int                   `json:"priority" yaml:"priority"` // 1-10, 10 is the highest
	RequiredSkills     []string              `json:"requiredSkills" yaml:"requiredSkills"`
	RequiredCapability string                `json:"requiredCapability" yaml:"requiredCapability"`
	RequiredMaterials  []MaterialRequirement `json:"requiredMaterials,omitempty" yaml:"requiredMaterials"`
	EstimatedDuration  time.Duration         `json:"estimatedDuration" yaml:"estimatedDuration"`
	Deadline           time.Time             `json:"deadline" yaml:"deadline"`
	Status             WorkOrderStatus       `json:"status" yaml:"status"`
	OperatorID         string                `json:"operatorId,omitempty" yaml:"-"`
	MachineID          string                `json:"machineId,omitempty" yaml:"-"`
	Location           string                `json:"location" yaml:"location"`
	StartedAt          *time.Time            `json:"startedAt,omitempty" yaml:"-"`
	CompletedAt        *time.Time            `json:"completedAt,omitempty" yaml:"-"`
	LastReallocatedAt  *time.Time            `json:"lastReallocatedAt,omitempty" yaml:"-"`
	Score              float64               `json:"score" yaml:"-"`
	BlockReason        Reason                `json:"blockReason,omitempty" yaml:"-"`
	BlockedBy          string                `json:"blockedBy,omitempty" yaml:"-"`
	Progress           float64               `json:"progress" yaml:"-"` // reported 0-100
	CreatedAt          time.Time             `json:"createdAt" yaml:"-"`
	Revision           int64                 `json:"revision" yaml:"-"`
}

// Requires returns true if the work order consumes materialID
func (w *WorkOrder) Requires(materialID string) bool {
	return slices.ContainsFunc(w.RequiredMaterials, func(r MaterialRequirement) bool {
		return r.MaterialID == materialID
	})
}

// MaterialTotals returns the required quantity per material, summing repeated
// lines, in order of first appearance.
func (w *WorkOrder) MaterialTotals() []MaterialRequirement {
	ret := make([]MaterialRequirement, 0, len(w.RequiredMaterials))
	index := make(map[string]int, len(w.RequiredMaterials))
	for _, req := range w.RequiredMaterials {
		if i, ok := index[req.MaterialID]; ok {
			ret[i].Quantity += req.Quantity
			continue
		}
		index[req.MaterialID] = len(ret)
		ret = append(ret, req)
	}
	return ret
}

// Uses returns true if the work order currently holds resource id
func (w *WorkOrder) Uses(resourceID string) bool {
	return resourceID != "" && (w.OperatorID == resourceID || w.MachineID == resourceID)
}

// CompletionRatio returns the fraction of work done at now. Reported progress
// wins over elapsed time when present.
func (w *WorkOrder) CompletionRatio(now time.Time) float64 {
	if w.Progress > 0 {
		return w.Progress / 100
	}
	if w.StartedAt == nil || w.EstimatedDuration <= 0 {
		return 0
	}
	return float64(now.Sub(*w.StartedAt)) / float64(w.EstimatedDuration)
}

// Clone returns a deep copy
func (w *WorkOrder) Clone() *WorkOrder {
	ret := *w
	ret.RequiredSkills = slices.Clone(w.RequiredSkills)
	ret.RequiredMaterials = slices.Clone(w.RequiredMaterials)
	ret.StartedAt = cloneTime(w.StartedAt)
	ret.CompletedAt = cloneTime(w.CompletedAt)
	ret.LastReallocatedAt = cloneTime(w.LastReallocatedAt)
	return &ret
}

// EntityID returns work order id
func (w *WorkOrder) EntityID() string { return w.ID }

// EntityRevision returns the registry revision of the last commit
func (w *WorkOrder) EntityRevision() int64 { return w.Revision }

// SetRevision sets the registry revision
func (w *WorkOrder) SetRevision(rev int64) { w.Revision = rev }
