package allocator

import (
	"sort"

	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/registry"
)

// Sort orders work orders by priority descending, deadline ascending,
// estimated duration ascending and id. A zero deadline sorts last.
func Sort(workOrders []*model.WorkOrder) []*model.WorkOrder {
	ret := append([]*model.WorkOrder(nil), workOrders...)
	sort.SliceStable(ret, func(i, j int) bool {
		return Before(ret[i], ret[j])
	})
	return ret
}

// Before reports whether a is considered before b in a pass
func Before(a, b *model.WorkOrder) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.Deadline.Equal(b.Deadline) {
		switch {
		case a.Deadline.IsZero():
			return false
		case b.Deadline.IsZero():
			return true
		}
		return a.Deadline.Before(b.Deadline)
	}
	if a.EstimatedDuration != b.EstimatedDuration {
		return a.EstimatedDuration < b.EstimatedDuration
	}
	return a.ID < b.ID
}

// Candidates returns work orders eligible for a pass: pending ones and those
// blocked by resource contention.
func Candidates(snapshot *registry.Snapshot) []*model.WorkOrder {
	var ret []*model.WorkOrder
	for _, wo := range snapshot.WorkOrderList(model.WorkOrderPending, model.WorkOrderBlocked) {
		if wo.Status == model.WorkOrderPending || wo.BlockReason.Retryable() {
			ret = append(ret, wo)
		}
	}
	return Sort(ret)
}
