package registry

import (
	"slices"
	"sort"
	"time"

	"github.com/viant/shopfloor/model"
)

// Snapshot is an immutable view of the registry used for one decision.
// Callers must not modify the entities it holds.
type Snapshot struct {
	TakenAt    time.Time
	Revision   int64
	Layout     *model.Layout
	Operators  map[string]*model.Operator
	Machines   map[string]*model.Machine
	Materials  map[string]*model.Material
	WorkOrders map[string]*model.WorkOrder
}

func (s *Snapshot) Operator(id string) *model.Operator { return s.Operators[id] }

func (s *Snapshot) Machine(id string) *model.Machine { return s.Machines[id] }

func (s *Snapshot) Material(id string) *model.Material { return s.Materials[id] }

func (s *Snapshot) WorkOrder(id string) *model.WorkOrder { return s.WorkOrders[id] }

// OperatorList returns operators sorted by id, optionally filtered by status
func (s *Snapshot) OperatorList(statuses ...model.OperatorStatus) []*model.Operator {
	ret := make([]*model.Operator, 0, len(s.Operators))
	for _, op := range s.Operators {
		if len(statuses) > 0 && !slices.Contains(statuses, op.Status) {
			continue
		}
		ret = append(ret, op)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// MachineList returns machines sorted by id, optionally filtered by status
func (s *Snapshot) MachineList(statuses ...model.MachineStatus) []*model.Machine {
	ret := make([]*model.Machine, 0, len(s.Machines))
	for _, m := range s.Machines {
		if len(statuses) > 0 && !slices.Contains(statuses, m.Status) {
			continue
		}
		ret = append(ret, m)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// MaterialList returns materials sorted by id
func (s *Snapshot) MaterialList() []*model.Material {
	ret := make([]*model.Material, 0, len(s.Materials))
	for _, m := range s.Materials {
		ret = append(ret, m)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// WorkOrderList returns work orders sorted by id, optionally filtered by status
func (s *Snapshot) WorkOrderList(statuses ...model.WorkOrderStatus) []*model.WorkOrder {
	ret := make([]*model.WorkOrder, 0, len(s.WorkOrders))
	for _, wo := range s.WorkOrders {
		if len(statuses) > 0 && !slices.Contains(statuses, wo.Status) {
			continue
		}
		ret = append(ret, wo)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

// FreeQuantity returns the material quantity workOrder may reserve. A running
// work order's own reservation counts as free.
func (s *Snapshot) FreeQuantity(workOrder *model.WorkOrder, materialID string) float64 {
	material := s.Materials[materialID]
	if material == nil {
		return 0
	}
	free := material.Free()
	if workOrder != nil && workOrder.Status == model.WorkOrderInProgress {
		for _, req := range workOrder.RequiredMaterials {
			if req.MaterialID == materialID {
				free += req.Quantity
			}
		}
	}
	return free
}
