package registry

import (
	"context"
	"time"

	"github.com/viant/shopfloor/model"
)

// Shortage sets a material's available quantity and expected delivery and
// blocks every open work order requiring it. Running work orders release
// their operator, machine and reservations. Blocked work order ids are
// returned in order together with the freed resources.
func (r *Registry) Shortage(_ context.Context, materialID string, available float64, expectedDelivery *time.Time) ([]*Released, error) {
	if available < 0 {
		return nil, integrity("material %s: negative quantity %v", materialID, available)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.materials.Revision(materialID) < 0 {
		return nil, notFound(KindMaterial, materialID)
	}
	var affected []string
	r.workOrders.Each(func(item *model.WorkOrder) bool {
		if item.Status != model.WorkOrderCompleted && item.Requires(materialID) {
			affected = append(affected, item.ID)
		}
		return true
	})
	now := r.clock()
	var ret []*Released
	for _, id := range affected {
		wo, _ := r.workOrders.Get(id)
		released, err := r.unlink(wo, false, now)
		if err != nil {
			return ret, err
		}
		r.transition(wo, model.WorkOrderBlocked, model.ReasonMaterialShortage, materialID, now)
		released.WorkOrder = r.putWorkOrder(wo)
		ret = append(ret, released)
	}
	material, _ := r.materials.Get(materialID)
	material.QuantityAvailable = available
	material.ExpectedDelivery = cloneTime(expectedDelivery)
	r.materials.Put(material, r.next())
	return ret, nil
}

// Replenish adds delivered quantity to a material and clears its expected
// delivery.
func (r *Registry) Replenish(_ context.Context, materialID string, quantity float64) (*model.Material, error) {
	if quantity <= 0 {
		return nil, integrity("material %s: delivered quantity must be positive", materialID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	material, ok := r.materials.Get(materialID)
	if !ok {
		return nil, notFound(KindMaterial, materialID)
	}
	material.QuantityAvailable += quantity
	material.ExpectedDelivery = nil
	r.materials.Put(material, r.next())
	return material.Clone(), nil
}
