package validator

import (
	"github.com/viant/shopfloor/model"
	"github.com/viant/shopfloor/service/registry"
)

// DefaultMaxDistance is the location threshold used when none is configured
const DefaultMaxDistance = 100.0

// Validator checks hard constraints of a candidate assignment. It holds no
// mutable state; every result depends only on its arguments.
type Validator struct {
	maxDistance float64
}

// New creates a validator with the given location threshold
func New(maxDistance float64) *Validator {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Validator{maxDistance: maxDistance}
}

// MaxDistance returns the location threshold
func (v *Validator) MaxDistance() float64 { return v.maxDistance }

// Validate checks constraints 1-5 in order and returns the first Violation,
// or nil when the assignment is valid at snapshot.TakenAt.
func (v *Validator) Validate(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) error {
	if err := checkSkills(wo, op); err != nil {
		return err
	}
	if err := checkCapability(wo, m); err != nil {
		return err
	}
	if err := v.ValidateMaterials(wo, snapshot); err != nil {
		return err
	}
	if err := checkShift(wo, op, snapshot); err != nil {
		return err
	}
	if err := checkMaintenance(wo, m, snapshot); err != nil {
		return err
	}
	return v.checkLocations(wo, snapshot, wo.ID, op.Location, m.Location)
}

// ValidateOperator checks the constraints that depend on the operator alone
func (v *Validator) ValidateOperator(wo *model.WorkOrder, op *model.Operator, snapshot *registry.Snapshot) error {
	if err := checkSkills(wo, op); err != nil {
		return err
	}
	if err := checkShift(wo, op, snapshot); err != nil {
		return err
	}
	return v.checkLocations(wo, snapshot, op.ID, op.Location)
}

// ValidateMachine checks the constraints that depend on the machine alone
func (v *Validator) ValidateMachine(wo *model.WorkOrder, m *model.Machine, snapshot *registry.Snapshot) error {
	if err := checkCapability(wo, m); err != nil {
		return err
	}
	if err := checkMaintenance(wo, m, snapshot); err != nil {
		return err
	}
	return v.checkLocations(wo, snapshot, m.ID, m.Location)
}

// ValidatePair checks the distance between an individually valid operator
// and machine.
func (v *Validator) ValidatePair(wo *model.WorkOrder, op *model.Operator, m *model.Machine, snapshot *registry.Snapshot) error {
	return v.checkLocations(wo, snapshot, wo.ID, op.Location, m.Location)
}

// ValidateMaterials checks that every required material has enough free
// quantity.
func (v *Validator) ValidateMaterials(wo *model.WorkOrder, snapshot *registry.Snapshot) error {
	for _, req := range wo.MaterialTotals() {
		if snapshot.Material(req.MaterialID) == nil {
			return violation(ConstraintMaterial, model.ReasonInsufficientMaterial, req.MaterialID, "unknown material")
		}
		if free := snapshot.FreeQuantity(wo, req.MaterialID); free < req.Quantity {
			return violation(ConstraintMaterial, model.ReasonInsufficientMaterial, req.MaterialID,
				"need %v, free %v", req.Quantity, free)
		}
	}
	return nil
}

func checkSkills(wo *model.WorkOrder, op *model.Operator) error {
	for _, skill := range wo.RequiredSkills {
		if op.SkillLevel(skill) < 1 {
			return violation(ConstraintSkill, model.ReasonMissingSkill, op.ID, "missing skill %s", skill)
		}
	}
	return nil
}

func checkCapability(wo *model.WorkOrder, m *model.Machine) error {
	if wo.RequiredCapability != "" && !m.HasCapability(wo.RequiredCapability) {
		return violation(ConstraintCapability, model.ReasonMissingCapability, m.ID, "missing capability %s", wo.RequiredCapability)
	}
	return nil
}

func checkShift(wo *model.WorkOrder, op *model.Operator, snapshot *registry.Snapshot) error {
	if !op.CoversShift(snapshot.TakenAt, wo.EstimatedDuration) {
		return violation(ConstraintWindow, model.ReasonOutsideWindow, op.ID,
			"shift %s-%s does not cover %v", op.ShiftStart.Format("15:04"), op.ShiftEnd.Format("15:04"), wo.EstimatedDuration)
	}
	return nil
}

func checkMaintenance(wo *model.WorkOrder, m *model.Machine, snapshot *registry.Snapshot) error {
	if !m.AvailableFor(snapshot.TakenAt, wo.EstimatedDuration) {
		return violation(ConstraintWindow, model.ReasonOutsideWindow, m.ID,
			"maintenance due %s before completion", m.NextMaintenance.Format("2006-01-02 15:04"))
	}
	return nil
}

// checkLocations requires every pair among the work order, the given resource
// locations and required material locations to be within maxDistance.
func (v *Validator) checkLocations(wo *model.WorkOrder, snapshot *registry.Snapshot, entity string, resources ...string) error {
	locations := make([]string, 0, len(resources)+len(wo.RequiredMaterials)+1)
	locations = append(locations, wo.Location)
	locations = append(locations, resources...)
	for _, req := range wo.RequiredMaterials {
		if material := snapshot.Material(req.MaterialID); material != nil {
			locations = append(locations, material.Location)
		}
	}
	if d := snapshot.Layout.MaxPairwise(locations...); d > v.maxDistance {
		return violation(ConstraintLocation, model.ReasonOutOfRange, entity, "distance %.1f exceeds %.1f", d, v.maxDistance)
	}
	return nil
}
