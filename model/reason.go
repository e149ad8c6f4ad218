package model

// Reason is a machine-readable explanation attached to blocked work orders
// and decisions.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonMissingSkill         Reason = "missing_skill"         // hard constraint 1
	ReasonMissingCapability    Reason = "missing_capability"    // hard constraint 2
	ReasonInsufficientMaterial Reason = "insufficient_material" // hard constraint 3
	ReasonOutsideWindow        Reason = "outside_time_window"   // hard constraint 4
	ReasonOutOfRange           Reason = "out_of_range"          // hard constraint 5
	ReasonNoOperator           Reason = "no_eligible_operator"
	ReasonNoMachine            Reason = "no_eligible_machine"
	ReasonResourceContention   Reason = "resource_contention"
	ReasonResourceLost         Reason = "resource_lost"
	ReasonMaterialShortage     Reason = "material_shortage"
)

// Retryable reports whether a work order blocked for this reason is picked
// up by the next allocation pass without waiting for a state change.
func (r Reason) Retryable() bool {
	return r == ReasonResourceContention
}

// OperatorRelated reports whether an operator becoming available can lift
// the block.
func (r Reason) OperatorRelated() bool {
	switch r {
	case ReasonNoOperator, ReasonMissingSkill, ReasonOutsideWindow, ReasonOutOfRange, ReasonResourceLost:
		return true
	}
	return false
}

// MachineRelated reports whether a machine becoming idle can lift the block.
func (r Reason) MachineRelated() bool {
	switch r {
	case ReasonNoMachine, ReasonMissingCapability, ReasonOutsideWindow, ReasonOutOfRange, ReasonResourceLost:
		return true
	}
	return false
}

// MaterialRelated reports whether replenishing material can lift the block.
func (r Reason) MaterialRelated() bool {
	return r == ReasonInsufficientMaterial || r == ReasonMaterialShortage
}
