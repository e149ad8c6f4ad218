package model

import "time"

// DecisionKind classifies allocation outcomes
type DecisionKind string

const (
	DecisionAllocated   DecisionKind = "allocated"
	DecisionBlocked     DecisionKind = "blocked"
	DecisionReallocated DecisionKind = "reallocated"
	DecisionSuppressed  DecisionKind = "suppressed"
	DecisionReleased    DecisionKind = "released"
	DecisionCompleted   DecisionKind = "completed"
	DecisionUnblocked   DecisionKind = "unblocked"
)

// Decision records the latest allocation decision taken for a work order
type Decision struct {
	WorkOrderID string       `json:"workOrderId"`
	Kind        DecisionKind `json:"kind"`
	OperatorID  string       `json:"operatorId,omitempty"`
	MachineID   string       `json:"machineId,omitempty"`
	Score       float64      `json:"score,omitempty"`
	Reason      Reason       `json:"reason,omitempty"`
	Detail      string       `json:"detail,omitempty"`
	At          time.Time    `json:"at"`
}
