package ingest

import (
	"time"

	"github.com/viant/shopfloor/model"
)

// Header identifies a versioned record from an upstream system
type Header struct {
	ID        string    `json:"id" yaml:"id"`
	Version   int64     `json:"version" yaml:"version"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// WorkOrderRecord carries a work order definition from the ERP
type WorkOrderRecord struct {
	Header    `yaml:",inline"`
	WorkOrder *model.WorkOrder `json:"workOrder" yaml:"workOrder"`
}

// OperatorStatusRecord carries operator attributes and status
type OperatorStatusRecord struct {
	Header   `yaml:",inline"`
	Operator *model.Operator `json:"operator" yaml:"operator"`
}

// MachineStatusRecord carries machine attributes and status
type MachineStatusRecord struct {
	Header  `yaml:",inline"`
	Machine *model.Machine `json:"machine" yaml:"machine"`
}

// MaterialInventoryRecord carries stock levels and expected delivery
type MaterialInventoryRecord struct {
	Header   `yaml:",inline"`
	Material *model.Material `json:"material" yaml:"material"`
}

// Status is the result of ingesting a record
type Status string

const (
	// StatusApplied means the registry was updated directly
	StatusApplied Status = "applied"
	// StatusRouted means a status change was applied through an event
	StatusRouted Status = "routed"
	// StatusStale means the version was already applied
	StatusStale Status = "stale"
)
