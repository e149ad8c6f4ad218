package model

import "time"

// EventKind identifies a disruption or status event
type EventKind string

const (
	EventBreakdown         EventKind = "breakdown"
	EventSafety            EventKind = "safety"
	EventMaintenance       EventKind = "maintenance"
	EventMachineRestored   EventKind = "machine_restored"
	EventAvailability      EventKind = "availability"
	EventCompletion        EventKind = "completion"
	EventMaterialShortage  EventKind = "material_shortage"
	EventMaterialDelivered EventKind = "material_delivered"
	EventPriorityChange    EventKind = "priority_change"
	EventProgress          EventKind = "progress"
	EventReview            EventKind = "review"
	EventRecordApplied     EventKind = "record_applied"
)

// Payload is implemented by every typed event body
type Payload interface {
	Kind() EventKind
	// Entities returns affected entity ids; the first one keys ordering
	Entities() []string
}

// Event is the envelope consumed by the event processor
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// Kind returns payload kind
func (e *Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Entities returns affected entity ids
func (e *Event) Entities() []string {
	if e.Payload == nil {
		return nil
	}
	return e.Payload.Entities()
}

// Key returns the ordering key: events sharing a key are applied in arrival
// order.
func (e *Event) Key() string {
	if ids := e.Entities(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// BreakdownEvent reports an unplanned machine stop
type BreakdownEvent struct {
	MachineID string    `json:"machineId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BreakdownEvent) Kind() EventKind     { return EventBreakdown }
func (e *BreakdownEvent) Entities() []string { return []string{e.MachineID} }

// SafetyEvent takes a machine out of service for a safety incident
type SafetyEvent struct {
	MachineID string    `json:"machineId"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *SafetyEvent) Kind() EventKind     { return EventSafety }
func (e *SafetyEvent) Entities() []string { return []string{e.MachineID} }

// MaintenanceEvent puts a machine into planned maintenance
type MaintenanceEvent struct {
	MachineID string        `json:"machineId"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

func (e *MaintenanceEvent) Kind() EventKind     { return EventMaintenance }
func (e *MaintenanceEvent) Entities() []string { return []string{e.MachineID} }

// MachineRestoredEvent returns a machine to service
type MachineRestoredEvent struct {
	MachineID string    `json:"machineId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *MachineRestoredEvent) Kind() EventKind     { return EventMachineRestored }
func (e *MachineRestoredEvent) Entities() []string { return []string{e.MachineID} }

// AvailabilityEvent reports an operator status change (shift, break, absence)
type AvailabilityEvent struct {
	OperatorID string         `json:"operatorId"`
	NewStatus  OperatorStatus `json:"newStatus"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (e *AvailabilityEvent) Kind() EventKind     { return EventAvailability }
func (e *AvailabilityEvent) Entities() []string { return []string{e.OperatorID} }

// CompletionEvent reports a work order finished by its operator
type CompletionEvent struct {
	WorkOrderID string    `json:"workOrderId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e *CompletionEvent) Kind() EventKind     { return EventCompletion }
func (e *CompletionEvent) Entities() []string { return []string{e.WorkOrderID} }

// MaterialShortageEvent reports a drop in material stock or a delayed delivery
type MaterialShortageEvent struct {
	MaterialID       string     `json:"materialId"`
	NewAvailableQty  float64    `json:"newAvailableQty"`
	ExpectedDelivery *time.Time `json:"expectedDelivery,omitempty"`
}

func (e *MaterialShortageEvent) Kind() EventKind     { return EventMaterialShortage }
func (e *MaterialShortageEvent) Entities() []string { return []string{e.MaterialID} }

// MaterialDeliveredEvent reports received stock
type MaterialDeliveredEvent struct {
	MaterialID string    `json:"materialId"`
	Quantity   float64   `json:"quantity"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *MaterialDeliveredEvent) Kind() EventKind     { return EventMaterialDelivered }
func (e *MaterialDeliveredEvent) Entities() []string { return []string{e.MaterialID} }

// PriorityChangeEvent re-ranks a work order
type PriorityChangeEvent struct {
	WorkOrderID string `json:"workOrderId"`
	NewPriority int    `json:"newPriority"`
}

func (e *PriorityChangeEvent) Kind() EventKind     { return EventPriorityChange }
func (e *PriorityChangeEvent) Entities() []string { return []string{e.WorkOrderID} }

// ProgressEvent reports operator progress on a running work order
type ProgressEvent struct {
	WorkOrderID string  `json:"workOrderId"`
	Progress    float64 `json:"progress"` // 0-100
}

func (e *ProgressEvent) Kind() EventKind     { return EventProgress }
func (e *ProgressEvent) Entities() []string { return []string{e.WorkOrderID} }

// ReviewEvent asks the engine to re-evaluate running assignments
type ReviewEvent struct{}

func (e *ReviewEvent) Kind() EventKind     { return EventReview }
func (e *ReviewEvent) Entities() []string { return nil }

// RecordAppliedEvent signals that ingestion changed registry state
type RecordAppliedEvent struct {
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
}

func (e *RecordAppliedEvent) Kind() EventKind     { return EventRecordApplied }
func (e *RecordAppliedEvent) Entities() []string { return []string{e.EntityID} }
