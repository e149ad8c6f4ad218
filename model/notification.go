package model

import "time"

// Severity represents notification importance
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification kinds
const (
	NotificationAllocated      = "allocated"
	NotificationBlocked        = "blocked"
	NotificationReallocated    = "reallocated"
	NotificationSuppressed     = "reallocation_suppressed"
	NotificationResourceLost   = "resource_lost"
	NotificationShortage       = "material_shortage"
	NotificationReorder        = "material_reorder"
	NotificationCompleted      = "completed"
	NotificationBacklogOverrun = "event_backlog_overrun"
	NotificationDeadLetter     = "event_dead_letter"
	NotificationRejected       = "record_rejected"
)

// Notification is an abstract message handed to the external delivery
// collaborator.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Severity  Severity  `json:"severity"`
	Entities  []string  `json:"affectedEntities"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
