package model

import (
	"maps"
	"time"
)

// OperatorStatus represents operator availability
type OperatorStatus string

const (
	OperatorAvailable   OperatorStatus = "available"
	OperatorAssigned    OperatorStatus = "assigned"
	OperatorBreak       OperatorStatus = "break"
	OperatorUnavailable OperatorStatus = "unavailable"
)

// IsValid returns true for known statuses
func (s OperatorStatus) IsValid() bool {
	switch s {
	case OperatorAvailable, OperatorAssigned, OperatorBreak, OperatorUnavailable:
		return true
	}
	return false
}

// Operator represents a shop floor operator with skills and a shift
type Operator struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name,omitempty" yaml:"name"`
	Skills      map[string]int `json:"skills" yaml:"skills"` // skill -> level 1-5
	Status      OperatorStatus `json:"status" yaml:"status"`
	WorkOrderID string         `json:"workOrderId,omitempty" yaml:"-"`
	ShiftStart  time.Time      `json:"shiftStart,omitempty" yaml:"shiftStart"`
	ShiftEnd    time.Time      `json:"shiftEnd,omitempty" yaml:"shiftEnd"`
	Location    string         `json:"location" yaml:"location"`
	HourlyCost  float64        `json:"hourlyCost" yaml:"hourlyCost"`
	StatusSince time.Time      `json:"statusSince" yaml:"-"`
	Revision    int64          `json:"revision" yaml:"-"`
}

// SkillLevel returns the operator level for skill or 0
func (o *Operator) SkillLevel(skill string) int {
	return o.Skills[skill]
}

// CoversShift reports whether the shift window contains [from, from+d].
// A zero shift boundary is treated as open.
func (o *Operator) CoversShift(from time.Time, d time.Duration) bool {
	if !o.ShiftStart.IsZero() && from.Before(o.ShiftStart) {
		return false
	}
	if !o.ShiftEnd.IsZero() && from.Add(d).After(o.ShiftEnd) {
		return false
	}
	return true
}

// Clone returns a deep copy
func (o *Operator) Clone() *Operator {
	ret := *o
	ret.Skills = maps.Clone(o.Skills)
	return &ret
}

// EntityID returns operator id
func (o *Operator) EntityID() string { return o.ID }

// EntityRevision returns the registry revision of the last commit
func (o *Operator) EntityRevision() int64 { return o.Revision }

// SetRevision sets the registry revision
func (o *Operator) SetRevision(rev int64) { o.Revision = rev }
