package model

import (
	"slices"
	"time"
)

// MachineStatus represents machine state
type MachineStatus string

const (
	MachineIdle        MachineStatus = "idle"
	MachineRunning     MachineStatus = "running"
	MachineMaintenance MachineStatus = "maintenance"
	MachineBreakdown   MachineStatus = "breakdown"
)

// IsValid returns true for known statuses
func (s MachineStatus) IsValid() bool {
	switch s {
	case MachineIdle, MachineRunning, MachineMaintenance, MachineBreakdown:
		return true
	}
	return false
}

// Machine represents a piece of production equipment
type Machine struct {
	ID              string        `json:"id" yaml:"id"`
	Name            string        `json:"name,omitempty" yaml:"name"`
	Capabilities    []string      `json:"capabilities" yaml:"capabilities"`
	Status          MachineStatus `json:"status" yaml:"status"`
	WorkOrderID     string        `json:"workOrderId,omitempty" yaml:"-"`
	Location        string        `json:"location" yaml:"location"`
	CycleTime       time.Duration `json:"cycleTime" yaml:"cycleTime"`
	LastMaintenance *time.Time    `json:"lastMaintenance,omitempty" yaml:"lastMaintenance"`
	NextMaintenance *time.Time    `json:"nextMaintenance,omitempty" yaml:"nextMaintenance"`
	HourlyCost      float64       `json:"hourlyCost" yaml:"hourlyCost"`
	StatusSince     time.Time     `json:"statusSince" yaml:"-"`
	Revision        int64         `json:"revision" yaml:"-"`
}

// HasCapability returns true if machine supports capability
func (m *Machine) HasCapability(capability string) bool {
	return slices.Contains(m.Capabilities, capability)
}

// AvailableFor reports whether no scheduled maintenance falls within
// (from, from+d). Maintenance due at or before from has already begun or
// passed.
func (m *Machine) AvailableFor(from time.Time, d time.Duration) bool {
	if m.NextMaintenance == nil || !m.NextMaintenance.After(from) {
		return true
	}
	return !m.NextMaintenance.Before(from.Add(d))
}

// Clone returns a deep copy
func (m *Machine) Clone() *Machine {
	ret := *m
	ret.Capabilities = slices.Clone(m.Capabilities)
	ret.LastMaintenance = cloneTime(m.LastMaintenance)
	ret.NextMaintenance = cloneTime(m.NextMaintenance)
	return &ret
}

// EntityID returns machine id
func (m *Machine) EntityID() string { return m.ID }

// EntityRevision returns the registry revision of the last commit
func (m *Machine) EntityRevision() int64 { return m.Revision }

// SetRevision sets the registry revision
func (m *Machine) SetRevision(rev int64) { m.Revision = rev }

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}
