package model

import (
	"fmt"
	"time"
)

// Material represents an inventory item reserved by work orders
type Material struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name,omitempty" yaml:"name"`
	QuantityAvailable float64    `json:"quantityAvailable" yaml:"quantityAvailable"`
	QuantityReserved  float64    `json:"quantityReserved" yaml:"-"`
	Location          string     `json:"location" yaml:"location"`
	Unit              string     `json:"unit,omitempty" yaml:"unit"`
	ReorderPoint      float64    `json:"reorderPoint" yaml:"reorderPoint"`
	ExpectedDelivery  *time.Time `json:"expectedDelivery,omitempty" yaml:"expectedDelivery"`
	CostPerUnit       float64    `json:"costPerUnit" yaml:"costPerUnit"`
	Revision          int64      `json:"revision" yaml:"-"`
}

// Free returns the unreserved quantity
func (m *Material) Free() float64 {
	return m.QuantityAvailable - m.QuantityReserved
}

// BelowReorderPoint reports whether free stock dropped under the reorder point
func (m *Material) BelowReorderPoint() bool {
	return m.ReorderPoint > 0 && m.Free() < m.ReorderPoint
}

// Reserve moves quantity from free to reserved
func (m *Material) Reserve(quantity float64) error {
	if quantity < 0 {
		return fmt.Errorf("material %s: negative reservation %v", m.ID, quantity)
	}
	if m.Free() < quantity {
		return fmt.Errorf("material %s: insufficient quantity, need %v, have %v", m.ID, quantity, m.Free())
	}
	m.QuantityReserved += quantity
	return nil
}

// Release returns reserved quantity to free stock
func (m *Material) Release(quantity float64) error {
	if quantity < 0 || quantity > m.QuantityReserved {
		return fmt.Errorf("material %s: invalid release %v of %v reserved", m.ID, quantity, m.QuantityReserved)
	}
	m.QuantityReserved -= quantity
	return nil
}

// Consume removes reserved quantity from stock once the work is done
func (m *Material) Consume(quantity float64) error {
	if err := m.Release(quantity); err != nil {
		return err
	}
	m.QuantityAvailable -= quantity
	return nil
}

// Clone returns a deep copy
func (m *Material) Clone() *Material {
	ret := *m
	ret.ExpectedDelivery = cloneTime(m.ExpectedDelivery)
	return &ret
}

// EntityID returns material id
func (m *Material) EntityID() string { return m.ID }

// EntityRevision returns the registry revision of the last commit
func (m *Material) EntityRevision() int64 { return m.Revision }

// SetRevision sets the registry revision
func (m *Material) SetRevision(rev int64) { m.Revision = rev }
