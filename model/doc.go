// Package model contains the in-memory representation of the shop floor:
// operators, machines, materials and work orders, together with the
// disruption events, allocation decisions and notifications exchanged by the
// engine services.
//
// Entities never reference each other through pointers. The operator or
// machine assigned to a work order is tracked by the registry in two id maps
// and copied into the WorkOrderID / OperatorID / MachineID fields only when a
// snapshot is taken, so every value in this package can be copied freely.
package model
