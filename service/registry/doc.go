// Package registry holds the authoritative shop-floor state: operators,
// machines, materials and work orders stored as versioned entities.
//
// All mutations go through the registry and are checked against the entity
// revision seen by the caller, so decisions computed on a stale Snapshot
// fail with dao.ErrConflict instead of double-booking a resource. The
// operator/machine to work order relationship is kept in two id maps that
// are always updated together.
package registry
