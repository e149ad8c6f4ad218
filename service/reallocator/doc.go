// Package reallocator decides whether a running or disrupted work order moves
// to other resources. Each trigger takes the work order from Stable to
// PendingReallocation; stability guards (completion progress, cooldown since
// the last reallocation, minimal score improvement) may suppress the move,
// otherwise the allocator commits the new assignment. Triggers arriving while
// a work order is being evaluated are coalesced and evaluated afterwards.
package reallocator
