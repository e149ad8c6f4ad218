// Package allocator runs allocation passes: candidate work orders are taken
// in priority order, eligible operator/machine pairs are validated and scored
// in parallel against an immutable snapshot, and the best pair is committed
// to the registry. A commit conflict is retried once against a fresh
// snapshot; a second conflict blocks the work order with
// ReasonResourceContention until the next pass.
package allocator
