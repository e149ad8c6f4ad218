// Package progress keeps aggregated counters of the allocation engine:
// passes run, work orders allocated, blocked and reallocated, suppressed
// reallocations, commit conflicts and processed events.
package progress
