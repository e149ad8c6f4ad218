// Package processor hosts the workers that apply disruption and status
// events. Events are drained from a five-class priority queue; each one is
// applied to the registry, may trigger reallocation of the work orders it
// touches and is followed by an allocation pass over the pending queue.
package processor
