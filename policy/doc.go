// Package policy holds the reallocation stability rules: the stability
// buffer between reallocations of one work order, the completion guard, the
// minimum improvement and the idle-time and efficiency triggers. A Policy can
// be attached to a context to override the engine defaults for one decision.
package policy
