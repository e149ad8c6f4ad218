// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// It lives under `internal` because callers should not rely on its exact
// format; identifiers are opaque strings, optionally carrying a short
// kind prefix (for example "ntf-" for notifications).
package idgen
