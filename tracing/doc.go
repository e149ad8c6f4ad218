// Package tracing wraps OpenTelemetry so engine services can open spans
// around allocation passes, event dispatch and reallocation decisions
// without importing the upstream packages directly.
package tracing
