// Package shopfloor provides a real-time resource allocation engine for a
// production floor.
//
// The engine assigns operators, machines and materials to work orders under
// hard constraints, ranks feasible pairs with a weighted score, and reacts to
// disruption events by selectively reallocating. It is composed of:
//
//   - registry    – versioned resource state and the single commit path
//   - validator   – hard constraint checks
//   - scorer      – weighted soft constraint score
//   - allocator   – priority ordered allocation passes
//   - processor   – five class priority event queue and worker pool
//   - reallocator – stability guarded reallocation
//   - notifier    – notification queue and delivery
//   - ingest      – idempotent versioned upstream records
//   - readmodel   – allocation snapshot export
//
// End-users typically interact with the engine via the Service façade
// exposed by the root package:
//
//	srv, _ := shopfloor.New(shopfloor.WithConfig(cfg))
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	_, _ = rt.IngestOperator(ctx, record)
//	_ = rt.Publish(ctx, &model.BreakdownEvent{MachineID: "M1"})
//	snapshot, _ := rt.Snapshot(ctx)
//	_ = rt.Shutdown(ctx)
//
// For more details see the individual sub-packages.
package shopfloor
