// Package compose provides the real-time composition runtime. It is
// structured into small files by concern:
//
//   - compositor.go: core Compositor type, constructor, sync compose, prefetch.
//   - cache.go: LRU+TTL composition cache with single-flight builds and
//     reference-counted handle ownership.
//   - key.go: canonical composition keys (id sequence + strategy).
//   - queue.go: bounded priority queue and worker pool for async compose.
//   - swap.go: warm/cold adapter swap and the redirect table.
//   - errors.go: error types and helpers (IsBuildTimeout, IsBackpressure...).
//   - events.go: lifecycle event publishing (noop + memory publishers).
//   - metrics.go: prometheus collectors for the compose layer.
//
// External packages should treat this package as the orchestration layer and
// use public methods only (New, ComposeSync, ComposeAsync, SwapAdapter,
// Prefetch, Stats). Internal types are subject to change.
package compose
