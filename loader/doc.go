// Package loader orchestrates image load requests.
//
// A Task carries one request through its pipeline:
//
//	memory cache hit ──────────────────────────────► bind ─► success, finish
//	        │ miss
//	        ▼
//	loading placeholder ─► resolve ─► [preload stop] ─► generate ─► cache ─► bind ─► success, finish
//
// Resolve, generate, bind and callback dispatch are the only blocking steps;
// each takes the task's context. Cancellation is cooperative: the task checks
// its token, its disposal flag and whether its target still considers it the
// current task at the top of Run and around every blocking step. A cancelled
// task invokes neither success nor error callbacks; finish always fires
// exactly once.
//
// Failures are classified with KindOf:
//
//	KindCancelled          aborted; silent except optional debug logging
//	KindResourceExhausted  allocation failure; optionally clears the memory cache
//	KindFailed             anything else; error callback, then error placeholder
//
// Service is the owning service: it tracks pending tasks, cancels superseded
// tasks bound to the same target, serves memory hits synchronously, runs
// everything else on a bounded worker pool and coalesces identical in-flight
// requests by cache key.
package loader
