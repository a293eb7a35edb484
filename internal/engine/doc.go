// Package engine implements the job lifecycle: it accepts submissions into an
// in-memory job store, dispatches them in FIFO order under a fixed concurrency
// ceiling, runs the external transformation engine for each, and purges
// finished jobs together with their artifacts after a retention delay.
//
// All bookkeeping (store, backlog, in-flight count) is guarded by one mutex.
// The engine subprocess is the only work done outside it; its completion
// re-enters the locked path and pulls the next job from the backlog.
package engine
