// Package dispatch spawns the worker processes that consume the shared
// queue.
//
// One process per submitted task is the default policy: the dispatcher
// submits, forks a fresh image of the current binary running the worker
// subcommand, journals the pid, and returns a handle without blocking. The
// spawned process performs exactly one take-and-execute cycle and exits; it
// is never reused. Pool mode relaxes that policy for high task volume by
// keeping N workers looping until each drains a stop frame.
package dispatch
