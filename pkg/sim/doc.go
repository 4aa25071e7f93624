// Package sim implements the scheduling and concurrency-control core of the
// simulation engine: the priority-bucketed multi-stage pipeline and its
// worker pool, the strong/weak dependency graph driving member lifecycle, and
// the deadlock-avoiding multi-member locking protocol.
//
// # Overview
//
// A [Simulation] owns a population of [Member] values, each attached with a
// unique id and sorted into one of four typed registries (agents, goods,
// markets, others) by its kind marker. Calling [Simulation.Run] executes one
// period: a fixed sequence of stages, each stage split into priority buckets
// that run as sequential barriers. Members within one bucket execute with no
// ordering guarantee (concurrently, when a worker pool is configured), but
// every member of a lower-priority bucket finishes before any member of a
// higher-priority bucket starts.
//
// # Components
//
//   - [Member] / [BaseMember] — the unit of simulation state: identity,
//     lifecycle hooks, and a private mutex/read-counter/condvar triple that
//     the locking protocol builds on.
//   - [Lock] / [ParallelLock] — read or write acquisition over one or many
//     members at once, deadlock-safe without any global lock ordering.
//   - depgraph.Graph — strong ("remove with") and weak ("notify about")
//     dependency relations consulted on removal.
//   - optimizerRegistry — which members implement which stage capability, at
//     which priority.
//   - [Simulation] — the run loop, worker pool, and deferred add/remove
//     queues.
//
// # Stage sequence
//
// Per period: InterBegin, InterOptimize, InterApply, InterAdvance, then
// IntraInitialize, then rounds of IntraReset/IntraOptimize/IntraReoptimize
// repeated while any IntraReoptimize implementor returns true, then
// IntraApply and IntraFinish. The Reoptimize stage is deliberately not
// short-circuited: every implementor runs every round.
//
// # Mutating the population mid-run
//
// [Simulation.Add] and [Simulation.Remove] called while a run is in progress
// (typically from inside a stage method) land on deferred queues with their
// own mutex, and are applied between bucket barriers, never while a stage
// cursor is published. Removal cascades through strong dependents (cycles
// terminate; each member is removed at most once) and fires the
// WeakDependencyRemoved hook on weak dependents.
package sim
