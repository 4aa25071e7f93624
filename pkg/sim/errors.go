package sim

import "errors"

// Programmer-contract violations. These are reported immediately at the call
// site and never retried.
var (
	// ErrAlreadyAttached is returned when inserting a member that already
	// belongs to a simulation.
	ErrAlreadyAttached = errors.New("member already attached to a simulation")

	// ErrNotAttached is returned when an operation requires an attached
	// member (for example registering a dependency).
	ErrNotAttached = errors.New("member not attached to a simulation")

	// ErrUnknownMember is returned when an id does not belong to the
	// simulation.
	ErrUnknownMember = errors.New("member id does not exist")

	// ErrRunning is returned when an operation that requires a quiesced
	// simulation (resizing the worker pool, starting another run) is
	// attempted while a run is in progress.
	ErrRunning = errors.New("operation not permitted during a simulation run")

	// ErrClosed is returned by Run after Close has shut the simulation down.
	ErrClosed = errors.New("simulation is closed")

	// ErrLockState is returned when locking an already-locked lock or
	// unlocking an already-unlocked one.
	ErrLockState = errors.New("lock is not in the required state")

	// ErrLockMismatch is returned by Transfer when the two locks differ in
	// mode or locked state.
	ErrLockMismatch = errors.New("lock transfer requires identical mode and state")

	// ErrNotInLock is returned when removing a member that the lock does not
	// contain.
	ErrNotInLock = errors.New("member is not part of this lock")
)
