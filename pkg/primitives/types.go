package primitives

import "strconv"

// MemberID uniquely identifies a member while it is attached to a simulation.
// IDs are assigned sequentially by the simulation's insert path and are never
// reused for the lifetime of the simulation.
//
// The zero value is a sentinel meaning "not attached": a detached member
// always reports id 0, and id 0 never appears in any registry.
type MemberID uint64

// InvalidMemberID represents a detached or unset member identifier.
const InvalidMemberID MemberID = 0

// Valid reports whether the id refers to an attached member.
func (id MemberID) Valid() bool {
	return id != InvalidMemberID
}

func (id MemberID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Time is the simulation period counter. It starts at 0 and is incremented at
// the beginning of every run, so code running inside a period observes the
// period being executed.
type Time uint64
