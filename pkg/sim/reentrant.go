package sim

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// reentrantMutex is a recursion-aware mutex guarding the member registry.
// Cascading removal recurses back into the insert/remove machinery while the
// registry is already locked, and lifecycle hooks may call back into the
// simulation; both need the goroutine that already owns the lock to pass
// through.
type reentrantMutex struct {
	inner sync.Mutex
	owner uint64 // goroutine id of the holder; atomic via ownerMu
	depth int

	ownerMu sync.Mutex
}

func (m *reentrantMutex) Lock() {
	gid := goroutineID()
	if m.holder() == gid {
		m.depth++
		return
	}
	m.inner.Lock()
	m.setHolder(gid)
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	if m.holder() != goroutineID() {
		panic("sim: reentrantMutex unlocked by non-owner")
	}
	m.depth--
	if m.depth == 0 {
		m.setHolder(0)
		m.inner.Unlock()
	}
}

func (m *reentrantMutex) holder() uint64 {
	m.ownerMu.Lock()
	defer m.ownerMu.Unlock()
	return m.owner
}

func (m *reentrantMutex) setHolder(gid uint64) {
	m.ownerMu.Lock()
	m.owner = gid
	m.ownerMu.Unlock()
}

// goroutineID extracts the current goroutine's id from the runtime stack
// header ("goroutine 123 [running]:"). Goroutine ids are not exposed by the
// runtime API; parsing the stack header is the standard workaround.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
