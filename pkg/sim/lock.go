package sim

import "sync/atomic"

// Lock holds read or write access to a set of members at once. Acquisition is
// deadlock-safe without imposing any global lock ordering on callers: the
// protocol below resolves contention dynamically, so overlapping multi-member
// requests from different goroutines can never permanently block each other.
// No fairness bound is guaranteed; under heavy contention a lock may be
// retried many times before it succeeds.
//
// Acquisition is not re-entrant per goroutine: a goroutine holding a write
// lock on a member blocks forever if it requests another lock covering that
// member, and a held read lock blocks a write request from its own holder
// just as from anyone else. Hold one lock per member per goroutine; widen an
// existing lock with [Lock.Add] or [NewParallelLock] instead of acquiring a
// second one. Lifecycle hooks in particular run under the scheduler's write
// lock on the affected member (see [Simulation.Remove]) and must not lock
// that member again.
//
// The underlying state is shared between every handle produced by Clone. The
// per-member locks are released when the lock is explicitly unlocked or when
// the last surviving handle calls Release, whichever comes first.
//
// A Lock over an empty member set is a "fake" lock: it tracks mode and locked
// state but acquires nothing. Simulations running single-threaded hand these
// out so that domain locking costs nothing when there is no concurrency.
type Lock struct {
	data *lockData
}

type lockData struct {
	members []Member
	write   bool
	locked  bool
	refs    atomic.Int32
}

// ReadLock blocks until read access to all the given members is held and
// returns the holding lock. Duplicate members are collapsed. Blocks forever
// if the calling goroutine already holds a write lock on one of the members;
// see the re-entrancy note on [Lock].
func ReadLock(members ...Member) *Lock {
	l := newLock(false, members)
	l.data.lockRead(false)
	return l
}

// WriteLock blocks until exclusive access to all the given members is held
// and returns the holding lock. Duplicate members are collapsed. Blocks
// forever if the calling goroutine already holds any lock on one of the
// members; see the re-entrancy note on [Lock].
func WriteLock(members ...Member) *Lock {
	l := newLock(true, members)
	l.data.lockWrite(false)
	return l
}

// TryReadLock attempts a non-blocking read acquisition. On failure no locks
// are held and ok is false.
func TryReadLock(members ...Member) (l *Lock, ok bool) {
	l = newLock(false, members)
	if !l.data.lockRead(true) {
		return nil, false
	}
	return l, true
}

// TryWriteLock attempts a non-blocking write acquisition. On failure no locks
// are held and ok is false.
func TryWriteLock(members ...Member) (l *Lock, ok bool) {
	l = newLock(true, members)
	if !l.data.lockWrite(true) {
		return nil, false
	}
	return l, true
}

func newLock(write bool, members []Member) *Lock {
	d := &lockData{
		members: dedupeMembers(members),
		write:   write,
	}
	// Single-threaded simulations skip locking entirely: hand out a fake
	// lock with no members.
	if len(d.members) > 0 {
		if s := d.members[0].Simulation(); s != nil && s.MaxThreads() == 0 {
			d.members = nil
		}
	}
	d.refs.Store(1)
	l := &Lock{data: d}
	return l
}

func dedupeMembers(members []Member) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		dup := false
		for _, have := range out {
			if have == m {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a new handle sharing this lock's state. The per-member locks
// stay held until the last handle releases them.
func (l *Lock) Clone() *Lock {
	l.data.refs.Add(1)
	return &Lock{data: l.data}
}

// Release drops this handle. When the last handle is released and the lock is
// still held, the per-member locks are unlocked.
func (l *Lock) Release() {
	if l.data.refs.Add(-1) == 0 && l.data.locked {
		l.data.unlockAll()
	}
}

// Locked reports whether the lock currently holds its members. The state is
// shared among all handles of the same lock.
func (l *Lock) Locked() bool { return l.data.locked }

// IsWrite reports whether the lock is (or will be, when next locked) a write
// lock.
func (l *Lock) IsWrite() bool { return l.data.write }

// Members returns a copy of the locked member set.
func (l *Lock) Members() []Member {
	out := make([]Member, len(l.data.members))
	copy(out, l.data.members)
	return out
}

// Read ensures the lock is held in read mode. If a write lock is currently
// held it is downgraded in place, without any gap during which the members
// are unheld. Calling Read on an active read lock does nothing.
func (l *Lock) Read() {
	l.data.lockRead(false)
}

// Write ensures the lock is held in write mode. If a read lock is currently
// held it is released first and then reacquired for writing; callers must
// tolerate the gap. Calling Write on an active write lock does nothing.
func (l *Lock) Write() {
	l.data.lockWrite(false)
}

// TryRead is Read without blocking; it reports whether the lock is now held
// in read mode.
func (l *Lock) TryRead() bool {
	return l.data.lockRead(true)
}

// TryWrite is Write without blocking; it reports whether the lock is now held
// in write mode. A held read lock is released even when the write acquisition
// then fails.
func (l *Lock) TryWrite() bool {
	return l.data.lockWrite(true)
}

// Lock acquires the lock in its current mode. It is an error to lock an
// already-locked lock.
func (l *Lock) Lock() error {
	if l.data.locked {
		return ErrLockState
	}
	if l.data.write {
		l.data.lockWrite(false)
	} else {
		l.data.lockRead(false)
	}
	return nil
}

// TryLock is Lock without blocking.
func (l *Lock) TryLock() (bool, error) {
	if l.data.locked {
		return false, ErrLockState
	}
	if l.data.write {
		return l.data.lockWrite(true), nil
	}
	return l.data.lockRead(true), nil
}

// Unlock releases the held members for every handle of this lock. It is an
// error to unlock a lock that is not locked.
func (l *Lock) Unlock() error {
	if !l.data.locked {
		return ErrLockState
	}
	l.data.unlockAll()
	return nil
}

// Add inserts a member into the lock. If the lock is currently held, access
// to the new member is acquired as well: first with a non-blocking attempt
// on the new member alone, and if that fails by releasing the entire lock
// and blockingly reacquiring the whole (old + new) set. Callers relying on
// this lock for mutual exclusion must tolerate that gap.
func (l *Lock) Add(m Member) {
	d := l.data
	if d.contains(m) {
		return
	}
	if d.tryAdd(m) {
		return
	}
	// The non-blocking attempt failed: drop everything, grow the set, and
	// reacquire in full.
	d.unlockAll()
	d.members = append(d.members, m)
	if d.write {
		d.lockWrite(false)
	} else {
		d.lockRead(false)
	}
}

// tryAdd inserts m and, if the lock is held, attempts a non-blocking
// acquisition of m alone. It reports false (without inserting) when that
// acquisition would block.
func (d *lockData) tryAdd(m Member) bool {
	if !d.locked {
		d.members = append(d.members, m)
		return true
	}
	ls := m.lockState()
	if d.write {
		if !ls.tryLock(true) {
			return false
		}
		// Keep the raw mutex: that is what holding a write lock means.
	} else {
		if !ls.mu.TryLock() {
			return false
		}
		ls.finishRead()
	}
	d.members = append(d.members, m)
	return true
}

// Remove splits the given members out of this lock. The returned lock holds
// exactly those members, in the same mode and locked state as this one;
// releasing it releases their locks. Fails with ErrNotInLock if any named
// member is not part of this lock.
func (l *Lock) Remove(members ...Member) (*Lock, error) {
	d := l.data
	for _, m := range members {
		if !d.contains(m) {
			return nil, ErrNotInLock
		}
	}

	kept := make([]Member, 0, len(d.members))
	removed := make([]Member, 0, len(members))
	for _, have := range d.members {
		out := false
		for _, m := range members {
			if have == m {
				out = true
				break
			}
		}
		if out {
			removed = append(removed, have)
		} else {
			kept = append(kept, have)
		}
	}
	d.members = kept

	split := &Lock{data: &lockData{
		members: removed,
		write:   d.write,
		locked:  d.locked,
	}}
	split.data.refs.Store(1)
	return split, nil
}

// Transfer moves all members of from into this lock, leaving from empty (a
// fake lock). Both locks must be in the same mode and locked state;
// otherwise ErrLockMismatch is returned and nothing changes.
//
// Members the two locks share are collapsed to a single entry: a duplicate
// entry would make a later acquisition spin forever, try-locking one entry
// against the blocking hold on the other. For a held read lock the
// duplicate's extra read hold is dropped, so the combined lock releases each
// member exactly once. Held write locks cannot overlap in the first place:
// the member's mutex is exclusive.
func (l *Lock) Transfer(from *Lock) error {
	d, f := l.data, from.data
	if d.write != f.write || d.locked != f.locked {
		return ErrLockMismatch
	}
	for _, m := range f.members {
		if d.contains(m) {
			if f.locked && !f.write {
				m.lockState().releaseRead()
			}
			continue
		}
		d.members = append(d.members, m)
	}
	f.members = nil
	return nil
}

func (d *lockData) contains(m Member) bool {
	for _, have := range d.members {
		if have == m {
			return true
		}
	}
	return false
}

// acquireAll is the deadlock-avoidance core. It try-locks every member in the
// lock's fixed member order; on the first failure at position k it unwinds
// the locks acquired at positions before k (plus any lock held over from the
// previous round, unless that is the one it is about to wait on), then blocks
// on the failing member alone and restarts the pass with that member already
// held. Each restart leaves one more member guaranteed held, so the loop
// terminates. With tryOnly set it unwinds and reports false instead of
// blocking.
func (d *lockData) acquireAll(write, tryOnly bool) bool {
	members := d.members
	holding := -1
	for {
		unwind := -1
		for i, m := range members {
			if i == holding {
				continue
			}
			if !m.lockState().tryLock(write) {
				unwind = i
				break
			}
		}
		if unwind < 0 {
			return true
		}

		undidHolding := false
		for i := 0; i < unwind; i++ {
			members[i].lockState().mu.Unlock()
			if i == holding {
				undidHolding = true
			}
		}
		if holding >= 0 && !undidHolding {
			members[holding].lockState().mu.Unlock()
		}
		holding = -1

		if tryOnly {
			return false
		}

		members[unwind].lockState().lock(write)
		holding = unwind
	}
}

// lockRead establishes a read lock: acquire all raw mutexes, then convert
// each into a read hold (increment the reader count, release the mutex). An
// active write lock is downgraded in place.
func (d *lockData) lockRead(tryOnly bool) bool {
	if len(d.members) == 0 {
		d.write = false
		d.locked = true
		return true
	}
	if d.locked {
		if d.write {
			for _, m := range d.members {
				m.lockState().finishRead()
			}
			d.write = false
		}
		return true
	}
	if !d.acquireAll(false, tryOnly) {
		d.write = false
		return false
	}
	for _, m := range d.members {
		m.lockState().finishRead()
	}
	d.write = false
	d.locked = true
	return true
}

// lockWrite establishes a write lock. An active read lock is released first;
// the raw mutexes acquired by acquireAll are simply kept held.
func (d *lockData) lockWrite(tryOnly bool) bool {
	if len(d.members) == 0 {
		d.write = true
		d.locked = true
		return true
	}
	if d.locked {
		if d.write {
			return true
		}
		d.unlockAll()
	}
	got := d.acquireAll(true, tryOnly)
	d.write = true
	d.locked = got
	return got
}

func (d *lockData) unlockAll() {
	if d.write {
		for _, m := range d.members {
			m.lockState().releaseWrite()
		}
	} else {
		for _, m := range d.members {
			m.lockState().releaseRead()
		}
	}
	d.locked = false
}

// ParallelLock temporarily extends a primary lock with an auxiliary member
// set, for operations that need extra members held for part of a lock's
// lifetime. Members already covered by the primary lock are not re-added.
// Release removes (and unlocks) exactly the members this ParallelLock added.
type ParallelLock struct {
	lock *Lock
	aux  []Member
}

// NewParallelLock adds the auxiliary members to base (acquiring them in
// base's current mode if base is held) and returns the handle that undoes
// the additions.
func NewParallelLock(base *Lock, aux ...Member) *ParallelLock {
	p := &ParallelLock{lock: base}
	for _, m := range aux {
		if base.data.contains(m) {
			continue
		}
		base.Add(m)
		p.aux = append(p.aux, m)
	}
	return p
}

// Release removes the auxiliary members from the primary lock and releases
// their locks. It is a no-op if nothing was added.
func (p *ParallelLock) Release() error {
	if len(p.aux) == 0 {
		return nil
	}
	split, err := p.lock.Remove(p.aux...)
	if err != nil {
		return err
	}
	p.aux = nil
	split.Release()
	return nil
}
