package sim

import (
	"sync"

	"github.com/erisproject/eris-sub001/pkg/primitives"
)

// Member is the unit of simulation state. Concrete members embed BaseMember
// (or one of the kind bases, BaseAgent/BaseGood/BaseMarket) and override the
// lifecycle hooks they care about.
//
// A member's id and owner are set exactly once per attachment by the
// simulation's insert path and reset on detachment; nothing else may touch
// them.
type Member interface {
	// ID returns the member's handle, or primitives.InvalidMemberID while
	// detached.
	ID() primitives.MemberID

	// Simulation returns the owning simulation, or nil while detached.
	Simulation() *Simulation

	// Added is called after the member has been attached.
	Added()

	// Removed is called after the member has been detached.
	Removed()

	// WeakDependencyRemoved is called when a member this one weakly depends
	// on has been removed. other is the removed (already detached) member and
	// oldID the id it had while attached.
	WeakDependencyRemoved(other Member, oldID primitives.MemberID)

	// Internal surface, implemented only by BaseMember so that every Member
	// carries the lock state and lifecycle fields the scheduler relies on.
	lockState() *lockState
	attach(sim *Simulation, id primitives.MemberID)
	detach()
}

// Kind markers. The simulation stores a member in exactly one typed registry,
// decided at insert time: Agent, Good, Market, or (for everything else)
// "other". Implement a kind by embedding the matching base struct.

// Agent marks a member as an agent.
type Agent interface {
	Member
	isAgent()
}

// Good marks a member as a good.
type Good interface {
	Member
	isGood()
}

// Market marks a member as a market.
type Market interface {
	Member
	isMarket()
}

// BaseMember supplies the default Member implementation. The zero value is
// ready to use.
type BaseMember struct {
	id  primitives.MemberID
	sim *Simulation
	ls  lockState
}

func (b *BaseMember) ID() primitives.MemberID { return b.id }

func (b *BaseMember) Simulation() *Simulation { return b.sim }

// Added is a no-op hook; override in concrete members as needed.
func (b *BaseMember) Added() {}

// Removed is a no-op hook; override in concrete members as needed.
func (b *BaseMember) Removed() {}

// WeakDependencyRemoved is a no-op hook; override in concrete members as
// needed.
func (b *BaseMember) WeakDependencyRemoved(Member, primitives.MemberID) {}

// DependsOn registers dep as a strong dependency of this member: when dep is
// removed from the simulation, this member is removed as well.
func (b *BaseMember) DependsOn(dep primitives.MemberID) error {
	if b.sim == nil {
		return ErrNotAttached
	}
	b.sim.RegisterDependency(b.id, dep)
	return nil
}

// DependsWeaklyOn registers dep as a weak dependency of this member: when dep
// is removed, this member's WeakDependencyRemoved hook fires.
func (b *BaseMember) DependsWeaklyOn(dep primitives.MemberID) error {
	if b.sim == nil {
		return ErrNotAttached
	}
	b.sim.RegisterWeakDependency(b.id, dep)
	return nil
}

func (b *BaseMember) lockState() *lockState { return &b.ls }

func (b *BaseMember) attach(sim *Simulation, id primitives.MemberID) {
	b.sim = sim
	b.id = id
}

func (b *BaseMember) detach() {
	b.sim = nil
	b.id = primitives.InvalidMemberID
}

// BaseAgent is BaseMember plus the Agent kind marker.
type BaseAgent struct{ BaseMember }

func (*BaseAgent) isAgent() {}

// BaseGood is BaseMember plus the Good kind marker.
type BaseGood struct{ BaseMember }

func (*BaseGood) isGood() {}

// BaseMarket is BaseMember plus the Market kind marker.
type BaseMarket struct{ BaseMember }

func (*BaseMarket) isMarket() {}

// lockState is the per-member locking primitive: a mutex, a count of
// outstanding read locks, and a condition variable signalled whenever the
// count returns to zero.
//
// The mutex is held for the whole duration of a write lock. A read lock holds
// the mutex only momentarily: acquisition increments readers and releases the
// mutex, release re-acquires it, decrements, and broadcasts when the count
// hits zero. Broadcast rather than Signal: several distinct multi-member
// acquisitions may be waiting on this same counter.
type lockState struct {
	mu      sync.Mutex
	readers int
	once    sync.Once
	cond    *sync.Cond
}

func (ls *lockState) condVar() *sync.Cond {
	ls.once.Do(func() { ls.cond = sync.NewCond(&ls.mu) })
	return ls.cond
}

// tryLock attempts to acquire the raw mutex without blocking. For a write
// acquisition the mutex only counts as acquired if no read locks are
// outstanding; otherwise it is released again and the attempt fails. On
// success the caller holds the raw mutex.
func (ls *lockState) tryLock(write bool) bool {
	if !ls.mu.TryLock() {
		return false
	}
	if write && ls.readers > 0 {
		ls.mu.Unlock()
		return false
	}
	return true
}

// lock blocks until the raw mutex is held and, for a write acquisition, until
// all outstanding read locks have drained.
func (ls *lockState) lock(write bool) {
	ls.mu.Lock()
	if write {
		cond := ls.condVar()
		for ls.readers > 0 {
			cond.Wait()
		}
	}
}

// finishRead converts a held raw mutex into a read lock: the reader count is
// incremented and the mutex released so other readers can do the same.
func (ls *lockState) finishRead() {
	ls.readers++
	ls.mu.Unlock()
}

// releaseRead undoes finishRead. The momentary mutex acquisition can block
// briefly behind another lock attempt but never deadlocks: nothing holds the
// mutex long-term except a write lock, which cannot exist while read locks
// are outstanding.
func (ls *lockState) releaseRead() {
	ls.mu.Lock()
	ls.readers--
	if ls.readers == 0 {
		ls.condVar().Broadcast()
	}
	ls.mu.Unlock()
}

// releaseWrite undoes a write acquisition by releasing the raw mutex.
func (ls *lockState) releaseWrite() {
	ls.mu.Unlock()
}
