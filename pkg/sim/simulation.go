package sim

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/erisproject/eris-sub001/pkg/primitives"
	"github.com/erisproject/eris-sub001/pkg/sim/depgraph"
)

// Simulation drives a population of members through the fixed multi-stage
// update cycle once per call to Run, optionally across a pool of worker
// goroutines.
//
// Members are stored in one of four typed registries (agents, goods, markets,
// others) decided by their kind marker at insert time. Registry mutation is
// only ever performed by the goroutine driving Run, and only between stage
// barriers: adds and removes requested while a stage is mid-flight land on
// deferred queues that drain when the current bucket quiesces.
type Simulation struct {
	logger zerolog.Logger
	runID  string

	// registryMu guards the member maps, the optimizer registry, and the id
	// counter. Re-entrant: cascading removal and lifecycle hooks re-enter
	// registry operations while it is already held.
	registryMu reentrantMutex
	nextID     primitives.MemberID
	agents     map[primitives.MemberID]Agent
	goods      map[primitives.MemberID]Good
	markets    map[primitives.MemberID]Market
	others     map[primitives.MemberID]Member
	optimizers *optimizerRegistry

	deps *depgraph.Graph

	// runMu is the run-level guard: Run holds it exclusively, so nothing
	// else observes a half-executed stage sequence. Synchronous add/remove
	// and pool resizing hold it shared.
	runMu sync.RWMutex

	maxThreads int

	// Worker coordination; see run.go and worker.go.
	stageMu       sync.Mutex
	stageCond     *sync.Cond
	stage         RunStage
	stagePriority float64
	// stageSeq increments on every published bucket so workers can tell
	// consecutive buckets apart even when stage and priority repeat.
	stageSeq   uint64
	killTarget int

	doneMu   sync.Mutex
	doneCond *sync.Cond
	running  int

	cursorMu  sync.Mutex
	cursor    []Member
	cursorPos int

	deferredMu     sync.Mutex
	deferredInsert []Member
	deferredRemove []primitives.MemberID

	redoIntra     atomic.Bool
	intraoptCount int
	t             primitives.Time

	workers   []*worker
	workerSeq int
	closed    bool
}

// Option configures a Simulation at construction.
type Option func(*Simulation)

// WithLogger attaches a structured logger; by default the simulation logs
// nothing.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Simulation) { s.logger = logger }
}

// New creates an empty simulation with no worker goroutines (single-threaded
// execution until SetMaxThreads is called).
func New(opts ...Option) *Simulation {
	s := &Simulation{
		logger:     zerolog.Nop(),
		runID:      uuid.NewString(),
		nextID:     1,
		agents:     make(map[primitives.MemberID]Agent),
		goods:      make(map[primitives.MemberID]Good),
		markets:    make(map[primitives.MemberID]Market),
		others:     make(map[primitives.MemberID]Member),
		optimizers: newOptimizerRegistry(),
		deps:       depgraph.New(),
		stage:      StageIdle,
	}
	s.stageCond = sync.NewCond(&s.stageMu)
	s.doneCond = sync.NewCond(&s.doneMu)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("sim", s.runID).Logger()
	return s
}

// RunID returns the unique identifier of this simulation instance.
func (s *Simulation) RunID() string { return s.runID }

// T returns the period counter: 0 before the first Run, then the number of
// completed (or in-progress) periods.
func (s *Simulation) T() primitives.Time { return s.t }

// IntraoptCount returns the number of Reset/Optimize/Reoptimize rounds the
// most recent Run performed, or -1 before the first Run.
func (s *Simulation) IntraoptCount() int {
	if s.t == 0 {
		return -1
	}
	return s.intraoptCount
}

// Add inserts a member. Outside a run the insert happens synchronously and
// the assigned id is returned. During a run the insert is deferred until the
// current stage bucket drains; the returned id is then
// primitives.InvalidMemberID and the real id can be read from the member
// once the run returns.
//
// Inserting a member that is already attached is a contract violation and
// returns ErrAlreadyAttached (possibly deferred to the encompassing Run).
func (s *Simulation) Add(m Member) (primitives.MemberID, error) {
	if s.runMu.TryRLock() {
		defer s.runMu.RUnlock()
		return s.insert(m)
	}
	s.deferredMu.Lock()
	s.deferredInsert = append(s.deferredInsert, m)
	s.deferredMu.Unlock()
	return primitives.InvalidMemberID, nil
}

// Remove detaches the member with the given id, cascades removal through its
// strong dependents, and notifies its weak dependents. During a run the
// removal is deferred until the current stage bucket drains; an unknown id is
// then reported by the encompassing Run instead.
func (s *Simulation) Remove(id primitives.MemberID) error {
	if s.runMu.TryRLock() {
		defer s.runMu.RUnlock()
		return s.removeNow(id)
	}
	s.deferredMu.Lock()
	s.deferredRemove = append(s.deferredRemove, id)
	s.deferredMu.Unlock()
	return nil
}

// insert is the only place members are ever attached. Assigns the id, stores
// the member in its typed registry, attaches it, fires Added, and registers
// its stage capabilities.
func (s *Simulation) insert(m Member) (primitives.MemberID, error) {
	if m.Simulation() != nil {
		return primitives.InvalidMemberID, ErrAlreadyAttached
	}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	id := s.nextID
	s.nextID++

	switch km := m.(type) {
	case Agent:
		s.agents[id] = km
	case Good:
		s.goods[id] = km
	case Market:
		s.markets[id] = km
	default:
		s.others[id] = m
	}

	m.attach(s, id)
	m.Added()
	s.optimizers.register(m)

	s.logger.Debug().Uint64("id", uint64(id)).Msg("member attached")
	return id, nil
}

// removeNow removes the member synchronously. The registry mutex is held
// across the whole removal, including the cascade; re-entry from nested
// removals is what the re-entrant mutex is for.
func (s *Simulation) removeNow(id primitives.MemberID) error {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	m := s.memberByID(id)
	if m == nil {
		return fmt.Errorf("remove %d: %w", id, ErrUnknownMember)
	}

	// A write lock guarantees no stage callback still holds the member.
	wl := WriteLock(m)
	defer wl.Release()

	s.optimizers.unregister(m)
	delete(s.agents, id)
	delete(s.goods, id)
	delete(s.markets, id)
	delete(s.others, id)
	m.detach()
	m.Removed()
	s.logger.Debug().Uint64("id", uint64(id)).Msg("member detached")

	s.cascadeStrong(id)
	s.notifyWeak(m, id)
	return nil
}

// cascadeStrong removes every member that strongly depends on the removed id.
// The dependents are snapshotted and the graph entry erased before any of
// them is removed, so dependency cycles terminate: each entry is taken at
// most once. Dependents already gone (via a nested cascade) are skipped.
func (s *Simulation) cascadeStrong(id primitives.MemberID) {
	for _, dep := range s.deps.TakeStrong(id) {
		if s.memberByID(dep) == nil {
			continue
		}
		// Ignoring the error: the presence check above makes ErrUnknownMember
		// impossible here.
		_ = s.removeNow(dep)
	}
}

// notifyWeak fires the WeakDependencyRemoved hook on every still-attached
// weak dependent of the removed member. Dependents no longer in any registry
// are silently skipped.
func (s *Simulation) notifyWeak(removed Member, oldID primitives.MemberID) {
	for _, dep := range s.deps.TakeWeak(oldID) {
		m := s.memberByID(dep)
		if m == nil {
			continue
		}
		m.WeakDependencyRemoved(removed, oldID)
	}
}

// memberByID looks the id up across all typed registries. Caller holds
// registryMu.
func (s *Simulation) memberByID(id primitives.MemberID) Member {
	if m, ok := s.agents[id]; ok {
		return m
	}
	if m, ok := s.goods[id]; ok {
		return m
	}
	if m, ok := s.markets[id]; ok {
		return m
	}
	if m, ok := s.others[id]; ok {
		return m
	}
	return nil
}

// RegisterDependency records that member must be removed whenever dependsOn
// is removed. Removal order is dependency first, then its dependents.
func (s *Simulation) RegisterDependency(member, dependsOn primitives.MemberID) {
	s.deps.AddStrong(member, dependsOn)
}

// RegisterWeakDependency records that member must be notified (via its
// WeakDependencyRemoved hook) whenever dependsOn is removed.
func (s *Simulation) RegisterWeakDependency(member, dependsOn primitives.MemberID) {
	s.deps.AddWeak(member, dependsOn)
}

// Agent returns the attached agent with the given id.
func (s *Simulation) Agent(id primitives.MemberID) (Agent, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %d: %w", id, ErrUnknownMember)
	}
	return a, nil
}

// Good returns the attached good with the given id.
func (s *Simulation) Good(id primitives.MemberID) (Good, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	g, ok := s.goods[id]
	if !ok {
		return nil, fmt.Errorf("good %d: %w", id, ErrUnknownMember)
	}
	return g, nil
}

// Market returns the attached market with the given id.
func (s *Simulation) Market(id primitives.MemberID) (Market, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d: %w", id, ErrUnknownMember)
	}
	return m, nil
}

// Other returns the attached non-agent/good/market member with the given id.
func (s *Simulation) Other(id primitives.MemberID) (Member, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	m, ok := s.others[id]
	if !ok {
		return nil, fmt.Errorf("other %d: %w", id, ErrUnknownMember)
	}
	return m, nil
}

// HasAgent reports whether an agent with the given id is attached.
func (s *Simulation) HasAgent(id primitives.MemberID) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	_, ok := s.agents[id]
	return ok
}

// HasGood reports whether a good with the given id is attached.
func (s *Simulation) HasGood(id primitives.MemberID) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	_, ok := s.goods[id]
	return ok
}

// HasMarket reports whether a market with the given id is attached.
func (s *Simulation) HasMarket(id primitives.MemberID) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	_, ok := s.markets[id]
	return ok
}

// HasOther reports whether an "other" member with the given id is attached.
func (s *Simulation) HasOther(id primitives.MemberID) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	_, ok := s.others[id]
	return ok
}

// HasMember reports whether any member with the given id is attached.
func (s *Simulation) HasMember(id primitives.MemberID) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	return s.memberByID(id) != nil
}

// Agents returns the attached agents, optionally filtered. A nil filter
// matches everything.
func (s *Simulation) Agents(filter func(Agent) bool) []Agent {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if filter == nil || filter(a) {
			out = append(out, a)
		}
	}
	return out
}

// Goods returns the attached goods, optionally filtered.
func (s *Simulation) Goods(filter func(Good) bool) []Good {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	out := make([]Good, 0, len(s.goods))
	for _, g := range s.goods {
		if filter == nil || filter(g) {
			out = append(out, g)
		}
	}
	return out
}

// Markets returns the attached markets, optionally filtered.
func (s *Simulation) Markets(filter func(Market) bool) []Market {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	out := make([]Market, 0, len(s.markets))
	for _, m := range s.markets {
		if filter == nil || filter(m) {
			out = append(out, m)
		}
	}
	return out
}

// Others returns the attached non-agent/good/market members, optionally
// filtered.
func (s *Simulation) Others(filter func(Member) bool) []Member {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	out := make([]Member, 0, len(s.others))
	for _, m := range s.others {
		if filter == nil || filter(m) {
			out = append(out, m)
		}
	}
	return out
}

// CountAgents returns the number of attached agents matching the filter.
func (s *Simulation) CountAgents(filter func(Agent) bool) int {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if filter == nil {
		return len(s.agents)
	}
	n := 0
	for _, a := range s.agents {
		if filter(a) {
			n++
		}
	}
	return n
}

// CountGoods returns the number of attached goods matching the filter.
func (s *Simulation) CountGoods(filter func(Good) bool) int {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if filter == nil {
		return len(s.goods)
	}
	n := 0
	for _, g := range s.goods {
		if filter(g) {
			n++
		}
	}
	return n
}

// CountMarkets returns the number of attached markets matching the filter.
func (s *Simulation) CountMarkets(filter func(Market) bool) int {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if filter == nil {
		return len(s.markets)
	}
	n := 0
	for _, m := range s.markets {
		if filter(m) {
			n++
		}
	}
	return n
}

// CountOthers returns the number of attached "other" members matching the
// filter.
func (s *Simulation) CountOthers(filter func(Member) bool) int {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	if filter == nil {
		return len(s.others)
	}
	n := 0
	for _, m := range s.others {
		if filter(m) {
			n++
		}
	}
	return n
}

// Quiesce blocks until no run is in progress and returns a release function.
// While held, Run cannot start; multiple holders may coexist. This is the
// hook external coordinators (UIs, checkpointers) use to observe a stable
// simulation.
func (s *Simulation) Quiesce() (release func()) {
	s.runMu.RLock()
	return s.runMu.RUnlock
}

// TryQuiesce is Quiesce without blocking; ok is false if a run is in
// progress.
func (s *Simulation) TryQuiesce() (release func(), ok bool) {
	if !s.runMu.TryRLock() {
		return nil, false
	}
	return s.runMu.RUnlock, true
}
