package sim

import (
	"errors"
	"sync"
	"testing"

	"github.com/erisproject/eris-sub001/pkg/primitives"
)

// recordAgent records lifecycle hook invocations.
type recordAgent struct {
	BaseAgent

	mu          sync.Mutex
	added       int
	removed     int
	weakRemoved []primitives.MemberID
}

func (a *recordAgent) Added() {
	a.mu.Lock()
	a.added++
	a.mu.Unlock()
}

func (a *recordAgent) Removed() {
	a.mu.Lock()
	a.removed++
	a.mu.Unlock()
}

func (a *recordAgent) WeakDependencyRemoved(_ Member, oldID primitives.MemberID) {
	a.mu.Lock()
	a.weakRemoved = append(a.weakRemoved, oldID)
	a.mu.Unlock()
}

type plainGood struct{ BaseGood }

type plainMarket struct{ BaseMarket }

func TestAddAssignsSequentialIDs(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	id1, err := s.Add(a)
	if err != nil {
		t.Fatalf("add agent: %v", err)
	}
	if !id1.Valid() {
		t.Fatalf("expected valid id, got %v", id1)
	}
	if a.ID() != id1 {
		t.Errorf("member id %v, want %v", a.ID(), id1)
	}
	if a.Simulation() != s {
		t.Errorf("member not attached to simulation")
	}

	id2, err := s.Add(&plainGood{})
	if err != nil {
		t.Fatalf("add good: %v", err)
	}
	if id2 != id1+1 {
		t.Errorf("second id %v, want %v", id2, id1+1)
	}
}

func TestAddAlreadyAttached(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	if _, err := s.Add(a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add(a); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("re-add error = %v, want ErrAlreadyAttached", err)
	}
}

func TestRemoveUnknownMember(t *testing.T) {
	s := New()
	defer s.Close()

	if err := s.Remove(42); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("remove error = %v, want ErrUnknownMember", err)
	}
}

func TestLifecycleHooks(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	id, err := s.Add(a)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if a.added != 1 {
		t.Errorf("Added fired %d times, want 1", a.added)
	}

	if err := s.Remove(id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if a.removed != 1 {
		t.Errorf("Removed fired %d times, want 1", a.removed)
	}
	if a.Simulation() != nil {
		t.Errorf("removed member still attached")
	}
	if a.ID() != primitives.InvalidMemberID {
		t.Errorf("removed member id %v, want invalid", a.ID())
	}
}

func TestKindRegistries(t *testing.T) {
	s := New()
	defer s.Close()

	agentID, _ := s.Add(&recordAgent{})
	goodID, _ := s.Add(&plainGood{})
	marketID, _ := s.Add(&plainMarket{})
	otherID, _ := s.Add(&BaseMember{})

	if !s.HasAgent(agentID) || !s.HasGood(goodID) || !s.HasMarket(marketID) || !s.HasOther(otherID) {
		t.Fatalf("members missing from their kind registries")
	}
	if s.HasAgent(goodID) {
		t.Errorf("good id found in agent registry")
	}
	for _, id := range []primitives.MemberID{agentID, goodID, marketID, otherID} {
		if !s.HasMember(id) {
			t.Errorf("HasMember(%v) = false", id)
		}
	}

	if _, err := s.Agent(agentID); err != nil {
		t.Errorf("Agent(%v): %v", agentID, err)
	}
	if _, err := s.Agent(goodID); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("Agent on a good id: err = %v, want ErrUnknownMember", err)
	}
	if _, err := s.Good(goodID); err != nil {
		t.Errorf("Good(%v): %v", goodID, err)
	}
	if _, err := s.Market(marketID); err != nil {
		t.Errorf("Market(%v): %v", marketID, err)
	}
	if _, err := s.Other(otherID); err != nil {
		t.Errorf("Other(%v): %v", otherID, err)
	}
}

func TestDependsOnRequiresAttachment(t *testing.T) {
	a := &recordAgent{}
	if err := a.DependsOn(1); !errors.Is(err, ErrNotAttached) {
		t.Errorf("DependsOn on detached member: err = %v, want ErrNotAttached", err)
	}
	if err := a.DependsWeaklyOn(1); !errors.Is(err, ErrNotAttached) {
		t.Errorf("DependsWeaklyOn on detached member: err = %v, want ErrNotAttached", err)
	}
}

func TestStrongDependencyCascade(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	b := &recordAgent{}
	c := &recordAgent{}
	aID, _ := s.Add(a)
	bID, _ := s.Add(b)
	cID, _ := s.Add(c)

	// b depends on a, c depends on b: removing a takes out all three.
	if err := b.DependsOn(aID); err != nil {
		t.Fatalf("DependsOn: %v", err)
	}
	if err := c.DependsOn(bID); err != nil {
		t.Fatalf("DependsOn: %v", err)
	}

	if err := s.Remove(aID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	for _, id := range []primitives.MemberID{aID, bID, cID} {
		if s.HasMember(id) {
			t.Errorf("member %v still attached after cascade", id)
		}
	}
	if b.removed != 1 || c.removed != 1 {
		t.Errorf("cascade hooks: b=%d c=%d, want 1 each", b.removed, c.removed)
	}
}

func TestCascadeTerminatesOnCycle(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	b := &recordAgent{}
	aID, _ := s.Add(a)
	bID, _ := s.Add(b)

	if err := a.DependsOn(bID); err != nil {
		t.Fatalf("DependsOn: %v", err)
	}
	if err := b.DependsOn(aID); err != nil {
		t.Fatalf("DependsOn: %v", err)
	}

	if err := s.Remove(aID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.HasMember(aID) || s.HasMember(bID) {
		t.Errorf("cycle members survived removal")
	}
	if a.removed != 1 || b.removed != 1 {
		t.Errorf("Removed fired a=%d b=%d times, want 1 each", a.removed, b.removed)
	}
}

func TestWeakDependencyNotification(t *testing.T) {
	s := New()
	defer s.Close()

	a := &recordAgent{}
	b := &recordAgent{}
	aID, _ := s.Add(a)
	bID, _ := s.Add(b)

	if err := b.DependsWeaklyOn(aID); err != nil {
		t.Fatalf("DependsWeaklyOn: %v", err)
	}

	if err := s.Remove(aID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !s.HasMember(bID) {
		t.Fatalf("weak dependent was removed")
	}
	if len(b.weakRemoved) != 1 || b.weakRemoved[0] != aID {
		t.Errorf("weak notifications = %v, want [%v]", b.weakRemoved, aID)
	}

	// The graph entry was consumed: a second removal of an unrelated member
	// must not notify again.
	cID, _ := s.Add(&recordAgent{})
	if err := s.Remove(cID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(b.weakRemoved) != 1 {
		t.Errorf("weak notification fired again: %v", b.weakRemoved)
	}
}

func TestCountsAndFilters(t *testing.T) {
	s := New()
	defer s.Close()

	for i := 0; i < 3; i++ {
		s.Add(&recordAgent{})
	}
	s.Add(&plainGood{})
	s.Add(&plainGood{})
	s.Add(&plainMarket{})
	s.Add(&BaseMember{})

	if n := s.CountAgents(nil); n != 3 {
		t.Errorf("CountAgents = %d, want 3", n)
	}
	if n := s.CountGoods(nil); n != 2 {
		t.Errorf("CountGoods = %d, want 2", n)
	}
	if n := s.CountMarkets(nil); n != 1 {
		t.Errorf("CountMarkets = %d, want 1", n)
	}
	if n := s.CountOthers(nil); n != 1 {
		t.Errorf("CountOthers = %d, want 1", n)
	}

	firstID := s.Agents(nil)[0].ID()
	got := s.Agents(func(a Agent) bool { return a.ID() == firstID })
	if len(got) != 1 || got[0].ID() != firstID {
		t.Errorf("filtered Agents = %d members, want exactly the one with id %v", len(got), firstID)
	}
	if n := s.CountAgents(func(a Agent) bool { return false }); n != 0 {
		t.Errorf("CountAgents(reject all) = %d, want 0", n)
	}
}
