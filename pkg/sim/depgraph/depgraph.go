// Package depgraph tracks strong and weak dependency relations between member
// identities.
//
// A strong dependency means "remove me when my dependency is removed": if
// member A strongly depends on B, removing B cascades into removing A. A weak
// dependency only triggers a notification hook on A when B is removed.
//
// The graph stores ids only; it knows nothing about members themselves. The
// simulation's removal path consumes the graph through Take, which snapshots
// the dependents of an id and erases the entry in one step. Erasing before the
// caller recurses is what makes cascading removal terminate on cyclic graphs:
// each id's entry can be taken at most once.
package depgraph

import (
	"slices"
	"sync"

	"github.com/erisproject/eris-sub001/pkg/primitives"
)

type idSet map[primitives.MemberID]struct{}

// Graph records which members depend, strongly or weakly, on which other
// members. All methods are safe for concurrent use.
type Graph struct {
	mutex  sync.Mutex
	strong map[primitives.MemberID]idSet // dependency -> members removed with it
	weak   map[primitives.MemberID]idSet // dependency -> members notified about it
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		strong: make(map[primitives.MemberID]idSet),
		weak:   make(map[primitives.MemberID]idSet),
	}
}

// AddStrong records that member must be removed whenever dependsOn is removed.
func (g *Graph) AddStrong(member, dependsOn primitives.MemberID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.strong[dependsOn] == nil {
		g.strong[dependsOn] = make(idSet)
	}
	g.strong[dependsOn][member] = struct{}{}
}

// AddWeak records that member must be notified whenever dependsOn is removed.
func (g *Graph) AddWeak(member, dependsOn primitives.MemberID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.weak[dependsOn] == nil {
		g.weak[dependsOn] = make(idSet)
	}
	g.weak[dependsOn][member] = struct{}{}
}

// TakeStrong returns the members that strongly depend on id and erases the
// entry. The erase happens before the caller acts on the returned ids, so a
// dependency cycle cannot recurse back into the same entry.
func (g *Graph) TakeStrong(id primitives.MemberID) []primitives.MemberID {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return take(g.strong, id)
}

// TakeWeak returns the members weakly depending on id and erases the entry.
func (g *Graph) TakeWeak(id primitives.MemberID) []primitives.MemberID {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return take(g.weak, id)
}

// HasStrong reports whether any member strongly depends on id.
func (g *Graph) HasStrong(id primitives.MemberID) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.strong[id]) > 0
}

// HasWeak reports whether any member weakly depends on id.
func (g *Graph) HasWeak(id primitives.MemberID) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.weak[id]) > 0
}

func take(m map[primitives.MemberID]idSet, id primitives.MemberID) []primitives.MemberID {
	deps, ok := m[id]
	if !ok {
		return nil
	}
	delete(m, id)

	ids := make([]primitives.MemberID, 0, len(deps))
	for dep := range deps {
		ids = append(ids, dep)
	}
	// Sorted so cascades visit dependents in a stable order.
	slices.Sort(ids)
	return ids
}
