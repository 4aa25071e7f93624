package sim

import (
	"slices"
)

type memberSet map[Member]struct{}

// optimizerRegistry buckets members by which stage capabilities they
// implement and by declared priority. Mutated only by the control goroutine
// and only between stage barriers, under the simulation's registry mutex.
type optimizerRegistry struct {
	// buckets[stage][priority] is the set of members running that stage at
	// that priority.
	buckets [numStages]map[float64]memberSet

	// plurality caches the largest bucket size across all stages; it bounds
	// the useful worker-pool size. Negative means "recompute".
	plurality int
}

func newOptimizerRegistry() *optimizerRegistry {
	r := &optimizerRegistry{plurality: -1}
	for s := range r.buckets {
		r.buckets[s] = make(map[float64]memberSet)
	}
	return r
}

// register inserts m into the bucket of every stage capability it satisfies.
func (r *optimizerRegistry) register(m Member) {
	for stage := stageFirst; stage <= stageLast; stage++ {
		if !implementsStage(m, stage) {
			continue
		}
		pr := priorityFor(m, stage)
		bucket := r.buckets[stage][pr]
		if bucket == nil {
			bucket = make(memberSet)
			r.buckets[stage][pr] = bucket
		}
		bucket[m] = struct{}{}
		if r.plurality >= 0 && len(bucket) > r.plurality {
			r.plurality = len(bucket)
		}
	}
}

// unregister removes m from every bucket it is in, deleting buckets it
// empties. If m left a bucket of maximal size the cached plurality has to be
// recalculated: another bucket may have had the same size.
func (r *optimizerRegistry) unregister(m Member) {
	for stage := stageFirst; stage <= stageLast; stage++ {
		for pr, bucket := range r.buckets[stage] {
			if _, ok := bucket[m]; !ok {
				continue
			}
			delete(bucket, m)
			if r.plurality == len(bucket)+1 {
				r.plurality = -1
			}
			if len(bucket) == 0 {
				delete(r.buckets[stage], pr)
			}
		}
	}
}

// priorities returns the priority levels of stage in increasing order.
func (r *optimizerRegistry) priorities(stage RunStage) []float64 {
	prs := make([]float64, 0, len(r.buckets[stage]))
	for pr := range r.buckets[stage] {
		prs = append(prs, pr)
	}
	slices.Sort(prs)
	return prs
}

// bucket materializes the members of one stage/priority bucket. Order within
// a bucket is unspecified.
func (r *optimizerRegistry) bucket(stage RunStage, priority float64) []Member {
	set := r.buckets[stage][priority]
	members := make([]Member, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	return members
}

// maxPlurality returns the size of the largest bucket across all stages,
// recomputing the cached value if it has been invalidated.
func (r *optimizerRegistry) maxPlurality() int {
	if r.plurality < 0 {
		r.plurality = 0
		for stage := range r.buckets {
			for _, bucket := range r.buckets[stage] {
				if len(bucket) > r.plurality {
					r.plurality = len(bucket)
				}
			}
		}
	}
	return r.plurality
}
