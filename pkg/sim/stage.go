package sim

// RunStage identifies one phase of the per-period pipeline, plus the special
// control values used to coordinate worker goroutines.
type RunStage int

const (
	// StageIdle is the between-period worker state.
	StageIdle RunStage = iota
	// StageKill instructs the worker whose id matches the kill target to
	// exit; other workers keep waiting.
	StageKill
	// StageKillAll instructs every worker to exit.
	StageKillAll

	// Inter-period optimization stages, in execution order.
	StageInterBegin
	StageInterOptimize
	StageInterApply
	StageInterAdvance

	// Intra-period optimization stages, in execution order.
	StageIntraInitialize
	StageIntraReset
	StageIntraOptimize
	StageIntraReoptimize
	StageIntraApply
	StageIntraFinish

	numStages
)

// stageFirst and stageLast bracket the real pipeline stages; values outside
// this range are control states.
const (
	stageFirst = StageInterBegin
	stageLast  = StageIntraFinish
)

func (s RunStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageKill:
		return "kill"
	case StageKillAll:
		return "kill_all"
	case StageInterBegin:
		return "inter_begin"
	case StageInterOptimize:
		return "inter_optimize"
	case StageInterApply:
		return "inter_apply"
	case StageInterAdvance:
		return "inter_advance"
	case StageIntraInitialize:
		return "intra_initialize"
	case StageIntraReset:
		return "intra_reset"
	case StageIntraOptimize:
		return "intra_optimize"
	case StageIntraReoptimize:
		return "intra_reoptimize"
	case StageIntraApply:
		return "intra_apply"
	case StageIntraFinish:
		return "intra_finish"
	default:
		return "invalid"
	}
}

// intra reports whether s is one of the intra-period stages.
func (s RunStage) intra() bool {
	return s >= StageIntraInitialize && s <= StageIntraFinish
}

// inter reports whether s is one of the inter-period stages.
func (s RunStage) inter() bool {
	return s >= StageInterBegin && s <= StageInterAdvance
}

// optimize reports whether s is a stage during which members calculate (but do
// not yet apply) changes to shared state.
func (s RunStage) optimize() bool {
	switch s {
	case StageInterOptimize, StageIntraReset, StageIntraOptimize, StageIntraReoptimize:
		return true
	default:
		return false
	}
}

// Stage capability interfaces. A member implements a stage by satisfying the
// matching interface; the registry detects capabilities at insert time and
// buckets the member by priority. Each capability is independent: a member may
// implement any subset.

// InterBegin runs first in each period, before any optimization.
type InterBegin interface {
	InterBegin()
}

// InterOptimize calculates inter-period changes without applying them.
type InterOptimize interface {
	InterOptimize()
}

// InterApply applies changes calculated in InterOptimize.
type InterApply interface {
	InterApply()
}

// InterAdvance advances members to the new period.
type InterAdvance interface {
	InterAdvance()
}

// IntraInitialize runs once per period before the intra-period rounds.
type IntraInitialize interface {
	IntraInitialize()
}

// IntraReset resets intra-period state at the start of each round.
type IntraReset interface {
	IntraReset()
}

// IntraOptimize calculates intra-period changes without applying them.
type IntraOptimize interface {
	IntraOptimize()
}

// IntraReoptimize examines the results of the round and returns true to
// request another Reset/Optimize/Reoptimize round. Every implementor is
// invoked every round, even after an earlier one has already requested a
// restart: later implementors may still need to observe this round's state.
type IntraReoptimize interface {
	IntraReoptimize() bool
}

// IntraApply applies intra-period changes once no implementor requests
// another round.
type IntraApply interface {
	IntraApply()
}

// IntraFinish runs last in each period.
type IntraFinish interface {
	IntraFinish()
}

// StagePriority lets a member choose the priority bucket it runs in for a
// given stage. Members that do not implement it run at priority 0. Within a
// stage, all members of a lower-priority bucket finish before any member of a
// higher-priority bucket starts.
type StagePriority interface {
	StagePriority(stage RunStage) float64
}

// priorityFor returns the bucket priority m declares for stage, or 0.
func priorityFor(m Member, stage RunStage) float64 {
	if p, ok := m.(StagePriority); ok {
		return p.StagePriority(stage)
	}
	return 0
}

// implementsStage reports whether m satisfies the capability for stage.
func implementsStage(m Member, stage RunStage) bool {
	switch stage {
	case StageInterBegin:
		_, ok := m.(InterBegin)
		return ok
	case StageInterOptimize:
		_, ok := m.(InterOptimize)
		return ok
	case StageInterApply:
		_, ok := m.(InterApply)
		return ok
	case StageInterAdvance:
		_, ok := m.(InterAdvance)
		return ok
	case StageIntraInitialize:
		_, ok := m.(IntraInitialize)
		return ok
	case StageIntraReset:
		_, ok := m.(IntraReset)
		return ok
	case StageIntraOptimize:
		_, ok := m.(IntraOptimize)
		return ok
	case StageIntraReoptimize:
		_, ok := m.(IntraReoptimize)
		return ok
	case StageIntraApply:
		_, ok := m.(IntraApply)
		return ok
	case StageIntraFinish:
		_, ok := m.(IntraFinish)
		return ok
	default:
		return false
	}
}
