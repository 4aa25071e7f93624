package sim

import "testing"

func TestStageString(t *testing.T) {
	cases := map[RunStage]string{
		StageIdle:            "idle",
		StageKill:            "kill",
		StageKillAll:         "kill_all",
		StageInterBegin:      "inter_begin",
		StageInterAdvance:    "inter_advance",
		StageIntraInitialize: "intra_initialize",
		StageIntraReoptimize: "intra_reoptimize",
		StageIntraFinish:     "intra_finish",
		RunStage(99):         "invalid",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", st, got, want)
		}
	}
}

func TestStageClassifiers(t *testing.T) {
	for st := stageFirst; st <= stageLast; st++ {
		if st.intra() == st.inter() {
			t.Errorf("%v: intra=%v inter=%v, want exactly one", st, st.intra(), st.inter())
		}
	}
	for _, st := range []RunStage{StageIdle, StageKill, StageKillAll} {
		if st.intra() || st.inter() || st.optimize() {
			t.Errorf("control state %v classified as a pipeline stage", st)
		}
	}

	optimize := map[RunStage]bool{
		StageInterOptimize:   true,
		StageIntraReset:      true,
		StageIntraOptimize:   true,
		StageIntraReoptimize: true,
	}
	for st := stageFirst; st <= stageLast; st++ {
		if st.optimize() != optimize[st] {
			t.Errorf("%v.optimize() = %v, want %v", st, st.optimize(), optimize[st])
		}
	}
}

func TestPriorityForDefaultsToZero(t *testing.T) {
	plain := &BaseMember{}
	if pr := priorityFor(plain, StageIntraOptimize); pr != 0 {
		t.Errorf("default priority = %v, want 0", pr)
	}

	o := &optimizeOnly{pri: 3.5}
	if pr := priorityFor(o, StageIntraOptimize); pr != 3.5 {
		t.Errorf("declared priority = %v, want 3.5", pr)
	}
}

func TestImplementsStage(t *testing.T) {
	o := &optimizeOnly{}
	if !implementsStage(o, StageIntraOptimize) {
		t.Errorf("optimizeOnly should implement intra_optimize")
	}
	if implementsStage(o, StageIntraApply) {
		t.Errorf("optimizeOnly should not implement intra_apply")
	}
	if implementsStage(o, StageIdle) {
		t.Errorf("control states have no capability")
	}

	full := newStageRecorder("full", nil)
	for st := stageFirst; st <= stageLast; st++ {
		if !implementsStage(full, st) {
			t.Errorf("stageRecorder should implement %v", st)
		}
	}
}
