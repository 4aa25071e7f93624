package sim

type worker struct {
	id   int
	done chan struct{}
}

func (s *Simulation) spawnWorker() {
	s.workerSeq++
	w := &worker{id: s.workerSeq, done: make(chan struct{})}
	s.workers = append(s.workers, w)
	go s.workerLoop(w)
	s.logger.Debug().Int("worker", w.id).Msg("worker started")
}

// workerLoop is the body of one pool goroutine. It reads the published stage
// and either waits (idle, or a kill aimed at someone else), exits (kill aimed
// at it, or kill_all), or pulls members off the shared cursor and runs the
// stage method, then signals completion and waits for the stage to move on.
func (s *Simulation) workerLoop(w *worker) {
	defer close(w.done)
	for {
		s.stageMu.Lock()
		st := s.stage
		seq := s.stageSeq
		switch st {
		case StageIdle:
			for s.stage == StageIdle {
				s.stageCond.Wait()
			}
			s.stageMu.Unlock()

		case StageKill:
			for s.stage == StageKill && s.killTarget != w.id {
				s.stageCond.Wait()
			}
			killed := s.stage == StageKill && s.killTarget == w.id
			s.stageMu.Unlock()
			if killed {
				return
			}

		case StageKillAll:
			s.stageMu.Unlock()
			return

		default:
			s.stageMu.Unlock()
			s.work(st)
			s.stageFinished(st, seq)
		}
	}
}

// work pulls members one at a time from the shared cursor, holding the
// cursor mutex only for the pull so other workers can advance while this one
// runs the stage method.
func (s *Simulation) work(st RunStage) {
	s.cursorMu.Lock()
	for s.cursorPos < len(s.cursor) {
		m := s.cursor[s.cursorPos]
		s.cursorPos++
		s.cursorMu.Unlock()

		s.invokeStage(st, m)

		s.cursorMu.Lock()
	}
	s.cursorMu.Unlock()
}

// stageFinished signals that this worker is done with the current bucket,
// waking the control goroutine when it is the last one, then waits until a
// new bucket is published or the stage leaves the pipeline (idle or a kill).
// The sequence number distinguishes consecutive buckets that happen to carry
// the same stage and priority, such as repeated reoptimize rounds when no
// member implements the stages in between.
func (s *Simulation) stageFinished(st RunStage, seq uint64) {
	s.doneMu.Lock()
	s.running--
	if s.running == 0 {
		s.doneCond.Signal()
	}
	s.doneMu.Unlock()

	s.stageMu.Lock()
	for s.stageSeq == seq && s.stage == st {
		s.stageCond.Wait()
	}
	s.stageMu.Unlock()
}

// invokeStage dispatches one member's stage method. The member is guaranteed
// to implement the capability: the registry only buckets members whose type
// satisfies it. IntraReoptimize results are ORed into the restart flag; the
// stage is never short-circuited.
func (s *Simulation) invokeStage(st RunStage, m Member) {
	switch st {
	case StageInterBegin:
		m.(InterBegin).InterBegin()
	case StageInterOptimize:
		m.(InterOptimize).InterOptimize()
	case StageInterApply:
		m.(InterApply).InterApply()
	case StageInterAdvance:
		m.(InterAdvance).InterAdvance()
	case StageIntraInitialize:
		m.(IntraInitialize).IntraInitialize()
	case StageIntraReset:
		m.(IntraReset).IntraReset()
	case StageIntraOptimize:
		m.(IntraOptimize).IntraOptimize()
	case StageIntraReoptimize:
		if m.(IntraReoptimize).IntraReoptimize() {
			s.redoIntra.Store(true)
		}
	case StageIntraApply:
		m.(IntraApply).IntraApply()
	case StageIntraFinish:
		m.(IntraFinish).IntraFinish()
	}
}
