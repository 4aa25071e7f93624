package sim

import (
	"errors"
)

// SetMaxThreads sets the worker-pool size target for subsequent runs. 0 (the
// default) disables the pool entirely: stage methods run inline on the
// calling goroutine and member locking becomes a no-op. Growing beyond the
// largest stage bucket is pointless, so the pool is capped at that size when
// it is resized.
//
// Returns ErrRunning if called while a run is in progress.
func (s *Simulation) SetMaxThreads(n int) error {
	if n < 0 {
		n = 0
	}
	if !s.runMu.TryRLock() {
		return ErrRunning
	}
	defer s.runMu.RUnlock()
	s.maxThreads = n
	return nil
}

// MaxThreads returns the pool size target for the current run (if called
// during one) or the next run. Guaranteed not to change during a run.
func (s *Simulation) MaxThreads() int { return s.maxThreads }

// Stage returns the pipeline stage currently executing, or StageIdle between
// runs.
func (s *Simulation) Stage() RunStage {
	s.stageMu.Lock()
	defer s.stageMu.Unlock()
	return s.stage
}

// StageIntra reports whether an intra-period stage is currently executing.
func (s *Simulation) StageIntra() bool { return s.Stage().intra() }

// StageInter reports whether an inter-period stage is currently executing.
func (s *Simulation) StageInter() bool { return s.Stage().inter() }

// StageOptimize reports whether the current stage is one in which members
// calculate, but must not apply, changes to shared state.
func (s *Simulation) StageOptimize() bool { return s.Stage().optimize() }

// Run executes one period: the inter-period stages in order, then
// IntraInitialize, then Reset/Optimize/Reoptimize rounds repeated until no
// IntraReoptimize implementor requests another, then IntraApply and
// IntraFinish. Each stage runs its priority buckets in increasing order with
// a hard barrier between buckets and between stages.
//
// Overlapping Run calls are a programmer error and return ErrRunning.
// Contract violations raised by deferred adds/removes (unknown id, already
// attached) surface in Run's returned error after the run completes.
//
// A panic escaping a stage method is not recovered anywhere in the
// scheduler; with worker goroutines it is fatal to the process.
func (s *Simulation) Run() error {
	if !s.runMu.TryLock() {
		return ErrRunning
	}
	defer s.runMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.stageMu.Lock()
	s.stage = StageIdle
	s.stagePriority = 0
	s.stageMu.Unlock()

	s.resizePool()

	s.t++
	s.logger.Debug().
		Uint64("t", uint64(s.t)).
		Int("workers", len(s.workers)).
		Msg("period started")

	var errs []error
	stage := func(st RunStage) {
		if err := s.runStage(st); err != nil {
			errs = append(errs, err)
		}
	}

	stage(StageInterBegin)
	stage(StageInterOptimize)
	stage(StageInterApply)
	stage(StageInterAdvance)

	s.intraoptCount = 0
	stage(StageIntraInitialize)

	s.redoIntra.Store(true)
	for s.redoIntra.Load() {
		s.intraoptCount++
		stage(StageIntraReset)
		stage(StageIntraOptimize)
		s.redoIntra.Store(false)
		stage(StageIntraReoptimize)
	}

	stage(StageIntraApply)
	stage(StageIntraFinish)

	s.stageMu.Lock()
	s.stage = StageIdle
	s.stageMu.Unlock()

	s.logger.Debug().
		Uint64("t", uint64(s.t)).
		Int("intraopt_rounds", s.intraoptCount).
		Msg("period finished")
	return errors.Join(errs...)
}

// runStage executes every priority bucket of one stage, lowest priority
// first. After each bucket drains, the deferred add/remove queues are
// applied; the queues are never touched while a cursor is published.
func (s *Simulation) runStage(st RunStage) error {
	s.registryMu.Lock()
	priorities := s.optimizers.priorities(st)
	s.registryMu.Unlock()

	var errs []error
	for _, pr := range priorities {
		s.registryMu.Lock()
		members := s.optimizers.bucket(st, pr)
		s.registryMu.Unlock()

		if len(s.workers) == 0 {
			// Single-threaded: invoke inline, no cursor locking needed.
			s.stageMu.Lock()
			s.stage = st
			s.stagePriority = pr
			s.stageMu.Unlock()
			for _, m := range members {
				s.invokeStage(st, m)
			}
		} else {
			s.stageMu.Lock()
			s.doneMu.Lock()
			s.cursorMu.Lock()
			s.stage = st
			s.stagePriority = pr
			s.stageSeq++
			s.cursor = members
			s.cursorPos = 0
			s.running = len(s.workers)
			s.cursorMu.Unlock()
			s.stageMu.Unlock()
			s.stageCond.Broadcast()

			for s.running > 0 {
				s.doneCond.Wait()
			}
			s.doneMu.Unlock()
		}

		if err := s.drainDeferred(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// drainDeferred applies queued inserts and removals one at a time, releasing
// the queue mutex around each application: applying an item may itself
// enqueue further deferred mutations.
func (s *Simulation) drainDeferred() error {
	var errs []error
	s.deferredMu.Lock()
	for len(s.deferredInsert) > 0 || len(s.deferredRemove) > 0 {
		if len(s.deferredInsert) > 0 {
			m := s.deferredInsert[0]
			s.deferredInsert = s.deferredInsert[1:]
			s.deferredMu.Unlock()
			if _, err := s.insert(m); err != nil {
				errs = append(errs, err)
			}
		} else {
			id := s.deferredRemove[0]
			s.deferredRemove = s.deferredRemove[1:]
			s.deferredMu.Unlock()
			if err := s.removeNow(id); err != nil {
				errs = append(errs, err)
			}
		}
		s.deferredMu.Lock()
	}
	s.deferredMu.Unlock()
	return errors.Join(errs...)
}

// resizePool adjusts the worker pool to the current target. Only called from
// Run (stage idle, run guard held) and Close. Shrinking kills and joins one
// targeted worker at a time; growing spawns up to min(target, plurality)
// workers, since no stage can keep more workers busy than its largest bucket
// has members.
func (s *Simulation) resizePool() {
	if len(s.workers) > s.maxThreads {
		s.killWorkers(len(s.workers) - s.maxThreads)
		return
	}

	s.registryMu.Lock()
	want := s.optimizers.maxPlurality()
	s.registryMu.Unlock()
	if want > s.maxThreads {
		want = s.maxThreads
	}

	for len(s.workers) < want {
		s.spawnWorker()
	}
}

func (s *Simulation) killWorkers(n int) {
	for ; n > 0; n-- {
		w := s.workers[len(s.workers)-1]

		s.stageMu.Lock()
		s.killTarget = w.id
		s.stage = StageKill
		s.stageMu.Unlock()
		s.stageCond.Broadcast()

		<-w.done
		s.workers = s.workers[:len(s.workers)-1]
		s.logger.Debug().Int("worker", w.id).Msg("worker stopped")
	}

	s.stageMu.Lock()
	s.stage = StageIdle
	s.stageMu.Unlock()
	s.stageCond.Broadcast()
}

// Close shuts down every worker goroutine and marks the simulation unusable
// for further runs. Safe to call multiple times; blocks until a run in
// progress finishes.
func (s *Simulation) Close() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	s.stageMu.Lock()
	s.stage = StageKillAll
	s.stageMu.Unlock()
	s.stageCond.Broadcast()

	for _, w := range s.workers {
		<-w.done
	}
	s.workers = nil
	s.logger.Debug().Msg("simulation closed")
}
