package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// solveFunc is invoked once per candidate solution. It blocks until the node
// has ruled on the submission and returns whether it was accepted. A false
// return reinstates the target the solution was found under.
type solveFunc func(sol [solutionLen]byte) bool

// miningState is the coordination point between device workers and the node
// client. The target tuple (work, prevBlock, generation, valid) updates
// atomically under one mutex; counters are plain atomics so observers never
// contend with the workers.
type miningState struct {
	address [addressLen]byte
	solve   solveFunc

	mu          sync.Mutex
	cond        *sync.Cond
	target      target
	targetValid bool
	generation  uint64
	stopped     bool
	installedAt time.Time

	totalHashes atomic.Uint64
	totalSolved atomic.Uint64
}

func newMiningState(address [addressLen]byte, solve solveFunc) *miningState {
	s := &miningState{address: address, solve: solve}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// setTarget installs a new target and bumps the generation so workers abandon
// in-flight batches. No-op once stopped.
func (s *miningState) setTarget(t target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.target = t
	s.generation++
	s.targetValid = true
	s.installedAt = time.Now()
	s.cond.Broadcast()
}

// clearTarget idles all workers without touching the generation.
func (s *miningState) clearTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetValid = false
	s.cond.Broadcast()
}

// stop is terminal and idempotent.
func (s *miningState) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.targetValid = false
	s.cond.Broadcast()
}

func (s *miningState) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// waitForTarget blocks until a target is valid or the state is stopped.
// ok is false on stop.
func (s *miningState) waitForTarget() (t target, generation uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.targetValid && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return target{}, 0, false
	}
	return s.target, s.generation, true
}

// stillCurrent reports whether the generation a worker cached is still the
// live, valid target. Checked between batches and before reporting a
// solution; a false result means the batch results must be discarded.
func (s *miningState) stillCurrent(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetValid && !s.stopped && s.generation == generation
}

// reportSolution clears the target so every worker breaks out of its batch
// loop, then hands the solution to the solve callback. Rejection reinstates
// the target under the same generation, so workers simply resume.
func (s *miningState) reportSolution(sol [solutionLen]byte) {
	s.mu.Lock()
	s.targetValid = false
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.solve(sol) {
		s.totalSolved.Add(1)
		return
	}

	s.mu.Lock()
	if !s.stopped {
		s.targetValid = true
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *miningState) addHashes(n uint64) {
	s.totalHashes.Add(n)
}

func (s *miningState) hashes() uint64 {
	return s.totalHashes.Load()
}

func (s *miningState) solved() uint64 {
	return s.totalSolved.Load()
}

// targetAge returns how long the current target has been installed, or false
// when no target has ever been installed.
func (s *miningState) targetAge() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installedAt.IsZero() {
		return 0, false
	}
	return time.Since(s.installedAt), true
}
