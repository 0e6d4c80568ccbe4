package main

// kernelRunner abstracts one compiled mining kernel plus its device buffers.
// The OpenCL implementation lives in opencl_miner.go; tests substitute a CPU fake.
type kernelRunner interface {
	// prepare writes the target's block and work into device buffers.
	// Called each time the worker starts on a target (again after a
	// rejected solution reinstates it), before the first batch.
	prepare(t target) error

	// runBatch enqueues one kernel launch at the given nonce offset and
	// blocks until the solution buffer has been read back. found is true
	// when some work-item wrote a solution.
	runBatch(offset uint64) (sol [solutionLen]byte, found bool, err error)

	// batchSize is the number of nonces covered by one runBatch call
	// (worksize times vector width).
	batchSize() uint64

	// release frees device resources. The runner is unusable afterwards.
	release()
}

// deviceWorker owns one compute device for the lifetime of the process. Its
// run loop waits for a target, feeds the kernel in batches and reports
// candidate solutions through the shared mining state.
type deviceWorker struct {
	name   string
	prefix [prefixLen]byte
	state  *miningState
	runner kernelRunner
}

func newDeviceWorker(name string, prefix [prefixLen]byte, state *miningState, runner kernelRunner) *deviceWorker {
	return &deviceWorker{name: name, prefix: prefix, state: state, runner: runner}
}

// run mines until the state is stopped or the device fails. Cancellation is
// cooperative: the target generation is checked between batches, never
// within one, so the maximum staleness is a single batch duration.
func (w *deviceWorker) run() error {
	defer w.runner.release()

	for {
		t, generation, ok := w.state.waitForTarget()
		if !ok {
			return nil
		}
		if err := w.runner.prepare(t); err != nil {
			return err
		}

		logger.Debug("worker mining", "device", w.name, "prefix", string(w.prefix[:]), "target", t.String())

		var offset uint64
		for w.state.stillCurrent(generation) {
			sol, found, err := w.runner.runBatch(offset)
			if err != nil {
				return err
			}
			w.state.addHashes(w.runner.batchSize())

			if found {
				// A batch that ran to completion under a replaced target may
				// still hand back a find; those belong to the wrong block.
				if !w.state.stillCurrent(generation) {
					break
				}
				if !verifySolution(w.state.address, t, sol) {
					logger.Error("kernel produced an invalid solution, discarding",
						"device", w.name, "solution", string(sol[:]))
					offset += w.runner.batchSize()
					continue
				}
				logger.Info("solution found", "device", w.name, "solution", string(sol[:]))
				w.state.reportSolution(sol)
				break
			}

			offset += w.runner.batchSize()
		}
	}
}
