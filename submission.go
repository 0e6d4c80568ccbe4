package main

import "sync"

// submissionBroker is the single-slot rendezvous between device workers
// (producers) and the node client's event loop (consumer). At most one
// submission is outstanding at a time; a second find blocks its worker,
// which is fine because the target has already been cleared for everyone.
type submissionBroker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	occupied bool
	solution [solutionLen]byte
	verdict  chan bool

	// id tags the next submit_block message. Incremented each time a pending
	// submission is cleared, so a reply matches iff its id equals currentID
	// at receive time.
	id uint64

	// notify wakes the event-loop side without blocking the producer.
	notify chan struct{}
}

func newSubmissionBroker() *submissionBroker {
	b := &submissionBroker{id: 1, notify: make(chan struct{}, 1)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// put installs a solution and blocks until the consumer clears it, returning
// the verdict. Returns false immediately once the broker is closed.
func (b *submissionBroker) put(sol [solutionLen]byte) bool {
	b.mu.Lock()
	for b.occupied && !b.closed {
		b.cond.Wait()
	}
	if b.closed {
		b.mu.Unlock()
		return false
	}
	verdict := make(chan bool, 1)
	b.occupied = true
	b.solution = sol
	b.verdict = verdict
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return <-verdict
}

// peek reads the pending solution without clearing it.
func (b *submissionBroker) peek() (sol [solutionLen]byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.solution, b.occupied
}

// currentID returns the id the next (or in-flight) submission is tagged with.
func (b *submissionBroker) currentID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// clear resolves the pending submission, advances the id and unblocks the
// producer. No-op when the slot is empty.
func (b *submissionBroker) clear(accepted bool) {
	b.mu.Lock()
	if !b.occupied {
		b.mu.Unlock()
		return
	}
	verdict := b.verdict
	b.occupied = false
	b.verdict = nil
	b.id++
	b.cond.Broadcast()
	b.mu.Unlock()

	verdict <- accepted
}

// drop resolves an in-flight submission on disconnect. It reports accepted so
// the producer does not reinstate a target the disconnect already cleared;
// the post-reconnect hello installs a fresh one.
func (b *submissionBroker) drop() {
	b.clear(true)
}

// close unblocks all producers permanently. Pending and future puts return
// false.
func (b *submissionBroker) close() {
	b.mu.Lock()
	b.closed = true
	var verdict chan bool
	if b.occupied {
		verdict = b.verdict
		b.occupied = false
		b.verdict = nil
	}
	b.cond.Broadcast()
	b.mu.Unlock()

	if verdict != nil {
		verdict <- false
	}
}

// wake is the consumer-side channel to select on.
func (b *submissionBroker) wake() <-chan struct{} {
	return b.notify
}
