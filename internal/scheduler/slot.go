package scheduler

import "sync"

// slotState is the per-file position in the reindex state machine.
type slotState int

const (
	slotIdle slotState = iota
	slotPending
	slotInFlight
)

// fileSlot serializes reindex runs for one file. The slot, not a queue,
// is what enforces at-most-one-in-flight: an event during a run sets the
// redo flag, and the run's completion re-arms the file instead of letting
// a second run start concurrently.
type fileSlot struct {
	mu      sync.Mutex
	state   slotState
	redo    bool
	deleted bool
}

// note records a change event. It reports whether the caller should
// (re)arm the debounce timer; during an in-flight run it instead flags a
// redo. deleted tracks the most recent event's kind, so a delete followed
// by a recreate dispatches a reindex, not a tombstone.
func (s *fileSlot) note(deleted bool) (arm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = deleted
	if s.state == slotInFlight {
		s.redo = true
		return false
	}
	s.state = slotPending
	return true
}

// claim moves a Pending file to InFlight at dispatch time. A file no
// longer Pending (already claimed, or gone Idle) is not dispatched.
func (s *fileSlot) claim() (deleted bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != slotPending {
		return false, false
	}
	s.state = slotInFlight
	s.redo = false
	return s.deleted, true
}

// finish completes a run. When a redo was flagged mid-run the file goes
// back to Pending and the caller must re-arm the debounce timer;
// otherwise it returns to Idle.
func (s *fileSlot) finish() (rearm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redo {
		s.redo = false
		s.state = slotPending
		return true
	}
	s.state = slotIdle
	return false
}

// idle reports whether the slot has no pending or running work.
func (s *fileSlot) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == slotIdle
}
