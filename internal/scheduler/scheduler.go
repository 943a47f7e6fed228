// Package scheduler arms one completion timer per running machine.
package scheduler

import (
	"sync"
	"time"

	"laundry-smart-queue/internal/metrics"
)

// CompleteFunc is invoked when a cycle's end time is reached. cycle is the
// token the timer was armed with; the callee must ignore it if the machine
// has moved on.
type CompleteFunc func(machineID string, cycle int64)

type entry struct {
	cycle int64
	timer *time.Timer
}

// Scheduler holds at most one pending timer per machine.
type Scheduler struct {
	mu       sync.Mutex
	entries  map[string]*entry
	complete CompleteFunc
	now      func() time.Time
	stopped  bool
}

// New creates a scheduler that calls complete when a timer fires.
func New(complete CompleteFunc) *Scheduler {
	return &Scheduler{
		entries:  make(map[string]*entry),
		complete: complete,
		now:      time.Now,
	}
}

// Arm schedules completion of cycle on machineID at endTime, replacing any
// earlier timer for that machine. An end time in the past fires immediately.
func (s *Scheduler) Arm(machineID string, cycle int64, endTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.entries[machineID]; ok {
		old.timer.Stop()
	}

	e := &entry{cycle: cycle}
	delay := endTime.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	e.timer = time.AfterFunc(delay, func() { s.fire(machineID, e) })
	s.entries[machineID] = e
	metrics.SetSchedulerPending(len(s.entries))
}

func (s *Scheduler) fire(machineID string, e *entry) {
	s.mu.Lock()
	if s.entries[machineID] == e {
		delete(s.entries, machineID)
		metrics.SetSchedulerPending(len(s.entries))
	}
	s.mu.Unlock()

	s.complete(machineID, e.cycle)
}

// Cancel drops the pending timer for machineID, if any.
func (s *Scheduler) Cancel(machineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[machineID]; ok {
		e.timer.Stop()
		delete(s.entries, machineID)
		metrics.SetSchedulerPending(len(s.entries))
	}
}

// CancelCycle drops the pending timer for machineID only if it was armed for cycle.
func (s *Scheduler) CancelCycle(machineID string, cycle int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[machineID]; ok && e.cycle == cycle {
		e.timer.Stop()
		delete(s.entries, machineID)
		metrics.SetSchedulerPending(len(s.entries))
	}
}

// Pending returns the armed cycle for machineID.
func (s *Scheduler) Pending(machineID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[machineID]
	if !ok {
		return 0, false
	}
	return e.cycle, true
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every timer. Later calls to Arm are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.stopped = true
	metrics.SetSchedulerPending(0)
}
