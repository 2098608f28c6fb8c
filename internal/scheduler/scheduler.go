// Package scheduler decides when a run of detections should be captured into
// an archive and which trailing window that archive covers.
//
// A fresh detection arms a countdown of Delay segments so the sighting sits
// near the middle of a Count-segment clip. A detection that lands within
// Delay segments of the previous archive instead arms a countdown sized so
// the next clip starts right where the previous one ended.
package scheduler

import "sync"

// Defaults from the deployed camera: 2s segments, a 30s clip with the
// sighting around its middle.
const (
	DefaultDelay  = 7
	DefaultCount  = 15
	DefaultPrefix = "auto"
)

// State is the scheduler's process-lifetime bookkeeping. A nil
// PendingCountdown means idle.
type State struct {
	SegmentCounter      int  `json:"segment_counter"`
	LastArchivedCounter *int `json:"last_archived_counter"`
	PendingCountdown    *int `json:"pending_countdown"`
}

// Pending returns the countdown, or -1 when idle.
func (s State) Pending() int {
	if s.PendingCountdown == nil {
		return -1
	}
	return *s.PendingCountdown
}

func (s State) clone() State {
	out := State{SegmentCounter: s.SegmentCounter}
	if s.LastArchivedCounter != nil {
		v := *s.LastArchivedCounter
		out.LastArchivedCounter = &v
	}
	if s.PendingCountdown != nil {
		v := *s.PendingCountdown
		out.PendingCountdown = &v
	}
	return out
}

// Trigger describes the archive job to run for the current segment.
type Trigger struct {
	Limit      int
	Prefix     string
	EndSegment string
	Counter    int
}

// Scheduler is driven by a single goroutine through Observe; State may be
// read concurrently.
type Scheduler struct {
	mu    sync.Mutex
	delay int
	count int
	state State
}

// New returns an idle scheduler. Non-positive values fall back to defaults.
func New(delay, count int) *Scheduler {
	return NewWithState(delay, count, State{})
}

// NewWithState resumes from a known state.
func NewWithState(delay, count int, st State) *Scheduler {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if count <= 0 {
		count = DefaultCount
	}
	return &Scheduler{delay: delay, count: count, state: st.clone()}
}

// Observe feeds the outcome for the next segment, in arrival order. It
// returns a trigger when the pending countdown reaches zero on this segment.
func (s *Scheduler) Observe(segment string, detected bool) (Trigger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &s.state
	st.SegmentCounter++
	counter := st.SegmentCounter

	if st.PendingCountdown == nil && detected {
		// +1 offsets the decrement applied to this same segment below.
		n := s.delay + 1
		if last := st.LastArchivedCounter; last != nil && counter <= *last+s.delay {
			n = s.count - (counter - *last) + 1
		}
		st.PendingCountdown = &n
	}

	if st.PendingCountdown == nil {
		return Trigger{}, false
	}
	*st.PendingCountdown--
	if *st.PendingCountdown > 0 {
		return Trigger{}, false
	}

	st.PendingCountdown = nil
	st.LastArchivedCounter = &counter
	return Trigger{
		Limit:      s.count,
		Prefix:     DefaultPrefix,
		EndSegment: segment,
		Counter:    counter,
	}, true
}

// State returns a copy of the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}
