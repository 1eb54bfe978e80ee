package app

import "time"

const (
	ScheduleFixedRate  = "fixed_rate"
	ScheduleFixedDelay = "fixed_delay"
)

// schedule decides when the next cycle is due.
//
// fixed_rate anchors slots to the first start and skips slots missed while a cycle was
// still running. fixed_delay waits a full interval after each cycle ends.
type schedule struct {
	mode     string
	interval time.Duration
	next     time.Time
}

func newSchedule(mode string, interval time.Duration) *schedule {
	if mode != ScheduleFixedDelay {
		mode = ScheduleFixedRate
	}
	return &schedule{mode: mode, interval: interval}
}

// Due reports whether a cycle should start at now.
func (s *schedule) Due(now time.Time) bool {
	return s.next.IsZero() || !now.Before(s.next)
}

// Advance moves the schedule past a cycle that ran from start to end.
func (s *schedule) Advance(start, end time.Time) {
	if s.interval <= 0 {
		s.next = end
		return
	}
	if s.mode == ScheduleFixedDelay {
		s.next = end.Add(s.interval)
		return
	}
	if s.next.IsZero() {
		s.next = start
	}
	for !s.next.After(end) {
		s.next = s.next.Add(s.interval)
	}
}

// Next returns the earliest time the next cycle may start.
func (s *schedule) Next() time.Time {
	return s.next
}
