package coordinator

import "time"

// Schedule owns the queue of future fetch-trigger timestamps. It covers
// the current and next 24-hour windows, both anchored at local midnight
// and evenly divided into a fixed number of slots. The queue is sorted
// ascending by construction.
//
// Schedule is not safe for concurrent use; the Coordinator serializes
// access to it.
type Schedule struct {
	divisions int
	loc       *time.Location
	queue     []time.Time
}

// NewSchedule creates a schedule with the given number of divisions per
// 24-hour window, computed in the given location.
func NewSchedule(divisions int, loc *time.Location) *Schedule {
	if divisions <= 0 {
		divisions = DefaultDivisions
	}
	if loc == nil {
		loc = time.Local
	}
	return &Schedule{divisions: divisions, loc: loc}
}

// Recompute rebuilds the queue for the windows starting at today's and
// tomorrow's local midnights, keeping only entries after now.
func (s *Schedule) Recompute(now time.Time) {
	local := now.In(s.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	s.queue = s.queue[:0]
	for day := 0; day < 2; day++ {
		start := midnight.AddDate(0, 0, day)
		end := start.AddDate(0, 0, 1)
		step := end.Sub(start) / time.Duration(s.divisions)
		for i := 0; i < s.divisions; i++ {
			entry := start.Add(time.Duration(i) * step)
			if entry.After(now) {
				s.queue = append(s.queue, entry)
			}
		}
	}
}

// DropPast removes entries at or before now from the head of the queue.
func (s *Schedule) DropPast(now time.Time) {
	i := 0
	for i < len(s.queue) && !s.queue[i].After(now) {
		i++
	}
	s.queue = s.queue[i:]
}

// Head returns the earliest queued timestamp.
func (s *Schedule) Head() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0], true
}

// Pop removes and returns the earliest queued timestamp.
func (s *Schedule) Pop() (time.Time, bool) {
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	return head, true
}

// Len returns the number of queued timestamps.
func (s *Schedule) Len() int {
	return len(s.queue)
}

// NextMidnight returns the next local midnight after now, when the
// schedule is due for recomputation.
func (s *Schedule) NextMidnight(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 1)
}
