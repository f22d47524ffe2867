package schedule

import (
	"cmp"
	"slices"
	"time"
)

// Candidate is a bookable start time together with the appointment length of
// the time slot that produced it.
type Candidate struct {
	Start   Clock
	Minutes int
}

func (c Candidate) End() Clock { return c.Start.Add(c.Minutes) }

// Candidates returns the ordered, start-deduplicated candidates for date.
//
// Unavailable schedules are inactive and ignored. An available dated schedule
// (exception, vacation, sick leave) in effect on date replaces every regular
// schedule for that day; if any of those is a leave, the day has no candidates.
func Candidates(schedules []Schedule, date time.Time) []Candidate {
	var regular, dated []Schedule
	for _, s := range schedules {
		if !s.Available || !s.AppliesOn(date) {
			continue
		}
		if s.Kind().Dated() {
			dated = append(dated, s)
			continue
		}
		regular = append(regular, s)
	}

	active := regular
	if len(dated) > 0 {
		for _, s := range dated {
			if _, leave := s.Rule.(Leave); leave {
				return nil
			}
		}
		active = dated
	}

	var out []Candidate
	for _, s := range active {
		for _, ts := range s.Slots {
			if !ts.Available {
				continue
			}
			for start := range ts.All() {
				out = append(out, Candidate{Start: start, Minutes: ts.AppointmentMinutes})
			}
		}
	}

	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Minutes, b.Minutes)
	})
	return slices.CompactFunc(out, func(a, b Candidate) bool { return a.Start == b.Start })
}

// Resolve returns the sorted, deduplicated start times bookable on date.
func Resolve(schedules []Schedule, date time.Time) []Clock {
	cands := Candidates(schedules, date)
	out := make([]Clock, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.Start)
	}
	return out
}
