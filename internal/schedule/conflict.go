package schedule

// Conflict pairs an existing schedule with the kind of clash it has with a candidate.
// Override marks a dated schedule landing on a regular schedule's weekday: the dated
// one wins during resolution, so callers may accept it.
type Conflict struct {
	Existing Schedule
	Override bool
}

// Conflicts reports whether a and b, both belonging to the same doctor, cover a
// common day within overlapping effective ranges. An unavailable schedule is
// inactive and conflicts with nothing.
func Conflicts(a, b Schedule) bool {
	_, ok := conflictBetween(a, b)
	return ok
}

func conflictBetween(a, b Schedule) (override bool, ok bool) {
	if a.DoctorID != b.DoctorID || a.Rule == nil || b.Rule == nil || !a.Available || !b.Available {
		return false, false
	}
	if !rangesOverlap(a, b) {
		return false, false
	}

	ad, aDated := ruleDate(a.Rule)
	bd, bDated := ruleDate(b.Rule)
	switch {
	case !aDated && !bDated:
		return false, a.Rule.(Regular).Weekday == b.Rule.(Regular).Weekday
	case aDated && bDated:
		return false, SameDate(ad, bd)
	case aDated:
		return true, b.AppliesOn(ad)
	default:
		return true, a.AppliesOn(bd)
	}
}

func rangesOverlap(a, b Schedule) bool {
	if a.EffectiveTo != nil && DateOf(b.EffectiveFrom).After(DateOf(*a.EffectiveTo)) {
		return false
	}
	if b.EffectiveTo != nil && DateOf(a.EffectiveFrom).After(DateOf(*b.EffectiveTo)) {
		return false
	}
	return true
}

// FindConflicts scans existing schedules for clashes with candidate. A schedule
// with the candidate's own ID is skipped so updates do not clash with themselves,
// and deactivated schedules are skipped so they can be replaced.
func FindConflicts(candidate Schedule, existing []Schedule) []Conflict {
	var out []Conflict
	for _, s := range existing {
		if s.ID == candidate.ID {
			continue
		}
		if override, ok := conflictBetween(candidate, s); ok {
			out = append(out, Conflict{Existing: s, Override: override})
		}
	}
	return out
}

// Blocking filters out override conflicts.
func Blocking(conflicts []Conflict) []Conflict {
	var out []Conflict
	for _, c := range conflicts {
		if !c.Override {
			out = append(out, c)
		}
	}
	return out
}
