// Package recurrence expands a repeat rule and an anchor time into the
// bounded sequence of future occurrences the scheduler plans against.
package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"
)

type Type string

const (
	None    Type = "none"
	Daily   Type = "daily"
	Weekly  Type = "weekly"
	Monthly Type = "monthly"
)

// Rule describes how an event repeats. Weekdays use 0=Monday..6=Sunday.
// MonthDay is a calendar day 1..31; months lacking that day are skipped,
// never rolled over.
type Rule struct {
	Type     Type  `json:"type"`
	Weekdays []int `json:"weekdays,omitempty"`
	MonthDay int   `json:"monthDay,omitempty"`
}

// Forward horizons per rule type, in days.
const (
	dailyHorizon   = 7
	weeklyHorizon  = 30
	monthlyHorizon = 90
)

var rruleWeekdays = [7]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// Expand returns the occurrence dates for rule starting at anchor, sorted
// ascending, all >= anchor, all within the rule's horizon. An unknown or
// malformed rule degrades to the single-anchor sequence; an expansion is
// never an error.
func Expand(rule Rule, anchor time.Time) []time.Time {
	switch rule.Type {
	case Daily:
		return expand(rrule.ROption{
			Freq:    rrule.DAILY,
			Dtstart: anchor,
			Count:   dailyHorizon + 1, // anchor plus the next 7 days
		}, anchor, anchor.AddDate(0, 0, dailyHorizon))
	case Weekly:
		byday := make([]rrule.Weekday, 0, len(rule.Weekdays))
		for _, wd := range rule.Weekdays {
			if wd >= 0 && wd <= 6 {
				byday = append(byday, rruleWeekdays[wd])
			}
		}
		if len(byday) == 0 {
			return nil
		}
		return expand(rrule.ROption{
			Freq:      rrule.WEEKLY,
			Dtstart:   anchor,
			Byweekday: byday,
			Until:     anchor.AddDate(0, 0, weeklyHorizon),
		}, anchor, anchor.AddDate(0, 0, weeklyHorizon))
	case Monthly:
		if rule.MonthDay < 1 || rule.MonthDay > 31 {
			return []time.Time{anchor}
		}
		return expand(rrule.ROption{
			Freq:       rrule.MONTHLY,
			Dtstart:    anchor,
			Bymonthday: []int{rule.MonthDay},
			Until:      anchor.AddDate(0, 0, monthlyHorizon),
		}, anchor, anchor.AddDate(0, 0, monthlyHorizon))
	default:
		return []time.Time{anchor}
	}
}

func expand(opt rrule.ROption, from, until time.Time) []time.Time {
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return []time.Time{from}
	}
	occs := r.Between(from, until, true)
	out := make([]time.Time, 0, len(occs))
	loc := from.Location()
	for _, t := range occs {
		out = append(out, t.In(loc))
	}
	return out
}

// FirstAfter returns the earliest occurrence strictly after now, if any.
// An event is considered active exactly when such an occurrence exists.
func FirstAfter(rule Rule, anchor time.Time, now time.Time) (time.Time, bool) {
	for _, occ := range Expand(rule, anchor) {
		if occ.After(now) {
			return occ, true
		}
	}
	return time.Time{}, false
}
