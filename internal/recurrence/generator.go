package recurrence

import (
	"fmt"
	"time"
)

// horizonMonths is how far a single Generate call looks ahead. Longer
// horizons come from calling Generate again with a later window.
const horizonMonths = 1

// Generate expands rule into the ordered occurrence instants inside
// [windowStart, HorizonEnd(windowStart)). All arithmetic happens in UTC.
//
// An empty result is not an error: a monthly rule whose day does not exist
// in the window simply yields nothing.
func Generate(rule Rule, windowStart time.Time) ([]time.Time, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: no rule", ErrInvalidRule)
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	start := windowStart.UTC()
	end := HorizonEnd(start)

	switch r := rule.(type) {
	case IntervalRule:
		return intervalDates(r, start, end), nil
	case WeeklyRule:
		return weeklyDates(r, start, end), nil
	case MonthlyRule:
		return monthlyDates(r, start, end), nil
	default:
		return nil, fmt.Errorf("%w: unsupported rule %T", ErrInvalidRule, rule)
	}
}

// HorizonEnd is the exclusive end of the window starting at windowStart
func HorizonEnd(windowStart time.Time) time.Time {
	return AddMonths(windowStart.UTC(), horizonMonths)
}

// NextWindowStart returns where generation resumes after an occurrence at
// last: one interval later for interval rules, the next day otherwise.
func NextWindowStart(rule Rule, last time.Time) time.Time {
	if r, ok := rule.(IntervalRule); ok {
		return last.UTC().AddDate(0, 0, r.EveryNDays)
	}
	return last.UTC().AddDate(0, 0, 1)
}

// FirstSlot returns the earliest instant at or after t that falls on the
// rule's time of day
func FirstSlot(rule Rule, t time.Time) time.Time {
	t = t.UTC()
	slot := rule.AtTime().on(t)
	if slot.Before(t) {
		slot = rule.AtTime().on(t.AddDate(0, 0, 1))
	}
	return slot
}

func intervalDates(r IntervalRule, start, end time.Time) []time.Time {
	var dates []time.Time

	current := r.At.on(start)
	for current.Before(start) {
		current = current.AddDate(0, 0, r.EveryNDays)
	}
	for current.Before(end) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, r.EveryNDays)
	}
	return dates
}

func weeklyDates(r WeeklyRule, start, end time.Time) []time.Time {
	var dates []time.Time

	current := r.At.on(start)
	for current.Before(start) || !r.includes(current.Weekday()) {
		current = current.AddDate(0, 0, 1)
	}
	for current.Before(end) {
		if r.includes(current.Weekday()) {
			dates = append(dates, current)
		}
		current = current.AddDate(0, 0, 1)
	}
	return dates
}

func monthlyDates(r MonthlyRule, start, end time.Time) []time.Time {
	var dates []time.Time

	y, m, _ := start.Date()
	for month := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC); month.Before(end); month = month.AddDate(0, 1, 0) {
		if r.OnDayOfMonth > DaysIn(month.Year(), month.Month()) {
			continue
		}
		candidate := time.Date(month.Year(), month.Month(), r.OnDayOfMonth, r.At.Hour, r.At.Minute, 0, 0, time.UTC)
		if candidate.Before(start) || !candidate.Before(end) {
			continue
		}
		dates = append(dates, candidate)
	}
	return dates
}

// AddMonths adds n calendar months, clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := DaysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// DaysIn reports the number of days in month
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
