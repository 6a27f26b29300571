package recurrence

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which variant a Rule is
type Kind string

const (
	KindInterval Kind = "interval"
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
)

// ErrInvalidRule is returned when a recurrence configuration is malformed
var ErrInvalidRule = errors.New("invalid recurrence rule")

var timeOfDayPattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):([0-5][0-9])$`)

// TimeOfDay is a UTC wall-clock time in 24h format
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses an "HH:MM" string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	m := timeOfDayPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("%w: atTime %q is not HH:MM", ErrInvalidRule, s)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: atTime %02d:%02d out of range", ErrInvalidRule, t.Hour, t.Minute)
	}
	return nil
}

// on returns the instant at this time of day on day's UTC date.
func (t TimeOfDay) on(day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, time.UTC)
}

// Rule describes when a recurring task is due. The set of implementations is
// closed: IntervalRule, WeeklyRule and MonthlyRule.
type Rule interface {
	Kind() Kind
	AtTime() TimeOfDay
	Validate() error

	sealed()
}

// IntervalRule repeats every EveryNDays days
type IntervalRule struct {
	EveryNDays int
	At         TimeOfDay
}

func (IntervalRule) Kind() Kind          { return KindInterval }
func (r IntervalRule) AtTime() TimeOfDay { return r.At }
func (IntervalRule) sealed()             {}

func (r IntervalRule) Validate() error {
	if r.EveryNDays <= 0 {
		return fmt.Errorf("%w: interval days must be positive, got %d", ErrInvalidRule, r.EveryNDays)
	}
	return r.At.validate()
}

// WeeklyRule repeats on a fixed set of weekdays
type WeeklyRule struct {
	OnWeekdays []time.Weekday
	At         TimeOfDay
}

func (WeeklyRule) Kind() Kind          { return KindWeekly }
func (r WeeklyRule) AtTime() TimeOfDay { return r.At }
func (WeeklyRule) sealed()             {}

func (r WeeklyRule) Validate() error {
	if len(r.OnWeekdays) == 0 {
		return fmt.Errorf("%w: weekly rule needs at least one weekday", ErrInvalidRule)
	}
	for _, d := range r.OnWeekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidRule, d)
		}
	}
	return r.At.validate()
}

func (r WeeklyRule) includes(d time.Weekday) bool {
	for _, w := range r.OnWeekdays {
		if w == d {
			return true
		}
	}
	return false
}

// MonthlyRule repeats on a fixed day of the month. Months that do not have
// that day are skipped.
type MonthlyRule struct {
	OnDayOfMonth int
	At           TimeOfDay
}

func (MonthlyRule) Kind() Kind          { return KindMonthly }
func (r MonthlyRule) AtTime() TimeOfDay { return r.At }
func (MonthlyRule) sealed()             {}

func (r MonthlyRule) Validate() error {
	if r.OnDayOfMonth < 1 || r.OnDayOfMonth > 31 {
		return fmt.Errorf("%w: day of month must be 1..31, got %d", ErrInvalidRule, r.OnDayOfMonth)
	}
	return r.At.validate()
}

// NewIntervalRule builds a validated IntervalRule
func NewIntervalRule(everyNDays int, atTime string) (IntervalRule, error) {
	at, err := ParseTimeOfDay(atTime)
	if err != nil {
		return IntervalRule{}, err
	}
	r := IntervalRule{EveryNDays: everyNDays, At: at}
	return r, r.Validate()
}

// NewWeeklyRule builds a validated WeeklyRule from day names (MON..SUN)
func NewWeeklyRule(days []string, atTime string) (WeeklyRule, error) {
	at, err := ParseTimeOfDay(atTime)
	if err != nil {
		return WeeklyRule{}, err
	}
	weekdays, err := ParseWeekdays(days)
	if err != nil {
		return WeeklyRule{}, err
	}
	r := WeeklyRule{OnWeekdays: weekdays, At: at}
	return r, r.Validate()
}

// NewMonthlyRule builds a validated MonthlyRule
func NewMonthlyRule(dayOfMonth int, atTime string) (MonthlyRule, error) {
	at, err := ParseTimeOfDay(atTime)
	if err != nil {
		return MonthlyRule{}, err
	}
	r := MonthlyRule{OnDayOfMonth: dayOfMonth, At: at}
	return r, r.Validate()
}

var weekdayNames = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// ParseWeekdays converts MON..SUN names into a sorted, de-duplicated set
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool, len(names))
	days := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		d, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRule, name)
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// WeekdayName returns the MON..SUN name of d
func WeekdayName(d time.Weekday) string {
	return strings.ToUpper(d.String()[:3])
}
