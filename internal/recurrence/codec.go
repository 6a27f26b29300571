package recurrence

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// wireRule is the stored/JSON shape of a rule, e.g.
//
//	{"type":"weekly","atTime":"10:30","onDays":["MON","WED"]}
type wireRule struct {
	Type   Kind     `json:"type"`
	AtTime string   `json:"atTime"`
	Days   *int     `json:"days,omitempty"`
	OnDays []string `json:"onDays,omitempty"`
	OnDate *int     `json:"onDate,omitempty"`
}

// Encode serializes a rule to its JSON form
func Encode(rule Rule) ([]byte, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: no rule", ErrInvalidRule)
	}
	w := wireRule{Type: rule.Kind(), AtTime: rule.AtTime().String()}
	switch r := rule.(type) {
	case IntervalRule:
		w.Days = &r.EveryNDays
	case WeeklyRule:
		for _, d := range r.OnWeekdays {
			w.OnDays = append(w.OnDays, WeekdayName(d))
		}
	case MonthlyRule:
		w.OnDate = &r.OnDayOfMonth
	default:
		return nil, fmt.Errorf("%w: unsupported rule %T", ErrInvalidRule, rule)
	}
	return json.Marshal(w)
}

// Decode parses and validates a JSON rule. A payload that does not match
// its type field is rejected.
func Decode(data []byte) (Rule, error) {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	switch w.Type {
	case KindInterval:
		if w.Days == nil || w.OnDays != nil || w.OnDate != nil {
			return nil, fmt.Errorf("%w: interval rule takes only days", ErrInvalidRule)
		}
		return NewIntervalRule(*w.Days, w.AtTime)
	case KindWeekly:
		if w.OnDays == nil || w.Days != nil || w.OnDate != nil {
			return nil, fmt.Errorf("%w: weekly rule takes only onDays", ErrInvalidRule)
		}
		return NewWeeklyRule(w.OnDays, w.AtTime)
	case KindMonthly:
		if w.OnDate == nil || w.Days != nil || w.OnDays != nil {
			return nil, fmt.Errorf("%w: monthly rule takes only onDate", ErrInvalidRule)
		}
		return NewMonthlyRule(*w.OnDate, w.AtTime)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRule, w.Type)
	}
}

// Config wraps a Rule so it can live in a JSON document or a text column
type Config struct {
	Rule Rule
}

func (c Config) MarshalJSON() ([]byte, error) {
	return Encode(c.Rule)
}

func (c *Config) UnmarshalJSON(data []byte) error {
	rule, err := Decode(data)
	if err != nil {
		return err
	}
	c.Rule = rule
	return nil
}

// Value implements driver.Valuer
func (c Config) Value() (driver.Value, error) {
	data, err := Encode(c.Rule)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (c *Config) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalJSON([]byte(v))
	case []byte:
		return c.UnmarshalJSON(v)
	case nil:
		c.Rule = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into recurrence config", src)
	}
}
