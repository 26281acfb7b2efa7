package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cronField matches one field of a cron expression.
type cronField struct {
	wildcard bool
	step     int // "*/n"
	values   []int
}

func (f cronField) matches(val int) bool {
	switch {
	case f.step > 0:
		return val%f.step == 0
	case f.wildcard:
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField accepts "*", "*/n", "n" and comma lists of numbers.
func parseCronField(field string, lo, hi int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}
	if rest, ok := strings.CutPrefix(field, "*/"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n <= 0 {
			return cronField{}, fmt.Errorf("invalid step %q", field)
		}
		return cronField{step: n}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return cronField{}, fmt.Errorf("invalid value %q: %w", p, err)
		}
		if v < lo || v > hi {
			return cronField{}, fmt.Errorf("value %d outside %d-%d", v, lo, hi)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

type schedule struct {
	minute, hour, dayOfMonth, month, dayOfWeek cronField
}

func (s schedule) matches(t time.Time) bool {
	return s.minute.matches(t.Minute()) &&
		s.hour.matches(t.Hour()) &&
		s.dayOfMonth.matches(t.Day()) &&
		s.month.matches(int(t.Month())) &&
		s.dayOfWeek.matches(int(t.Weekday()))
}

func parseCron(expr string) (schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return schedule{}, fmt.Errorf("want 5 fields, got %d", len(fields))
	}
	bounds := [5]struct {
		name   string
		lo, hi int
	}{{"minute", 0, 59}, {"hour", 0, 23}, {"day-of-month", 1, 31}, {"month", 1, 12}, {"day-of-week", 0, 6}}

	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i].lo, bounds[i].hi)
		if err != nil {
			return schedule{}, fmt.Errorf("%s field: %w", bounds[i].name, err)
		}
		parsed[i] = cf
	}
	return schedule{parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]}, nil
}

// next returns the first minute strictly after t that matches, searching at
// most a year ahead.
func (s schedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for candidate.Before(limit) {
		if s.matches(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no match within a year")
}
