package model

import (
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in minutes since midnight. 24:00 is
// representable so a window can run to the end of the day.
type ClockTime int

const EndOfDay ClockTime = 24 * 60

// ParseClock parses "HH:MM" with exactly two digits on each side.
func ParseClock(s string) (ClockTime, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	h, hok := twoDigits(hh)
	m, mok := twoDigits(mm)
	if !ok || !hok || !mok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	if m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

func twoDigits(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) Duration() time.Duration {
	return time.Duration(c) * time.Minute
}

// On returns the instant at this clock time on day, which must be a UTC midnight.
func (c ClockTime) On(day time.Time) time.Time {
	return day.Add(c.Duration())
}

// ClockOf returns the UTC clock time of t, truncated to the minute.
func ClockOf(t time.Time) ClockTime {
	t = t.UTC()
	return ClockTime(t.Hour()*60 + t.Minute())
}
