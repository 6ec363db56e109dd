package availability

import "time"

// Interval is a half-open range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [a.Start,a.End) and [b.Start,b.End) share an
// instant: a.Start < b.End && b.Start < a.End. Ranges that only touch do not.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func overlapsAny(window Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(window, b) {
			return true
		}
	}
	return false
}

// dayWindow is [midnight, midnight+24h) of day in UTC.
func dayWindow(day time.Time) Interval {
	start := NormalizeDate(day)
	return Interval{Start: start, End: start.Add(24 * time.Hour)}
}
