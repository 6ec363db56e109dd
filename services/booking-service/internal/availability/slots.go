package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/model"
)

// DefaultInterval is the step between candidate slot starts.
const DefaultInterval = 30 * time.Minute

const dateLayout = "2006-01-02"

// Slot is one candidate start produced from a rule.
type Slot struct {
	Time   model.ClockTime
	Start  time.Time
	End    time.Time
	RuleID string
}

// NormalizeDate returns midnight UTC of t's calendar date, read in t's own location.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func FormatDate(t time.Time) string {
	return NormalizeDate(t).Format(dateLayout)
}

// GenerateSlots expands the active rules for date's weekday into slots of
// length duration, starting every step from each rule's start. A slot is only
// emitted when it ends at or before the rule's end. Slots from several rules
// are merged in start order; equal starts are kept.
func GenerateSlots(rules []model.AvailabilityRule, date time.Time, duration, step time.Duration) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	day := NormalizeDate(date)
	weekday := day.Weekday()

	var slots []Slot
	for _, rule := range rules {
		if !rule.Active || rule.DayOfWeek != weekday || rule.Start >= rule.End {
			continue
		}
		windowStart := rule.Start.On(day)
		windowEnd := rule.End.On(day)
		for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
			slots = append(slots, Slot{
				Time:   model.ClockOf(t),
				Start:  t,
				End:    t.Add(duration),
				RuleID: rule.ID,
			})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}
