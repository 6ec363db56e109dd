package model

import (
	"fmt"
	"sort"
	"time"
)

type ScopeKind string

const (
	ServiceScope      ScopeKind = "service"
	ProfessionalScope ScopeKind = "professional"
)

// Scope names who an availability rule belongs to.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func ServiceScopeOf(serviceID string) Scope { return Scope{Kind: ServiceScope, ID: serviceID} }

func ProfessionalScopeOf(professionalID string) Scope {
	return Scope{Kind: ProfessionalScope, ID: professionalID}
}

func (s Scope) Valid() bool {
	return (s.Kind == ServiceScope || s.Kind == ProfessionalScope) && s.ID != ""
}

func (s Scope) String() string { return string(s.Kind) + ":" + s.ID }

// AvailabilityRule is one recurring weekly open window.
type AvailabilityRule struct {
	ID        string
	TenantID  string
	Scope     Scope
	DayOfWeek time.Weekday
	Start     ClockTime
	End       ClockTime
	Active    bool
}

func (r AvailabilityRule) Validate() error {
	if !r.Scope.Valid() {
		return fmt.Errorf("rule scope must be a service or professional id")
	}
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return fmt.Errorf("day_of_week must be between 0 and 6")
	}
	if r.Start < 0 || r.End > EndOfDay {
		return fmt.Errorf("rule times must fall within the day")
	}
	if r.Start >= r.End {
		return fmt.Errorf("start_time must be before end_time")
	}
	return nil
}

// Overlaps reports whether two rules for the same scope and day share any
// minute. Touching windows (09:00-12:00, 12:00-17:00) do not overlap.
func (r AvailabilityRule) Overlaps(o AvailabilityRule) bool {
	return r.Scope == o.Scope && r.DayOfWeek == o.DayOfWeek && r.Start < o.End && o.Start < r.End
}

// WeeklySchedule indexes rules by time.Weekday.
type WeeklySchedule [7][]AvailabilityRule

// WeekOf groups rules by weekday, each day sorted by start time.
func WeekOf(rules []AvailabilityRule) WeeklySchedule {
	var w WeeklySchedule
	for _, r := range rules {
		if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
			continue
		}
		w[r.DayOfWeek] = append(w[r.DayOfWeek], r)
	}
	for d := range w {
		sort.SliceStable(w[d], func(i, j int) bool { return w[d][i].Start < w[d][j].Start })
	}
	return w
}

func (w WeeklySchedule) On(day time.Weekday) []AvailabilityRule {
	if day < time.Sunday || day > time.Saturday {
		return nil
	}
	return w[day]
}
