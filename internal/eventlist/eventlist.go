// Package eventlist filters the "all events" feed by organization and date
// range and groups it by day.
package eventlist

import (
	"slices"
	"time"

	"weekcal/internal/model"
)

// Filter selects activities. Zero values disable the corresponding check.
type Filter struct {
	// OrgIDs keeps only activities of these organizations.
	OrgIDs []int
	// Start is the first selected day. End, if set, is the last selected day
	// (inclusive); without it only Start's day is selected.
	Start time.Time
	End   time.Time
	// Location decides day boundaries; nil means time.Local.
	Location *time.Location
}

// Active reports whether any criterion is set.
func (f Filter) Active() bool {
	return len(f.OrgIDs) > 0 || !f.Start.IsZero()
}

// Apply returns the activities matching f, in input order.
func Apply(activities []model.Activity, f Filter) []model.Activity {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}

	out := make([]model.Activity, 0, len(activities))
	for _, a := range activities {
		if len(f.OrgIDs) > 0 && !slices.Contains(f.OrgIDs, a.Organization.ID) {
			continue
		}
		if !f.Start.IsZero() && !matchesDates(a, f.Start, f.End, loc) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func matchesDates(a model.Activity, start, end time.Time, loc *time.Location) bool {
	if !a.Scheduled() {
		return false
	}
	evStart := a.Start.In(loc)
	evEnd := a.End.In(loc)
	startDay := day(start, loc)

	if end.IsZero() {
		ongoing := evStart.Before(start) && evEnd.After(start)
		return ongoing || day(evStart, loc).Equal(startDay) || day(evEnd, loc).Equal(startDay)
	}

	endDay := day(end, loc)
	sDay := day(evStart, loc)
	eDay := day(evEnd, loc)

	ongoing := sDay.Before(startDay) && eDay.After(endDay)
	startsInPeriod := !sDay.Before(startDay) && !sDay.After(endDay)
	endsInPeriod := !eDay.Before(startDay) && !eDay.After(endDay)
	return ongoing || startsInPeriod || endsInPeriod
}

// DayBucket holds the activities starting on one date.
type DayBucket struct {
	Date       string           `json:"date"` // 2006-01-02 in the grouping zone
	Activities []model.Activity `json:"activities"`
}

// GroupByDay buckets scheduled activities by start date. Buckets are sorted by
// date; activities keep their input order. Activities without a start are
// left out.
func GroupByDay(activities []model.Activity, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.Local
	}

	idx := make(map[string]int)
	var buckets []DayBucket
	for _, a := range activities {
		if a.Start.IsZero() {
			continue
		}
		key := a.Start.In(loc).Format(time.DateOnly)
		i, ok := idx[key]
		if !ok {
			i = len(buckets)
			idx[key] = i
			buckets = append(buckets, DayBucket{Date: key})
		}
		buckets[i].Activities = append(buckets[i].Activities, a)
	}

	slices.SortStableFunc(buckets, func(a, b DayBucket) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return buckets
}

// Organizations lists the distinct organizations in order of first appearance.
func Organizations(activities []model.Activity) []model.Organization {
	seen := make(map[int]bool)
	var out []model.Organization
	for _, a := range activities {
		if seen[a.Organization.ID] {
			continue
		}
		seen[a.Organization.ID] = true
		out = append(out, a.Organization)
	}
	return out
}

// MoreThanOneOrg reports whether the organization filter is worth offering.
func MoreThanOneOrg(activities []model.Activity) bool {
	return len(Organizations(activities)) > 1
}

func day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
