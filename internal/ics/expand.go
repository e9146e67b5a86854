package ics

import (
	"cmp"
	"errors"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

const defaultMaxOccurrencesPerItem = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone all activities are converted to. DATE and
	// floating values are read as wall clock in it. If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the window, inclusive.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerItem caps the expansion of a single recurring item.
	MaxOccurrencesPerItem int
}

// ExpandResult holds expanded activities ordered by start, then ID.
type ExpandResult struct {
	Activities []model.Activity
	// TruncatedUIDs lists UIDs that hit MaxOccurrencesPerItem.
	TruncatedUIDs []string
}

// Expand turns parsed items into concrete activities inside the window,
// applying RRULE, EXDATE and RECURRENCE-ID overrides. Unscheduled items
// pass through when their known bound (if any) is inside the window.
func Expand(items []ParsedItem, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerItem <= 0 {
		cfg.MaxOccurrencesPerItem = defaultMaxOccurrencesPerItem
	}

	type key struct{ source, uid string }
	var order []key
	base := make(map[key][]ParsedItem)
	overrides := make(map[key][]ParsedItem)

	for _, it := range items {
		it = anchorItem(it, cfg.DisplayLocation)
		k := key{it.Source.ID, it.UID}
		if it.IsOverride && it.Recurrence != nil {
			overrides[k] = append(overrides[k], it)
			continue
		}
		if _, seen := base[k]; !seen {
			order = append(order, k)
		}
		base[k] = append(base[k], it)
	}

	out := make([]model.Activity, 0, len(items))

	for _, k := range order {
		ov := overrides[k]
		truncated := false

		for _, it := range base[k] {
			acts, hitCap := expandItem(it, ov, cfg)
			truncated = truncated || hitCap
			out = append(out, acts...)
		}

		if truncated {
			result.TruncatedUIDs = append(result.TruncatedUIDs, k.uid)
			appLog.Error("expand: truncated occurrences due to cap",
				errors.New("max occurrences reached"),
				"uid", k.uid,
				"cap", cfg.MaxOccurrencesPerItem,
			)
		}
	}

	slices.SortStableFunc(out, func(a, b model.Activity) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	result.Activities = out
	return result, nil
}

func expandItem(it ParsedItem, overrides []ParsedItem, cfg ExpandConfig) ([]model.Activity, bool) {
	switch {
	case it.Start.IsZero() || it.End.IsZero():
		return expandUnscheduled(it, cfg), false
	case it.RawRRule == "":
		return expandSingle(it, overrides, cfg), false
	default:
		return expandRecurring(it, overrides, cfg)
	}
}

func expandUnscheduled(it ParsedItem, cfg ExpandConfig) []model.Activity {
	for _, bound := range []time.Time{it.Start, it.End} {
		if !bound.IsZero() && !inRange(bound, cfg.RangeStart, cfg.RangeEnd) {
			return nil
		}
	}
	return []model.Activity{makeActivity(it, it.Start, it.End, cfg.DisplayLocation)}
}

func expandSingle(it ParsedItem, overrides []ParsedItem, cfg ExpandConfig) []model.Activity {
	start, end := it.Start, it.End

	if o, ok := findOverride(overrides, start); ok {
		start, end = o.Start, o.End
		it = o
	}

	if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.Activity{makeActivity(it, start, end, cfg.DisplayLocation)}
}

func expandRecurring(it ParsedItem, overrides []ParsedItem, cfg ExpandConfig) ([]model.Activity, bool) {
	r, err := rrule.StrToRRule(it.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", it.UID, "rrule", it.RawRRule)
		return nil, false
	}
	r.DTStart(it.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range it.ExDates {
		set.ExDate(ex.In(it.Start.Location()))
	}

	dur := it.End.Sub(it.Start)

	// Widen the lower bound by the duration so occurrences already running
	// at RangeStart are included.
	loc := it.Start.Location()
	queryStart, queryEnd := cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc)
	starts := set.Between(queryStart, queryEnd, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerItem {
		starts = starts[:cfg.MaxOccurrencesPerItem]
		hitCap = true
	}

	out := make([]model.Activity, 0, len(starts))
	emit := func(src ParsedItem, s, e time.Time) {
		if timeRangesOverlap(s, e, cfg.RangeStart, cfg.RangeEnd) {
			out = append(out, makeActivity(src, s, e, cfg.DisplayLocation))
		}
	}

	for _, s := range starts {
		var e time.Time
		if it.AllDay {
			day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			s, e = day, day.AddDate(0, 0, max(1, int(dur.Hours()/24)))
		} else {
			e = s.Add(dur)
		}

		if o, ok := findOverride(overrides, s); ok {
			emit(o, o.Start, o.End)
			continue
		}
		emit(it, s, e)
	}

	// Overrides whose original slot lies outside the query may still have
	// been moved into the window.
	for _, o := range overrides {
		rec := *o.Recurrence
		if inRange(rec, queryStart, queryEnd) {
			continue
		}
		if len(set.Between(rec, rec, true)) == 0 {
			continue
		}
		emit(o, o.Start, o.End)
	}

	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedItem, start time.Time) (ParsedItem, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedItem{}, false
}

func makeActivity(it ParsedItem, start, end time.Time, loc *time.Location) model.Activity {
	a := model.Activity{
		Kind:         it.Kind,
		SourceID:     it.Source.ID,
		UID:          it.UID,
		Title:        it.Summary,
		Description:  it.Description,
		Location:     it.Location,
		Organization: it.Source.Organization,
		AllDay:       it.AllDay,
		Cancelled:    it.Cancelled,
	}
	if it.AllDay {
		start, end = wallDate(start, loc), wallDate(end, loc)
	}
	if !start.IsZero() {
		a.Start = start.In(loc)
		a.InstanceKey = a.Start.Format(time.RFC3339Nano)
	}
	if !end.IsZero() {
		a.End = end.In(loc)
	}
	a.ID = model.ActivityID(a.SourceID, a.UID, a.InstanceKey)
	return a
}

// anchorItem moves floating values of it into loc, keeping their wall clock.
func anchorItem(it ParsedItem, loc *time.Location) ParsedItem {
	it.Start = anchor(it.Start, loc)
	it.End = anchor(it.End, loc)
	if len(it.ExDates) > 0 {
		exDates := make([]time.Time, len(it.ExDates))
		for i, ex := range it.ExDates {
			exDates[i] = anchor(ex, loc)
		}
		it.ExDates = exDates
	}
	if it.Recurrence != nil {
		rec := anchor(*it.Recurrence, loc)
		it.Recurrence = &rec
	}
	return it
}

func anchor(t time.Time, loc *time.Location) time.Time {
	if t.Location() != floating {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// wallDate is midnight in loc of t's calendar date in its own zone.
func wallDate(t time.Time, loc *time.Location) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
