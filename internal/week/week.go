// Package week lays activities out on a seven-day grid and collapses crowded
// time slots with the overlap clusterer.
package week

import (
	"slices"
	"time"

	"weekcal/internal/cluster"
	"weekcal/internal/model"
)

// Options controls how a week is built.
type Options struct {
	// Reference is any instant inside the wanted week.
	Reference time.Time
	// FirstDay is the weekday each week starts on.
	FirstDay time.Weekday
	// Location is the display zone; nil means time.Local.
	Location *time.Location

	ShowAllDay    bool
	HideCancelled bool
}

// Day is one column of the week.
type Day struct {
	Date   time.Time                        `json:"date"` // midnight in the display zone
	AllDay []model.Activity                 `json:"all_day"`
	Slots  []cluster.Result[model.Activity] `json:"slots"`
}

// Week is the rendered grid.
type Week struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"` // exclusive
	Days  [7]Day    `json:"days"`
	// Unscheduled activities whose known bound, if any, falls in the week.
	Unscheduled []model.Activity `json:"unscheduled"`
}

// Bounds returns [start, end) of the week containing ref.
func Bounds(ref time.Time, first time.Weekday, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	ref = ref.In(loc)
	offset := (int(ref.Weekday()) - int(first) + 7) % 7
	start := time.Date(ref.Year(), ref.Month(), ref.Day()-offset, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 7)
}

// Build places activities on the week grid. Timed activities are bucketed by
// their start day, sorted by start and clustered per day.
func Build(activities []model.Activity, opts Options) Week {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	start, end := Bounds(opts.Reference, opts.FirstDay, loc)

	w := Week{Start: start, End: end}
	var timed [7][]model.Activity

	for i := range w.Days {
		w.Days[i].Date = start.AddDate(0, 0, i)
	}

	for _, a := range activities {
		if opts.HideCancelled && a.Cancelled {
			continue
		}

		if !a.Scheduled() {
			if boundInWeek(a, start, end) {
				w.Unscheduled = append(w.Unscheduled, a)
			}
			continue
		}

		if a.AllDay {
			if !opts.ShowAllDay {
				continue
			}
			// All-day items show on every day they cover.
			for i, d := range w.Days {
				next := d.Date.AddDate(0, 0, 1)
				if a.Start.Before(next) && a.End.After(d.Date) {
					w.Days[i].AllDay = append(w.Days[i].AllDay, a)
				}
			}
			continue
		}

		idx := dayIndex(a.Start.In(loc), start)
		if idx < 0 || idx > 6 {
			continue
		}
		timed[idx] = append(timed[idx], a)
	}

	for i := range timed {
		slices.SortStableFunc(timed[i], func(a, b model.Activity) int {
			return a.Start.Compare(b.Start)
		})
		w.Days[i].Slots = cluster.Cluster(timed[i])
	}

	return w
}

// dayIndex counts calendar days from weekStart, which is robust across DST
// transitions where a day is not 24h long.
func dayIndex(t, weekStart time.Time) int {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, weekStart.Location())
	for i := 0; i < 7; i++ {
		if weekStart.AddDate(0, 0, i).Equal(day) {
			return i
		}
	}
	return -1
}

func boundInWeek(a model.Activity, start, end time.Time) bool {
	switch {
	case !a.Start.IsZero():
		return !a.Start.Before(start) && a.Start.Before(end)
	case !a.End.IsZero():
		return !a.End.Before(start) && a.End.Before(end)
	default:
		return true
	}
}
