package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// ParsedItem is a normalized VEVENT or VTODO before recurrence expansion.
type ParsedItem struct {
	Source Source
	Kind   model.ActivityKind

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Cancelled   bool

	// Start / End are zero when absent. For todos End is DUE.
	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID in the item's own timezone
	IsOverride bool
}

// ParseICS parses one feed body. Components that fail to parse are logged
// and skipped; only an unreadable calendar is an error.
func ParseICS(src Source, body []byte) ([]ParsedItem, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse calendar %s: %w", src.ID, err)
	}

	items := make([]ParsedItem, 0)

	for _, ve := range cal.Events() {
		it, err := parseVEvent(src, ve)
		if err != nil {
			appLog.Error("ics vevent parse failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		items = append(items, it)
	}

	for _, vt := range cal.Todos() {
		it, err := parseVTodo(src, vt)
		if err != nil {
			appLog.Error("ics vtodo parse failed", err, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		items = append(items, it)
	}

	appLog.Info("ics parse completed", "id", src.ID, "item_count", len(items))
	return items, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedItem, error) {
	out, err := parseCommon(src, model.KindEvent, &ve.ComponentBase)
	if err != nil {
		return out, err
	}

	// An event without a usable DTSTART is kept as unscheduled.
	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		appLog.Debug("ics vevent without start", "uid", out.UID)
		return out, nil
	}
	start, err := componentTime(dtStart, ve.GetStartAt)
	if err != nil {
		appLog.Debug("ics vevent without start", "uid", out.UID, "err", err.Error())
		return out, nil
	}
	out.Start = start
	out.AllDay = isDateValue(dtStart)
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if end, err := componentTime(p, ve.GetEndAt); err == nil {
			out.End = end
		}
	}

	// RFC 5545: without DTEND an all-day event lasts one day and a timed
	// event has zero duration.
	if out.End.IsZero() {
		if out.AllDay {
			out.End = out.Start.AddDate(0, 0, 1)
		} else {
			out.End = out.Start
		}
	}

	return out, nil
}

func parseVTodo(src Source, vt *ical.VTodo) (ParsedItem, error) {
	out, err := parseCommon(src, model.KindTask, &vt.ComponentBase)
	if err != nil {
		return out, err
	}

	// Either bound may be missing; such tasks stay unscheduled.
	if p := vt.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if t, err := propTime(p); err == nil {
			out.Start = t
			out.AllDay = isDateValue(p)
		}
	}
	if p := vt.GetProperty(ical.ComponentPropertyDue); p != nil {
		if t, err := propTime(p); err == nil {
			out.End = t
		}
	}

	return out, nil
}

func parseCommon(src Source, kind model.ActivityKind, cb *ical.ComponentBase) (ParsedItem, error) {
	out := ParsedItem{Source: src, Kind: kind}

	uidProp := cb.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := cb.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := cb.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := cb.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := cb.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := cb.GetProperty(ical.ComponentPropertyStatus); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	if p := cb.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range cb.GetProperties(ical.ComponentPropertyExdate) {
		loc := propLocation(p)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, loc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := cb.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := propTime(p); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// isDateValue reports whether a date property is a DATE (all-day) value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// floating holds DATE values and DATE-TIME values without a zone until
// Expand re-reads their wall clock in the display zone.
var floating = time.FixedZone("floating", 0)

// isFloating reports whether p carries neither a TZID nor a UTC suffix.
func isFloating(p *ical.IANAProperty) bool {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return false
	}
	return !strings.HasSuffix(strings.TrimSpace(p.Value), "Z")
}

// componentTime reads zoned values through the library so TZID is honored
// and keeps floating values as wall clock.
func componentTime(p *ical.IANAProperty, zoned func() (time.Time, error)) (time.Time, error) {
	if isFloating(p) {
		return parseICSTime(p.Value, floating)
	}
	return zoned()
}

// propLocation resolves the TZID parameter. Values without one are floating.
func propLocation(p *ical.IANAProperty) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return floating
}

func propTime(p *ical.IANAProperty) (time.Time, error) {
	return parseICSTime(p.Value, propLocation(p))
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = floating
	}

	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
