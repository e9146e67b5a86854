package eventlist

import (
	"testing"
	"time"
	_ "time/tzdata"

	"weekcal/internal/ics"
	"weekcal/internal/model"
)

func ev(id string, org int, start, end time.Time) model.Activity {
	return model.Activity{
		ID:           id,
		Kind:         model.KindEvent,
		Organization: model.Organization{ID: org, Title: "org"},
		Start:        start,
		End:          end,
	}
}

func d(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func ids(as []model.Activity) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var fixture = []model.Activity{
	ev("before", 1, d(1, 9), d(1, 10)),
	ev("multi", 2, d(2, 9), d(9, 17)), // spans the whole period
	ev("start5", 1, d(5, 9), d(5, 10)),
	ev("ends5", 2, d(4, 20), d(5, 2)),
	ev("start6", 3, d(6, 9), d(6, 10)),
	ev("after", 1, d(12, 9), d(12, 10)),
	{ID: "unscheduled", Organization: model.Organization{ID: 1}},
}

func TestApply(t *testing.T) {
	cases := []struct {
		name string
		f    Filter
		want []string
	}{
		{
			name: "no filter",
			f:    Filter{},
			want: []string{"before", "multi", "start5", "ends5", "start6", "after", "unscheduled"},
		},
		{
			name: "orgs",
			f:    Filter{OrgIDs: []int{2, 3}},
			want: []string{"multi", "ends5", "start6"},
		},
		{
			name: "single day",
			f:    Filter{Start: d(5, 0), Location: time.UTC},
			want: []string{"multi", "start5", "ends5"},
		},
		{
			name: "period",
			f:    Filter{Start: d(5, 0), End: d(6, 0), Location: time.UTC},
			want: []string{"multi", "start5", "ends5", "start6"},
		},
		{
			name: "period and org",
			f:    Filter{OrgIDs: []int{1}, Start: d(5, 0), End: d(6, 0), Location: time.UTC},
			want: []string{"start5"},
		},
		{
			name: "period ending before multi ends",
			f:    Filter{Start: d(3, 0), End: d(4, 0), Location: time.UTC},
			want: []string{"multi", "ends5"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ids(Apply(fixture, tc.f))
			if !equal(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGroupByDay(t *testing.T) {
	in := []model.Activity{
		ev("b", 1, d(6, 9), d(6, 10)),
		ev("a1", 1, d(5, 12), d(5, 13)),
		ev("a2", 1, d(5, 8), d(5, 9)),
		{ID: "none"},
	}

	got := GroupByDay(in, time.UTC)
	if len(got) != 2 {
		t.Fatalf("got %d buckets, want 2", len(got))
	}
	if got[0].Date != "2024-03-05" || !equal(ids(got[0].Activities), []string{"a1", "a2"}) {
		t.Fatalf("first bucket = %s %v", got[0].Date, ids(got[0].Activities))
	}
	if got[1].Date != "2024-03-06" || !equal(ids(got[1].Activities), []string{"b"}) {
		t.Fatalf("second bucket = %s %v", got[1].Date, ids(got[1].Activities))
	}
}

func TestGroupByDay_UsesZone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	got := GroupByDay([]model.Activity{ev("x", 1, d(5, 2), d(5, 3))}, loc)
	if len(got) != 1 || got[0].Date != "2024-03-04" {
		t.Fatalf("buckets = %+v, want 2024-03-04", got)
	}
}

func TestGroupByDay_AllDayFeedEventKeepsItsDate(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	body := []byte("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//weekcal//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:fair@example.org\r\n" +
		"DTSTART;VALUE=DATE:20240306\r\nDTEND;VALUE=DATE:20240307\r\n" +
		"SUMMARY:Book fair\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n")
	items, err := ics.ParseICS(ics.Source{ID: "org-1"}, body)
	if err != nil {
		t.Fatalf("ParseICS: %v", err)
	}
	res, err := ics.Expand(items, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      time.Date(2024, 3, 1, 0, 0, 0, 0, loc),
		RangeEnd:        time.Date(2024, 3, 31, 0, 0, 0, 0, loc),
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}

	got := GroupByDay(res.Activities, loc)
	if len(got) != 1 || got[0].Date != "2024-03-06" {
		t.Fatalf("buckets = %+v, want one on 2024-03-06", got)
	}

	// Selecting only Tuesday must not pick it up.
	tue := Apply(res.Activities, Filter{Start: time.Date(2024, 3, 5, 0, 0, 0, 0, loc), Location: loc})
	if len(tue) != 0 {
		t.Fatalf("Tuesday filter kept %v", ids(tue))
	}
}

func TestOrganizations(t *testing.T) {
	orgs := Organizations(fixture)
	if len(orgs) != 3 || orgs[0].ID != 1 || orgs[1].ID != 2 || orgs[2].ID != 3 {
		t.Fatalf("orgs = %+v", orgs)
	}
	if !MoreThanOneOrg(fixture) {
		t.Fatal("MoreThanOneOrg = false, want true")
	}
	if MoreThanOneOrg(fixture[:1]) {
		t.Fatal("MoreThanOneOrg on one org = true")
	}
}

func TestFilterActive(t *testing.T) {
	if (Filter{}).Active() {
		t.Fatal("empty filter reported active")
	}
	if !(Filter{OrgIDs: []int{1}}).Active() || !(Filter{Start: d(1, 0)}).Active() {
		t.Fatal("non-empty filter reported inactive")
	}
}
