package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weekcal/internal/calendar"
	"weekcal/internal/config"
)

func vevent(uid, start, end string) []string {
	return []string{
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTART:" + start,
		"DTEND:" + end,
		"SUMMARY:" + uid,
		"END:VEVENT",
	}
}

func calendarBody(events ...[]string) string {
	lines := []string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//weekcal//test//EN"}
	for _, e := range events {
		lines = append(lines, e...)
	}
	lines = append(lines, "END:VCALENDAR", "")
	return strings.Join(lines, "\r\n")
}

// Tuesday 2024-03-05 has four staggered events, Wednesday one from another org.
var feeds = map[string]string{
	"/org1.ics": calendarBody(
		vevent("a", "20240305T120000Z", "20240305T133700Z"),
		vevent("b", "20240305T121500Z", "20240305T133700Z"),
		vevent("c", "20240305T123000Z", "20240305T133700Z"),
		vevent("d", "20240305T124500Z", "20240305T133700Z"),
	),
	"/org2.ics": calendarBody(
		vevent("e", "20240306T090000Z", "20240306T100000Z"),
	),
}

type fixture struct {
	svc    *calendar.Service
	server *Server
}

func newFixture(t *testing.T, auth *config.BasicAuthConfig) fixture {
	t.Helper()

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := feeds[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(feedSrv.Close)

	cfg := config.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.BasicAuth = auth
	cfg.ICS = []config.ICSConfig{
		{ID: "org1", URL: feedSrv.URL + "/org1.ics", OrgID: 1, OrgTitle: "One"},
		{ID: "org2", URL: feedSrv.URL + "/org2.ics", OrgID: 2, OrgTitle: "Two"},
	}

	reg := prometheus.NewRegistry()
	now := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	svc := calendar.NewService(cfg,
		calendar.WithHTTPClient(feedSrv.Client()),
		calendar.WithClock(func() time.Time { return now }),
		calendar.WithRegisterer(reg),
	)
	return fixture{svc: svc, server: NewServer(svc, reg)}
}

func (f fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t, &config.BasicAuthConfig{Username: "u", Password: "p"})
	rec := f.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health: %d %q", rec.Code, rec.Body.String())
	}
}

func TestNotLoadedYet(t *testing.T) {
	f := newFixture(t, nil)
	if rec := f.do(t, http.MethodGet, "/api/week"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("week before refresh: %d, want 503", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, &config.BasicAuthConfig{Username: "u", Password: "p"})

	rec := f.do(t, http.MethodGet, "/api/week")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("missing WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("u", "p")
	ok := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("with credentials: %d, want 200", ok.Code)
	}
}

func TestRefreshWeekAndEvents(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	var rr refreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatal(err)
	}
	if rr.Activities != 5 || rr.FeedErrors != 0 {
		t.Fatalf("refresh response = %+v", rr)
	}

	rec = f.do(t, http.MethodGet, "/api/week?date=2024-03-06")
	if rec.Code != http.StatusOK {
		t.Fatalf("week: %d %s", rec.Code, rec.Body.String())
	}
	var wk weekResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &wk); err != nil {
		t.Fatal(err)
	}
	if len(wk.Days) != 7 || wk.Days[0].Date != "2024-03-04" {
		t.Fatalf("week days = %d, first %q", len(wk.Days), wk.Days[0].Date)
	}
	tue := wk.Days[1].Slots
	if len(tue) != 1 || tue[0].Kind != "group" || len(tue[0].Activities) != 4 {
		t.Fatalf("tuesday slots = %+v", tue)
	}
	wed := wk.Days[2].Slots
	if len(wed) != 1 || wed[0].Kind != "single" || wed[0].Activity == nil || wed[0].Activity.UID != "e" {
		t.Fatalf("wednesday slots = %+v", wed)
	}

	rec = f.do(t, http.MethodGet, "/api/events?org=2")
	var ev eventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Total != 1 || !ev.MoreThanOneOrg || !ev.FilterActive || len(ev.Organizations) != 2 {
		t.Fatalf("events org=2 = %+v", ev)
	}

	rec = f.do(t, http.MethodGet, "/api/events?start=2024-03-05")
	ev = eventsResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Total != 4 || len(ev.Days) != 1 || ev.Days[0].Date != "2024-03-05" {
		t.Fatalf("events start=2024-03-05 = %+v", ev)
	}
}

func TestBadQueries(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, target := range []string{
		"/api/week?date=tomorrow",
		"/api/events?org=abc",
		"/api/events?start=2024-13-01",
		"/api/events?end=2024-03-01",
		"/api/events?start=2024-03-05&end=2024-03-01",
	} {
		if rec := f.do(t, http.MethodGet, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: %d, want 400", target, rec.Code)
		}
	}

	if rec := f.do(t, http.MethodGet, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path: %d, want 404", rec.Code)
	}
}
