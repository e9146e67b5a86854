package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.WeekStart != "monday" || !cfg.ShowAllDay {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat written config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoad_PartialFileNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
timezone: Europe/Stockholm
week_start: friday
backfill_days: -3
ics:
  - url: https://example.org/org1.ics
    org_id: 1
    org_title: KPD
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WeekStart != "monday" {
		t.Errorf("WeekStart = %q, want monday", cfg.WeekStart)
	}
	if cfg.BackfillDays != 0 {
		t.Errorf("BackfillDays = %d, want 0", cfg.BackfillDays)
	}
	if cfg.HorizonDays != defaultHorizonDays {
		t.Errorf("HorizonDays = %d, want %d", cfg.HorizonDays, defaultHorizonDays)
	}
	if !cfg.ShowAllDay {
		t.Error("ShowAllDay should keep its default when omitted")
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].OrgID != 1 || cfg.ICS[0].SourceID() != "https://example.org/org1.ics" {
		t.Fatalf("unexpected ICS: %+v", cfg.ICS)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Stockholm" {
		t.Errorf("Location = %s", loc)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.WeekStart = "sunday"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.FirstWeekday() != time.Sunday {
		t.Errorf("FirstWeekday = %s, want Sunday", got.FirstWeekday())
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Errorf("BasicAuth = %+v", got.BasicAuth)
	}
}

func TestSourceIDFallback(t *testing.T) {
	cases := []struct {
		in   ICSConfig
		want string
	}{
		{ICSConfig{ID: "a", Name: "b", URL: "c"}, "a"},
		{ICSConfig{Name: "b", URL: "c"}, "b"},
		{ICSConfig{URL: "c"}, "c"},
	}
	for _, tc := range cases {
		if got := tc.in.SourceID(); got != tc.want {
			t.Errorf("SourceID(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLocationInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	if _, err := cfg.Location(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}
