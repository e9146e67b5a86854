package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"weekcal/internal/config"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
)

// Snapshot is the result of the latest successful refresh.
type Snapshot struct {
	Activities    []model.Activity
	TruncatedUIDs []string
	RangeStart    time.Time
	RangeEnd      time.Time
	RefreshedAt   time.Time
	// FeedErrors counts sources that failed during the refresh.
	FeedErrors int
}

// Service keeps an in-memory snapshot of all configured feeds so HTTP
// requests never fetch or parse on the hot path.
type Service struct {
	cfg     *config.Config
	loc     *time.Location
	fetcher *ics.Fetcher
	metrics *Metrics
	now     func() time.Time

	// refreshMu serializes refreshes; cron and the API may race.
	refreshMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot
}

// Option customizes a Service.
type Option func(*Service)

// WithHTTPClient overrides the feed HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.fetcher = ics.NewFetcher(s.cfg.CacheDir, c) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRegisterer registers refresh metrics with r instead of a private registry.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Service) { s.metrics = NewMetrics(r) }
}

// NewService builds a Service for cfg. An invalid timezone falls back to
// time.Local.
func NewService(cfg *config.Config, opts ...Option) *Service {
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		loc = time.Local
	}

	s := &Service{
		cfg:     cfg,
		loc:     loc,
		fetcher: ics.NewFetcher(cfg.CacheDir, nil),
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// Location is the display timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// Snapshot returns the latest snapshot, or nil before the first refresh.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Sources converts the configured ICS entries into fetch sources. Entries
// without a URL are skipped.
func (s *Service) Sources() []ics.Source {
	out := make([]ics.Source, 0, len(s.cfg.ICS))
	for _, c := range s.cfg.ICS {
		if c.URL == "" {
			continue
		}
		out = append(out, ics.Source{
			ID:           c.SourceID(),
			URL:          c.URL,
			Organization: model.Organization{ID: c.OrgID, Title: c.OrgTitle},
		})
	}
	return out
}

// Refresh fetches, parses and expands every feed and swaps the snapshot.
// Per-feed failures are logged and counted; the refresh only fails when no
// feed produced data while at least one was configured.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	began := time.Now()
	snap, err := s.refresh(ctx)
	s.metrics.observe(began, snap, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	appLog.Info("calendar refreshed",
		"activities", len(snap.Activities),
		"feed_errors", snap.FeedErrors,
		"range_start", snap.RangeStart.Format(time.RFC3339),
		"range_end", snap.RangeEnd.Format(time.RFC3339),
		"took", time.Since(began).String(),
	)
	return snap, nil
}

func (s *Service) refresh(ctx context.Context) (*Snapshot, error) {
	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	snap := &Snapshot{
		RangeStart:  today.AddDate(0, 0, -s.cfg.BackfillDays),
		RangeEnd:    today.AddDate(0, 0, s.cfg.HorizonDays),
		RefreshedAt: now,
		Activities:  []model.Activity{},
	}

	sources := s.Sources()
	if len(sources) == 0 {
		return snap, nil
	}

	results, fetchErr := s.fetcher.FetchAll(ctx, sources)
	snap.FeedErrors = len(sources) - len(results)

	var parsed []ics.ParsedItem
	for _, res := range results {
		items, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("parse failed for source", err, "id", res.Source.ID)
			snap.FeedErrors++
			continue
		}
		parsed = append(parsed, items...)
	}

	if snap.FeedErrors == len(sources) {
		if fetchErr == nil {
			fetchErr = errors.New("no feed could be parsed")
		}
		return nil, fmt.Errorf("calendar: refresh: %w", fetchErr)
	}

	res, err := ics.Expand(parsed, ics.ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      snap.RangeStart,
		RangeEnd:        snap.RangeEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: expand: %w", err)
	}

	snap.Activities = res.Activities
	snap.TruncatedUIDs = res.TruncatedUIDs
	return snap, nil
}
