package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weekcal/internal/calendar"
	"weekcal/internal/cluster"
	"weekcal/internal/eventlist"
	appLog "weekcal/internal/log"
	"weekcal/internal/model"
	"weekcal/internal/week"
)

// Server exposes the week and event-list views over HTTP.
type Server struct {
	svc      *calendar.Service
	gatherer prometheus.Gatherer
	router   chi.Router
}

// NewServer constructs a Server. A nil gatherer uses the default registry.
func NewServer(svc *calendar.Service, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{svc: svc, gatherer: gatherer}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.svc.Config().Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if ba := s.svc.Config().BasicAuth; ba != nil && ba.Username != "" && ba.Password != "" {
			appLog.Info("HTTP basic auth enabled")
			r.Use(basicAuth(ba.Username, ba.Password))
		}

		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		r.Route("/api", func(r chi.Router) {
			r.Get("/week", s.handleWeek)
			r.Get("/events", s.handleEvents)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		began := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(began).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuth protects everything it wraps; /health is mounted outside it.
func basicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="weekcal", charset="UTF-8"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// slotDTO is the JSON form of a cluster.Result.
type slotDTO struct {
	Kind       cluster.Kind     `json:"kind"`
	Activity   *model.Activity  `json:"activity,omitempty"`
	Activities []model.Activity `json:"activities,omitempty"`
}

type dayDTO struct {
	Date   string           `json:"date"`
	AllDay []model.Activity `json:"all_day"`
	Slots  []slotDTO        `json:"slots"`
}

type weekResponse struct {
	Start           time.Time        `json:"start"`
	End             time.Time        `json:"end"`
	WeekStart       string           `json:"week_start"`
	DisplayTimeZone string           `json:"display_timezone"`
	Days            []dayDTO         `json:"days"`
	Unscheduled     []model.Activity `json:"unscheduled"`
	RefreshedAt     time.Time        `json:"refreshed_at"`
}

// handleWeek returns the clustered week grid.
//
// GET /api/week?date=2024-03-06
//   - date: any day in the wanted week, in the display timezone (default today)
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	loc := s.svc.Location()
	cfg := s.svc.Config()

	ref := time.Now().In(loc)
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ref = t
	}

	wk := week.Build(snap.Activities, week.Options{
		Reference:     ref,
		FirstDay:      cfg.FirstWeekday(),
		Location:      loc,
		ShowAllDay:    cfg.ShowAllDay,
		HideCancelled: cfg.HideCancelled,
	})

	resp := weekResponse{
		Start:           wk.Start,
		End:             wk.End,
		WeekStart:       cfg.WeekStart,
		DisplayTimeZone: loc.String(),
		Days:            make([]dayDTO, 0, len(wk.Days)),
		Unscheduled:     nonNil(wk.Unscheduled),
		RefreshedAt:     snap.RefreshedAt,
	}
	for _, d := range wk.Days {
		day := dayDTO{
			Date:   d.Date.Format(time.DateOnly),
			AllDay: nonNil(d.AllDay),
			Slots:  make([]slotDTO, 0, len(d.Slots)),
		}
		for _, slot := range d.Slots {
			day.Slots = append(day.Slots, toSlotDTO(slot))
		}
		resp.Days = append(resp.Days, day)
	}

	writeJSON(w, http.StatusOK, resp)
}

func toSlotDTO(c cluster.Result[model.Activity]) slotDTO {
	if a, ok := c.Single(); ok {
		return slotDTO{Kind: c.Kind, Activity: &a}
	}
	return slotDTO{Kind: c.Kind, Activities: c.Items}
}

type bucketDTO struct {
	Date       string           `json:"date"`
	Activities []model.Activity `json:"activities"`
}

type eventsResponse struct {
	Days           []bucketDTO          `json:"days"`
	Total          int                  `json:"total"`
	Organizations  []model.Organization `json:"organizations"`
	MoreThanOneOrg bool                 `json:"more_than_one_org"`
	FilterActive   bool                 `json:"filter_active"`
	RefreshedAt    time.Time            `json:"refreshed_at"`
}

// handleEvents returns the filtered event list grouped by start day.
//
// GET /api/events?org=1&org=2&start=2024-03-04&end=2024-03-10
//   - org:   organization IDs to keep (repeatable)
//   - start: first selected day; without it no date filter is applied
//   - end:   last selected day (inclusive); requires start
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	loc := s.svc.Location()
	q := r.URL.Query()

	f := eventlist.Filter{Location: loc}
	for _, v := range q["org"] {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "org must be an integer")
			return
		}
		f.OrgIDs = append(f.OrgIDs, id)
	}

	var err error
	if f.Start, err = parseDay(q.Get("start"), loc); err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	if f.End, err = parseDay(q.Get("end"), loc); err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	if f.Start.IsZero() && !f.End.IsZero() {
		writeError(w, http.StatusBadRequest, "end requires start")
		return
	}
	if !f.End.IsZero() && f.End.Before(f.Start) {
		writeError(w, http.StatusBadRequest, "end is before start")
		return
	}

	events := make([]model.Activity, 0, len(snap.Activities))
	for _, a := range snap.Activities {
		if a.Kind == model.KindEvent {
			events = append(events, a)
		}
	}

	filtered := eventlist.Apply(events, f)
	buckets := eventlist.GroupByDay(filtered, loc)

	resp := eventsResponse{
		Days:           make([]bucketDTO, 0, len(buckets)),
		Total:          len(filtered),
		Organizations:  nonNil(eventlist.Organizations(events)),
		MoreThanOneOrg: eventlist.MoreThanOneOrg(events),
		FilterActive:   f.Active(),
		RefreshedAt:    snap.RefreshedAt,
	}
	for _, b := range buckets {
		resp.Days = append(resp.Days, bucketDTO{Date: b.Date, Activities: b.Activities})
	}

	writeJSON(w, http.StatusOK, resp)
}

type refreshResponse struct {
	Activities    int       `json:"activities"`
	FeedErrors    int       `json:"feed_errors"`
	TruncatedUIDs []string  `json:"truncated_uids,omitempty"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Refresh(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Activities:    len(snap.Activities),
		FeedErrors:    snap.FeedErrors,
		TruncatedUIDs: snap.TruncatedUIDs,
		RefreshedAt:   snap.RefreshedAt,
	})
}

func (s *Server) snapshot(w http.ResponseWriter) (*calendar.Snapshot, bool) {
	snap := s.svc.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar not loaded yet")
		return nil, false
	}
	return snap, true
}

func parseDay(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, v, loc)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
