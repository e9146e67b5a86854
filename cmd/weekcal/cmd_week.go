package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"weekcal/internal/calendar"
	"weekcal/internal/config"
	"weekcal/internal/eventlist"
	"weekcal/internal/model"
	"weekcal/internal/week"
)

var (
	weekDate string

	eventsOrgs  []int
	eventsStart string
	eventsEnd   string
)

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Refresh once and print the clustered week as JSON",
	RunE:  runWeek,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Refresh once and print the filtered event list grouped by day as JSON",
	RunE:  runEvents,
}

func init() {
	weekCmd.Flags().StringVar(&weekDate, "date", "", "Any day of the wanted week (YYYY-MM-DD, default today)")

	eventsCmd.Flags().IntSliceVar(&eventsOrgs, "org", nil, "Organization IDs to keep (repeatable)")
	eventsCmd.Flags().StringVar(&eventsStart, "start", "", "First selected day (YYYY-MM-DD)")
	eventsCmd.Flags().StringVar(&eventsEnd, "end", "", "Last selected day, inclusive (YYYY-MM-DD)")
}

// refreshOnce loads config and performs a single refresh.
func refreshOnce(cmd *cobra.Command) (*config.Config, *calendar.Service, []model.Activity, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	svc, _ := newService(conf)
	snap, err := svc.Refresh(cmd.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	return conf, svc, snap.Activities, nil
}

func runWeek(cmd *cobra.Command, _ []string) error {
	conf, svc, activities, err := refreshOnce(cmd)
	if err != nil {
		return err
	}
	loc := svc.Location()

	ref := time.Now().In(loc)
	if weekDate != "" {
		if ref, err = time.ParseInLocation(time.DateOnly, weekDate, loc); err != nil {
			return fmt.Errorf("--date: %w", err)
		}
	}

	return printJSON(week.Build(activities, week.Options{
		Reference:     ref,
		FirstDay:      conf.FirstWeekday(),
		Location:      loc,
		ShowAllDay:    conf.ShowAllDay,
		HideCancelled: conf.HideCancelled,
	}))
}

func runEvents(cmd *cobra.Command, _ []string) error {
	_, svc, activities, err := refreshOnce(cmd)
	if err != nil {
		return err
	}
	loc := svc.Location()

	f := eventlist.Filter{OrgIDs: eventsOrgs, Location: loc}
	if eventsStart != "" {
		if f.Start, err = time.ParseInLocation(time.DateOnly, eventsStart, loc); err != nil {
			return fmt.Errorf("--start: %w", err)
		}
	}
	if eventsEnd != "" {
		if f.Start.IsZero() {
			return errors.New("--end requires --start")
		}
		if f.End, err = time.ParseInLocation(time.DateOnly, eventsEnd, loc); err != nil {
			return fmt.Errorf("--end: %w", err)
		}
	}

	events := make([]model.Activity, 0, len(activities))
	for _, a := range activities {
		if a.Kind == model.KindEvent {
			events = append(events, a)
		}
	}

	return printJSON(eventlist.GroupByDay(eventlist.Apply(events, f), loc))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
