package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"weekcal/internal/calendar"
	appLog "weekcal/internal/log"
	"weekcal/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with scheduled feed refreshes",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		conf.Listen = serveListen
	}

	appLog.Info("weekcal starting",
		"version", version,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"horizon_days", conf.HorizonDays,
		"ics_count", len(conf.ICS),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, reg := newService(conf)

	// Initial load; the API answers 503 until a refresh succeeds.
	if _, err := svc.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	sched, err := calendar.NewScheduler(ctx, svc, conf.RefreshCron)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	if err := web.NewServer(svc, reg).ListenAndServe(ctx); err != nil {
		return err
	}

	appLog.Info("weekcal exiting", "pid", os.Getpid())
	return nil
}
