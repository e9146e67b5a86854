package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"weekcal/internal/calendar"
	"weekcal/internal/config"
	appLog "weekcal/internal/log"
)

const version = "0.1.0-dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "weekcal",
	Short:         "Calendar backend for week and event-list views",
	Long:          "weekcal fetches organization ICS feeds, expands recurrences and serves clustered week grids and filtered event lists.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/weekcal/config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override: debug, info or error")
	rootCmd.AddCommand(serveCmd, weekCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("weekcal failed", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and configures logging from it. The
// --log-level flag wins over the configured level.
func loadConfig() (*config.Config, error) {
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	appLog.Setup(os.Stderr, conf.LogFormat, appLog.ParseLevel(conf.LogLevel))
	if logLevel != "" {
		appLog.SetLevel(appLog.ParseLevel(logLevel))
	}
	return conf, nil
}

// newService builds the calendar service with its metrics registered on a
// fresh registry, which is returned for the /metrics endpoint.
func newService(conf *config.Config) (*calendar.Service, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return calendar.NewService(conf, calendar.WithRegisterer(reg)), reg
}
