package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jgoulah/dormpower/internal/metrics"
	"github.com/jgoulah/dormpower/internal/monitor"
	"github.com/jgoulah/dormpower/internal/publisher"
)

var (
	watchRunOnStart bool
	watchNoMetrics  bool
	watchPublish    bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll every dorm on a schedule",
	Long: `Runs in the foreground and polls every configured dorm on the cron schedule in
config (six fields, seconds first; every 30 minutes by default). Readings are
stored, optionally published, and exported as Prometheus metrics on metrics_addr.

Rooms the site reports as unsupported are skipped until the process restarts.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchRunOnStart, "run-on-start", true, "Poll once immediately")
	watchCmd.Flags().BoolVar(&watchNoMetrics, "no-metrics", false, "Do not serve /metrics")
	watchCmd.Flags().BoolVar(&watchPublish, "publish", true, "Publish to Home Assistant / MQTT when enabled in config")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	opts := monitor.Options{
		Dorms:         cfg.Dorms,
		Window:        cfg.GetWindow(),
		LowThreshold:  cfg.GetLowThreshold(),
		WarnThreshold: cfg.GetWarnThreshold(),
	}

	if watchPublish && (cfg.HomeAssistant.Enabled || cfg.MQTT.Enabled) {
		pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
		if err != nil {
			return fmt.Errorf("creating publisher: %w", err)
		}
		defer pub.Close()
		opts.Sink = pub
	}

	var srv *metrics.Server
	if !watchNoMetrics {
		opts.Metrics = metrics.New(prometheus.DefaultRegisterer)
		srv = metrics.NewServer(cfg.GetMetricsAddr(), prometheus.DefaultGatherer)
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("[ERROR] %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := monitor.New(newFetcher(cfg, false), db, opts)

	log.Printf("[INFO] watching %d dorms, schedule %q", len(cfg.Dorms), cfg.GetSchedule())
	if watchRunOnStart {
		if _, err := m.Poll(ctx); err != nil {
			log.Printf("[WARN] initial poll interrupted: %v", err)
		}
	}

	if err := m.Start(ctx, cfg.GetSchedule()); err != nil {
		return err
	}

	<-ctx.Done()
	log.Println("[INFO] shutting down")
	m.Stop()

	if srv != nil {
		if err := srv.Stop(5 * time.Second); err != nil {
			log.Printf("[WARN] %v", err)
		}
	}
	return nil
}
