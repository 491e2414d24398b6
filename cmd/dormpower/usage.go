package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/render"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var (
	usageInterval time.Duration
	usageSince    string
)

var usageCmd = &cobra.Command{
	Use:   "usage [dorm]",
	Short: "Show consumption per interval",
	Long: `Resamples stored readings into fixed intervals and shows the kWh consumed in each.
Empty intervals are interpolated between neighbouring readings. Negative values
are recharges.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().DurationVar(&usageInterval, "interval", 24*time.Hour, "Bucket size (e.g. 24h, 168h)")
	usageCmd.Flags().StringVar(&usageSince, "since", "30d", "Only use readings since this date (YYYY-MM-DD or relative like 7d)")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	if usageInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorm, err := cfg.FindDorm(firstArg(args))
	if err != nil {
		return err
	}

	since, err := parseDate(usageSince)
	if err != nil {
		return fmt.Errorf("parsing --since date: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	readings, err := db.ListReadings(dorm.ID, since)
	if err != nil {
		return fmt.Errorf("listing readings: %w", err)
	}

	buckets := trend.Consumption(readings, usageInterval)
	if len(buckets) == 0 {
		fmt.Printf("Not enough readings for %s to compute usage\n", dorm.Label())
		return nil
	}

	table := render.Table{
		Title:   fmt.Sprintf("%s usage per %s", dorm.Label(), usageInterval),
		Headers: []string{"From", "To", "kWh"},
	}
	var total float64
	values := make([]float64, 0, len(buckets))
	for _, u := range buckets {
		table.Rows = append(table.Rows, []string{
			u.Start.Format("2006-01-02 15:04"),
			u.End.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", u.KWh),
		})
		if u.KWh > 0 {
			total += u.KWh
		}
		values = append(values, u.KWh)
	}

	fmt.Print(render.RenderTable(table))
	fmt.Printf("Consumed: %.2f kWh over %d intervals  %s\n", total, len(buckets), render.RenderSparkline(values))
	return nil
}
