package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/render"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest balance and prediction for every dorm",
	Long: `Summarizes every configured dorm from the database: latest balance, level,
days remaining, when it was last updated, and a sparkline of daily averages.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	now := time.Now()
	table := render.Table{
		Title:   "Dorm balances",
		Headers: []string{"Dorm", "Balance", "Level", "Remaining", "Updated", "14 days"},
	}

	var lowDorms []string
	for _, dorm := range cfg.Dorms {
		latest, err := db.LatestReading(dorm.ID)
		if err != nil {
			return fmt.Errorf("reading latest for %s: %w", dorm.Label(), err)
		}
		if latest == nil {
			table.Rows = append(table.Rows, []string{dorm.Label(), "-", "-", "-", "never", ""})
			continue
		}

		pred, err := predictDorm(db, dorm, cfg.GetWindow(), nil)
		if err != nil {
			return err
		}

		avgs, err := db.DailyAverages(dorm.ID, 14)
		if err != nil {
			return fmt.Errorf("reading daily averages for %s: %w", dorm.Label(), err)
		}
		// newest first from the database, oldest first for the sparkline
		values := make([]float64, len(avgs))
		for i, a := range avgs {
			values[len(avgs)-1-i] = a.AvgBalance
		}

		level := trend.ClassifyLevel(latest.BalanceKWh, cfg.GetLowThreshold(), cfg.GetWarnThreshold())
		if level == trend.Low {
			lowDorms = append(lowDorms, dorm.Label())
		}

		table.Rows = append(table.Rows, []string{
			dorm.Label(),
			render.FormatKWh(latest.BalanceKWh),
			render.FormatLevel(level),
			render.FormatPrediction(pred),
			render.FormatAgo(latest.Timestamp, now),
			render.RenderSparkline(values),
		})
	}

	fmt.Print(render.RenderTable(table))
	for _, name := range lowDorms {
		fmt.Printf("⚠ %s is below %.0f kWh, run 'dormpower recharge %s'\n", name, cfg.GetLowThreshold(), name)
	}
	return nil
}
