package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/database"
	"github.com/jgoulah/dormpower/internal/render"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var predictWindow int

var predictCmd = &cobra.Command{
	Use:   "predict [dorm]",
	Short: "Predict how many days the balance will last",
	Long: `Projects days until the balance runs out from the earliest and latest stored
readings inside the trailing window (window_days, 30 by default).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPredict,
}

func init() {
	predictCmd.Flags().IntVar(&predictWindow, "window", 0, "Window in days (default from config)")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorm, err := cfg.FindDorm(firstArg(args))
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	window := cfg.GetWindow()
	if predictWindow > 0 {
		window = time.Duration(predictWindow) * 24 * time.Hour
	}

	pred, err := predictDorm(db, dorm, window, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", dorm.Label(), render.FormatPrediction(pred))
	if pred.Kind == trend.Predict {
		fmt.Printf("  Rate: %s\n", render.FormatRate(pred))
		empty := time.Now().Add(time.Duration(pred.Days * float64(24*time.Hour)))
		fmt.Printf("  Runs out around: %s\n", empty.Format("2006-01-02"))
	}
	return nil
}

// predictDorm estimates from stored readings in the trailing window ending
// now. live, when set, is appended as the newest reading.
func predictDorm(db *database.DB, dorm models.Dorm, window time.Duration, live *models.Reading) (trend.Prediction, error) {
	end := time.Now()
	readings, err := db.ListReadings(dorm.ID, end.Add(-window))
	if err != nil {
		return trend.Prediction{}, fmt.Errorf("listing readings: %w", err)
	}
	if live != nil {
		readings = append(readings, *live)
	}
	return trend.Estimate(trend.Window(readings, end, window)), nil
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
