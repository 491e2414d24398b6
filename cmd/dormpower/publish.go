package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/publisher"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var (
	publishAll   bool
	publishForce bool
)

var publishCmd = &cobra.Command{
	Use:   "publish [dorm]",
	Short: "Publish balance and prediction to Home Assistant / MQTT",
	Long: `Publishes the latest stored reading and its prediction to Home Assistant via the
HTTP state API and/or retained MQTT topics, then marks pending readings as published.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().BoolVar(&publishAll, "all", false, "Publish every configured dorm")
	publishCmd.Flags().BoolVar(&publishForce, "force", false, "Publish even when no reading is pending")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorms, err := selectDorms(cfg, args, publishAll)
	if err != nil {
		return err
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HomeAssistant)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	published := 0
	for _, dorm := range dorms {
		pending, err := db.ListUnpublished(dorm.ID)
		if err != nil {
			return fmt.Errorf("listing unpublished readings for %s: %w", dorm.Label(), err)
		}
		if len(pending) == 0 && !publishForce {
			fmt.Printf("No unpublished readings for %s\n", dorm.Label())
			continue
		}

		latest, err := db.LatestReading(dorm.ID)
		if err != nil {
			return fmt.Errorf("reading latest for %s: %w", dorm.Label(), err)
		}
		if latest == nil {
			fmt.Printf("No readings found for %s\n", dorm.Label())
			continue
		}

		pred, err := predictDorm(db, dorm, cfg.GetWindow(), nil)
		if err != nil {
			return err
		}

		snap := publisher.Snapshot{
			Dorm:       dorm,
			Reading:    *latest,
			Prediction: pred,
			Level:      trend.ClassifyLevel(latest.BalanceKWh, cfg.GetLowThreshold(), cfg.GetWarnThreshold()),
		}

		fmt.Printf("Publishing %s (%.2f kWh, %s)... ", dorm.Label(), latest.BalanceKWh, pred)
		if err := pub.Publish(snap); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}

		// The latest state supersedes every older pending reading
		for _, r := range pending {
			if err := db.MarkPublished(r.ID); err != nil {
				fmt.Printf("(warning: failed to mark reading %d as published: %v) ", r.ID, err)
			}
		}
		fmt.Printf("✓\n")
		published++
	}

	fmt.Printf("\nDorms published: %d/%d\n", published, len(dorms))
	return nil
}
