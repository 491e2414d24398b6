package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/internal/database"
	"github.com/jgoulah/dormpower/internal/render"
	"github.com/jgoulah/dormpower/internal/scraper"
	"github.com/jgoulah/dormpower/pkg/balance"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var (
	fetchVisible bool
	fetchAll     bool
	fetchHistory bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [dorm]",
	Short: "Fetch the current balance for a dorm",
	Long: `Queries the utility-payment site for the remaining balance of a dorm and stores it
in the local SQLite database. Only the first reading of each calendar day is stored.

The dorm can be given as a room code or name; it defaults to default_dorm.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchVisible, "visible", false, "Render with a visible browser window (for debugging)")
	fetchCmd.Flags().BoolVar(&fetchAll, "all", false, "Fetch every configured dorm")
	fetchCmd.Flags().BoolVar(&fetchHistory, "history", false, "Also fetch the settlement history page")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorms, err := selectDorms(cfg, args, fetchAll)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	fetcher := newFetcher(cfg, fetchVisible)
	ctx := commandContext(cmd)

	failed := 0
	for _, dorm := range dorms {
		if err := fetchDorm(ctx, cfg, db, fetcher, dorm); err != nil {
			fmt.Printf("⚠ %s: %s\n", dorm.Label(), render.DescribeFailure(err))
			failed++
			continue
		}

		if fetchHistory {
			n, err := fetchSettlements(ctx, db, fetcher, dorm)
			if err != nil {
				fmt.Printf("⚠ %s: history: %v\n", dorm.Label(), err)
				continue
			}
			fmt.Printf("✓ %s: %d new settlement records\n", dorm.Label(), n)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d dorms failed", failed, len(dorms))
	}
	return nil
}

func fetchDorm(ctx context.Context, cfg *config.Config, db *database.DB, fetcher scraper.Fetcher, dorm models.Dorm) error {
	fmt.Printf("Fetching balance for %s (room %s)...\n", dorm.Label(), dorm.ID)

	page, err := fetcher.FetchBalancePage(ctx, dorm)
	if err != nil {
		return err
	}

	result := balance.Extract(page)
	if !result.OK() {
		return result.Err()
	}

	reading := models.Reading{
		DormID:     dorm.ID,
		DormName:   dorm.Name,
		Timestamp:  time.Now(),
		BalanceKWh: result.Balance,
	}
	saved, err := db.SaveReading(&reading)
	if err != nil {
		return fmt.Errorf("saving reading: %w", err)
	}

	level := trend.ClassifyLevel(reading.BalanceKWh, cfg.GetLowThreshold(), cfg.GetWarnThreshold())
	note := "stored"
	if !saved {
		note = "already recorded today, not stored"
	}
	fmt.Printf("✓ %s: %s %s\n", dorm.Label(), render.LevelStyle(level).Render(render.FormatKWh(reading.BalanceKWh)), render.Muted("("+note+")"))

	var live *models.Reading
	if !saved {
		live = &reading
	}
	pred, err := predictDorm(db, dorm, cfg.GetWindow(), live)
	if err != nil {
		return err
	}
	fmt.Printf("  Remaining: %s\n", render.FormatPrediction(pred))
	if level == trend.Low {
		fmt.Printf("⚠ Balance is low, recharge at: %s\n", rechargeURLFor(cfg, dorm))
	}
	return nil
}

func fetchSettlements(ctx context.Context, db *database.DB, fetcher scraper.Fetcher, dorm models.Dorm) (int, error) {
	page, err := fetcher.FetchHistoryPage(ctx, dorm)
	if err != nil {
		return 0, err
	}
	rows := balance.ExtractHistory(page, balance.DefaultHistoryLabels, time.Local)
	if len(rows) == 0 {
		return 0, fmt.Errorf("no settlement records found on page")
	}
	return db.SaveSettlements(dorm.ID, rows)
}
