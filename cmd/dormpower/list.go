package main

import (
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/internal/render"
	"github.com/jgoulah/dormpower/pkg/trend"
	"github.com/spf13/cobra"
)

var (
	listSince string
	listAll   bool
)

var listCmd = &cobra.Command{
	Use:   "list [dorm]",
	Short: "List stored balance readings",
	Long:  `Displays stored balance readings from the database, oldest first.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listSince, "since", "", "Only show readings since this date (YYYY-MM-DD or relative like 7d)")
	listCmd.Flags().BoolVar(&listAll, "all", false, "List every configured dorm")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorms, err := selectDorms(cfg, args, listAll)
	if err != nil {
		return err
	}

	var since time.Time
	if listSince != "" {
		since, err = parseDate(listSince)
		if err != nil {
			return fmt.Errorf("parsing --since date: %w", err)
		}
	}

	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	for _, dorm := range dorms {
		data, err := db.ListReadings(dorm.ID, since)
		if err != nil {
			return fmt.Errorf("listing readings for %s: %w", dorm.Label(), err)
		}

		if len(data) == 0 {
			fmt.Printf("No readings found for %s\n", dorm.Label())
			continue
		}

		table := render.Table{
			Title:   fmt.Sprintf("%s (room %s)", dorm.Label(), dorm.ID),
			Headers: []string{"Date", "Time", "Balance (kWh)", "Level"},
		}
		for _, r := range data {
			level := trend.ClassifyLevel(r.BalanceKWh, cfg.GetLowThreshold(), cfg.GetWarnThreshold())
			table.Rows = append(table.Rows, []string{
				r.Timestamp.Format("2006-01-02"),
				r.Timestamp.Format("15:04"),
				fmt.Sprintf("%.2f", r.BalanceKWh),
				render.FormatLevel(level),
			})
		}

		fmt.Println()
		fmt.Print(render.RenderTable(table))
		fmt.Printf("%d readings\n", len(data))
	}

	return nil
}
