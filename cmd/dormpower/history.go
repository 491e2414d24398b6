package main

import (
	"fmt"

	"github.com/jgoulah/dormpower/internal/render"
	"github.com/spf13/cobra"
)

var historyRefresh bool

var historyCmd = &cobra.Command{
	Use:   "history [dorm]",
	Short: "Show settlement history",
	Long: `Displays the settlement records stored for a dorm, newest first.
With --refresh the settlement page (fetch.history_url) is fetched first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyRefresh, "refresh", false, "Fetch the settlement page before listing")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
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

	if historyRefresh {
		n, err := fetchSettlements(commandContext(cmd), db, newFetcher(cfg, false), dorm)
		if err != nil {
			return fmt.Errorf("refreshing history: %w", err)
		}
		fmt.Printf("✓ %d new settlement records\n", n)
	}

	rows, err := db.ListSettlements(dorm.ID)
	if err != nil {
		return fmt.Errorf("listing settlements: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("No settlement records for %s (try --refresh)\n", dorm.Label())
		return nil
	}

	table := render.Table{
		Title:   fmt.Sprintf("%s settlements", dorm.Label()),
		Headers: []string{"Settled", "kWh"},
	}
	for _, s := range rows {
		table.Rows = append(table.Rows, []string{s.SettledAt.Format("2006-01-02 15:04"), fmt.Sprintf("%.2f", s.KWh)})
	}
	fmt.Print(render.RenderTable(table))
	return nil
}
