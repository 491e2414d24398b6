package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jgoulah/dormpower/internal/scraper"
	"github.com/jgoulah/dormpower/pkg/balance"
	"github.com/spf13/cobra"
)

var (
	debugVisible bool
	debugBrowser bool
	debugOutput  string
	debugHistory bool
)

var debugCmd = &cobra.Command{
	Use:   "debug [dorm]",
	Short: "Debug extraction by saving the page and showing what was found",
	Long: `Fetches the balance page for a dorm without storing anything and reports what
the extractor sees: the label ids it searched, the raw label text, and the result.

Flags:
  --browser    Render with headless Chrome instead of plain HTTP
  --visible    Render with a visible browser window
  --output     Save the fetched HTML to this file
  --history    Also fetch and parse the settlement page`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().BoolVar(&debugVisible, "visible", false, "Render with a visible browser window")
	debugCmd.Flags().BoolVar(&debugBrowser, "browser", false, "Render with headless Chrome")
	debugCmd.Flags().StringVar(&debugOutput, "output", "", "Save HTML to this file")
	debugCmd.Flags().BoolVar(&debugHistory, "history", false, "Also fetch the settlement page")
	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorm, err := cfg.FindDorm(firstArg(args))
	if err != nil {
		return err
	}

	if debugBrowser {
		cfg.Fetch.Browser = true
	}
	fetcher := newFetcher(cfg, debugVisible)

	pageURL, err := scraper.PageURL(cfg.GetBaseURL(), dorm)
	if err != nil {
		return err
	}
	fmt.Printf("Fetching %s...\n", pageURL)

	ctx := commandContext(cmd)
	page, err := fetcher.FetchBalancePage(ctx, dorm)
	if err != nil {
		return fmt.Errorf("fetching page: %w", err)
	}
	fmt.Printf("✓ Got %d bytes\n", len(page))

	if debugOutput != "" {
		if err := os.WriteFile(debugOutput, []byte(page), 0644); err != nil {
			return fmt.Errorf("writing HTML: %w", err)
		}
		fmt.Printf("✓ HTML saved to %s\n", debugOutput)
	}

	result := balance.Extract(page)
	fmt.Printf("\nLabels searched: %v\n", balance.LabelIDs)
	fmt.Printf("Raw text:        %q\n", result.Text)
	fmt.Printf("Result:          %s\n", result)
	if err := result.Err(); err != nil {
		fmt.Printf("Error:           %v\n", err)
		fmt.Printf("Retryable:       %v\n", result.Failure.Retryable())
	}

	if !debugHistory {
		return nil
	}

	fmt.Println("\nFetching settlement page...")
	historyPage, err := fetcher.FetchHistoryPage(ctx, dorm)
	if err != nil {
		return fmt.Errorf("fetching history page: %w", err)
	}
	rows := balance.ExtractHistory(historyPage, balance.DefaultHistoryLabels, time.Local)
	fmt.Printf("✓ Parsed %d settlement records\n", len(rows))
	for _, s := range rows {
		fmt.Printf("  %s  %.2f kWh\n", s.SettledAt.Format("2006-01-02 15:04"), s.KWh)
	}
	return nil
}
