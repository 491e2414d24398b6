package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/internal/database"
	"github.com/jgoulah/dormpower/internal/scraper"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "dormpower",
	Short: "Track dormitory electricity balance and predict when it runs out",
	Long: `DormPower checks the remaining electricity balance of dormitory rooms on the
campus utility-payment site, stores one reading per room per day in a local
SQLite database, and projects how many days the balance will last.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads and validates the configuration file
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", getConfigPath(), err)
	}
	return cfg, nil
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// fetchOptions maps config onto scraper options
func fetchOptions(cfg *config.Config) scraper.Options {
	return scraper.Options{
		BaseURL:    cfg.GetBaseURL(),
		HistoryURL: cfg.Fetch.HistoryURL,
		UserAgent:  cfg.GetUserAgent(),
		Referer:    cfg.GetReferer(),
		Timeout:    cfg.GetTimeout(),
	}
}

// newFetcher returns the browser fetcher when configured (or forced with
// visible), the plain HTTP client otherwise
func newFetcher(cfg *config.Config, visible bool) scraper.Fetcher {
	if cfg.Fetch.Browser || visible {
		return scraper.NewBrowserFetcher(fetchOptions(cfg), visible)
	}
	return scraper.NewClient(fetchOptions(cfg))
}

// commandContext returns the context the command was executed with so an
// interrupt cancels in-flight fetches
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// selectDorms resolves the optional [dorm] argument; all selects every dorm
func selectDorms(cfg *config.Config, args []string, all bool) ([]models.Dorm, error) {
	if all {
		return cfg.Dorms, nil
	}
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	d, err := cfg.FindDorm(key)
	if err != nil {
		return nil, err
	}
	return []models.Dorm{d}, nil
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			return time.Now().AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}
