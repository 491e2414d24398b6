package main

import (
	"fmt"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/internal/scraper"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/spf13/cobra"
)

var rechargeCmd = &cobra.Command{
	Use:   "recharge [dorm]",
	Short: "Print the page where the balance can be topped up",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecharge,
}

func init() {
	rootCmd.AddCommand(rechargeCmd)
}

func runRecharge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dorm, err := cfg.FindDorm(firstArg(args))
	if err != nil {
		return err
	}

	fmt.Printf("Recharge %s at:\n%s\n", dorm.Label(), rechargeURLFor(cfg, dorm))
	return nil
}

func rechargeURLFor(cfg *config.Config, dorm models.Dorm) string {
	u, err := scraper.RechargeURL(cfg.GetBaseURL(), dorm)
	if err != nil {
		return cfg.GetBaseURL()
	}
	return u
}
