package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRiskCmd prints the effective risk limits for the loaded config.
func newRiskCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Show the effective risk limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}

			limits := cfg.RiskLimits()
			fmt.Printf("Max risk per trade:     %.2f%%\n", limits.MaxRiskPerTradePct*100)
			fmt.Printf("Max position size:      %.2f%% of equity\n", limits.MaxPositionSizePct*100)
			fmt.Printf("Max risk per day:       %.2f%%\n", limits.MaxRiskPerDayPct*100)
			fmt.Printf("Max daily drawdown:     %.2f%%\n", limits.MaxDailyDrawdownPct*100)
			if limits.MaxDailyLossDollar != nil {
				fmt.Printf("Max daily loss:         $%s\n", limits.MaxDailyLossDollar.StringFixed(2))
			} else {
				fmt.Printf("Max daily loss:         disabled\n")
			}
			fmt.Printf("Max open positions:     %d\n", limits.MaxOpenPositions)
			fmt.Printf("Max consecutive losses: %d\n", limits.MaxConsecutiveLosses)
			fmt.Printf("Max ATR multiplier:     %.1fx\n", limits.MaxATRMultiplier)
			return nil
		},
	}
}
