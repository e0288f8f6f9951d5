package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tradewheel/engine/backtest"
	"github.com/tradewheel/engine/marketdata"
)

func newBacktestCmd(ro *rootOptions) *cobra.Command {
	var (
		dataDir  string
		symbols  []string
		startStr string
		endStr   string
		capital  float64
		riskPct  float64
		maxPos   int
		minBars  int
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical bars through the execution pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := ro.logger()
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}

			// Flags override the config's backtest section.
			if dataDir == "" {
				dataDir = cfg.Backtest.DataDir
			}
			if len(symbols) == 0 {
				symbols = cfg.Backtest.Symbols
			}
			if startStr == "" {
				startStr = cfg.Backtest.Start
			}
			if endStr == "" {
				endStr = cfg.Backtest.End
			}
			if minBars == 0 {
				minBars = cfg.Backtest.MinBars
			}
			if dataDir == "" {
				return fmt.Errorf("--data is required")
			}
			if len(symbols) == 0 {
				return fmt.Errorf("--symbols is required")
			}

			start, err := parseDate(startStr)
			if err != nil {
				return fmt.Errorf("bad --start: %w", err)
			}
			end, err := parseDate(endStr)
			if err != nil {
				return fmt.Errorf("bad --end: %w", err)
			}
			if end.IsZero() {
				end = time.Now()
			}
			if !start.IsZero() && !start.Before(end) {
				return fmt.Errorf("--start must be before --end")
			}

			btCfg := backtest.Config{
				Symbols:            symbols,
				Start:              start,
				End:                end,
				InitialCapital:     decimal.NewFromFloat(capital),
				SlippageBPS:        cfg.Simulator.SlippageBPS,
				CommissionPerTrade: decimal.NewFromFloat(cfg.Simulator.CommissionPerTrade),
				RiskPerTradePct:    riskPct,
				MaxPositions:       maxPos,
				SizingMethod:       cfg.SizingMethod(),
				Strategy:           cfg.Backtest.Strategy,
				MinBars:            minBars,
				Source:             marketdata.NewCSVDir(dataDir),
			}

			result, err := backtest.NewEngine(btCfg, log).Run(cmd.Context())
			if err != nil {
				return err
			}

			printMetrics(result.Metrics)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "", "Directory of <SYMBOL>.csv bar files")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to replay")
	cmd.Flags().StringVar(&startStr, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endStr, "end", "", "End date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&capital, "capital", 100000, "Initial capital")
	cmd.Flags().Float64Var(&riskPct, "risk", 0.01, "Risk per trade (0.01 = 1%)")
	cmd.Flags().IntVar(&maxPos, "max-positions", 5, "Maximum concurrent positions")
	cmd.Flags().IntVar(&minBars, "min-bars", 0, "Bars of history required before signals")

	return cmd
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printMetrics(m backtest.Metrics) {
	fmt.Printf("Period:            %s to %s (%d days)\n",
		m.StartDate.Format("2006-01-02"), m.EndDate.Format("2006-01-02"), m.DurationDays)
	fmt.Printf("Final equity:      %s (peak %s)\n", m.FinalEquity.StringFixed(2), m.PeakEquity.StringFixed(2))
	fmt.Printf("Total return:      %.2f%% (annualized %.2f%%)\n", m.TotalReturnPct, m.AnnualizedReturnPct)
	fmt.Printf("Max drawdown:      %.2f%% over %d days\n", m.MaxDrawdownPct, m.MaxDrawdownDurationDays)
	fmt.Printf("Sharpe / Sortino:  %.2f / %.2f (Calmar %.2f)\n", m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	fmt.Printf("Trades:            %d (%d wins, %d losses, %.1f%% win rate)\n",
		m.TotalTrades, m.WinningTrades, m.LosingTrades, m.WinRatePct)
	if m.TotalTrades > 0 {
		fmt.Printf("Avg win / loss:    %s / %s (profit factor %.2f)\n",
			m.AvgWin.StringFixed(2), m.AvgLoss.StringFixed(2), m.ProfitFactor)
		fmt.Printf("Expectancy:        %s per trade\n", m.Expectancy.StringFixed(2))
	}
}
