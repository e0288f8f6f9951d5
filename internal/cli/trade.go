package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/exec"
	"github.com/tradewheel/engine/indicators"
	"github.com/tradewheel/engine/marketdata"
	"github.com/tradewheel/engine/signal"
	"github.com/tradewheel/engine/sim"
)

// newTradeCmd evaluates signals for the given symbols against the latest
// bars on disk and executes them on the paper-trading simulator.
func newTradeCmd(ro *rootOptions) *cobra.Command {
	var (
		dataDir string
		symbols []string
		riskPct float64
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Evaluate signals and execute them on the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataDir == "" {
				return fmt.Errorf("--data is required")
			}
			if len(symbols) == 0 {
				return fmt.Errorf("--symbols is required")
			}

			log := ro.logger()
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			if riskPct == 0 {
				riskPct = cfg.Execution.RiskPerTradePct
			}

			jnl, err := buildJournal(cfg, log)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			src := marketdata.NewCSVDir(dataDir)

			broker := sim.New(src, sim.Options{
				InitialCash:        cfg.InitialCash(),
				SlippageBPS:        cfg.Simulator.SlippageBPS,
				CommissionPerTrade: decimal.NewFromFloat(cfg.Simulator.CommissionPerTrade),
				LedgerDir:          cfg.Simulator.LedgerDir,
			}, log)
			if err := broker.Connect(ctx); err != nil {
				return err
			}

			limits := cfg.RiskLimits()
			engine, err := exec.NewEngine(ctx, broker, exec.Options{
				SizingMethod:       cfg.SizingMethod(),
				RiskLimits:         &limits,
				Journal:            jnl,
				HardComplianceGate: cfg.Execution.HardComplianceGate,
				AllowExtendedHours: cfg.Execution.AllowExtendedHours,
			}, log)
			if err != nil {
				return err
			}
			defer engine.Shutdown(ctx)

			timeout, err := cfg.Execution.ParseOrderTimeout()
			if err != nil {
				return err
			}

			gen := signal.NewTechnical(signal.DefaultThresholds(), log)
			for _, sym := range symbols {
				if err := tradeSymbol(ctx, engine, gen, src, sym, riskPct, timeout, dryRun); err != nil {
					log.Error().Err(err).Str("symbol", sym).Msg("symbol skipped")
				}
			}

			status, err := engine.Status(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Done. equity=%s halted=%v trades_today=%d\n",
				status.Risk.Equity, status.Risk.State.TradingHalted, status.Risk.State.TradesToday)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data", "", "Directory of <SYMBOL>.csv bar files")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to evaluate")
	cmd.Flags().Float64Var(&riskPct, "risk", 0, "Risk per trade (0.01 = 1%), default from config")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Size and validate but do not place orders")

	return cmd
}

func tradeSymbol(ctx context.Context, engine *exec.Engine, gen signal.Generator, src marketdata.Source, sym string, riskPct float64, timeout time.Duration, dryRun bool) error {
	bars, err := src.Bars(ctx, sym, time.Time{}, time.Now())
	if err != nil {
		return err
	}

	ind, err := indicators.Compute(sym, bars)
	if err != nil {
		return err
	}

	sig := gen.Generate(ind)
	fmt.Printf("%s: %s (confidence %.2f)\n", sym, sig.Type, sig.Confidence)
	for _, reason := range sig.Reasons {
		fmt.Printf("  - %s\n", reason)
	}
	if !sig.Actionable() {
		return nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	order, err := engine.ExecuteSignal(ctx, sig, domain.OrderMarket, riskPct, dryRun)
	if err != nil {
		return err
	}
	if order == nil {
		fmt.Printf("  no order placed\n")
		return nil
	}

	fill := "-"
	if order.AvgFillPrice != nil {
		fill = order.AvgFillPrice.String()
	}
	fmt.Printf("  order %s: %s %s %s @ %s (%s)\n",
		order.ID, order.Side, order.Quantity, order.Symbol, fill, order.Status)
	return nil
}
