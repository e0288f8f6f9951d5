package backtest

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// RunParallel executes several backtests concurrently, bounded by
// maxWorkers. Failed runs are logged and dropped; results arrive in
// completion order.
func RunParallel(ctx context.Context, configs []Config, maxWorkers int, log zerolog.Logger) []*Result {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	p := pool.NewWithResults[*Result]().WithMaxGoroutines(maxWorkers)
	for _, cfg := range configs {
		cfg := cfg
		p.Go(func() *Result {
			res, err := NewEngine(cfg, log).Run(ctx)
			if err != nil {
				log.Error().Err(err).Strs("symbols", cfg.Symbols).Msg("backtest run failed")
				return nil
			}
			return res
		})
	}

	var out []*Result
	for _, res := range p.Wait() {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}
