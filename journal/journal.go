// Package journal records every order and fill the engine produces.
// Logging is mandatory: the execution engine refuses to run without a
// journal. Two sinks are provided, daily CSV files with a JSON dump at
// close, and a SQLite database for queryable history.
package journal

import (
	"github.com/tradewheel/engine/domain"
)

// Journal is the sink all trading activity flows into.
type Journal interface {
	// LogOrder records an order event (placement, fill, rejection).
	LogOrder(order *domain.Order) error
	// LogFill records an execution.
	LogFill(fill domain.Fill) error
	// Close flushes and releases the sink.
	Close() error
}

// Summary aggregates a day of journal activity.
type Summary struct {
	Date            string
	TotalOrders     int
	TotalFills      int
	TotalCommission string
}

// Nop discards everything. Useful for tests and dry runs.
type Nop struct{}

func (Nop) LogOrder(*domain.Order) error { return nil }
func (Nop) LogFill(domain.Fill) error    { return nil }
func (Nop) Close() error                 { return nil }

var _ Journal = Nop{}
