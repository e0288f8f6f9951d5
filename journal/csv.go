package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

var orderHeader = []string{
	"order_id", "created_at", "symbol", "side", "type", "quantity", "status",
	"limit_price", "stop_price", "stop_loss", "take_profit",
	"filled_quantity", "avg_fill_price", "commission", "strategy", "notes",
}

var fillHeader = []string{
	"fill_id", "order_id", "timestamp", "symbol", "side", "quantity", "price", "commission",
}

// CSV journals to orders_<date>.csv and fills_<date>.csv in dir, appending
// as activity happens, and dumps the full day to journal_<date>.json on
// Close.
type CSV struct {
	mu   sync.Mutex
	dir  string
	date string

	entries []jsonEntry
	orders  int
	fills   int

	commission decimal.Decimal

	log zerolog.Logger
}

type jsonEntry struct {
	Timestamp string      `json:"timestamp"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
}

var _ Journal = (*CSV)(nil)

// NewCSV creates the journal directory and opens a journal for today.
func NewCSV(dir string, log zerolog.Logger) (*CSV, error) {
	if dir == "" {
		dir = filepath.Join("data", "journal")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j := &CSV{
		dir:  dir,
		date: time.Now().Format("2006-01-02"),
		log:  log,
	}
	log.Info().Str("dir", dir).Msg("trade journal initialized")
	return j, nil
}

// LogOrder implements Journal.
func (j *CSV) LogOrder(order *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := []string{
		order.ID,
		order.CreatedAt.Format(time.RFC3339),
		order.Symbol,
		string(order.Side),
		string(order.Type),
		order.Quantity.String(),
		string(order.Status),
		decimalOrEmpty(order.LimitPrice),
		decimalOrEmpty(order.StopPrice),
		decimalOrEmpty(order.StopLoss),
		decimalOrEmpty(order.TakeProfit),
		order.FilledQuantity.String(),
		decimalOrEmpty(order.AvgFillPrice),
		order.Commission.String(),
		order.Strategy,
		order.Notes,
	}
	if err := j.appendLocked("orders", orderHeader, row); err != nil {
		return err
	}

	j.orders++
	j.entries = append(j.entries, jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Type:      "order",
		Data:      order,
	})

	j.log.Debug().Str("order_id", order.ID).Msg("order journaled")
	return nil
}

// LogFill implements Journal.
func (j *CSV) LogFill(fill domain.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	row := []string{
		fill.ID,
		fill.OrderID,
		fill.Timestamp.Format(time.RFC3339),
		fill.Symbol,
		string(fill.Side),
		fill.Quantity.String(),
		fill.Price.String(),
		fill.Commission.String(),
	}
	if err := j.appendLocked("fills", fillHeader, row); err != nil {
		return err
	}

	j.fills++
	j.commission = j.commission.Add(fill.Commission)
	j.entries = append(j.entries, jsonEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Type:      "fill",
		Data:      fill,
	})

	j.log.Debug().Str("fill_id", fill.ID).Msg("fill journaled")
	return nil
}

// appendLocked writes one row, emitting the header only when the file is
// new.
func (j *CSV) appendLocked(kind string, header, row []string) error {
	path := filepath.Join(j.dir, fmt.Sprintf("%s_%s.csv", kind, j.date))

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s journal: %w", kind, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write %s header: %w", kind, err)
		}
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write %s row: %w", kind, err)
	}
	w.Flush()
	return w.Error()
}

// Close dumps the day's entries to journal_<date>.json.
func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := struct {
		Date    string      `json:"date"`
		Entries []jsonEntry `json:"entries"`
	}{Date: j.date, Entries: j.entries}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}

	path := filepath.Join(j.dir, fmt.Sprintf("journal_%s.json", j.date))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write journal json: %w", err)
	}

	j.log.Info().Str("path", path).Msg("journal saved")
	return nil
}

// Summary reports the day's activity counts.
func (j *CSV) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	return Summary{
		Date:            j.date,
		TotalOrders:     j.orders,
		TotalFills:      j.fills,
		TotalCommission: j.commission.String(),
	}
}

func decimalOrEmpty(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
