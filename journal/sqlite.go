package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/domain"
)

// SQLite journals into a local database so history is queryable across
// sessions. Orders are upserted: the same order is logged again as its
// status advances and the latest state wins.
type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// LogOrder implements Journal.
func (j *SQLite) LogOrder(order *domain.Order) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(order_id, created_at, symbol, side, type, quantity, status,
		 limit_price, stop_price, stop_loss, take_profit,
		 filled_quantity, avg_fill_price, commission, strategy, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			filled_quantity = excluded.filled_quantity,
			avg_fill_price = excluded.avg_fill_price,
			commission = excluded.commission,
			notes = excluded.notes`,
		order.ID, order.CreatedAt, order.Symbol, string(order.Side),
		string(order.Type), order.Quantity.String(), string(order.Status),
		decimalOrNull(order.LimitPrice), decimalOrNull(order.StopPrice),
		decimalOrNull(order.StopLoss), decimalOrNull(order.TakeProfit),
		order.FilledQuantity.String(), decimalOrNull(order.AvgFillPrice),
		order.Commission.String(), order.Strategy, order.Notes,
	)
	return err
}

// LogFill implements Journal.
func (j *SQLite) LogFill(fill domain.Fill) error {
	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO fills
		(fill_id, order_id, time, symbol, side, quantity, price, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.ID, fill.OrderID, fill.Timestamp, fill.Symbol,
		string(fill.Side), fill.Quantity.String(), fill.Price.String(),
		fill.Commission.String(),
	)
	return err
}

// Close implements Journal.
func (j *SQLite) Close() error {
	return j.db.Close()
}

func decimalOrNull(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
