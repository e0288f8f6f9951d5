package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tradewheel/engine/domain"
)

// sessionLedger is the JSON document written at disconnect: the full
// account statement for the session.
type sessionLedger struct {
	Date      string            `json:"date"`
	Account   domain.Account    `json:"account"`
	Positions []domain.Position `json:"positions"`
	Orders    []*domain.Order   `json:"orders"`
	Fills     []domain.Fill     `json:"fills"`
}

// saveLedgerLocked writes ledger_<date>.json into the configured ledger
// directory. A simulator without a ledger directory skips the dump.
func (s *Simulator) saveLedgerLocked() error {
	if s.ledgerDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.ledgerDir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	date := s.Now().Format("2006-01-02")

	ledger := sessionLedger{
		Date:    date,
		Account: s.account,
	}
	for _, pos := range s.positions {
		ledger.Positions = append(ledger.Positions, *pos)
	}
	for _, order := range s.orders {
		ledger.Orders = append(ledger.Orders, order)
	}
	ledger.Fills = s.fills

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	path := filepath.Join(s.ledgerDir, fmt.Sprintf("ledger_%s.json", date))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}

	s.log.Info().Str("path", path).Msg("ledger saved")
	return nil
}
