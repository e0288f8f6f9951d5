// Package sim is the in-memory paper-trading broker. It fills market orders
// immediately against a price source, applying slippage and a fixed
// commission, and maintains positions, cash, and PnL exactly as a real
// venue statement would.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tradewheel/engine/broker"
	"github.com/tradewheel/engine/domain"
	"github.com/tradewheel/engine/marketdata"
	"github.com/tradewheel/engine/pkg/id"
)

// Options configures the simulator. Zero values take the documented
// defaults.
type Options struct {
	// InitialCash funds the account (default 100000).
	InitialCash decimal.Decimal
	// SlippageBPS is applied against the trader on every market fill
	// (default 1.5).
	SlippageBPS float64
	// CommissionPerTrade is the flat fee charged per fill (default 2.0).
	CommissionPerTrade decimal.Decimal
	// LedgerDir receives a ledger_<date>.json dump on disconnect. Empty
	// disables the dump.
	LedgerDir string
}

func (o *Options) setDefaults() {
	if o.InitialCash.Sign() == 0 {
		o.InitialCash = decimal.NewFromInt(100000)
	}
	if o.SlippageBPS == 0 {
		o.SlippageBPS = 1.5
	}
	if o.CommissionPerTrade.Sign() == 0 {
		o.CommissionPerTrade = decimal.NewFromInt(2)
	}
}

// Simulator implements broker.Broker against an in-memory book.
type Simulator struct {
	mu        sync.Mutex
	account   domain.Account
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	fills     []domain.Fill

	source     marketdata.Source
	slippage   decimal.Decimal // fractional, bps/10000
	commission decimal.Decimal
	ledgerDir  string
	connected  bool

	log zerolog.Logger

	// Now is the simulator clock. The backtest broker pins it to bar time.
	Now func() time.Time
}

var _ broker.Broker = (*Simulator)(nil)

// New builds a simulator quoting off source.
func New(source marketdata.Source, opts Options, log zerolog.Logger) *Simulator {
	opts.setDefaults()

	s := &Simulator{
		positions:  make(map[string]*domain.Position),
		orders:     make(map[string]*domain.Order),
		source:     source,
		slippage:   decimal.NewFromFloat(opts.SlippageBPS / 10000.0),
		commission: opts.CommissionPerTrade,
		ledgerDir:  opts.LedgerDir,
		log:        log,
		Now:        time.Now,
	}
	s.account = domain.NewAccount(opts.InitialCash, time.Now())

	log.Info().
		Str("cash", opts.InitialCash.String()).
		Float64("slippage_bps", opts.SlippageBPS).
		Str("commission", opts.CommissionPerTrade.String()).
		Msg("simulator initialized")

	return s
}

// Name implements broker.Broker.
func (s *Simulator) Name() string { return "simulator" }

// Connect implements broker.Broker. It always succeeds.
func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.log.Info().Msg("simulator connected")
	return nil
}

// Disconnect writes the session ledger and drops the connection.
func (s *Simulator) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	if err := s.saveLedgerLocked(); err != nil {
		s.log.Error().Err(err).Msg("ledger save failed")
	}
	s.connected = false
	s.log.Info().Msg("simulator disconnected")
	return nil
}

// Connected implements broker.Broker.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Account returns the account with equity recomputed as cash plus the
// market value of every open position at current prices.
func (s *Simulator) Account(ctx context.Context) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshPositionsLocked(ctx)

	equity := s.account.Cash
	for _, pos := range s.positions {
		equity = equity.Add(pos.MarketValue())
	}
	s.account.UpdateEquity(equity, s.Now())

	return s.account, nil
}

// Positions returns all open positions marked to current prices.
func (s *Simulator) Positions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshPositionsLocked(ctx)

	out := make([]domain.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// Position returns the open position for symbol, or nil when flat.
func (s *Simulator) Position(ctx context.Context, symbol string) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return nil, nil
	}
	if price, err := s.source.Price(ctx, symbol); err == nil {
		pos.UpdatePrice(price)
	}

	cp := *pos
	return &cp, nil
}

// refreshPositionsLocked marks every position to the latest source price.
// A symbol with no quote keeps its last mark.
func (s *Simulator) refreshPositionsLocked(ctx context.Context) {
	for symbol, pos := range s.positions {
		price, err := s.source.Price(ctx, symbol)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("position mark skipped")
			continue
		}
		pos.UpdatePrice(price)
	}
}

// PlaceOrder implements broker.Broker. Market orders execute immediately;
// other types rest in SUBMITTED. Business rejections come back as REJECTED
// orders, not errors.
func (s *Simulator) PlaceOrder(ctx context.Context, req broker.OrderRequest) (*domain.Order, error) {
	if !s.Connected() {
		return nil, broker.ErrNotConnected
	}
	if err := broker.ValidateOrderParams(req); err != nil {
		return nil, err
	}

	now := s.Now()
	tif := req.TimeInForce
	if tif == "" {
		tif = domain.TIFDay
	}

	order := &domain.Order{
		ID:          id.New(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Type:        req.Type,
		Quantity:    req.Quantity,
		Status:      domain.StatusPending,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		StopLoss:    req.StopLoss,
		TakeProfit:  req.TakeProfit,
		TimeInForce: tif,
		CreatedAt:   now,
		Strategy:    req.Strategy,
		Confidence:  req.Confidence,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order.Status = domain.StatusSubmitted
	order.SubmittedAt = &now
	s.orders[order.ID] = order

	s.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("qty", order.Quantity.String()).
		Str("type", string(order.Type)).
		Msg("order placed")

	if order.Type == domain.OrderMarket {
		s.executeMarketOrderLocked(ctx, order)
	}

	cp := *order
	return &cp, nil
}

// executeMarketOrderLocked fills a market order atomically at the source
// price adjusted for slippage.
func (s *Simulator) executeMarketOrderLocked(ctx context.Context, order *domain.Order) {
	price, err := s.source.Price(ctx, order.Symbol)
	if err != nil {
		order.Reject(fmt.Sprintf("Execution error: %v", err))
		s.log.Error().Err(err).Str("order_id", order.ID).Msg("order rejected")
		return
	}

	// Slippage always works against the trader.
	var fillPrice decimal.Decimal
	if order.Side == domain.SideBuy {
		fillPrice = price.Mul(decimal.NewFromInt(1).Add(s.slippage))
	} else {
		fillPrice = price.Mul(decimal.NewFromInt(1).Sub(s.slippage))
	}

	if order.Side == domain.SideSell {
		held := decimal.Zero
		if pos, ok := s.positions[order.Symbol]; ok {
			held = pos.Quantity
		}
		if held.LessThan(order.Quantity) {
			reason := fmt.Sprintf("Insufficient position: have %s, trying to sell %s", held, order.Quantity)
			order.Reject(reason)
			s.log.Warn().Str("order_id", order.ID).Msg(reason)
			return
		}
	}

	if order.Side == domain.SideBuy {
		required := fillPrice.Mul(order.Quantity).Add(s.commission)
		if required.GreaterThan(s.account.Cash) {
			reason := fmt.Sprintf("Insufficient funds: need $%s, have $%s", required, s.account.Cash)
			order.Reject(reason)
			s.log.Warn().Str("order_id", order.ID).Msg(reason)
			return
		}
	}

	now := s.Now()
	fill := domain.Fill{
		ID:         id.New(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      fillPrice,
		Commission: s.commission,
		Timestamp:  now,
	}
	s.fills = append(s.fills, fill)

	order.Status = domain.StatusFilled
	order.FilledAt = &now
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = &fillPrice
	order.Commission = s.commission

	s.applyFillLocked(order, fill)

	notional := fillPrice.Mul(order.Quantity)
	if order.Side == domain.SideBuy {
		s.account.Cash = s.account.Cash.Sub(notional.Add(s.commission))
	} else {
		s.account.Cash = s.account.Cash.Add(notional.Sub(s.commission))
	}

	s.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("qty", order.Quantity.String()).
		Str("price", fillPrice.String()).
		Str("commission", s.commission.String()).
		Msg("order filled")
}

// applyFillLocked folds a fill into the position book. Same-direction fills
// average into the entry price; opposing fills realize PnL on the closed
// quantity, with any remainder opening a fresh position the other way.
func (s *Simulator) applyFillLocked(order *domain.Order, fill domain.Fill) {
	pos, ok := s.positions[order.Symbol]
	if !ok {
		pos = &domain.Position{
			Symbol:       order.Symbol,
			CurrentPrice: fill.Price,
			OpenedAt:     fill.Timestamp,
			Strategy:     order.Strategy,
		}
		s.positions[order.Symbol] = pos
	}

	signed := fill.Quantity
	if order.Side == domain.SideSell {
		signed = signed.Neg()
	}

	switch {
	case pos.Quantity.Sign() == 0 || pos.Quantity.Sign() == signed.Sign():
		// Opening or extending: volume-weighted entry price.
		newQty := pos.Quantity.Add(signed)
		cost := pos.AvgEntryPrice.Mul(pos.Quantity.Abs()).Add(fill.Price.Mul(fill.Quantity))
		pos.AvgEntryPrice = cost.Div(newQty.Abs())
		pos.Quantity = newQty

	default:
		// Reducing, closing, or flipping: realize PnL on the overlap.
		closed := decimal.Min(signed.Abs(), pos.Quantity.Abs())

		var realized decimal.Decimal
		if pos.Quantity.Sign() > 0 {
			realized = fill.Price.Sub(pos.AvgEntryPrice).Mul(closed)
		} else {
			realized = pos.AvgEntryPrice.Sub(fill.Price).Mul(closed)
		}
		pos.RealizedPnL = pos.RealizedPnL.Add(realized)
		s.account.TotalPnL = s.account.TotalPnL.Add(realized)
		s.account.DailyPnL = s.account.DailyPnL.Add(realized)

		newQty := pos.Quantity.Add(signed)
		if newQty.Sign() != 0 && newQty.Sign() != pos.Quantity.Sign() {
			// Flipped through flat: the remainder is a new position at the
			// fill price.
			pos.AvgEntryPrice = fill.Price
			pos.OpenedAt = fill.Timestamp
			pos.Strategy = order.Strategy
		}
		pos.Quantity = newQty
	}

	if pos.Quantity.Sign() == 0 {
		delete(s.positions, order.Symbol)
	}
	pos.UpdatePrice(fill.Price)
}

// CancelOrder cancels a resting order. Only PENDING and SUBMITTED orders
// can be cancelled; anything terminal, including an already-cancelled
// order, returns false.
func (s *Simulator) CancelOrder(ctx context.Context, orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		s.log.Warn().Str("order_id", orderID).Msg("cancel: order not found")
		return false
	}
	if order.Status != domain.StatusPending && order.Status != domain.StatusSubmitted {
		s.log.Warn().Str("order_id", orderID).Str("status", string(order.Status)).Msg("cancel: not cancellable")
		return false
	}

	now := s.Now()
	order.Status = domain.StatusCancelled
	order.CancelledAt = &now

	s.log.Info().Str("order_id", orderID).Msg("order cancelled")
	return true
}

// Order returns a copy of the order, or nil when unknown.
func (s *Simulator) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *order
	return &cp, nil
}

// Orders returns copies of orders matching the filter.
func (s *Simulator) Orders(ctx context.Context, f broker.OrderFilter) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, order := range s.orders {
		if f.Symbol != "" && order.Symbol != f.Symbol {
			continue
		}
		if f.Status != "" && order.Status != f.Status {
			continue
		}
		cp := *order
		out = append(out, &cp)
	}
	return out, nil
}

// Fills returns fills matching the filter in execution order.
func (s *Simulator) Fills(ctx context.Context, f broker.FillFilter) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Fill
	for _, fill := range s.fills {
		if f.Symbol != "" && fill.Symbol != f.Symbol {
			continue
		}
		if f.OrderID != "" && fill.OrderID != f.OrderID {
			continue
		}
		out = append(out, fill)
	}
	return out, nil
}

// CurrentPrice implements broker.Broker by delegating to the price source.
func (s *Simulator) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, err := s.source.Price(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", broker.ErrNoPrice, symbol)
	}
	return price, nil
}

// MarketHours implements broker.Broker with a simplified weekday calendar.
func (s *Simulator) MarketHours(ctx context.Context, symbol string) broker.MarketHours {
	wd := s.Now().Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return broker.MarketHours{IsOpen: false, Session: "closed"}
	}
	return broker.MarketHours{IsOpen: true, Session: "regular"}
}
