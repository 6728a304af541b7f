package portfolio

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dual-portfolio-bot/exits"
	"dual-portfolio-bot/ledger"
	"dual-portfolio-bot/signals"
	"dual-portfolio-bot/sizing"
	"dual-portfolio-bot/store"
)

// Config contains one portfolio's capital and lifecycle parameters.
type Config struct {
	Name               string              `json:"name"`
	StrategyTag        signals.StrategyTag `json:"strategy_tag"`
	InitialCapital     decimal.Decimal     `json:"initial_capital"`
	MaxPositions       int                 `json:"max_positions"`
	MinAcceptableScore decimal.Decimal     `json:"min_acceptable_score"`
	MaxHoldingDays     int                 `json:"max_holding_days"` // trading days
	ExitFeeRate        decimal.Decimal     `json:"exit_fee_rate"`    // proportional, charged on sell proceeds
}

// DefaultFastConfig returns the fast capital pool: short horizon, higher
// quality bar.
func DefaultFastConfig() Config {
	return Config{
		Name:               "fast",
		StrategyTag:        signals.StrategyFast,
		InitialCapital:     decimal.NewFromInt(100000),
		MaxPositions:       6,
		MinAcceptableScore: decimal.NewFromFloat(7.0),
		MaxHoldingDays:     15,
		ExitFeeRate:        decimal.NewFromFloat(0.001), // 0.1% on exits
	}
}

// DefaultCoreConfig returns the core capital pool: positional horizon.
func DefaultCoreConfig() Config {
	return Config{
		Name:               "core",
		StrategyTag:        signals.StrategyCore,
		InitialCapital:     decimal.NewFromInt(100000),
		MaxPositions:       8,
		MinAcceptableScore: decimal.NewFromFloat(6.5),
		MaxHoldingDays:     90,
		ExitFeeRate:        decimal.NewFromFloat(0.001),
	}
}

// Portfolio composes the capital ledger, position sizer, and exit engine
// into the open/evaluate/close lifecycle for one capital pool, and owns its
// persistence. It is driven by exactly one call path at a time; embed it
// behind a single mutex covering whole operations if a concurrent host
// needs it.
type Portfolio struct {
	config       Config
	ledger       *ledger.CapitalLedger
	sizer        *sizing.PositionSizer
	exits        *exits.ExitEngine
	closedTrades []ledger.ClosedTrade
	counters     ledger.PerformanceCounters
	setupStats   ledger.SetupStats
	store        *store.Store
	logger       *zap.Logger
}

// NewPortfolio wires a portfolio from its collaborators. st may be nil for
// a purely in-memory portfolio (backtests, tests).
func NewPortfolio(config Config, sizer *sizing.PositionSizer, engine *exits.ExitEngine, st *store.Store, logger *zap.Logger) *Portfolio {
	return &Portfolio{
		config:       config,
		ledger:       ledger.NewCapitalLedger(config.InitialCapital),
		sizer:        sizer,
		exits:        engine,
		closedTrades: make([]ledger.ClosedTrade, 0),
		counters:     ledger.NewPerformanceCounters(),
		setupStats:   make(ledger.SetupStats),
		store:        st,
		logger:       logger,
	}
}

// Name returns the portfolio's name.
func (p *Portfolio) Name() string { return p.config.Name }

// StrategyTag returns the strategy pool this portfolio serves.
func (p *Portfolio) StrategyTag() signals.StrategyTag { return p.config.StrategyTag }

// MaxPositions returns the position-count ceiling.
func (p *Portfolio) MaxPositions() int { return p.config.MaxPositions }

// Holds reports whether symbol is currently open here.
func (p *Portfolio) Holds(symbol string) bool { return p.ledger.Holds(symbol) }

// OpenPositionCount returns the number of open positions.
func (p *Portfolio) OpenPositionCount() int { return p.ledger.OpenPositionCount() }

// Positions exposes the open position map for read-only iteration.
func (p *Portfolio) Positions() map[string]*ledger.Position { return p.ledger.Positions() }

// Cash returns free cash.
func (p *Portfolio) Cash() decimal.Decimal { return p.ledger.Cash() }

// InitialCapital returns the starting capital.
func (p *Portfolio) InitialCapital() decimal.Decimal { return p.ledger.InitialCapital() }

// ClosedTrades returns the append-only log of every exit, partial or full.
func (p *Portfolio) ClosedTrades() []ledger.ClosedTrade { return p.closedTrades }

// Counters returns the full-close performance counters.
func (p *Portfolio) Counters() ledger.PerformanceCounters { return p.counters }

// BookValue is cash plus deployed cost basis, independent of live prices.
func (p *Portfolio) BookValue() decimal.Decimal { return p.ledger.BookValue() }

// Drawdown is the fraction of initial capital currently under water on a
// book-value basis, floored at zero.
func (p *Portfolio) Drawdown() decimal.Decimal {
	initial := p.ledger.InitialCapital()
	dd := initial.Sub(p.ledger.BookValue()).Div(initial)
	if dd.IsNegative() {
		return decimal.Zero
	}
	return dd
}

// Value marks the portfolio to market: cash plus each open position at its
// known price, at cost basis for symbols missing from the map.
func (p *Portfolio) Value(prices map[string]decimal.Decimal) decimal.Decimal {
	total := p.ledger.Cash()
	for sym, pos := range p.ledger.Positions() {
		if price, ok := prices[sym]; ok {
			total = total.Add(pos.MarketValue(price))
		} else {
			total = total.Add(pos.CostBasisRemaining)
		}
	}
	return total
}

// Open attempts to enter a position for signal. Every rejection is an
// ordinary result, never an error or panic.
func (p *Portfolio) Open(signal signals.TradeSignal, now time.Time) OpenResult {
	if err := signal.Validate(); err != nil {
		p.logger.Warn("rejecting malformed signal",
			zap.String("portfolio", p.config.Name),
			zap.String("symbol", signal.Symbol),
			zap.Error(err))
		return OpenResult{Status: RejectedInvalidSignal, Portfolio: p.config.Name, Reason: err.Error()}
	}
	if signal.StrategyTag != p.config.StrategyTag {
		return OpenResult{Status: RejectedInvalidSignal, Portfolio: p.config.Name,
			Reason: fmt.Sprintf("signal tagged %s routed to %s portfolio", signal.StrategyTag, p.config.StrategyTag)}
	}
	if p.ledger.Holds(signal.Symbol) {
		return OpenResult{Status: RejectedDuplicateSymbol, Portfolio: p.config.Name,
			Reason: fmt.Sprintf("%s already held", signal.Symbol)}
	}
	if p.ledger.OpenPositionCount() >= p.config.MaxPositions {
		return OpenResult{Status: RejectedPortfolioFull, Portfolio: p.config.Name,
			Reason: fmt.Sprintf("at position ceiling %d", p.config.MaxPositions)}
	}

	sized := p.sizer.Size(signal, p.BookValue(), p.ledger.Cash(), p.Drawdown(), p.config.MinAcceptableScore)
	if !sized.Accepted() {
		return OpenResult{Status: RejectedInsufficientCapital, Portfolio: p.config.Name, Reason: sized.Reason}
	}

	cost := p.ledger.Reserve(sized.Shares, signal.EntryPrice)
	if err := p.ledger.Debit(cost); err != nil {
		// Sizer already capped at available cash; reaching here means drift.
		return OpenResult{Status: RejectedInsufficientCapital, Portfolio: p.config.Name, Reason: err.Error()}
	}

	pos := &ledger.Position{
		ID:                 uuid.New().String(),
		Symbol:             signal.Symbol,
		EntryPrice:         signal.EntryPrice,
		InitialShares:      sized.Shares,
		RemainingShares:    sized.Shares,
		CostBasisRemaining: cost,
		InitialStopLoss:    signal.StopLoss,
		CurrentStopLoss:    signal.StopLoss,
		Target1:            signal.Target1,
		Target2:            signal.Target2,
		Target3:            signal.Target3,
		TrailingState:      ledger.TrailingNone,
		StrategyTag:        signal.StrategyTag,
		SetupTag:           signal.SetupTag,
		QualityScore:       signal.QualityScore,
		Volatility:         signal.Volatility,
		OpenedAt:           now,
		MaxHoldingDays:     p.config.MaxHoldingDays,
		RealizedPnL:        decimal.Zero,
	}
	p.ledger.AddPosition(pos)

	p.logger.Info("position opened",
		zap.String("portfolio", p.config.Name),
		zap.String("symbol", pos.Symbol),
		zap.Int64("shares", pos.InitialShares),
		zap.String("entry", pos.EntryPrice.String()),
		zap.String("stop", pos.CurrentStopLoss.String()),
		zap.String("cost", cost.String()))

	return OpenResult{Status: OpenAccepted, Portfolio: p.config.Name, Position: pos, Event: &Event{
		Type:      EventEntryOpened,
		Portfolio: p.config.Name,
		Symbol:    pos.Symbol,
		Timestamp: now,
		Shares:    pos.InitialShares,
		Price:     pos.EntryPrice,
	}}
}

type exitWork struct {
	pos    *ledger.Position
	action *exits.ExitAction
}

// Evaluate runs one exit cycle over every open position with a known price.
// Symbols missing from prices are skipped untouched this cycle. Decisions
// are collected during iteration and all ledger mutations applied after it
// completes.
func (p *Portfolio) Evaluate(prices map[string]decimal.Decimal, now time.Time) []Event {
	var events []Event
	var work []exitWork

	for sym, pos := range p.ledger.Positions() {
		price, ok := prices[sym]
		if !ok {
			p.logger.Debug("no price this cycle, skipping",
				zap.String("portfolio", p.config.Name),
				zap.String("symbol", sym))
			continue
		}
		action, advance := p.exits.Evaluate(pos, price, now)
		if advance != nil {
			events = append(events, Event{
				Type:      EventTrailingStopAdvance,
				Portfolio: p.config.Name,
				Symbol:    sym,
				Timestamp: now,
				NewStop:   advance.NewStop,
				Stage:     advance.Stage,
			})
		}
		if action != nil {
			work = append(work, exitWork{pos: pos, action: action})
		}
	}

	for _, w := range work {
		events = append(events, p.applyExit(w.pos, w.action, now))
	}
	return events
}

// ForceClose closes the whole position at price with the given reason. Used
// by the allocator's smart-replacement path.
func (p *Portfolio) ForceClose(symbol string, price decimal.Decimal, reason ledger.ExitReason, now time.Time) (Event, bool) {
	pos := p.ledger.Position(symbol)
	if pos == nil {
		return Event{}, false
	}
	return p.applyExit(pos, &exits.ExitAction{
		Reason:        reason,
		SharesToClose: pos.RemainingShares,
		ExitPrice:     price,
	}, now), true
}

// applyExit books an exit action: releases cost basis, credits proceeds net
// of the modeled fee, appends the closed-trade record, and retires the
// position when the last share goes.
func (p *Portfolio) applyExit(pos *ledger.Position, action *exits.ExitAction, now time.Time) Event {
	shares := decimal.NewFromInt(action.SharesToClose)
	costPortion := p.ledger.ReducePosition(pos, action.SharesToClose)

	gross := action.ExitPrice.Mul(shares)
	fee := gross.Mul(p.config.ExitFeeRate).Round(2)
	pnl := gross.Sub(fee).Sub(costPortion)
	p.ledger.Credit(costPortion.Add(pnl))

	isPartial := pos.RemainingShares > 0
	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)

	trade := ledger.ClosedTrade{
		ID:           uuid.New().String(),
		Symbol:       pos.Symbol,
		StrategyTag:  pos.StrategyTag,
		SetupTag:     pos.SetupTag,
		EntryPrice:   pos.EntryPrice,
		ExitPrice:    action.ExitPrice,
		SharesClosed: action.SharesToClose,
		PnL:          pnl,
		PnLPercent:   action.ExitPrice.Sub(pos.EntryPrice).Div(pos.EntryPrice),
		ExitReason:   action.Reason,
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     now,
		IsPartial:    isPartial,
	}
	p.closedTrades = append(p.closedTrades, trade)

	if !isPartial {
		p.counters.RecordFullClose(pos.RealizedPnL)
		p.setupStats.Record(pos.SetupTag, pos.RealizedPnL)
		p.ledger.RemovePosition(pos.Symbol)
	}

	p.logger.Info("exit fired",
		zap.String("portfolio", p.config.Name),
		zap.String("symbol", pos.Symbol),
		zap.String("reason", string(action.Reason)),
		zap.Int64("shares", action.SharesToClose),
		zap.String("exit_price", action.ExitPrice.String()),
		zap.String("pnl", pnl.String()),
		zap.Bool("partial", isPartial))

	return Event{
		Type:      EventExitFired,
		Portfolio: p.config.Name,
		Symbol:    trade.Symbol,
		Timestamp: now,
		Shares:    trade.SharesClosed,
		Price:     trade.ExitPrice,
		Reason:    trade.ExitReason,
		PnL:       trade.PnL,
		IsPartial: trade.IsPartial,
	}
}

// Save persists the snapshot and trade log. A nil store is a no-op.
func (p *Portfolio) Save() error {
	if p.store == nil {
		return nil
	}
	state := &store.PortfolioState{
		Name:           p.config.Name,
		InitialCapital: p.ledger.InitialCapital(),
		Cash:           p.ledger.Cash(),
		Positions:      p.ledger.Positions(),
		Counters:       p.counters,
		SetupStats:     p.setupStats,
	}
	if err := p.store.SaveState(state); err != nil {
		return err
	}
	return p.store.SaveTrades(p.closedTrades)
}

// Load restores the portfolio from its persisted documents. Missing files
// leave the fresh in-memory state untouched.
func (p *Portfolio) Load() error {
	if p.store == nil {
		return nil
	}
	state, err := p.store.LoadState()
	if err != nil {
		return err
	}
	if state != nil {
		p.ledger = ledger.NewCapitalLedger(state.InitialCapital)
		p.ledger.Restore(state.Cash, state.Positions)
		p.counters = state.Counters
		p.setupStats = state.SetupStats
		if p.setupStats == nil {
			p.setupStats = make(ledger.SetupStats)
		}
	}
	trades, err := p.store.LoadTrades()
	if err != nil {
		return err
	}
	if trades != nil {
		p.closedTrades = trades
	}
	return nil
}

// Summary is a point-in-time report of one portfolio.
type Summary struct {
	Name          string          `json:"name"`
	Value         decimal.Decimal `json:"value"`
	Cash          decimal.Decimal `json:"cash"`
	OpenPositions int             `json:"open_positions"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	TradeCount    int64           `json:"trade_count"`
	WinRate       decimal.Decimal `json:"win_rate"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
}

// GetSummary reports the portfolio marked at the given prices. Unrealized
// pnl covers only symbols with a known price.
func (p *Portfolio) GetSummary(prices map[string]decimal.Decimal) Summary {
	unrealized := decimal.Zero
	for sym, pos := range p.ledger.Positions() {
		if price, ok := prices[sym]; ok {
			unrealized = unrealized.Add(pos.UnrealizedPnL(price))
		}
	}
	realized := decimal.Zero
	for _, t := range p.closedTrades {
		realized = realized.Add(t.PnL)
	}
	value := p.Value(prices)
	initial := p.ledger.InitialCapital()
	return Summary{
		Name:          p.config.Name,
		Value:         value,
		Cash:          p.ledger.Cash(),
		OpenPositions: p.ledger.OpenPositionCount(),
		UnrealizedPnL: unrealized,
		RealizedPnL:   realized,
		TradeCount:    p.counters.TradeCount,
		WinRate:       p.counters.WinRate(),
		ReturnPct:     value.Sub(initial).Div(initial),
	}
}
