package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"dual-portfolio-bot/signals"
)

// TrailingState tracks how far the trailing-stop machinery has progressed.
// Transitions only move forward: None -> Breakeven -> AtrTrailing.
type TrailingState string

const (
	TrailingNone      TrailingState = "NONE"
	TrailingBreakeven TrailingState = "BREAKEVEN"
	TrailingAtr       TrailingState = "ATR_TRAILING"
)

// ExitReason labels why shares were closed.
type ExitReason string

const (
	ExitStopLoss         ExitReason = "STOP_LOSS"
	ExitTarget1          ExitReason = "TARGET1"
	ExitTarget2          ExitReason = "TARGET2"
	ExitTarget3          ExitReason = "TARGET3"
	ExitTarget1Revisit   ExitReason = "TARGET1_REVISIT"
	ExitTimeLimit        ExitReason = "TIME_EXIT"
	ExitSmartReplacement ExitReason = "SMART_REPLACEMENT"
)

// Position is the mutable lifecycle record of one open trade. It is owned
// exclusively by a single portfolio and only mutated through its evaluate
// path, so it carries no locking of its own.
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	EntryPrice decimal.Decimal `json:"entry_price"`

	InitialShares      int64           `json:"initial_shares"`
	RemainingShares    int64           `json:"remaining_shares"`
	CostBasisRemaining decimal.Decimal `json:"cost_basis_remaining"`

	InitialStopLoss decimal.Decimal `json:"initial_stop_loss"` // retained for reporting
	CurrentStopLoss decimal.Decimal `json:"current_stop_loss"` // only ever raised
	Target1         decimal.Decimal `json:"target1"`
	Target2         decimal.Decimal `json:"target2"`
	Target3         decimal.Decimal `json:"target3"`

	Target1Hit bool `json:"target1_hit"`
	Target2Hit bool `json:"target2_hit"`
	Target3Hit bool `json:"target3_hit"`
	// Set once price dips back under target1 after it fired; a later touch
	// of target1 then closes the remainder instead of waiting for target2.
	RetracedBelowTarget1 bool `json:"retraced_below_target1"`

	TrailingState TrailingState `json:"trailing_state"`

	StrategyTag  signals.StrategyTag `json:"strategy_tag"`
	SetupTag     signals.SetupTag    `json:"setup_tag"`
	QualityScore decimal.Decimal     `json:"quality_score"`
	Volatility   decimal.Decimal     `json:"volatility"` // ATR at entry, zero when unknown

	OpenedAt       time.Time       `json:"opened_at"`
	MaxHoldingDays int             `json:"max_holding_days"` // trading days
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`     // accumulated across partials
}

// HasVolatility reports whether the position carries a usable ATR reading.
func (p *Position) HasVolatility() bool {
	return p.Volatility.IsPositive()
}

// MarketValue returns remaining shares valued at price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.RemainingShares))
}

// UnrealizedPnL is the open profit of the remaining shares at price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price).Sub(p.CostBasisRemaining)
}

// UnrealizedPnLPercent is the open profit as a fraction of entry price.
func (p *Position) UnrealizedPnLPercent(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.EntryPrice).Div(p.EntryPrice)
}

// RaiseStop lifts the stop to level if higher than the current stop.
// Returns true when the stop actually moved. Stops never come down.
func (p *Position) RaiseStop(level decimal.Decimal) bool {
	if level.GreaterThan(p.CurrentStopLoss) {
		p.CurrentStopLoss = level
		return true
	}
	return false
}

// ClosedTrade is the immutable record appended for every exit, partial or
// full. PnL is net of fees; PnLPercent is the gross price move.
type ClosedTrade struct {
	ID           string              `json:"id"`
	Symbol       string              `json:"symbol"`
	StrategyTag  signals.StrategyTag `json:"strategy_tag"`
	SetupTag     signals.SetupTag    `json:"setup_tag"`
	EntryPrice   decimal.Decimal     `json:"entry_price"`
	ExitPrice    decimal.Decimal     `json:"exit_price"`
	SharesClosed int64               `json:"shares_closed"`
	PnL          decimal.Decimal     `json:"pnl"`
	PnLPercent   decimal.Decimal     `json:"pnl_percent"`
	ExitReason   ExitReason          `json:"exit_reason"`
	OpenedAt     time.Time           `json:"opened_at"`
	ClosedAt     time.Time           `json:"closed_at"`
	IsPartial    bool                `json:"is_partial"`
}
