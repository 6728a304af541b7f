package sizing

import (
	"github.com/shopspring/decimal"

	"dual-portfolio-bot/signals"
)

// SizerConfig contains all position-sizing parameters.
type SizerConfig struct {
	RiskPerTradeFraction   decimal.Decimal `json:"risk_per_trade_fraction"`   // Fraction of portfolio value risked per trade
	AtrMultiplier          decimal.Decimal `json:"atr_multiplier"`            // Stop distance as a multiple of ATR
	MinStopDistancePct     decimal.Decimal `json:"min_stop_distance_pct"`     // Clamp floor, fraction of entry price
	MaxStopDistancePct     decimal.Decimal `json:"max_stop_distance_pct"`     // Clamp ceiling, fraction of entry price
	MaxPerPositionFraction decimal.Decimal `json:"max_per_position_fraction"` // Cap on one position's notional
	MinorDrawdownThreshold decimal.Decimal `json:"minor_drawdown_threshold"`  // Drawdown at which sizing drops to 0.75x
	MajorDrawdownThreshold decimal.Decimal `json:"major_drawdown_threshold"`  // Drawdown at which sizing drops to 0.5x
	MinShares              int64           `json:"min_shares"`                // Floor below which the entry is rejected
	MinNotional            decimal.Decimal `json:"min_notional"`              // Floor below which the entry is rejected
}

// DefaultSizerConfig returns the standard sizing parameters.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPerTradeFraction:   decimal.NewFromFloat(0.02),  // Risk 2% per trade
		AtrMultiplier:          decimal.NewFromFloat(2.0),   // Stop at 2x ATR
		MinStopDistancePct:     decimal.NewFromFloat(0.02),  // Never tighter than 2% of entry
		MaxStopDistancePct:     decimal.NewFromFloat(0.08),  // Never wider than 8% of entry
		MaxPerPositionFraction: decimal.NewFromFloat(0.25),  // Max 25% of portfolio in one name
		MinorDrawdownThreshold: decimal.NewFromFloat(0.05),  // 5% drawdown cuts size to 0.75x
		MajorDrawdownThreshold: decimal.NewFromFloat(0.10),  // 10% drawdown cuts size to 0.5x
		MinShares:              1,
		MinNotional:            decimal.NewFromInt(1000), // Reject dust entries below this notional
	}
}

// SizeResult is the sizer's verdict on a signal. A zero Shares count means
// the signal is rejected; Reason says why.
type SizeResult struct {
	Shares           int64
	CommittedCapital decimal.Decimal
	Reason           string
}

// Accepted reports whether the sizer committed any capital.
func (r SizeResult) Accepted() bool { return r.Shares > 0 }

// PositionSizer converts a signal plus ledger state into a share count and
// capital commitment. It is a pure calculation: all portfolio state arrives
// as arguments and nothing is mutated.
type PositionSizer struct {
	config SizerConfig
}

// NewPositionSizer creates a sizer with the given parameters.
func NewPositionSizer(config SizerConfig) *PositionSizer {
	return &PositionSizer{config: config}
}

var (
	half = decimal.NewFromFloat(0.5)
	two  = decimal.NewFromInt(2)
)

// Size computes how many shares to commit to signal.
//
// The base share count is the portfolio's per-trade risk budget divided by
// the stop distance (ATR-derived when volatility is known, otherwise the
// signal's own entry-to-stop gap), capped so the notional never exceeds the
// per-position fraction of portfolio value. Drawdown and quality multipliers
// then scale the result down or up, and available cash is the final cap.
func (ps *PositionSizer) Size(
	signal signals.TradeSignal,
	portfolioValue decimal.Decimal,
	availableCash decimal.Decimal,
	drawdownFraction decimal.Decimal,
	minAcceptableScore decimal.Decimal,
) SizeResult {
	if signal.QualityScore.LessThan(minAcceptableScore) {
		return SizeResult{Reason: "quality score below strategy minimum"}
	}
	if !portfolioValue.IsPositive() || !availableCash.IsPositive() {
		return SizeResult{Reason: "no capital available"}
	}

	riskBudget := portfolioValue.Mul(ps.config.RiskPerTradeFraction)
	stopDistance := ps.stopDistance(signal)
	if !stopDistance.IsPositive() {
		return SizeResult{Reason: "zero stop distance"}
	}

	shares := riskBudget.Div(stopDistance).IntPart()

	// Notional cap relative to portfolio value.
	maxShares := portfolioValue.Mul(ps.config.MaxPerPositionFraction).Div(signal.EntryPrice).IntPart()
	if shares > maxShares {
		shares = maxShares
	}

	multiplier := ps.drawdownMultiplier(drawdownFraction).
		Mul(ps.qualityMultiplier(signal.QualityScore, minAcceptableScore))
	shares = decimal.NewFromInt(shares).Mul(multiplier).IntPart()

	// The quality boost can push the commitment back over the cap.
	if shares > maxShares {
		shares = maxShares
	}

	// Never commit more than the cash on hand.
	cashShares := availableCash.Div(signal.EntryPrice).IntPart()
	if shares > cashShares {
		shares = cashShares
	}

	if shares < ps.config.MinShares {
		return SizeResult{Reason: "sized below minimum share count"}
	}
	committed := signal.EntryPrice.Mul(decimal.NewFromInt(shares))
	if committed.LessThan(ps.config.MinNotional) {
		return SizeResult{Reason: "sized below minimum notional"}
	}
	return SizeResult{Shares: shares, CommittedCapital: committed}
}

// stopDistance derives the per-share risk. An ATR-based distance is clamped
// to a band of the entry price so extreme volatility readings cannot produce
// absurd sizes.
func (ps *PositionSizer) stopDistance(signal signals.TradeSignal) decimal.Decimal {
	if !signal.HasVolatility() {
		return signal.EntryPrice.Sub(signal.StopLoss)
	}
	dist := signal.Volatility.Mul(ps.config.AtrMultiplier)
	floor := signal.EntryPrice.Mul(ps.config.MinStopDistancePct)
	ceil := signal.EntryPrice.Mul(ps.config.MaxStopDistancePct)
	if dist.LessThan(floor) {
		return floor
	}
	if dist.GreaterThan(ceil) {
		return ceil
	}
	return dist
}

// drawdownMultiplier scales exposure down while the portfolio is under
// water. It never scales up.
func (ps *PositionSizer) drawdownMultiplier(drawdown decimal.Decimal) decimal.Decimal {
	switch {
	case drawdown.GreaterThanOrEqual(ps.config.MajorDrawdownThreshold):
		return half
	case drawdown.GreaterThanOrEqual(ps.config.MinorDrawdownThreshold):
		return decimal.NewFromFloat(0.75)
	default:
		return decimal.NewFromInt(1)
	}
}

// qualityMultiplier scales size linearly with how far the score clears the
// strategy minimum: 0.5x at the minimum, +0.5x per point above, capped 2x.
// Scores below the minimum are rejected before this is called.
func (ps *PositionSizer) qualityMultiplier(score, minScore decimal.Decimal) decimal.Decimal {
	m := half.Add(score.Sub(minScore).Mul(half))
	if m.LessThan(half) {
		return half
	}
	if m.GreaterThan(two) {
		return two
	}
	return m
}
