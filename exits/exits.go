package exits

import (
	"time"

	"github.com/shopspring/decimal"

	"dual-portfolio-bot/calendar"
	"dual-portfolio-bot/ledger"
)

// ExitConfig contains the exit state machine parameters.
type ExitConfig struct {
	Target1Fraction decimal.Decimal `json:"target1_fraction"` // Fraction of initial shares closed at T1
	Target2Fraction decimal.Decimal `json:"target2_fraction"` // Fraction of initial shares closed at T2
	Target1LockPct  decimal.Decimal `json:"target1_lock_pct"` // Stop lock above entry after T1
	Target2LockPct  decimal.Decimal `json:"target2_lock_pct"` // Stop lock above entry after T2

	BreakevenTriggerPct   decimal.Decimal `json:"breakeven_trigger_pct"`    // Profit that moves the stop to entry
	AtrTrailTriggerPct    decimal.Decimal `json:"atr_trail_trigger_pct"`    // Profit that starts ATR trailing
	TrailAtrMultiple      decimal.Decimal `json:"trail_atr_multiple"`       // Trailing distance in ATRs
	TightTrailAtrMultiple decimal.Decimal `json:"tight_trail_atr_multiple"` // Trailing distance once T2 has fired
	TrailPercentFallback  decimal.Decimal `json:"trail_percent_fallback"`   // Trailing distance when ATR is unknown

	TimeExitProfitCeiling decimal.Decimal `json:"time_exit_profit_ceiling"` // Aged positions above this profit keep running

	MinRemainderShares   int64           `json:"min_remainder_shares"`   // Partials leaving fewer shares become full closes
	MinRemainderNotional decimal.Decimal `json:"min_remainder_notional"` // Partials leaving less notional become full closes
}

// DefaultExitConfig returns the standard exit parameters.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		Target1Fraction: decimal.NewFromFloat(0.30),  // Close 30% of initial at T1
		Target2Fraction: decimal.NewFromFloat(0.40),  // Close 40% of initial at T2
		Target1LockPct:  decimal.NewFromFloat(0.002), // Lock entry +0.2% after T1
		Target2LockPct:  decimal.NewFromFloat(0.035), // Lock entry +3.5% after T2

		BreakevenTriggerPct:   decimal.NewFromFloat(0.02), // Breakeven stop at +2%
		AtrTrailTriggerPct:    decimal.NewFromFloat(0.08), // ATR trailing from +8%
		TrailAtrMultiple:      decimal.NewFromFloat(1.8),
		TightTrailAtrMultiple: decimal.NewFromFloat(1.0), // Tighten once T2 banked
		TrailPercentFallback:  decimal.NewFromFloat(0.03),

		TimeExitProfitCeiling: decimal.NewFromFloat(0.03), // Only flush aged positions under +3%

		MinRemainderShares:   5,
		MinRemainderNotional: decimal.NewFromInt(500),
	}
}

// ExitAction is the single action the engine may order per evaluation cycle.
// ExitPrice is the modeled fill: the stop level for stop-outs, the observed
// price for everything else.
type ExitAction struct {
	Reason        ledger.ExitReason
	SharesToClose int64
	ExitPrice     decimal.Decimal
}

// StopAdvance reports a trailing-stop move made during evaluation.
type StopAdvance struct {
	NewStop decimal.Decimal
	Stage   ledger.TrailingState
}

// ExitEngine decides, for one position and one price observation, what exit
// action (if any) fires this cycle. It mutates only the position's stop,
// trailing stage, and hit flags; share and cash movements are applied by the
// portfolio after its evaluation sweep completes.
type ExitEngine struct {
	config   ExitConfig
	calendar *calendar.TradingCalendar
}

// NewExitEngine creates an engine with the given parameters and calendar.
func NewExitEngine(config ExitConfig, cal *calendar.TradingCalendar) *ExitEngine {
	return &ExitEngine{config: config, calendar: cal}
}

// Evaluate runs one cycle of the exit state machine for pos at price.
//
// Priority order, first match wins: stop-loss, then (after trailing-stop
// advancement) target3 full close, target2 partial, target1 first-touch
// partial, target1 revisit full close, time-based exit. The stop check runs
// before the trailing update so a gapped-down print exits at the stop that
// was actually in force.
func (e *ExitEngine) Evaluate(pos *ledger.Position, price decimal.Decimal, now time.Time) (*ExitAction, *StopAdvance) {
	if pos.RemainingShares <= 0 {
		panic("exits: evaluating position with no remaining shares")
	}

	// 1. Stop-loss on the stop in force before any update this cycle.
	if price.LessThanOrEqual(pos.CurrentStopLoss) {
		return &ExitAction{
			Reason:        ledger.ExitStopLoss,
			SharesToClose: pos.RemainingShares,
			ExitPrice:     pos.CurrentStopLoss,
		}, nil
	}

	advance := e.advanceTrailingStop(pos, price)

	// 2. Target3: done, take everything off.
	if price.GreaterThanOrEqual(pos.Target3) && !pos.Target3Hit {
		pos.Target1Hit, pos.Target2Hit, pos.Target3Hit = true, true, true
		return &ExitAction{
			Reason:        ledger.ExitTarget3,
			SharesToClose: pos.RemainingShares,
			ExitPrice:     price,
		}, advance
	}

	// 3. Target2: partial of the original size, lock a real gain.
	if price.GreaterThanOrEqual(pos.Target2) && !pos.Target2Hit {
		pos.Target1Hit, pos.Target2Hit = true, true
		pos.RaiseStop(e.lockLevel(pos, e.config.Target2LockPct))
		return &ExitAction{
			Reason:        ledger.ExitTarget2,
			SharesToClose: e.partialShares(pos, e.config.Target2Fraction, price),
			ExitPrice:     price,
		}, advance
	}

	// 4. Target1 first touch: partial of the original size, lock breakeven+.
	if price.GreaterThanOrEqual(pos.Target1) && !pos.Target1Hit {
		pos.Target1Hit = true
		pos.RaiseStop(e.lockLevel(pos, e.config.Target1LockPct))
		return &ExitAction{
			Reason:        ledger.ExitTarget1,
			SharesToClose: e.partialShares(pos, e.config.Target1Fraction, price),
			ExitPrice:     price,
		}, advance
	}

	// 5. Target1 revisit after a retrace: guard the gain, close the rest.
	if price.GreaterThanOrEqual(pos.Target1) && pos.Target1Hit && pos.RetracedBelowTarget1 {
		return &ExitAction{
			Reason:        ledger.ExitTarget1Revisit,
			SharesToClose: pos.RemainingShares,
			ExitPrice:     price,
		}, advance
	}

	// Remember the retrace so a later touch of T1 closes the remainder.
	if pos.Target1Hit && price.LessThan(pos.Target1) {
		pos.RetracedBelowTarget1 = true
	}

	// 6. Time exit: stale positions that never went anywhere get flushed.
	// A profitable aged position is left to run into its trailing stop.
	if pos.MaxHoldingDays > 0 &&
		e.calendar.TradingDaysBetween(pos.OpenedAt, now) >= pos.MaxHoldingDays &&
		pos.UnrealizedPnLPercent(price).LessThan(e.config.TimeExitProfitCeiling) {
		return &ExitAction{
			Reason:        ledger.ExitTimeLimit,
			SharesToClose: pos.RemainingShares,
			ExitPrice:     price,
		}, advance
	}

	return nil, advance
}

// advanceTrailingStop runs the monotonic stop machinery: the stage only
// moves forward and the stop only moves up.
func (e *ExitEngine) advanceTrailingStop(pos *ledger.Position, price decimal.Decimal) *StopAdvance {
	profit := pos.UnrealizedPnLPercent(price)
	moved := false

	if pos.TrailingState == ledger.TrailingNone && profit.GreaterThanOrEqual(e.config.BreakevenTriggerPct) {
		pos.TrailingState = ledger.TrailingBreakeven
		moved = pos.RaiseStop(pos.EntryPrice) || moved
	}
	if pos.TrailingState == ledger.TrailingBreakeven && profit.GreaterThanOrEqual(e.config.AtrTrailTriggerPct) {
		pos.TrailingState = ledger.TrailingAtr
		moved = true
	}
	if pos.TrailingState == ledger.TrailingAtr {
		moved = pos.RaiseStop(price.Sub(e.trailDistance(pos, price))) || moved
	}

	if !moved {
		return nil
	}
	return &StopAdvance{NewStop: pos.CurrentStopLoss, Stage: pos.TrailingState}
}

// trailDistance is the gap kept below price while ATR-trailing. The ATR
// multiple tightens once target2 has banked; without an ATR reading a fixed
// percentage of price stands in.
func (e *ExitEngine) trailDistance(pos *ledger.Position, price decimal.Decimal) decimal.Decimal {
	if !pos.HasVolatility() {
		return price.Mul(e.config.TrailPercentFallback)
	}
	multiple := e.config.TrailAtrMultiple
	if pos.Target2Hit {
		multiple = e.config.TightTrailAtrMultiple
	}
	return pos.Volatility.Mul(multiple)
}

// lockLevel is the profit-locking stop for a target hit, relative to entry.
func (e *ExitEngine) lockLevel(pos *ledger.Position, lockPct decimal.Decimal) decimal.Decimal {
	return pos.EntryPrice.Mul(decimal.NewFromInt(1).Add(lockPct))
}

// partialShares sizes a target partial against the ORIGINAL share count so
// cumulative exit percentages stay stable however many partials fired. If
// the leftover would be dust, the partial is promoted to a full close.
func (e *ExitEngine) partialShares(pos *ledger.Position, fraction, price decimal.Decimal) int64 {
	shares := decimal.NewFromInt(pos.InitialShares).Mul(fraction).IntPart()
	if shares <= 0 {
		return pos.RemainingShares
	}
	if shares >= pos.RemainingShares {
		return pos.RemainingShares
	}
	remainder := pos.RemainingShares - shares
	if remainder < e.config.MinRemainderShares ||
		price.Mul(decimal.NewFromInt(remainder)).LessThan(e.config.MinRemainderNotional) {
		return pos.RemainingShares
	}
	return shares
}
