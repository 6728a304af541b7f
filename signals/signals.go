package signals

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StrategyTag identifies which capital pool a signal is intended for.
type StrategyTag string

const (
	StrategyFast StrategyTag = "FAST"
	StrategyCore StrategyTag = "CORE"
)

// SetupTag classifies the kind of setup the signal generator detected.
type SetupTag string

const (
	SetupMomentum      SetupTag = "MOMENTUM"
	SetupMeanReversion SetupTag = "MEAN_REVERSION"
	SetupBreakout      SetupTag = "BREAKOUT"
)

// ErrInvalidSignal is returned when an incoming signal fails validation.
// Malformed signals are logged and skipped, never fatal.
var ErrInvalidSignal = errors.New("invalid signal")

// TradeSignal is the immutable input record produced by the signal generator.
// The engine treats it as untrusted and validates it before acting.
type TradeSignal struct {
	Symbol       string          `json:"symbol"`
	StrategyTag  StrategyTag     `json:"strategy_tag"`
	SetupTag     SetupTag        `json:"setup_tag"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	StopLoss     decimal.Decimal `json:"stop_loss"`
	Target1      decimal.Decimal `json:"target1"`
	Target2      decimal.Decimal `json:"target2"`
	Target3      decimal.Decimal `json:"target3"`
	QualityScore decimal.Decimal `json:"quality_score"` // 0-10
	Volatility   decimal.Decimal `json:"volatility"`    // ATR, zero when unknown
	Timestamp    time.Time       `json:"timestamp"`
}

// HasVolatility reports whether the signal carries a usable ATR reading.
func (s TradeSignal) HasVolatility() bool {
	return s.Volatility.IsPositive()
}

// Validate checks structural soundness of the signal. All failures wrap
// ErrInvalidSignal so callers can branch on the class without parsing text.
func (s TradeSignal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	switch s.StrategyTag {
	case StrategyFast, StrategyCore:
	default:
		return fmt.Errorf("%w: unknown strategy tag %q", ErrInvalidSignal, s.StrategyTag)
	}
	switch s.SetupTag {
	case SetupMomentum, SetupMeanReversion, SetupBreakout:
	default:
		return fmt.Errorf("%w: unknown setup tag %q", ErrInvalidSignal, s.SetupTag)
	}
	if !s.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry price must be positive, got %s", ErrInvalidSignal, s.EntryPrice)
	}
	if s.StopLoss.GreaterThanOrEqual(s.EntryPrice) {
		return fmt.Errorf("%w: stop loss %s must be below entry %s", ErrInvalidSignal, s.StopLoss, s.EntryPrice)
	}
	if !s.StopLoss.IsPositive() {
		return fmt.Errorf("%w: stop loss must be positive, got %s", ErrInvalidSignal, s.StopLoss)
	}
	if s.Target1.LessThanOrEqual(s.EntryPrice) {
		return fmt.Errorf("%w: target1 %s must be above entry %s", ErrInvalidSignal, s.Target1, s.EntryPrice)
	}
	if s.Target2.LessThanOrEqual(s.Target1) || s.Target3.LessThanOrEqual(s.Target2) {
		return fmt.Errorf("%w: targets must be strictly ascending (%s, %s, %s)",
			ErrInvalidSignal, s.Target1, s.Target2, s.Target3)
	}
	if s.QualityScore.IsNegative() || s.QualityScore.GreaterThan(decimal.NewFromInt(10)) {
		return fmt.Errorf("%w: quality score %s outside 0-10", ErrInvalidSignal, s.QualityScore)
	}
	if s.Volatility.IsNegative() {
		return fmt.Errorf("%w: volatility cannot be negative, got %s", ErrInvalidSignal, s.Volatility)
	}
	return nil
}
