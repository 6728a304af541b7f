package allocator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dual-portfolio-bot/ledger"
	"dual-portfolio-bot/portfolio"
	"dual-portfolio-bot/signals"
)

// Config contains the cross-portfolio rules.
type Config struct {
	ReplacementMinQuality       decimal.Decimal `json:"replacement_min_quality"`        // Candidate floor for evicting a held position
	ReplacementMargin           decimal.Decimal `json:"replacement_margin"`             // Candidate must beat the weakest by this many points
	TargetMeanReversionFraction decimal.Decimal `json:"target_mean_reversion_fraction"` // Preferred share of slots for mean-reversion setups
}

// DefaultConfig returns the standard allocator parameters.
func DefaultConfig() Config {
	return Config{
		ReplacementMinQuality:       decimal.NewFromFloat(8.5),
		ReplacementMargin:           decimal.NewFromFloat(1.0),
		TargetMeanReversionFraction: decimal.NewFromFloat(0.4),
	}
}

// DualPortfolioAllocator coordinates two independently capitalized
// portfolios. It only ever acts through their public operations so each
// ledger's invariants stay locally provable: no symbol open in both pools,
// smart replacement when a full pool meets a much better signal, and
// slot-biased filling when a mixed batch of candidates arrives.
type DualPortfolioAllocator struct {
	fast   *portfolio.Portfolio
	core   *portfolio.Portfolio
	config Config
	logger *zap.Logger
}

// New wires the allocator over its two portfolios.
func New(fast, core *portfolio.Portfolio, config Config, logger *zap.Logger) *DualPortfolioAllocator {
	return &DualPortfolioAllocator{fast: fast, core: core, config: config, logger: logger}
}

// Fast returns the fast capital pool.
func (a *DualPortfolioAllocator) Fast() *portfolio.Portfolio { return a.fast }

// Core returns the core capital pool.
func (a *DualPortfolioAllocator) Core() *portfolio.Portfolio { return a.core }

// portfolioFor routes a signal to its capital pool by strategy tag.
func (a *DualPortfolioAllocator) portfolioFor(tag signals.StrategyTag) (*portfolio.Portfolio, *portfolio.Portfolio) {
	if tag == signals.StrategyCore {
		return a.core, a.fast
	}
	return a.fast, a.core
}

// TryOpen routes signal to its portfolio, enforcing cross-portfolio symbol
// uniqueness and attempting smart replacement when the pool is full. The
// returned events cover any replacement exit plus the entry itself.
func (a *DualPortfolioAllocator) TryOpen(signal signals.TradeSignal, prices map[string]decimal.Decimal, now time.Time) (portfolio.OpenResult, []portfolio.Event) {
	target, other := a.portfolioFor(signal.StrategyTag)

	if other.Holds(signal.Symbol) {
		return portfolio.OpenResult{
			Status:    portfolio.RejectedDuplicateSymbol,
			Portfolio: target.Name(),
			Reason:    signal.Symbol + " already held by " + other.Name() + " portfolio",
		}, nil
	}

	var events []portfolio.Event
	if target.OpenPositionCount() >= target.MaxPositions() {
		ev, replaced := a.trySmartReplacement(target, signal, prices, now)
		if !replaced {
			return portfolio.OpenResult{
				Status:    portfolio.RejectedPortfolioFull,
				Portfolio: target.Name(),
				Reason:    target.Name() + " portfolio full and signal does not justify replacement",
			}, nil
		}
		events = append(events, ev)
	}

	result := target.Open(signal, now)
	if result.Event != nil {
		events = append(events, *result.Event)
	}
	return result, events
}

// weaknessRank orders held positions for eviction: unrealized pnl percent
// (in points) plus ten times the quality score, so losers and low-quality
// names rank lowest.
func weaknessRank(pos *ledger.Position, price decimal.Decimal) decimal.Decimal {
	pnlPoints := pos.UnrealizedPnLPercent(price).Mul(decimal.NewFromInt(100))
	return pnlPoints.Add(pos.QualityScore.Mul(decimal.NewFromInt(10)))
}

// trySmartReplacement evicts the weakest held position when the incoming
// signal is materially better. Positions without a price this cycle cannot
// be ranked and are never evicted.
func (a *DualPortfolioAllocator) trySmartReplacement(p *portfolio.Portfolio, signal signals.TradeSignal, prices map[string]decimal.Decimal, now time.Time) (portfolio.Event, bool) {
	if signal.QualityScore.LessThan(a.config.ReplacementMinQuality) {
		return portfolio.Event{}, false
	}

	var weakest *ledger.Position
	var weakestRank, weakestPrice decimal.Decimal
	for sym, pos := range p.Positions() {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		rank := weaknessRank(pos, price)
		if weakest == nil || rank.LessThan(weakestRank) {
			weakest, weakestRank, weakestPrice = pos, rank, price
		}
	}
	if weakest == nil {
		return portfolio.Event{}, false
	}
	if signal.QualityScore.Sub(weakest.QualityScore).LessThan(a.config.ReplacementMargin) {
		return portfolio.Event{}, false
	}

	a.logger.Info("smart replacement",
		zap.String("portfolio", p.Name()),
		zap.String("evicting", weakest.Symbol),
		zap.String("evicted_quality", weakest.QualityScore.String()),
		zap.String("incoming", signal.Symbol),
		zap.String("incoming_quality", signal.QualityScore.String()))

	ev, ok := p.ForceClose(weakest.Symbol, weakestPrice, ledger.ExitSmartReplacement, now)
	return ev, ok
}

// EvaluateAll fans one price cycle out to both portfolios.
func (a *DualPortfolioAllocator) EvaluateAll(prices map[string]decimal.Decimal, now time.Time) []portfolio.Event {
	events := a.fast.Evaluate(prices, now)
	return append(events, a.core.Evaluate(prices, now)...)
}

// AllocateBatch opens positions from a mixed batch of candidates, filling
// toward the target mean-reversion share of each pool's slots. Candidates
// are tried best quality first within their bucket; when the preferred
// bucket runs dry the remaining slots fill from the other bucket. A full
// pool does not end the fill: every remaining candidate still gets its
// smart replacement attempt, so a strong late arrival can evict a weak
// holding even when no free slot was ever available.
func (a *DualPortfolioAllocator) AllocateBatch(batch []signals.TradeSignal, prices map[string]decimal.Decimal, now time.Time) ([]portfolio.OpenResult, []portfolio.Event) {
	var results []portfolio.OpenResult
	var events []portfolio.Event

	for _, tag := range []signals.StrategyTag{signals.StrategyFast, signals.StrategyCore} {
		target, _ := a.portfolioFor(tag)

		var meanRev, others []signals.TradeSignal
		for _, s := range batch {
			if s.StrategyTag != tag {
				continue
			}
			if s.SetupTag == signals.SetupMeanReversion {
				meanRev = append(meanRev, s)
			} else {
				others = append(others, s)
			}
		}
		byQualityDesc(meanRev)
		byQualityDesc(others)

		for len(meanRev) > 0 || len(others) > 0 {
			var next signals.TradeSignal
			if len(meanRev) > 0 && (a.belowMeanReversionTarget(target) || len(others) == 0) {
				next, meanRev = meanRev[0], meanRev[1:]
			} else {
				next, others = others[0], others[1:]
			}
			result, evs := a.TryOpen(next, prices, now)
			results = append(results, result)
			events = append(events, evs...)
		}
	}
	return results, events
}

// belowMeanReversionTarget reports whether the pool still wants another
// mean-reversion slot to reach its target ratio.
func (a *DualPortfolioAllocator) belowMeanReversionTarget(p *portfolio.Portfolio) bool {
	held := int64(0)
	for _, pos := range p.Positions() {
		if pos.SetupTag == signals.SetupMeanReversion {
			held++
		}
	}
	want := a.config.TargetMeanReversionFraction.
		Mul(decimal.NewFromInt(int64(p.MaxPositions()))).
		Ceil().IntPart()
	return held < want
}

func byQualityDesc(list []signals.TradeSignal) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].QualityScore.GreaterThan(list[j].QualityScore)
	})
}

// CombinedSummary aggregates both pools for reporting.
type CombinedSummary struct {
	Fast           portfolio.Summary `json:"fast"`
	Core           portfolio.Summary `json:"core"`
	TotalValue     decimal.Decimal   `json:"total_value"`
	TotalReturnPct decimal.Decimal   `json:"total_return_pct"`
	TotalTrades    int64             `json:"total_trades"`
	WinRate        decimal.Decimal   `json:"win_rate"`
}

// GetCombinedSummary marks both portfolios at prices and aggregates them.
func (a *DualPortfolioAllocator) GetCombinedSummary(prices map[string]decimal.Decimal) CombinedSummary {
	fast := a.fast.GetSummary(prices)
	core := a.core.GetSummary(prices)

	totalValue := fast.Value.Add(core.Value)
	totalInitial := a.fast.InitialCapital().Add(a.core.InitialCapital())
	totalTrades := fast.TradeCount + core.TradeCount

	fc := a.fast.Counters()
	cc := a.core.Counters()
	winRate := decimal.Zero
	if totalTrades > 0 {
		winRate = decimal.NewFromInt(fc.WinCount + cc.WinCount).Div(decimal.NewFromInt(totalTrades))
	}

	return CombinedSummary{
		Fast:           fast,
		Core:           core,
		TotalValue:     totalValue,
		TotalReturnPct: totalValue.Sub(totalInitial).Div(totalInitial),
		TotalTrades:    totalTrades,
		WinRate:        winRate,
	}
}
