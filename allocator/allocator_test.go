package allocator

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dual-portfolio-bot/calendar"
	"dual-portfolio-bot/exits"
	"dual-portfolio-bot/ledger"
	"dual-portfolio-bot/portfolio"
	"dual-portfolio-bot/signals"
	"dual-portfolio-bot/sizing"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newTestAllocator(maxFast int) *DualPortfolioAllocator {
	sizerCfg := sizing.DefaultSizerConfig()
	sizerCfg.MaxPerPositionFraction = dec(0.10) // room for a full pool of positions
	sizer := sizing.NewPositionSizer(sizerCfg)
	engine := exits.NewExitEngine(exits.DefaultExitConfig(), calendar.NewTradingCalendar(nil))

	fastCfg := portfolio.DefaultFastConfig()
	fastCfg.MaxPositions = maxFast
	fastCfg.InitialCapital = decimal.NewFromInt(1000000) // roomy, sizing is not under test here
	coreCfg := portfolio.DefaultCoreConfig()
	coreCfg.InitialCapital = decimal.NewFromInt(1000000)

	fast := portfolio.NewPortfolio(fastCfg, sizer, engine, nil, zap.NewNop())
	core := portfolio.NewPortfolio(coreCfg, sizer, engine, nil, zap.NewNop())
	return New(fast, core, DefaultConfig(), zap.NewNop())
}

func signalFor(symbol string, tag signals.StrategyTag, setup signals.SetupTag, quality float64) signals.TradeSignal {
	return signals.TradeSignal{
		Symbol:       symbol,
		StrategyTag:  tag,
		SetupTag:     setup,
		EntryPrice:   decimal.NewFromInt(100),
		StopLoss:     decimal.NewFromInt(96),
		Target1:      decimal.NewFromInt(104),
		Target2:      decimal.NewFromInt(108),
		Target3:      decimal.NewFromInt(112),
		QualityScore: dec(quality),
		Volatility:   decimal.NewFromInt(2),
		Timestamp:    time.Now(),
	}
}

func TestSymbolCannotBeOpenInBothPortfolios(t *testing.T) {
	a := newTestAllocator(6)
	now := time.Now()

	result, _ := a.TryOpen(signalFor("TCS", signals.StrategyFast, signals.SetupMomentum, 8.0), nil, now)
	if !result.Opened() {
		t.Fatalf("fast open failed: %s", result.Reason)
	}

	result, _ = a.TryOpen(signalFor("TCS", signals.StrategyCore, signals.SetupMomentum, 8.0), nil, now)
	if result.Status != portfolio.RejectedDuplicateSymbol {
		t.Errorf("status = %s, want cross-portfolio duplicate rejection", result.Status)
	}
	if a.Core().Holds("TCS") {
		t.Error("core must not hold a symbol the fast pool owns")
	}
}

// Scenario: a full pool, weakest holding quality 7.0 sitting at -3%, and a
// 9.0-quality candidate. The weakest is evicted with a smart-replacement
// close and the candidate takes its slot.
func TestSmartReplacementEvictsWeakest(t *testing.T) {
	a := newTestAllocator(6)
	now := time.Now()
	prices := make(map[string]decimal.Decimal)

	for i := 0; i < 6; i++ {
		q := 7.0 + float64(i)*0.2 // weakest is WEAK0 at 7.0
		sym := fmt.Sprintf("WEAK%d", i)
		result, _ := a.TryOpen(signalFor(sym, signals.StrategyFast, signals.SetupMomentum, q), nil, now)
		if !result.Opened() {
			t.Fatalf("setup open %s failed: %s", sym, result.Reason)
		}
		prices[sym] = decimal.NewFromInt(100)
	}
	prices["WEAK0"] = dec(97) // -3% unrealized on the lowest quality

	result, events := a.TryOpen(signalFor("STAR", signals.StrategyFast, signals.SetupBreakout, 9.0), prices, now)
	if !result.Opened() {
		t.Fatalf("replacement open failed: %s / %s", result.Status, result.Reason)
	}

	var replacement *portfolio.Event
	for i := range events {
		if events[i].Reason == ledger.ExitSmartReplacement {
			replacement = &events[i]
		}
	}
	if replacement == nil {
		t.Fatal("expected a smart-replacement exit event")
	}
	if replacement.Symbol != "WEAK0" {
		t.Errorf("evicted %s, want WEAK0", replacement.Symbol)
	}
	if a.Fast().Holds("WEAK0") || !a.Fast().Holds("STAR") {
		t.Error("slot must move from WEAK0 to STAR")
	}
}

func TestNoReplacementForMediocreSignal(t *testing.T) {
	a := newTestAllocator(2)
	now := time.Now()
	prices := map[string]decimal.Decimal{
		"A": decimal.NewFromInt(100),
		"B": decimal.NewFromInt(100),
	}
	a.TryOpen(signalFor("A", signals.StrategyFast, signals.SetupMomentum, 8.0), nil, now)
	a.TryOpen(signalFor("B", signals.StrategyFast, signals.SetupMomentum, 8.2), nil, now)

	// Below the 8.5 replacement floor.
	result, _ := a.TryOpen(signalFor("C", signals.StrategyFast, signals.SetupMomentum, 8.2), prices, now)
	if result.Status != portfolio.RejectedPortfolioFull {
		t.Errorf("status = %s, want full-pool rejection", result.Status)
	}

	// Above the floor but within the margin of the weakest (8.0).
	result, _ = a.TryOpen(signalFor("D", signals.StrategyFast, signals.SetupMomentum, 8.6), prices, now)
	if result.Status != portfolio.RejectedPortfolioFull {
		t.Errorf("status = %s, want margin rejection", result.Status)
	}
	if !a.Fast().Holds("A") || !a.Fast().Holds("B") {
		t.Error("holdings must be untouched by failed replacements")
	}
}

func TestReplacementSkipsUnpricedPositions(t *testing.T) {
	a := newTestAllocator(1)
	now := time.Now()
	a.TryOpen(signalFor("A", signals.StrategyFast, signals.SetupMomentum, 7.0), nil, now)

	// No price for A this cycle: it cannot be ranked, so no eviction.
	result, _ := a.TryOpen(signalFor("B", signals.StrategyFast, signals.SetupMomentum, 9.5),
		map[string]decimal.Decimal{}, now)
	if result.Status != portfolio.RejectedPortfolioFull {
		t.Errorf("status = %s, want rejection when weakest cannot be priced", result.Status)
	}
	if !a.Fast().Holds("A") {
		t.Error("unpriced position must never be evicted")
	}
}

func TestAllocateBatchPrefersMeanReversionTowardTarget(t *testing.T) {
	a := newTestAllocator(5) // target 0.4 * 5 -> wants 2 mean-reversion slots
	now := time.Now()

	batch := []signals.TradeSignal{
		signalFor("MO1", signals.StrategyFast, signals.SetupMomentum, 9.0),
		signalFor("MO2", signals.StrategyFast, signals.SetupMomentum, 8.8),
		signalFor("MO3", signals.StrategyFast, signals.SetupMomentum, 8.6),
		signalFor("MO4", signals.StrategyFast, signals.SetupMomentum, 8.4),
		signalFor("MR1", signals.StrategyFast, signals.SetupMeanReversion, 7.5),
		signalFor("MR2", signals.StrategyFast, signals.SetupMeanReversion, 7.2),
		signalFor("MR3", signals.StrategyFast, signals.SetupMeanReversion, 7.1),
	}
	results, _ := a.AllocateBatch(batch, nil, now)

	opened := 0
	for _, r := range results {
		if r.Opened() {
			opened++
		}
	}
	if opened != 5 {
		t.Fatalf("opened %d, want 5", opened)
	}
	mr := 0
	for _, pos := range a.Fast().Positions() {
		if pos.SetupTag == signals.SetupMeanReversion {
			mr++
		}
	}
	if mr != 2 {
		t.Errorf("mean-reversion slots = %d, want 2 despite lower quality", mr)
	}
	if !a.Fast().Holds("MR1") || !a.Fast().Holds("MR2") {
		t.Error("the two best mean-reversion candidates should fill the biased slots")
	}
}

// A batch arriving at a full pool must still reach the smart-replacement
// path: the strong candidate evicts the weakest holding and takes its slot.
func TestAllocateBatchReplacesIntoFullPool(t *testing.T) {
	a := newTestAllocator(2)
	now := time.Now()
	prices := map[string]decimal.Decimal{
		"WEAK0": dec(97), // -3% on the lowest quality
		"WEAK1": decimal.NewFromInt(100),
	}
	a.TryOpen(signalFor("WEAK0", signals.StrategyFast, signals.SetupMomentum, 7.0), nil, now)
	a.TryOpen(signalFor("WEAK1", signals.StrategyFast, signals.SetupMomentum, 7.2), nil, now)

	batch := []signals.TradeSignal{
		signalFor("STAR", signals.StrategyFast, signals.SetupBreakout, 9.0),
	}
	results, events := a.AllocateBatch(batch, prices, now)

	if len(results) != 1 || !results[0].Opened() {
		t.Fatalf("expected the candidate to open into the full pool, got %+v", results)
	}
	replaced := false
	for _, ev := range events {
		if ev.Reason == ledger.ExitSmartReplacement && ev.Symbol == "WEAK0" {
			replaced = true
		}
	}
	if !replaced {
		t.Error("expected a smart-replacement exit for WEAK0")
	}
	if !a.Fast().Holds("STAR") || a.Fast().Holds("WEAK0") {
		t.Error("slot must move from WEAK0 to STAR")
	}
	if a.Fast().OpenPositionCount() != 2 {
		t.Errorf("open positions = %d, want the pool still at its ceiling", a.Fast().OpenPositionCount())
	}
}

func TestAllocateBatchDegradesWithoutPreferredTag(t *testing.T) {
	a := newTestAllocator(3)
	now := time.Now()

	batch := []signals.TradeSignal{
		signalFor("MO1", signals.StrategyFast, signals.SetupMomentum, 9.0),
		signalFor("MO2", signals.StrategyFast, signals.SetupBreakout, 8.5),
		signalFor("MO3", signals.StrategyFast, signals.SetupMomentum, 8.0),
	}
	results, _ := a.AllocateBatch(batch, nil, now)

	opened := 0
	for _, r := range results {
		if r.Opened() {
			opened++
		}
	}
	if opened != 3 {
		t.Errorf("opened %d, want all 3 same-tag fills", opened)
	}
}

func TestEvaluateAllFansOutToBothPools(t *testing.T) {
	a := newTestAllocator(6)
	now := time.Now()
	a.TryOpen(signalFor("FAST1", signals.StrategyFast, signals.SetupMomentum, 8.0), nil, now)
	a.TryOpen(signalFor("CORE1", signals.StrategyCore, signals.SetupMomentum, 8.0), nil, now)

	prices := map[string]decimal.Decimal{
		"FAST1": dec(95), // below stop -> stop-out
		"CORE1": dec(95),
	}
	events := a.EvaluateAll(prices, now)

	stopOuts := 0
	for _, ev := range events {
		if ev.Type == portfolio.EventExitFired && ev.Reason == ledger.ExitStopLoss {
			stopOuts++
		}
	}
	if stopOuts != 2 {
		t.Errorf("stop-outs = %d, want one per pool", stopOuts)
	}
}

func TestCombinedSummaryAggregates(t *testing.T) {
	a := newTestAllocator(6)
	now := time.Now()
	a.TryOpen(signalFor("FAST1", signals.StrategyFast, signals.SetupMomentum, 8.0), nil, now)

	summary := a.GetCombinedSummary(map[string]decimal.Decimal{"FAST1": decimal.NewFromInt(100)})
	wantTotal := decimal.NewFromInt(2000000)
	if !summary.TotalValue.Equal(wantTotal) {
		t.Errorf("total value = %s, want %s", summary.TotalValue, wantTotal)
	}
	if !summary.TotalReturnPct.IsZero() {
		t.Errorf("return = %s, want 0 at entry prices", summary.TotalReturnPct)
	}
	if summary.Fast.OpenPositions != 1 || summary.Core.OpenPositions != 0 {
		t.Errorf("open counts = %d/%d, want 1/0", summary.Fast.OpenPositions, summary.Core.OpenPositions)
	}
}
