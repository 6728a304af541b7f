package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dual-portfolio-bot/ledger"
	"dual-portfolio-bot/signals"
)

func sampleState() *PortfolioState {
	opened := time.Date(2026, time.August, 3, 9, 30, 0, 0, time.UTC)
	return &PortfolioState{
		Name:           "fast",
		InitialCapital: decimal.NewFromInt(100000),
		Cash:           decimal.NewFromFloat(74987.25),
		Positions: map[string]*ledger.Position{
			"RELIANCE": {
				ID:                 "11111111-2222-3333-4444-555555555555",
				Symbol:             "RELIANCE",
				EntryPrice:         decimal.NewFromInt(100),
				InitialShares:      250,
				RemainingShares:    175,
				CostBasisRemaining: decimal.NewFromInt(17500),
				InitialStopLoss:    decimal.NewFromInt(96),
				CurrentStopLoss:    decimal.NewFromFloat(100.2),
				Target1:            decimal.NewFromInt(104),
				Target2:            decimal.NewFromInt(108),
				Target3:            decimal.NewFromInt(112),
				Target1Hit:         true,
				TrailingState:      ledger.TrailingBreakeven,
				StrategyTag:        signals.StrategyFast,
				SetupTag:           signals.SetupMomentum,
				QualityScore:       decimal.NewFromFloat(8.0),
				Volatility:         decimal.NewFromInt(2),
				OpenedAt:           opened,
				MaxHoldingDays:     15,
				RealizedPnL:        decimal.NewFromFloat(367.12),
			},
		},
		Counters:   ledger.NewPerformanceCounters(),
		SetupStats: make(ledger.SetupStats),
	}
}

func sampleTrades() []ledger.ClosedTrade {
	return []ledger.ClosedTrade{{
		ID:           "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Symbol:       "RELIANCE",
		StrategyTag:  signals.StrategyFast,
		SetupTag:     signals.SetupMomentum,
		EntryPrice:   decimal.NewFromInt(100),
		ExitPrice:    decimal.NewFromInt(105),
		SharesClosed: 75,
		PnL:          decimal.NewFromFloat(367.12),
		PnLPercent:   decimal.NewFromFloat(0.05),
		ExitReason:   ledger.ExitTarget1,
		OpenedAt:     time.Date(2026, time.August, 3, 9, 30, 0, 0, time.UTC),
		ClosedAt:     time.Date(2026, time.August, 5, 11, 0, 0, 0, time.UTC),
		IsPartial:    true,
	}}
}

func TestStateRoundTripIsIdentical(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "fast")

	if err := s.SaveState(sampleState()); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "fast_portfolio.json"))
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadState()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.SaveState(loaded); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "fast_portfolio.json"))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Error("persist -> reload -> persist changed the document")
	}
}

func TestLoadedStateMatchesSaved(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "fast")
	state := sampleState()

	if err := s.SaveState(state); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.LoadState()
	if err != nil {
		t.Fatal(err)
	}

	if !loaded.Cash.Equal(state.Cash) {
		t.Errorf("cash = %s, want %s", loaded.Cash, state.Cash)
	}
	pos := loaded.Positions["RELIANCE"]
	if pos == nil {
		t.Fatal("position lost in round trip")
	}
	if pos.RemainingShares != 175 || !pos.Target1Hit || pos.TrailingState != ledger.TrailingBreakeven {
		t.Errorf("position state drifted: %+v", pos)
	}
	if !pos.CurrentStopLoss.Equal(decimal.NewFromFloat(100.2)) {
		t.Errorf("stop = %s, want 100.2", pos.CurrentStopLoss)
	}
}

func TestTradesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "fast")

	if err := s.SaveTrades(sampleTrades()); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "fast_trades.json"))
	if err != nil {
		t.Fatal(err)
	}

	trades, err := s.LoadTrades()
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || trades[0].ExitReason != ledger.ExitTarget1 || !trades[0].IsPartial {
		t.Fatalf("trade log drifted: %+v", trades)
	}

	if err := s.SaveTrades(trades); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "fast_trades.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("trade log round trip changed the document")
	}
}

func TestMissingFilesStartFresh(t *testing.T) {
	s := NewStore(t.TempDir(), "fast")

	state, err := s.LoadState()
	if err != nil {
		t.Fatalf("missing state file must not error: %v", err)
	}
	if state != nil {
		t.Errorf("missing state file must load nil, got %+v", state)
	}

	trades, err := s.LoadTrades()
	if err != nil || trades != nil {
		t.Errorf("missing trades file must load empty, got %v / %v", trades, err)
	}
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "fast")
	if err := s.SaveState(sampleState()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "fast_portfolio.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file should be renamed away after save")
	}
}
