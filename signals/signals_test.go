package signals

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validSignal() TradeSignal {
	return TradeSignal{
		Symbol:       "TCS",
		StrategyTag:  StrategyFast,
		SetupTag:     SetupBreakout,
		EntryPrice:   decimal.NewFromInt(100),
		StopLoss:     decimal.NewFromInt(96),
		Target1:      decimal.NewFromInt(104),
		Target2:      decimal.NewFromInt(108),
		Target3:      decimal.NewFromInt(112),
		QualityScore: decimal.NewFromFloat(8.0),
		Volatility:   decimal.NewFromInt(2),
		Timestamp:    time.Now(),
	}
}

func TestValidateAcceptsWellFormedSignal(t *testing.T) {
	if err := validSignal().Validate(); err != nil {
		t.Errorf("valid signal rejected: %v", err)
	}
	sig := validSignal()
	sig.Volatility = decimal.Zero // absent ATR is allowed
	if err := sig.Validate(); err != nil {
		t.Errorf("signal without volatility rejected: %v", err)
	}
	if sig.HasVolatility() {
		t.Error("zero volatility must read as absent")
	}
}

func TestValidateRejectsMalformedSignals(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TradeSignal)
	}{
		{"empty symbol", func(s *TradeSignal) { s.Symbol = "" }},
		{"unknown strategy tag", func(s *TradeSignal) { s.StrategyTag = "SWING" }},
		{"unknown setup tag", func(s *TradeSignal) { s.SetupTag = "NEWS" }},
		{"zero entry", func(s *TradeSignal) { s.EntryPrice = decimal.Zero }},
		{"negative entry", func(s *TradeSignal) { s.EntryPrice = decimal.NewFromInt(-5) }},
		{"stop above entry", func(s *TradeSignal) { s.StopLoss = decimal.NewFromInt(101) }},
		{"stop equals entry", func(s *TradeSignal) { s.StopLoss = decimal.NewFromInt(100) }},
		{"zero stop", func(s *TradeSignal) { s.StopLoss = decimal.Zero }},
		{"target1 below entry", func(s *TradeSignal) { s.Target1 = decimal.NewFromInt(99) }},
		{"targets not ascending", func(s *TradeSignal) { s.Target2 = decimal.NewFromInt(104) }},
		{"target3 below target2", func(s *TradeSignal) { s.Target3 = decimal.NewFromInt(107) }},
		{"quality above scale", func(s *TradeSignal) { s.QualityScore = decimal.NewFromInt(11) }},
		{"negative quality", func(s *TradeSignal) { s.QualityScore = decimal.NewFromInt(-1) }},
		{"negative volatility", func(s *TradeSignal) { s.Volatility = decimal.NewFromInt(-2) }},
	}
	for _, tc := range tests {
		sig := validSignal()
		tc.mutate(&sig)
		err := sig.Validate()
		if err == nil {
			t.Errorf("%s: expected rejection", tc.name)
			continue
		}
		if !errors.Is(err, ErrInvalidSignal) {
			t.Errorf("%s: error %v does not wrap ErrInvalidSignal", tc.name, err)
		}
	}
}
