package ledger

import (
	"github.com/shopspring/decimal"

	"dual-portfolio-bot/signals"
)

// PerformanceCounters tracks realized results. Counters move only on FULL
// closes: a partial books its pnl into the position, and the whole result
// is counted once when the last share goes.
type PerformanceCounters struct {
	TradeCount  int64           `json:"trade_count"`
	WinCount    int64           `json:"win_count"`
	LossCount   int64           `json:"loss_count"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	BestTrade   decimal.Decimal `json:"best_trade"`
	WorstTrade  decimal.Decimal `json:"worst_trade"`
}

// NewPerformanceCounters returns zeroed counters with decimals initialized.
func NewPerformanceCounters() PerformanceCounters {
	return PerformanceCounters{
		RealizedPnL: decimal.Zero,
		BestTrade:   decimal.Zero,
		WorstTrade:  decimal.Zero,
	}
}

// RecordFullClose books one completed position's total pnl.
func (c *PerformanceCounters) RecordFullClose(pnl decimal.Decimal) {
	c.TradeCount++
	if pnl.IsPositive() {
		c.WinCount++
	} else {
		c.LossCount++
	}
	c.RealizedPnL = c.RealizedPnL.Add(pnl)
	if c.TradeCount == 1 || pnl.GreaterThan(c.BestTrade) {
		c.BestTrade = pnl
	}
	if c.TradeCount == 1 || pnl.LessThan(c.WorstTrade) {
		c.WorstTrade = pnl
	}
}

// WinRate is wins over completed trades, zero when nothing has closed.
func (c *PerformanceCounters) WinRate() decimal.Decimal {
	if c.TradeCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(c.WinCount).Div(decimal.NewFromInt(c.TradeCount))
}

// TagStats aggregates completed trades for one setup tag.
type TagStats struct {
	Trades int64           `json:"trades"`
	Wins   int64           `json:"wins"`
	Losses int64           `json:"losses"`
	PnL    decimal.Decimal `json:"pnl"`
}

// SetupStats maps setup tag to its realized aggregate.
type SetupStats map[signals.SetupTag]*TagStats

// Record books a completed position's pnl under its setup tag.
func (s SetupStats) Record(tag signals.SetupTag, pnl decimal.Decimal) {
	st, ok := s[tag]
	if !ok {
		st = &TagStats{PnL: decimal.Zero}
		s[tag] = st
	}
	st.Trades++
	if pnl.IsPositive() {
		st.Wins++
	} else {
		st.Losses++
	}
	st.PnL = st.PnL.Add(pnl)
}
