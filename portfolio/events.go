package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"dual-portfolio-bot/ledger"
)

// EventType labels the events a portfolio emits for the alerting and
// dashboard collaborators. Events are pure data; consumers are expected to
// have no side effects back into the engine.
type EventType string

const (
	EventEntryOpened         EventType = "ENTRY_OPENED"
	EventExitFired           EventType = "EXIT_FIRED"
	EventTrailingStopAdvance EventType = "TRAILING_STOP_ADVANCED"
)

// Event carries one lifecycle notification. Fields beyond the header block
// are populated per type: exit events fill Reason/PnL/IsPartial, trailing
// events fill NewStop/Stage.
type Event struct {
	Type      EventType       `json:"type"`
	Portfolio string          `json:"portfolio"`
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Shares    int64           `json:"shares,omitempty"`
	Price     decimal.Decimal `json:"price,omitempty"`

	Reason    ledger.ExitReason `json:"reason,omitempty"`
	PnL       decimal.Decimal   `json:"pnl,omitempty"`
	IsPartial bool              `json:"is_partial,omitempty"`

	NewStop decimal.Decimal      `json:"new_stop,omitempty"`
	Stage   ledger.TrailingState `json:"stage,omitempty"`
}

// OpenStatus is the outcome class of an open attempt. Rejections are
// ordinary business results, not errors; callers branch on the status.
type OpenStatus string

const (
	OpenAccepted                OpenStatus = "OPENED"
	RejectedInvalidSignal       OpenStatus = "INVALID_SIGNAL"
	RejectedDuplicateSymbol     OpenStatus = "DUPLICATE_SYMBOL"
	RejectedInsufficientCapital OpenStatus = "INSUFFICIENT_CAPITAL"
	RejectedPortfolioFull       OpenStatus = "PORTFOLIO_FULL"
)

// OpenResult reports the outcome of Portfolio.Open. Portfolio names the
// pool that handled the attempt; Event is set only when a position opened.
type OpenResult struct {
	Status    OpenStatus
	Portfolio string
	Reason    string
	Position  *ledger.Position
	Event     *Event
}

// Opened reports whether a position was actually created.
func (r OpenResult) Opened() bool { return r.Status == OpenAccepted }
