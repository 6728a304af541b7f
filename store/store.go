package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"dual-portfolio-bot/ledger"
)

// ErrPersistence wraps any I/O failure on load or save. The engine keeps
// operating in-memory on such a failure; the driver decides whether to
// retry or alert.
var ErrPersistence = errors.New("persistence failure")

// PortfolioState is the durable snapshot of one portfolio. Together with
// the sibling trades log it reproduces identical in-memory state on reload.
type PortfolioState struct {
	Name           string                      `json:"name"`
	InitialCapital decimal.Decimal             `json:"initial_capital"`
	Cash           decimal.Decimal             `json:"cash"`
	Positions      map[string]*ledger.Position `json:"positions"`
	Counters       ledger.PerformanceCounters  `json:"counters"`
	SetupStats     ledger.SetupStats           `json:"setup_stats"`
}

// Store persists one portfolio as two JSON documents in a directory:
// <name>_portfolio.json for the snapshot and <name>_trades.json for the
// append-only closed-trade log. Writes go to a temp file first and rename
// into place so a crash never leaves a torn document.
type Store struct {
	dir       string
	stateFile string
	tradeFile string
}

// NewStore creates a store rooted at dir for the named portfolio.
func NewStore(dir, name string) *Store {
	return &Store{
		dir:       dir,
		stateFile: filepath.Join(dir, name+"_portfolio.json"),
		tradeFile: filepath.Join(dir, name+"_trades.json"),
	}
}

// SaveState writes the portfolio snapshot atomically.
func (s *Store) SaveState(state *PortfolioState) error {
	return s.writeDoc(s.stateFile, state)
}

// LoadState reads the snapshot back. A missing file returns (nil, nil) so a
// first run starts fresh without special-casing.
func (s *Store) LoadState() (*PortfolioState, error) {
	bs, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, s.stateFile, err)
	}
	var state PortfolioState
	if err := json.Unmarshal(bs, &state); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, s.stateFile, err)
	}
	return &state, nil
}

// SaveTrades writes the full closed-trade log atomically.
func (s *Store) SaveTrades(trades []ledger.ClosedTrade) error {
	return s.writeDoc(s.tradeFile, trades)
}

// LoadTrades reads the closed-trade log. A missing file yields an empty log.
func (s *Store) LoadTrades() ([]ledger.ClosedTrade, error) {
	bs, err := os.ReadFile(s.tradeFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, s.tradeFile, err)
	}
	var trades []ledger.ClosedTrade
	if err := json.Unmarshal(bs, &trades); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrPersistence, s.tradeFile, err)
	}
	return trades, nil
}

// writeDoc marshals v with stable key ordering and swaps it into place.
func (s *Store) writeDoc(path string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrPersistence, s.dir, err)
	}
	bs, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, tmp, err)
	}
	return nil
}
