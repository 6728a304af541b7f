package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv" // For loading .env files
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dual-portfolio-bot/allocator"
	"dual-portfolio-bot/calendar"
	"dual-portfolio-bot/exits"
	"dual-portfolio-bot/metrics"
	"dual-portfolio-bot/portfolio"
	"dual-portfolio-bot/signals"
	"dual-portfolio-bot/sizing"
	"dual-portfolio-bot/store"
)

// DriverConfig wires the engine to the outside world: where state lives,
// where signal and price drops arrive, and how often a cycle runs.
type DriverConfig struct {
	StateDir      string        `json:"state_dir"`
	SignalsFile   string        `json:"signals_file"`   // JSON array of trade signals, consumed per cycle
	PricesFile    string        `json:"prices_file"`    // JSON map symbol -> price, re-read per cycle
	CycleInterval time.Duration `json:"cycle_interval"`
	MetricsAddr   string        `json:"metrics_addr"`

	FastCapital decimal.Decimal `json:"fast_capital"`
	CoreCapital decimal.Decimal `json:"core_capital"`
}

// DefaultDriverConfig returns the standard driver wiring.
func DefaultDriverConfig() *DriverConfig {
	return &DriverConfig{
		StateDir:      "data",
		SignalsFile:   "data/signals_inbox.json",
		PricesFile:    "data/prices.json",
		CycleInterval: 5 * time.Minute,
		MetricsAddr:   ":9105",
		FastCapital:   decimal.NewFromInt(100000),
		CoreCapital:   decimal.NewFromInt(100000),
	}
}

func loadConfigFromEnv() *DriverConfig {
	config := DefaultDriverConfig()

	if dir := os.Getenv("STATE_DIR"); dir != "" {
		config.StateDir = dir
	}
	if f := os.Getenv("SIGNALS_FILE"); f != "" {
		config.SignalsFile = f
	}
	if f := os.Getenv("PRICES_FILE"); f != "" {
		config.PricesFile = f
	}
	if iv := os.Getenv("CYCLE_INTERVAL_SEC"); iv != "" {
		if val, err := strconv.Atoi(iv); err == nil && val > 0 {
			config.CycleInterval = time.Duration(val) * time.Second
		}
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		config.MetricsAddr = addr
	}
	if raw := os.Getenv("FAST_CAPITAL"); raw != "" {
		if val, err := decimal.NewFromString(raw); err == nil && val.IsPositive() {
			config.FastCapital = val
		}
	}
	if raw := os.Getenv("CORE_CAPITAL"); raw != "" {
		if val, err := decimal.NewFromString(raw); err == nil && val.IsPositive() {
			config.CoreCapital = val
		}
	}
	return config
}

// TradingEngine bundles the allocator with its driver-side plumbing.
type TradingEngine struct {
	config *DriverConfig
	alloc  *allocator.DualPortfolioAllocator
	logger *zap.Logger
	stopCh chan struct{}
}

// NewTradingEngine builds both portfolios, restores persisted state, and
// wires the allocator over them.
func NewTradingEngine(config *DriverConfig, logger *zap.Logger) (*TradingEngine, error) {
	cal := calendar.NewTradingCalendar(nil)
	sizer := sizing.NewPositionSizer(sizing.DefaultSizerConfig())
	engine := exits.NewExitEngine(exits.DefaultExitConfig(), cal)

	fastCfg := portfolio.DefaultFastConfig()
	fastCfg.InitialCapital = config.FastCapital
	coreCfg := portfolio.DefaultCoreConfig()
	coreCfg.InitialCapital = config.CoreCapital

	fast := portfolio.NewPortfolio(fastCfg, sizer, engine, store.NewStore(config.StateDir, fastCfg.Name), logger)
	core := portfolio.NewPortfolio(coreCfg, sizer, engine, store.NewStore(config.StateDir, coreCfg.Name), logger)

	if err := fast.Load(); err != nil {
		return nil, err
	}
	if err := core.Load(); err != nil {
		return nil, err
	}

	return &TradingEngine{
		config: config,
		alloc:  allocator.New(fast, core, allocator.DefaultConfig(), logger),
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Run drives evaluation cycles until Stop is called.
func (te *TradingEngine) Run() {
	ticker := time.NewTicker(te.config.CycleInterval)
	defer ticker.Stop()

	te.runCycle() // one immediate cycle on startup
	for {
		select {
		case <-ticker.C:
			te.runCycle()
		case <-te.stopCh:
			return
		}
	}
}

// Stop ends the cycle loop.
func (te *TradingEngine) Stop() { close(te.stopCh) }

// runCycle performs one full pass: read prices, evaluate exits, consume any
// pending signal batch, publish metrics, persist.
func (te *TradingEngine) runCycle() {
	now := time.Now()
	prices, err := readPrices(te.config.PricesFile)
	if err != nil {
		te.logger.Warn("no usable price file this cycle", zap.Error(err))
		return
	}

	events := te.alloc.EvaluateAll(prices, now)
	for _, ev := range events {
		publishEvent(ev)
	}

	if batch, err := consumeSignals(te.config.SignalsFile); err != nil {
		te.logger.Warn("signal inbox unreadable", zap.Error(err))
	} else if len(batch) > 0 {
		results, evs := te.alloc.AllocateBatch(batch, prices, now)
		for _, ev := range evs {
			publishEvent(ev)
		}
		for _, r := range results {
			if !r.Opened() {
				metrics.IncRejection(r.Portfolio, string(r.Status))
				te.logger.Info("signal rejected",
					zap.String("status", string(r.Status)),
					zap.String("reason", r.Reason))
			}
		}
	}

	for _, p := range []*portfolio.Portfolio{te.alloc.Fast(), te.alloc.Core()} {
		metrics.SetEquity(p.Name(), p.Value(prices).InexactFloat64())
		metrics.SetOpenPositions(p.Name(), p.OpenPositionCount())
		if err := p.Save(); err != nil {
			// Keep running in-memory; next cycle retries the save.
			te.logger.Error("persist failed", zap.String("portfolio", p.Name()), zap.Error(err))
		}
	}
}

// publishEvent translates engine events into metric increments.
func publishEvent(ev portfolio.Event) {
	switch ev.Type {
	case portfolio.EventEntryOpened:
		metrics.IncEntry(ev.Portfolio)
	case portfolio.EventExitFired:
		metrics.IncExit(ev.Portfolio, string(ev.Reason))
	case portfolio.EventTrailingStopAdvance:
		metrics.IncTrailingAdvance(ev.Portfolio)
	}
}

func readPrices(path string) (map[string]decimal.Decimal, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var prices map[string]decimal.Decimal
	if err := json.Unmarshal(bs, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// consumeSignals reads the inbox and renames it aside so a batch is only
// processed once.
func consumeSignals(path string) ([]signals.TradeSignal, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var batch []signals.TradeSignal
	if err := json.Unmarshal(bs, &batch); err != nil {
		return nil, err
	}
	if err := os.Rename(path, path+".consumed"); err != nil {
		return nil, err
	}
	return batch, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load environment variables from .env file
	if err := godotenv.Overload(); err != nil {
		log.Printf("ℹ️ Info: Error loading .env file (this is not fatal, will rely on existing env vars): %v", err)
	}

	log.Printf("🚀 Dual-Portfolio Position Lifecycle Engine v1.0")
	log.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	config := loadConfigFromEnv()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("❌ Failed to create logger: %v", err)
	}
	defer logger.Sync()

	log.Printf("📋 Configuration:")
	log.Printf("├─ State Dir: %s", config.StateDir)
	log.Printf("├─ Signals Inbox: %s", config.SignalsFile)
	log.Printf("├─ Prices File: %s", config.PricesFile)
	log.Printf("├─ Cycle Interval: %s", config.CycleInterval)
	log.Printf("├─ Fast Capital: %s", config.FastCapital)
	log.Printf("└─ Core Capital: %s", config.CoreCapital)

	engine, err := NewTradingEngine(config, logger)
	if err != nil {
		log.Fatalf("❌ Failed to create trading engine: %v", err)
	}

	// Prometheus endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(config.MetricsAddr, mux); err != nil {
			log.Printf("❌ Metrics server stopped: %v", err)
		}
	}()

	go engine.Run()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Printf("✅ Engine is LIVE, metrics on %s/metrics", config.MetricsAddr)
	log.Printf("🛑 Press Ctrl+C to stop")

	<-c

	log.Printf("🛑 Shutdown signal received, stopping engine...")
	engine.Stop()
	log.Printf("✅ Engine stopped. Goodbye! 👋")
}
