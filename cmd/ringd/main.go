package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"ringfund/config"
	"ringfund/core/events"
	"ringfund/crypto"
	"ringfund/native/collateral"
	"ringfund/native/fund"
	"ringfund/native/oracle"
	"ringfund/native/term"
	"ringfund/native/vault"
	"ringfund/native/yield"
	"ringfund/observability"
	"ringfund/observability/logging"
	"ringfund/rpc"
	ringstate "ringfund/state/ring"
	"ringfund/storage"
)

const (
	collateralVaultModule = "collateralvault"
	fundVaultModule       = "fundpool"
	yieldProviderModule   = "yieldprovider"
)

// logEmitter writes every engine event to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(e events.Event) {
	if e == nil {
		return
	}
	l.logger.Info("engine event", "type", e.EventType(), "event", e)
}

// meteredEmitter bumps the engine counters before forwarding the event.
type meteredEmitter struct {
	metrics *observability.EngineMetrics
	next    events.Emitter
}

func (m meteredEmitter) Emit(e events.Event) {
	if e == nil {
		return
	}
	switch e.EventType() {
	case collateral.EventTypeLiquidated, collateral.EventTypeSeized:
		m.metrics.RecordLiquidation()
	case fund.EventTypeExpelled:
		m.metrics.RecordExpulsion()
	}
	if m.next != nil {
		m.next.Emit(e)
	}
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("RING_ENV"))
	logger := logging.Setup("ringd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	store := ringstate.NewStore(db)
	dormancy := time.Duration(cfg.FundDormancySeconds) * time.Second

	terms := term.NewEngine(dormancy)
	coll := collateral.NewEngine(crypto.ModuleAddress(collateralVaultModule), cfg.SafetyMarginBps, cfg.SolvencyThresholdBps)
	funds := fund.NewEngine(crypto.ModuleAddress(fundVaultModule), dormancy)
	yields := yield.NewEngine(cfg.YieldFractionBps)

	feed := oracle.NewManualFeed("operator")

	emitter := meteredEmitter{
		metrics: observability.Metrics(),
		next:    logEmitter{logger: logger},
	}

	terms.SetState(store)
	terms.SetCollateral(coll)
	terms.SetFund(funds)
	terms.SetYield(yields)
	terms.SetEmitter(emitter)

	coll.SetState(store)
	coll.SetTermSource(terms)
	coll.SetOracle(feed)
	coll.SetYieldRecall(yields)
	coll.SetMaxQuoteAge(time.Duration(cfg.OracleMaxQuoteAgeSeconds) * time.Second)
	coll.SetEmitter(emitter)

	funds.SetState(store)
	funds.SetCollateral(coll)
	funds.SetEmitter(emitter)

	yields.SetState(store)
	yields.SetCollateral(coll)
	yields.SetEmitter(emitter)
	yields.SetLocked(cfg.YieldLocked)
	yields.RegisterProvider(crypto.ModuleAddress(yieldProviderModule), vault.NewSimVault())

	server := rpc.NewServer(terms, coll, funds, yields, store)
	server.SetLogger(logger)
	server.SetOracleFeed(feed)
	if strings.TrimSpace(cfg.RPCToken) != "" {
		server.SetAuthToken(cfg.RPCToken)
	}

	logger.Info("ringd starting",
		"rpcAddress", cfg.RPCAddress,
		"dataDir", cfg.DataDir,
		"safetyMarginBps", cfg.SafetyMarginBps,
		"yieldFractionBps", cfg.YieldFractionBps,
		"yieldLocked", cfg.YieldLocked,
	)

	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
