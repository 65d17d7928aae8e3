package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stablecore/config"
	"stablecore/native/bank"
	"stablecore/native/stable"
	"stablecore/observability/logging"
	"stablecore/observability/otel"
	"stablecore/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	memory := flag.Bool("memory", false, "Use an in-memory database instead of LevelDB")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("STABLECORE_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("stabled", env, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "stabled",
			Environment: env,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Traces:      true,
			Metrics:     true,
		})
		if err != nil {
			logger.Error("Failed to initialise telemetry", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
			}
		}()
	}

	var db storage.Database
	if *memory {
		db = storage.NewMemDB()
	} else {
		ldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open database: %v", err))
		}
		db = ldb
	}
	defer db.Close()
	store := storage.NewKVStore(db)

	params, err := cfg.Stable.Parameters()
	if err != nil {
		logger.Error("Invalid engine parameters", slog.Any("error", err))
		os.Exit(1)
	}
	policy, err := params.DeviationPolicy()
	if err != nil {
		logger.Error("Invalid deviation policy", slog.Any("error", err))
		os.Exit(1)
	}

	feeds, err := buildFeeds(cfg.Feeds)
	if err != nil {
		logger.Error("Failed to build price feeds", slog.Any("error", err))
		os.Exit(1)
	}
	for _, fc := range cfg.Feeds {
		logger.Info("Feed configured",
			slog.String("name", fc.Name),
			slog.String("kind", fc.Kind),
			logging.MaskField("apiKey", fc.APIKey),
		)
	}
	aggregator, err := stable.NewPriceAggregator(feeds, policy, params.MaxQuoteAge, params.MaxConfidenceBps)
	if err != nil {
		logger.Error("Failed to build price aggregator", slog.Any("error", err))
		os.Exit(1)
	}
	if err := wirePools(aggregator, cfg.Pools, params); err != nil {
		logger.Error("Failed to wire pools", slog.Any("error", err))
		os.Exit(1)
	}

	peg := stable.NewStaticPeg(nil)
	if err := peg.SetDecimal(cfg.PegPrice); err != nil {
		logger.Error("Invalid peg price", slog.Any("error", err))
		os.Exit(1)
	}
	aggregator.SetPegSource(peg)

	stableToken, err := bank.NewTokenLedger(store, stable.SymbolStable)
	if err != nil {
		logger.Error("Failed to build stable token ledger", slog.Any("error", err))
		os.Exit(1)
	}
	bondToken, err := bank.NewTokenLedger(store, stable.SymbolBond)
	if err != nil {
		logger.Error("Failed to build bond token ledger", slog.Any("error", err))
		os.Exit(1)
	}
	custodian, err := bank.NewCustodian(store, stableToken.TotalSupply)
	if err != nil {
		logger.Error("Failed to build custodian", slog.Any("error", err))
		os.Exit(1)
	}

	var treasury, admin stable.Address
	coordinator, err := stable.NewCoordinator(params, aggregator, stable.Collaborators{
		StableToken: stableToken,
		BondToken:   bondToken,
		Custodian:   custodian,
	}, treasury, admin)
	if err != nil {
		logger.Error("Failed to build coordinator", slog.Any("error", err))
		os.Exit(1)
	}
	coordinator.SetLedger(stable.NewLedger(store))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}
	go func() {
		logger.Info("Metrics listening", slog.String("addr", cfg.MetricsAddress))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           newAPIHandler(aggregator, coordinator),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("API listening", slog.String("addr", cfg.ListenAddress))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", slog.Any("error", err))
		}
	}()

	// Periodic TWAP sampling keeps the window warm between operations.
	go func() {
		interval := params.TwapPeriod / 4
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := aggregator.ObserveTWAP(); err != nil {
					logger.Debug("TWAP observation skipped", slog.Any("error", err))
				}
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// buildFeeds resolves the configured feeds into aggregator sources. Direct
// feeds build first; chained feeds then resolve their legs by name. A feed
// consumed as a chain leg serves only the chain and is excluded from the
// returned set.
func buildFeeds(configs []config.FeedConfig) ([]stable.PriceFeed, error) {
	byName := make(map[string]stable.PriceFeed, len(configs))
	for _, fc := range configs {
		name := strings.ToLower(strings.TrimSpace(fc.Name))
		switch strings.ToLower(strings.TrimSpace(fc.Kind)) {
		case "manual":
			byName[name] = stable.NewManualFeed()
		case "rateapi":
			byName[name] = stable.NewRateAPIFeed(nil, fc.Endpoint, fc.APIKey, fc.Base, fc.Quote)
		case "confidence":
			byName[name] = stable.NewConfidenceAPIFeed(nil, fc.Endpoint, fc.FeedID)
		case "chained":
		default:
			return nil, fmt.Errorf("unknown feed kind %q", fc.Kind)
		}
	}
	legs := make(map[string]bool)
	for _, fc := range configs {
		if strings.ToLower(strings.TrimSpace(fc.Kind)) != "chained" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(fc.Name))
		first := strings.ToLower(strings.TrimSpace(fc.First))
		second := strings.ToLower(strings.TrimSpace(fc.Second))
		firstFeed, ok := byName[first]
		if !ok {
			return nil, fmt.Errorf("feed %q references unknown leg %q", fc.Name, fc.First)
		}
		secondFeed, ok := byName[second]
		if !ok {
			return nil, fmt.Errorf("feed %q references unknown leg %q", fc.Name, fc.Second)
		}
		byName[name] = stable.NewChainedFeed(name, firstFeed, secondFeed)
		legs[first] = true
		legs[second] = true
	}
	feeds := make([]stable.PriceFeed, 0, len(configs))
	for _, fc := range configs {
		name := strings.ToLower(strings.TrimSpace(fc.Name))
		if legs[name] {
			continue
		}
		feeds = append(feeds, byName[name])
	}
	return feeds, nil
}

func wirePools(aggregator *stable.PriceAggregator, pools map[string]config.PoolConfig, params stable.Parameters) error {
	for name, pc := range pools {
		pool := stable.NewStaticPool(pc.Token0, pc.Token1)
		r0, ok := new(big.Int).SetString(strings.TrimSpace(pc.Reserve0), 10)
		if !ok {
			return fmt.Errorf("pool %q: invalid Reserve0 %q", name, pc.Reserve0)
		}
		r1, ok := new(big.Int).SetString(strings.TrimSpace(pc.Reserve1), 10)
		if !ok {
			return fmt.Errorf("pool %q: invalid Reserve1 %q", name, pc.Reserve1)
		}
		pool.SetReserves(r0, r1)
		meta := stable.PoolMeta{Decimals0: pc.Decimals0, Decimals1: pc.Decimals1}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "reserve":
			twap := stable.NewTWAPAccumulator(pool, meta, stable.SymbolReserve, params.TwapPeriod, params.TwapWindow)
			aggregator.SetReservePool(pool, meta, twap)
		case "stable":
			aggregator.SetStablePool(pool, meta)
		case "bond":
			aggregator.SetBondPool(pool, meta)
		case "backstop":
			aggregator.SetBackstopPool(pool, meta)
		}
	}
	return nil
}

func newAPIHandler(aggregator *stable.PriceAggregator, coordinator *stable.Coordinator) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		health := aggregator.Health()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"feeds":  health.Feeds,
		})
	})

	mux.HandleFunc("/v1/price", func(w http.ResponseWriter, r *http.Request) {
		reference, err := aggregator.ReferencePriceUSD()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		payload := map[string]string{
			"reference": reference.String(),
		}
		if reservePrice, err := aggregator.ReservePriceUSD(); err == nil {
			payload["reserve"] = reservePrice.String()
		}
		if pegPrice, err := aggregator.PegPriceUSD(); err == nil {
			payload["peg"] = pegPrice.String()
		}
		writeJSON(w, http.StatusOK, payload)
	})

	mux.HandleFunc("/v1/collateral", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := coordinator.Collateral()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"collateralValue": snapshot.CollateralValue.String(),
			"liabilityValue":  snapshot.LiabilityValue.String(),
			"ratio":           snapshot.Ratio.String(),
			"maxRedeemable":   snapshot.MaxRedeemable.String(),
		})
	})

	mux.HandleFunc("/v1/deviation", func(w http.ResponseWriter, r *http.Request) {
		policy := aggregator.Policy()
		history := policy.History()
		changes := make([]map[string]string, 0, len(history))
		for _, change := range history {
			changes = append(changes, map[string]string{
				"oldBps": strconv.FormatUint(change.OldBps, 10),
				"newBps": strconv.FormatUint(change.NewBps, 10),
				"at":     change.At.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"boundBps": policy.Bound(),
			"history":  changes,
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
