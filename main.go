package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/visa2any/fareguard/internal/config"
	"github.com/visa2any/fareguard/internal/dataType"
	"github.com/visa2any/fareguard/internal/engine"
	"github.com/visa2any/fareguard/internal/server"
	"github.com/visa2any/fareguard/internal/store"
	"github.com/visa2any/fareguard/internal/utils"
)

const (
	storeShards = 64
	gcInterval  = time.Minute
)

func main() {
	var basePath string
	flag.StringVar(&basePath, "prefix", "", "Config file base path")
	flag.Parse()

	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	ruleSet, err := config.LoadRules(cfg.RulePath)
	if err != nil {
		log.Fatalf("Load rules failed: %v", err)
	}

	logger := utils.NewLogger(cfg.LogPath, cfg.Debug)
	defer func() {
		_ = logger.Sync()
	}()

	stopCh := make(chan struct{})
	stores := buildStores(cfg, ruleSet, logger, stopCh)

	eng := engine.New(logger, ruleSet, stores, nil)
	if err := eng.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("Register metrics failed: %v", err)
	}

	log.Printf("Ready to start server on port %s", cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.New(cfg, ruleSet, eng, logger).Start()
	}()

	select {
	case <-stop:
		log.Println("Stopping server...")
	case err := <-serverErr:
		if err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}

	close(stopCh)
	log.Println("Server stopped")
}

// buildStores assembles the state backends: sharded in-process maps
// for single-instance deployments, redis for shared multi-instance
// state.
func buildStores(cfg *config.MainConfig, ruleSet *config.RuleSet, logger *zap.Logger, stopCh chan struct{}) engine.Stores {
	cacheTTL := time.Duration(ruleSet.Detection.CacheTTL) * time.Second

	if cfg.Store == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return engine.Stores{
			Windows:    store.NewRedisRateWindows(client, logger),
			Ledger:     store.NewRedisSuspicionLedger(client, logger),
			Blocklist:  store.NewRedisBlockList(client, logger),
			Cache:      store.NewRedisResultCache(client, logger, cacheTTL),
			Challenges: store.NewRedisChallengeStore(client, logger, time.Now),
		}
	}

	maxWindow := time.Minute
	for _, budget := range ruleSet.RateBudgets {
		if budget.Window > maxWindow {
			maxWindow = budget.Window
		}
	}

	windows := dataType.NewRateWindows(storeShards, maxWindow)
	challenges := dataType.NewChallengeStore()
	cache := dataType.NewResultCache(cacheTTL)

	go dataType.StartRateWindowGC(windows, time.Now, gcInterval, stopCh)
	go dataType.StartChallengeGC(challenges, time.Now, gcInterval, stopCh)
	go dataType.StartResultCacheGC(cache, time.Now, gcInterval, stopCh)

	return engine.Stores{
		Windows:    windows,
		Ledger:     dataType.NewSuspicionLedger(storeShards),
		Blocklist:  dataType.NewBlockList(),
		Cache:      cache,
		Challenges: challenges,
	}
}
