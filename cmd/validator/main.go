// Copyright 2025 Certen Protocol
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/authority-core/pkg/adminserver"
	"github.com/certen/authority-core/pkg/config"
	"github.com/certen/authority-core/pkg/consensusadapter"
	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/cryptosuite"
	"github.com/certen/authority-core/pkg/epoch"
	"github.com/certen/authority-core/pkg/execution"
	"github.com/certen/authority-core/pkg/metrics"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/sharedseq"
	"github.com/certen/authority-core/pkg/store"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to validator configuration file")
		showHelp   = flag.Bool("help", false, "show help message")
		exportKey  = flag.Bool("export-key", false, "print the validator's BLS private key as a bech32 string and exit")
	)
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}

	log.Printf("[validator] loading configuration from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[validator] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[validator] %v", err)
	}

	self, err := objtype.ParseAddress(cfg.Validator.Address)
	if err != nil {
		log.Fatalf("[validator] parse validator address: %v", err)
	}

	blsKeys := cryptosuite.NewKeyManager(cfg.Validator.BLSPrivateKeyPath)
	if err := blsKeys.LoadOrGenerateKey(); err != nil {
		log.Fatalf("[validator] load bls key: %v", err)
	}
	log.Printf("[validator] bls public key: %x", blsKeys.PublicKey().Bytes())

	if *exportKey {
		encoded, err := blsKeys.ExportBech32()
		if err != nil {
			log.Fatalf("[validator] export key: %v", err)
		}
		fmt.Println(encoded)
		return
	}

	validatorNumericID := binary.BigEndian.Uint64(self[:8])
	proof, err := blsKeys.ProveKnowledge(validatorNumericID)
	if err != nil {
		log.Fatalf("[validator] generate proof of possession: %v", err)
	}
	ok, err := blsKeys.VerifyKnowledge(proof)
	if err != nil || !ok {
		log.Fatalf("[validator] self-verify proof of possession failed: ok=%v err=%v", ok, err)
	}
	log.Printf("[validator] proof of possession generated and self-verified (%d bytes)", len(proof.Raw))

	reg := metrics.NewRegistry()
	adapterMetrics := metrics.NewConsensusAdapter(reg)
	executionMetrics := metrics.NewExecution(reg)

	var archiveDSN string
	if cfg.Archive.Enabled {
		archiveDSN = cfg.Archive.DSN
	}
	archive, err := store.OpenArchive(archiveDSN)
	if err != nil {
		log.Fatalf("[validator] open archive store: %v", err)
	}
	if archive != nil {
		defer func() {
			if err := archive.Close(); err != nil {
				log.Printf("[validator] archive store close: %v", err)
			}
		}()
	}

	db, err := store.Open(cfg.Store.Path, store.WithLogger(stdLogger{}), store.WithArchive(archive))
	if err != nil {
		log.Fatalf("[validator] open store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("[validator] store close: %v", err)
		}
	}()

	committee, err := loadCommittee(db, self)
	if err != nil {
		log.Fatalf("[validator] load committee: %v", err)
	}

	log.Printf("[validator] connecting to consensus RPC at %s", cfg.Consensus.RPCURL)
	rpcClient, err := cmthttp.New(cfg.Consensus.RPCURL, "/websocket")
	if err != nil {
		log.Fatalf("[validator] create consensus rpc client: %v", err)
	}
	if err := rpcClient.Start(); err != nil {
		log.Fatalf("[validator] start consensus rpc client: %v", err)
	}
	defer rpcClient.Stop()

	consensusClient := consensusclient.NewCometBFTClient(rpcClient, stdLogger{})

	adapterCfg := consensusadapter.ProtocolConfig{
		ReferenceGasPrice:          cfg.Adapter.ReferenceGasPrice,
		AmplificationThreshold:     cfg.Adapter.AmplificationThreshold,
		MaxPendingTransactions:     cfg.Adapter.MaxPendingTransactions,
		MaxPendingLocalSubmissions: cfg.Adapter.MaxPendingLocalSubmissions,
		MinDelay:                   cfg.Adapter.MinDelay.Duration(),
		MaxDelay:                   cfg.Adapter.MaxDelay.Duration(),
		DefaultBaseLatency:         cfg.Adapter.BaseLatency.Duration(),
	}
	reputation := consensusadapter.NewReputationTracker(0, 0)
	adapter := consensusadapter.New(
		self, committee, consensusClient, staticPeerState{}, reputation, adapterCfg,
		consensusadapter.WithLogger(stdLogger{}),
		consensusadapter.WithMetrics(adapterMetrics),
	)

	sequencer := sharedseq.New(db)
	driver := execution.New(
		db, sequencer, passthroughBackend{}, noPackageStore{}, cfg.Execution.WorkerCount,
		execution.WithLogger(stdLogger{}),
		execution.WithMetrics(executionMetrics),
	)

	epochManager := epoch.New(db, adapter, driver,
		epoch.WithLogger(stdLogger{}),
		epoch.WithQuiesceTimeout(cfg.Execution.CommitTimeout.Duration()),
	)

	admin := adminserver.New(adapter, epochManager, stdLogger{})
	adminHTTP := &http.Server{Addr: cfg.Admin.ListenAddr, Handler: admin}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsHTTP := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: metricsMux}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[validator] execution driver stopped: %v", err)
		}
	}()

	go func() {
		log.Printf("[validator] admin surface listening on %s", cfg.Admin.ListenAddr)
		if err := adminHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[validator] admin server error: %v", err)
		}
	}()

	go func() {
		log.Printf("[validator] metrics listening on %s%s", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
		if err := metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[validator] metrics server error: %v", err)
		}
	}()

	log.Printf("[validator] ready, validator=%s", self)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[validator] shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := adminHTTP.Shutdown(shutdownCtx); err != nil {
		log.Printf("[validator] admin server shutdown: %v", err)
	}
	if err := metricsHTTP.Shutdown(shutdownCtx); err != nil {
		log.Printf("[validator] metrics server shutdown: %v", err)
	}
}

// loadCommittee builds the adapter's committee view from the store's most
// recently recorded epoch snapshot, falling back to a single-member
// committee of just self so a fresh, un-bootstrapped store can still
// start (spec.md's committee-change algorithm itself is out of scope;
// this only consumes whatever InsertNewEpochInfo last recorded).
func loadCommittee(db *store.Store, self objtype.Address) (consensusadapter.Committee, error) {
	info, ok, err := db.GetLastEpochInfo()
	if err != nil {
		return consensusadapter.Committee{}, fmt.Errorf("get_last_epoch_info: %w", err)
	}
	if !ok {
		return consensusadapter.Committee{
			Self:    self,
			Members: []consensusadapter.Validator{{ID: self, Stake: 1}},
		}, nil
	}
	members := make([]consensusadapter.Validator, 0, len(info.Committee))
	for addr, stake := range info.Committee {
		members = append(members, consensusadapter.Validator{ID: addr, Stake: stake})
	}
	return consensusadapter.Committee{Self: self, Members: members}, nil
}

// stdLogger adapts the standard library's package-level logger to every
// component's narrow Logger interface.
type stdLogger struct{}

func (stdLogger) Printf(format string, args ...interface{}) { log.Printf(format, args...) }
