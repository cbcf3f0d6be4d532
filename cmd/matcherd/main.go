// main.go - The matcher daemon: off-chain order intake, on-chain settlement.
//
// The daemon runs the whole settlement side of the protocol:
//   - a ledger node with proof verification enabled
//   - a matcher account whose vault nets to zero on every settle
//   - an order intake endpoint where parties hand over their proven swap
//     transactions, which the daemon submits at settlement
//   - a block ticker standing in for block production
//
// Usage:
//   go run ./cmd/matcherd -config matcher_config.json

package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"noteswap/internal/client"
	"noteswap/internal/clob"
	"noteswap/internal/keystore"
	"noteswap/internal/ledger"
	"noteswap/internal/prover"
	"noteswap/p2p"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "matcher_config.json", "path to the daemon configuration")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	auditPath := ""
	if cfg.EnableAudit {
		auditPath = cfg.AuditLogPath
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, auditPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	logger.Info("matcherd %s starting as %s", version, cfg.NodeID)

	// Proving material: compile once, load or generate the key pair.
	logger.Info("compiling settlement circuit")
	ccs, err := prover.Compile()
	if err != nil {
		logger.Fatal("circuit compilation failed: %v", err)
	}
	if err := os.MkdirAll(cfg.KeyDir, 0755); err != nil {
		logger.Fatal("key directory: %v", err)
	}
	pk, vk, err := prover.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "settlement_pk.bin"),
		filepath.Join(cfg.KeyDir, "settlement_vk.bin"))
	if err != nil {
		logger.Fatal("key setup failed: %v", err)
	}

	// Ledger, store, keystore, client.
	chain := ledger.New(ledger.WithVerifyingKey(vk))
	node := client.NewInProcessNode(chain)
	store, err := client.OpenStore(cfg.StoreDir)
	if err != nil {
		logger.Fatal("store: %v", err)
	}
	defer store.Close()
	keys, err := keystore.NewFilesystemKeyStore(cfg.KeyDir)
	if err != nil {
		logger.Fatal("keystore: %v", err)
	}
	cl := client.NewClient(node, store, keys, client.WithProver(ccs, pk))

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		logger.Fatal("seed generation failed: %v", err)
	}
	acct, err := cl.NewWallet(seed, ledger.StoragePublic)
	if err != nil {
		logger.Fatal("matcher account: %v", err)
	}
	logger.Info("matcher account %s registered", acct.ID())

	matcher := clob.NewMatcher(cl, acct.ID())
	metrics := NewMetricsCollector()
	health := NewHealthChecker(version)
	health.RegisterComponent("ledger", func() error {
		_, err := chain.GetAccount(acct.ID())
		return err
	})
	health.RegisterComponent("store", func() error {
		_, err := store.GetAccount(acct.ID())
		return err
	})
	limiter := NewPeerRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill, time.Second)

	// Order intake over the p2p endpoint.
	var wg sync.WaitGroup
	pnode := p2p.NewNode(cfg.NodeID, cfg.ListenAddress, map[string]string{}, &wg)
	pnode.OnOrder(func(senderID string, order *ledger.ProvenTransaction) error {
		if !limiter.Allow(senderID) {
			metrics.RecordError("rate_limited")
			return fmt.Errorf("peer %s is rate limited", senderID)
		}
		o, err := matcher.SubmitOrder(order)
		if err != nil {
			metrics.RecordError("bad_order")
			return err
		}
		metrics.RecordOrder(senderID)
		logger.Info("booked order %s: %s for %s from %s", o.ID(), o.Offered, o.Requested, senderID)
		logger.Audit("order_accepted", map[string]interface{}{
			"order": o.ID().String(),
			"peer":  senderID,
		})
		return nil
	})
	ready := make(chan struct{})
	pnode.StartServer(ready)
	<-ready

	// Admin endpoints.
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CreateHealthResponse(health.CheckHealth()))
	})
	adminMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.GetMetricsSummary())
	})
	adminServer := &http.Server{Addr: cfg.AdminAddress, Handler: adminMux}
	go func() {
		if err := adminServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("admin server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	blockTicker := time.NewTicker(time.Duration(cfg.BlockIntervalMS) * time.Millisecond)
	defer blockTicker.Stop()
	matchTicker := time.NewTicker(time.Duration(cfg.MatchIntervalMS) * time.Millisecond)
	defer matchTicker.Stop()

	logger.Info("matcherd ready: orders on %s, admin on %s", cfg.ListenAddress, cfg.AdminAddress)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			pnode.Shutdown()
			adminServer.Close()
			wg.Wait()
			return

		case <-blockTicker.C:
			height := chain.AdvanceBlock()
			metrics.SetGauge(MetricChainHeight, float64(height), nil)

		case <-matchTicker.C:
			start := time.Now()
			settled, err := matcher.Step(ctx)
			if err != nil {
				metrics.RecordSettlementFailure("unknown")
				logger.Error("settlement failed: %v", err)
				continue
			}
			if settled {
				metrics.RecordSettlement("crossed")
				metrics.RecordProofGeneration(time.Since(start))
				logger.Audit("settlement", map[string]interface{}{
					"height": chain.Height(),
				})
			}
			metrics.SetGauge(MetricOpenOrders, float64(len(matcher.Book().Open())), nil)
		}
	}
}
