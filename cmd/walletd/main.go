package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/discovery"
	"github.com/rawblock/lightwallet-engine/internal/mempool"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/queue"
	"github.com/rawblock/lightwallet-engine/internal/rpcserver"
	"github.com/rawblock/lightwallet-engine/internal/sync"
	"github.com/rawblock/lightwallet-engine/internal/walletcfg"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

func main() {
	log.Println("Starting lightwallet-engine walletd...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development.
	// ────────────────────────────────────────────────────────────────────

	dataDir := walletcfg.GetEnvOrDefault("WALLETD_DATA_DIR", "./data")
	walletcfg.Init(dataDir)

	fingerprintStr := walletcfg.RequireEnv("WALLETD_FINGERPRINT")
	fingerprint64, err := strconv.ParseUint(fingerprintStr, 10, 32)
	if err != nil {
		log.Fatalf("FATAL: WALLETD_FINGERPRINT is not a valid uint32: %v", err)
	}
	fingerprint := uint32(fingerprint64)

	networkID := walletcfg.GetEnvOrDefault("WALLETD_NETWORK", "mainnet")

	if err := walletcfg.EnsureDataDirs(dataDir, fingerprint, networkID); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	networks, err := walletcfg.LoadNetworkRegistry(dataDir)
	if err != nil {
		log.Fatalf("FATAL: failed to load networks.toml: %v", err)
	}
	network, found := networks.Network(networkID)
	if !found {
		log.Fatalf("FATAL: network %q not present in networks.toml", networkID)
	}
	genesisChallenge, err := models.HashFromHex(network.GenesisChallenge)
	if err != nil {
		log.Fatalf("FATAL: network %q has an invalid genesis_challenge: %v", networkID, err)
	}

	cfg, err := walletcfg.LoadConfig(dataDir)
	if err != nil {
		log.Printf("Warning: failed to load config.toml, using defaults: %v", err)
		cfg = walletcfg.Config{DerivationBatch: 500, MaxPeers: 8}
	}

	// ─── Database ────────────────────────────────────────────────────────
	store, err := db.Connect(walletcfg.DatabasePath(dataDir, fingerprint, networkID))
	if err != nil {
		log.Fatalf("FATAL: failed to open wallet database: %v", err)
	}
	defer store.Close()
	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("FATAL: schema init failed: %v", err)
	}

	// ─── Peer Pool + Sync Manager ────────────────────────────────────────
	pool := peerpool.New()
	seeder := discovery.NewDNSSeeder(network.DNSIntroducers, network.DefaultPort)
	dialer := discovery.PeerDialer{GenesisChallenge: genesisChallenge}

	targetPeers := cfg.MaxPeers
	if targetPeers <= 0 {
		targetPeers = 8
	}

	manager := sync.NewManager(store, pool, seeder, dialer, sync.Options{
		SyncDelay:        30 * time.Second,
		DiscoverPeers:    true,
		TargetPeerCount:  targetPeers,
		DiscoveryBatch:   20,
		GenesisChallenge: genesisChallenge,
		WatchedPuzzleHashes: func() []models.Hash {
			hashes, err := store.AllPuzzleHashes(context.Background())
			if err != nil {
				log.Printf("walletd: failed to load watched puzzle hashes: %v", err)
				return nil
			}
			return hashes
		},
	})

	// ─── Mempool Ledger ──────────────────────────────────────────────────
	// The spend planner and offer engine are library packages this
	// process does not call directly: the command surface exposed here
	// only ever receives already-built bundles (SubmitTransactionCommand),
	// not a "plan a spend" request, so constructing them here would wire
	// a CLVM builder/BLS aggregator to nothing. A caller that imports this
	// module as a library constructs planner.New / offers.New directly
	// against store, supplying its own builder.
	ledger := mempool.New(store, pool, nil, func(itemID models.Hash) {
		manager.Emit(sync.TransactionSubmittedEvent{MempoolItemID: itemID})
	})
	manager.SetTransactionSubmitter(ledger)
	resubmitter := mempool.NewResubmitter(ledger, 30*time.Second, 50)

	derivationBatch := int(cfg.DerivationBatch)
	if derivationBatch <= 0 {
		derivationBatch = 500
	}
	puzzleQueue := queue.New(store, pool, genesisChallenge, derivationBatch)

	manager.AddStandingTask(sync.StandingTask{
		Name: "puzzle-queue",
		Run: func(ctx context.Context) error {
			return puzzleQueue.Run(ctx, 2*time.Second)
		},
	})
	manager.AddStandingTask(sync.StandingTask{
		Name: "mempool-resubmitter",
		Run:  resubmitter.Run,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	// ─── RPC/Event Adapter ───────────────────────────────────────────────
	hub := rpcserver.NewHub()
	go hub.Run()
	go rpcserver.PumpEvents(ctx, manager, hub)

	server := rpcserver.NewServer(manager, hub)
	port := walletcfg.GetEnvOrDefault("WALLETD_PORT", "9256")

	httpSrv := &http.Server{Addr: ":" + port, Handler: server.Engine()}
	go func() {
		log.Printf("walletd listening on :%s (fingerprint=%d network=%s)", port, fingerprint, networkID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: rpcserver failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("walletd shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}
