// Package main runs the bridge API server: mint orchestration, transfer
// execution and the hold/transfer ledgers behind one HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ethusd-bridge/internal/api"
	"ethusd-bridge/internal/ethereum"
	"ethusd-bridge/internal/listener"
	"ethusd-bridge/internal/mint"
	"ethusd-bridge/internal/oracle"
	"ethusd-bridge/internal/receipt"
	"ethusd-bridge/internal/storage"
	chstore "ethusd-bridge/internal/storage/clickhouse"
	"ethusd-bridge/internal/storage/memory"
	"ethusd-bridge/internal/storage/migrations"
	pgstore "ethusd-bridge/internal/storage/postgres"
	"ethusd-bridge/internal/transfer"
)

// Mainnet defaults.
const (
	defaultUsdtContract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	defaultEthUsdFeed   = "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"
)

func main() {
	// .env values never override the real environment.
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("ETH_RPC_ENDPOINT"), "Ethereum RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("ETH_WS_ENDPOINT"), "Ethereum WebSocket endpoint for the event listener (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for the snapshot archive (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	privateKey := flag.String("private-key", os.Getenv("CUSTODY_PRIVATE_KEY"), "Custody wallet private key (hex)")
	signerKey := flag.String("signer-key", os.Getenv("DAES_SIGNER_PRIVATE_KEY"), "Authorization signer private key (hex, defaults to the custody key)")
	minterContract := flag.String("minter-contract", os.Getenv("MINTER_CONTRACT"), "BridgeMinter contract address")
	tokenContract := flag.String("token-contract", os.Getenv("TOKEN_CONTRACT"), "Bridge token contract address")
	usdtContract := flag.String("usdt-contract", envOr("USDT_CONTRACT", defaultUsdtContract), "USDT contract address")
	feedContract := flag.String("eth-usd-feed", envOr("ETH_USD_FEED", defaultEthUsdFeed), "Chainlink ETH/USD aggregator address")
	fallbackPrice := flag.Float64("fallback-price", 2500, "ETH/USD price served when the feed is unreachable")
	confirmations := flag.Uint64("confirmations", mint.DefaultConfirmations, "Blocks on top of a mint before it is CONFIRMED")
	confirmTimeout := flag.Duration("confirm-timeout", mint.DefaultConfirmTimeout, "How long to wait for a confirmation")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *privateKey == "" {
		logger.Fatal("--private-key is required")
	}
	if *minterContract == "" {
		logger.Fatal("--minter-contract is required")
	}
	if *tokenContract == "" {
		logger.Fatal("--token-contract is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wallet, err := ethereum.NewWalletFromHex(*privateKey)
	if err != nil {
		logger.Fatalf("Invalid custody key: %v", err)
	}
	logger.Printf("Custody wallet: %s", wallet.Address())

	// The authorization signer may hold DAES_SIGNER_ROLE on a separate
	// key; without one the custody key signs authorizations too.
	authSigner := wallet
	if *signerKey != "" {
		authSigner, err = ethereum.NewWalletFromHex(*signerKey)
		if err != nil {
			logger.Fatalf("Invalid signer key: %v", err)
		}
		logger.Printf("Authorization signer: %s", authSigner.Address())
	}

	client := ethereum.NewHTTPClient(*rpcEndpoint)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		logger.Fatalf("Failed to reach node at %s: %v", *rpcEndpoint, err)
	}
	logger.Printf("Connected to chain %s via %s", chainID, *rpcEndpoint)

	holds, transfers, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Price source: Chainlink with a static fallback so mints survive
	// feed outages.
	var primary oracle.Source
	primary, err = oracle.NewChainlinkSource(ctx, client, *feedContract)
	if err != nil {
		logger.Printf("WARNING: ETH/USD feed unavailable, running on fallback price only: %v", err)
		primary = &oracle.FixedSource{Err: err}
	}
	source := oracle.NewFallbackSource(primary, *fallbackPrice, 8)

	transactor := ethereum.NewTransactor(client, wallet)
	confirm := func(ctx context.Context, txHash string, confs uint64) (*ethereum.Receipt, error) {
		return ethereum.WaitMined(ctx, client, txHash, confs, ethereum.DefaultPollInterval)
	}

	orch := mint.NewOrchestrator(mint.Options{
		Holds:   holds,
		Archive: archive,
		Oracle:  source,
		Minter: &mint.ContractMinter{
			Contract:   ethereum.NewBridgeMinter(client, *minterContract),
			Transactor: transactor,
		},
		Confirm:  confirm,
		Token:    ethereum.NewERC20(client, *tokenContract),
		Receipts: receipt.NewBuilder(wallet, "ETHEREUM", chainID.Uint64()),
		Signer:   authSigner,
		Domain: ethereum.TypedDomain{
			Name:              "DAES USD BridgeMinter",
			Version:           "2",
			ChainID:           chainID,
			VerifyingContract: *minterContract,
		},
		Confirmations:  *confirmations,
		ConfirmTimeout: *confirmTimeout,
	})

	svc := transfer.NewService(transfer.Options{
		Transfers:      transfers,
		Holds:          holds,
		Client:         client,
		Token:          transfer.NewBoundToken(ethereum.NewERC20(client, *tokenContract), transactor),
		Usdt:           transfer.NewBoundToken(ethereum.NewERC20(client, *usdtContract), transactor),
		Minter:         orch,
		Confirm:        confirm,
		Custody:        wallet.Address(),
		Confirmations:  *confirmations,
		ConfirmTimeout: *confirmTimeout,
	})

	if *wsEndpoint != "" {
		go runListener(ctx, logger, *wsEndpoint, *minterContract)
	}

	router := api.NewRouter(api.NewHandler(orch, svc, holds, transfers, api.Info{
		Client: client,
		Minter: *minterContract,
		Token:  *tokenContract,
		Usdt:   *usdtContract,
	}))
	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: router,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Shutdown error: %v", err)
		}
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// runListener tails minter events; failures are logged and retried until
// ctx is canceled.
func runListener(ctx context.Context, logger *log.Logger, wsEndpoint, minterContract string) {
	for ctx.Err() == nil {
		ws, err := ethereum.NewWSClient(ctx, wsEndpoint, nil)
		if err != nil {
			logger.Printf("Listener connect failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		l := listener.NewMintListener(ws, minterContract)
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Listener stopped: %v", err)
		}
		ws.Close()
	}
}

// createStores builds the hold and transfer ledgers plus the optional
// snapshot archive. The returned cleanup closes every opened connection.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.HoldStore, storage.TransferStore, storage.SnapshotArchive, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var holds storage.HoldStore
	var transfers storage.TransferStore
	if useMemory {
		holds = memory.NewHoldStore()
		transfers = memory.NewTransferStore()
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, nil, func() {}, err
		}
		holds = pgstore.NewHoldStore(pool)
		transfers = pgstore.NewTransferStore(pool)
	}

	var archive storage.SnapshotArchive
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, nil, func() {}, err
		}
		closers = append(closers, func() { conn.Close() })
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			cleanup()
			return nil, nil, nil, func() {}, err
		}
		archive = chstore.NewSnapshotStore(conn)
	}

	return holds, transfers, archive, cleanup, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
