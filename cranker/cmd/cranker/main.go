package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/starlabs/star-fee-routing/cranker/pkg/cpamm"
	"github.com/starlabs/star-fee-routing/cranker/pkg/crank"
	"github.com/starlabs/star-fee-routing/cranker/pkg/metrics"
	"github.com/starlabs/star-fee-routing/cranker/pkg/position"
	"github.com/starlabs/star-fee-routing/cranker/pkg/server"
	"github.com/starlabs/star-fee-routing/cranker/pkg/store"
	"github.com/starlabs/star-fee-routing/cranker/pkg/streamflow"
	"github.com/starlabs/star-fee-routing/utils/pkg/logger"
	"github.com/starlabs/star-fee-routing/utils/pkg/retry"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenFlag := flag.String("listen", defaultListenAddr, "HTTP listen address (or set LISTEN_ADDR env var)")

	postgresDSNFlag := flag.String("postgres-dsn", "", "Postgres connection string (or set POSTGRES_DSN env var); empty selects the in-memory store")
	migrateFlag := flag.Bool("migrate", false, "run database migrations and exit")

	rpcURLFlag := flag.String("rpc-url", solanarpc.MainNetBeta_RPC, "Solana RPC endpoint (or set RPC_URL env var)")
	payerFlag := flag.String("payer", "", "path to the payer keypair file (or set PAYER_KEYPAIR env var)")

	investorsFileFlag := flag.String("investors-file", "", "JSON file of per-vault investor sets; enables the hosted auto-crank loop")
	pageSizeFlag := flag.Int("page-size", 25, "investors per distribution page for the auto-crank loop")
	crankIntervalFlag := flag.Duration("crank-interval", 10*time.Minute, "auto-crank loop interval")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if env := os.Getenv("LISTEN_ADDR"); env != "" {
		*listenFlag = env
	}
	if env := os.Getenv("POSTGRES_DSN"); env != "" {
		*postgresDSNFlag = env
	}
	if env := os.Getenv("RPC_URL"); env != "" {
		*rpcURLFlag = env
	}
	if env := os.Getenv("PAYER_KEYPAIR"); env != "" {
		*payerFlag = env
	}

	if *migrateFlag {
		if *postgresDSNFlag == "" {
			return fmt.Errorf("--postgres-dsn is required for --migrate")
		}
		return store.MigrateUp(log, *postgresDSNFlag)
	}
	if *payerFlag == "" {
		return fmt.Errorf("--payer is required")
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var st store.Store
	if *postgresDSNFlag != "" {
		if err := store.MigrateUp(log, *postgresDSNFlag); err != nil {
			return err
		}
		pool, err := pgxpool.New(ctx, *postgresDSNFlag)
		if err != nil {
			return fmt.Errorf("failed to create postgres pool: %w", err)
		}
		defer pool.Close()
		st, err = store.NewPostgres(store.PostgresConfig{Logger: log, Pool: pool})
		if err != nil {
			return err
		}
		log.Info("cranker: using postgres store")
	} else {
		st = store.NewMemory()
		log.Warn("cranker: using in-memory store, state will not survive restarts")
	}

	payer, err := solana.PrivateKeyFromSolanaKeygenFile(*payerFlag)
	if err != nil {
		return fmt.Errorf("failed to load payer keypair: %w", err)
	}
	rpcClient := solanarpc.New(*rpcURLFlag)

	poolClient, err := cpamm.NewClient(cpamm.ClientConfig{
		Logger: log,
		RPC:    rpcClient,
		Payer:  payer,
	})
	if err != nil {
		return err
	}

	resolver, err := streamflow.NewResolver(streamflow.ResolverConfig{
		Logger: log,
		Fetcher: &streamflow.RPCFetcher{
			RPC:   rpcClient,
			Retry: retry.DefaultConfig(),
		},
	})
	if err != nil {
		return err
	}

	emitter := &crank.LogEmitter{Logger: log}
	crk, err := crank.New(crank.Config{
		Logger:  log,
		Store:   st,
		Pool:    poolClient,
		Token:   poolClient,
		Emitter: emitter,
	})
	if err != nil {
		return err
	}

	controller, err := position.NewController(position.Config{
		Logger:  log,
		Store:   st,
		Pool:    poolClient,
		Emitter: emitter,
	})
	if err != nil {
		return err
	}

	if *investorsFileFlag != "" {
		source, err := crank.LoadStaticSource(*investorsFileFlag)
		if err != nil {
			return err
		}
		loop, err := crank.NewLoop(crank.LoopConfig{
			Logger:     log,
			Crank:      crk,
			Store:      st,
			Source:     source,
			Resolver:   resolver,
			VaultSeeds: source.VaultSeeds(),
			PageSize:   *pageSizeFlag,
			Interval:   *crankIntervalFlag,
		})
		if err != nil {
			return err
		}
		loop.Start(ctx)
	}

	srv, err := server.New(server.Config{
		Logger:     log,
		Listen:     *listenFlag,
		Store:      st,
		Crank:      crk,
		Controller: controller,
		Resolver:   resolver,
		Version:    version,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("cranker: stopped")
	return nil
}
