package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/paw-chain/pawmarket/api"
	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/app/health"
	"github.com/paw-chain/pawmarket/app/telemetry"
)

const (
	dbName = "market"

	closeTimeout = 10 * time.Second
)

// StartCmd runs the market: the HTTP API plus a block ticker driving
// end-of-block processing.
func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the market daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadDaemonConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := daemonLogger(cmd, cfg)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), logger, cfg)
		},
	}
}

func runDaemon(ctx context.Context, logger log.Logger, cfg *DaemonConfig) error {
	node, err := openNode(ctx, logger, cfg, true)
	if err != nil {
		return err
	}
	defer node.close(logger)

	checker, err := health.NewChecker(logger, node.app, cfg.Health)
	if err != nil {
		return err
	}
	server, err := api.NewServer(logger, node.app, checker, &cfg.API)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return runBlocks(gctx, logger, node.app, cfg.BlockInterval)
	})

	logger.Info("market daemon started", "chain_id", node.app.ChainID(), "block_interval", cfg.BlockInterval)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("market daemon stopped")
	return nil
}

// runBlocks drives end-of-block processing until ctx ends. A failing block is
// logged and the ticker keeps going; settlement retries on the next one.
func runBlocks(ctx context.Context, logger log.Logger, marketApp *app.MarketApp, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := marketApp.EndBlock(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("end block failed", "error", err)
			}
		}
	}
}

// node bundles an opened app with the resources it holds.
type node struct {
	app *app.MarketApp
	db  dbm.DB
}

func (n *node) close(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := n.app.Close(ctx); err != nil {
		logger.Error("failed to close app", "error", err)
	}
	if err := n.db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}

func openDB(cfg *DaemonConfig) (dbm.DB, error) {
	if cfg.DBBackend == dbBackendMemDB {
		return dbm.NewMemDB(), nil
	}
	db, err := dbm.NewDB(dbName, dbm.GoLevelDBBackend, DataDir(cfg.Home))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// openNode opens the state database and builds the app. With withSinks the
// configured audit sinks and telemetry are attached. A fresh store is
// initialized from the genesis file.
func openNode(ctx context.Context, logger log.Logger, cfg *DaemonConfig, withSinks bool) (*node, error) {
	doc, err := app.LoadGenesisDoc(GenesisPath(cfg.Home))
	if err != nil {
		return nil, err
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	opts, err := appOptions(ctx, logger, cfg, doc.ChainID, withSinks)
	if err != nil {
		db.Close()
		return nil, err
	}

	marketApp, err := app.NewMarketApp(ctx, logger, db, app.Config{
		ChainID:   doc.ChainID,
		Authority: cfg.Authority,
	}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	n := &node{app: marketApp, db: db}

	if height, _ := marketApp.LastBlock(); height == 0 {
		if err := marketApp.InitChain(ctx, doc); err != nil {
			n.close(logger)
			return nil, fmt.Errorf("failed to initialize chain: %w", err)
		}
	}
	return n, nil
}

func appOptions(ctx context.Context, logger log.Logger, cfg *DaemonConfig, chainID string, withSinks bool) ([]app.Option, error) {
	var opts []app.Option
	if cfg.SignedProofs {
		opts = append(opts, app.WithSignedProofs())
	}
	if !withSinks {
		return opts, nil
	}

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ChainID = chainID
	provider, err := telemetry.NewProvider(telemetryCfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, app.WithTelemetry(provider))

	if cfg.AuditLog {
		opts = append(opts, app.WithAuditSink(app.NewLogSink(logger.With("module", "audit"))))
	}
	if cfg.Postgres.URL != "" {
		sink, err := app.NewPostgresSink(ctx, cfg.Postgres)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, err
		}
		opts = append(opts, app.WithAuditSink(sink))
	}
	return opts, nil
}
