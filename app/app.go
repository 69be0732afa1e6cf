// Package app assembles the market daemon's state machine.
//
// MarketApp owns the multistore holding the ledger and market module state and
// serializes every mutating call. Each call runs as its own block: the clock is
// sampled once into the header, the call executes against a cache of the
// committed state, and the cache is written and committed only when the call
// succeeds. Abuse rejections are then recorded against the circuit breaker in
// a context of their own so the rejected call still leaves no partial update.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/app/telemetry"
	ledgerkeeper "github.com/paw-chain/pawmarket/x/ledger/keeper"
	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	marketkeeper "github.com/paw-chain/pawmarket/x/market/keeper"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

// Config configures a MarketApp.
type Config struct {
	ChainID string

	// Authority is the bech32 address holding every market role. Empty means
	// the gov module account.
	Authority string
}

// MarketApp is the market state machine with its keepers exported for the
// API and daemon layers.
type MarketApp struct {
	logger  log.Logger
	chainID string

	cms  storetypes.CommitMultiStore
	keys map[string]*storetypes.KVStoreKey

	LedgerKeeper *ledgerkeeper.Keeper
	MarketKeeper *marketkeeper.Keeper

	clock        Clock
	verifier     markettypes.ProofVerifier
	signedProofs bool
	telemetry    *telemetry.Provider
	sinks        []AuditSink
	cursors      []uint64

	invariants invariantRegistry

	// mu serializes every access to the multistore.
	mu       sync.Mutex
	height   int64
	lastTime time.Time
}

// Option customizes a MarketApp.
type Option func(*MarketApp)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(app *MarketApp) { app.clock = c }
}

// WithVerifier replaces the default commitment verifier.
func WithVerifier(v markettypes.ProofVerifier) Option {
	return func(app *MarketApp) { app.verifier = v }
}

// WithSignedProofs requires every proof payload to be an ed25519 signature
// over the commitments by the provider's registered signing key.
func WithSignedProofs() Option {
	return func(app *MarketApp) { app.signedProofs = true }
}

// WithTelemetry installs a tracing and metrics provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(app *MarketApp) { app.telemetry = p }
}

// WithAuditSink adds a sink receiving committed audit records.
func WithAuditSink(s AuditSink) Option {
	return func(app *MarketApp) { app.sinks = append(app.sinks, s) }
}

// NewMarketApp returns a reference to an initialized market application
// backed by db.
func NewMarketApp(ctx context.Context, logger log.Logger, db dbm.DB, cfg Config, opts ...Option) (*MarketApp, error) {
	app := &MarketApp{
		logger:  logger,
		chainID: cfg.ChainID,
		clock:   SystemClock{},
		keys: map[string]*storetypes.KVStoreKey{
			ledgertypes.StoreKey: storetypes.NewKVStoreKey(ledgertypes.StoreKey),
			markettypes.StoreKey: storetypes.NewKVStoreKey(markettypes.StoreKey),
		},
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.chainID == "" {
		app.chainID = DefaultChainID
	}
	if app.telemetry == nil {
		p, err := telemetry.NewProvider(telemetry.Config{})
		if err != nil {
			return nil, err
		}
		app.telemetry = p
	}

	app.cms = store.NewCommitMultiStore(db, logger, metrics.NewNoOpMetrics())
	for _, key := range app.keys {
		app.cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	}
	if err := app.cms.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	app.height = app.cms.LastCommitID().Version

	authority := cfg.Authority
	if authority == "" {
		authority = marketkeeper.DefaultAuthority().String()
	}
	app.LedgerKeeper = ledgerkeeper.NewKeeper(app.keys[ledgertypes.StoreKey])
	if app.signedProofs {
		app.verifier = markettypes.SignedCommitmentVerifier{Keys: app.LedgerKeeper.SigningKey}
	}
	app.MarketKeeper = marketkeeper.NewKeeper(
		app.keys[markettypes.StoreKey],
		app.LedgerKeeper,
		app.LedgerKeeper,
		app.LedgerKeeper,
		app.verifier,
		authority,
	)

	ledgerkeeper.RegisterInvariants(&app.invariants, *app.LedgerKeeper)
	marketkeeper.RegisterInvariants(&app.invariants, *app.MarketKeeper)

	if err := app.loadAuditCursors(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// Logger returns the application logger.
func (app *MarketApp) Logger() log.Logger { return app.logger }

// ChainID returns the network identifier.
func (app *MarketApp) ChainID() string { return app.chainID }

// Telemetry returns the tracing and metrics provider.
func (app *MarketApp) Telemetry() *telemetry.Provider { return app.telemetry }

// AuditSinks returns the configured audit sinks.
func (app *MarketApp) AuditSinks() []AuditSink { return app.sinks }

// LastBlock returns the height and time of the last committed call.
func (app *MarketApp) LastBlock() (int64, time.Time) {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.height, app.lastTime
}

// nextHeader samples the clock once for the next block. Block time never
// decreases even if the clock does.
func (app *MarketApp) nextHeader() cmtproto.Header {
	now := app.clock.Now().UTC()
	if now.Before(app.lastTime) {
		now = app.lastTime
	}
	return cmtproto.Header{ChainID: app.chainID, Height: app.height + 1, Time: now}
}

func (app *MarketApp) newContext(ctx context.Context, ms storetypes.MultiStore, header cmtproto.Header) sdk.Context {
	return sdk.NewContext(ms, header, false, app.logger).WithContext(ctx)
}

func (app *MarketApp) commit(header cmtproto.Header) {
	cid := app.cms.Commit()
	app.height = cid.Version
	app.lastTime = header.Time
}

// Deliver executes one mutating call as its own block. fn names the
// operation for pausing, metrics and tracing; caller is charged with any
// abuse rejection.
func (app *MarketApp) Deliver(ctx context.Context, fn string, caller sdk.AccAddress, call func(ctx sdk.Context) error) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	header := app.nextHeader()
	ctx, tc := app.telemetry.StartCall(ctx, fn, caller.String(), header.Height)

	sdkCtx := app.newContext(ctx, app.cms, header)
	cacheCtx, write := sdkCtx.CacheContext()
	err := call(cacheCtx)
	if err == nil {
		write()
	} else if caller != nil {
		if recErr := app.MarketKeeper.RecordRejection(sdkCtx, caller, fn, err); recErr != nil {
			app.logger.Error("failed to record rejection", "function", fn, "error", recErr)
		}
	}
	app.commit(header)
	app.exportAudit(ctx)
	tc.End(ctx, err)
	return err
}

// Query runs a read against the committed state. Writes made by fn are
// discarded.
func (app *MarketApp) Query(ctx context.Context, fn func(ctx sdk.Context) error) error {
	app.mu.Lock()
	defer app.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	header := app.nextHeader()
	header.Height = app.height
	return fn(app.newContext(ctx, app.cms.CacheMultiStore(), header))
}

// EndBlock runs end-of-block processing in a block of its own: breaker
// auto-recovery and the settlement sweep.
func (app *MarketApp) EndBlock(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	header := app.nextHeader()
	ctx, tc := app.telemetry.StartCall(ctx, telemetry.EndBlockFunction, "", header.Height)

	err := app.MarketKeeper.EndBlocker(app.newContext(ctx, app.cms, header))
	app.commit(header)
	app.exportAudit(ctx)
	tc.End(ctx, err)
	return err
}

// InitChain loads genesis state into an empty store.
func (app *MarketApp) InitChain(ctx context.Context, doc *GenesisDoc) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.height != 0 {
		return fmt.Errorf("state already initialized at height %d", app.height)
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	ledgerGenesis, marketGenesis, err := doc.AppState.Modules()
	if err != nil {
		return err
	}

	app.chainID = doc.ChainID
	header := cmtproto.Header{ChainID: doc.ChainID, Height: 1, Time: doc.GenesisTime.UTC()}
	sdkCtx := app.newContext(ctx, app.cms, header)
	cacheCtx, write := sdkCtx.CacheContext()
	if err := app.LedgerKeeper.InitGenesis(cacheCtx, *ledgerGenesis); err != nil {
		return fmt.Errorf("ledger genesis: %w", err)
	}
	if err := app.MarketKeeper.InitGenesis(cacheCtx, *marketGenesis); err != nil {
		return fmt.Errorf("market genesis: %w", err)
	}
	write()
	app.commit(header)
	app.logger.Info("initialized chain", "chain_id", app.chainID, "genesis_time", header.Time)
	return nil
}

// ExportGenesis exports the current state as a genesis document.
func (app *MarketApp) ExportGenesis(ctx context.Context) (*GenesisDoc, error) {
	var doc *GenesisDoc
	err := app.Query(ctx, func(ctx sdk.Context) error {
		marketGenesis, err := app.MarketKeeper.ExportGenesis(ctx)
		if err != nil {
			return err
		}
		doc = &GenesisDoc{
			ChainID:     app.chainID,
			GenesisTime: ctx.BlockTime(),
			AppState: GenesisState{
				ledgertypes.ModuleName: mustMarshalJSON(app.LedgerKeeper.ExportGenesis(ctx)),
				markettypes.ModuleName: mustMarshalJSON(marketGenesis),
			},
		}
		return nil
	})
	return doc, err
}

// CheckInvariants runs every registered invariant against the committed
// state and reports the broken ones.
func (app *MarketApp) CheckInvariants(ctx context.Context) error {
	var broken []string
	err := app.Query(ctx, func(ctx sdk.Context) error {
		for _, r := range app.invariants.routes {
			if msg, stop := r.invariant(ctx); stop {
				broken = append(broken, fmt.Sprintf("%s/%s: %s", r.module, r.route, msg))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(broken) > 0 {
		return fmt.Errorf("broken invariants:\n%s", strings.Join(broken, "\n"))
	}
	return nil
}

// Close flushes telemetry and closes sinks that hold connections.
func (app *MarketApp) Close(ctx context.Context) error {
	for _, s := range app.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				app.logger.Error("failed to close audit sink", "sink", s.Name(), "error", err)
			}
		}
	}
	return app.telemetry.Shutdown(ctx)
}

// loadAuditCursors positions each sink. Resumable sinks continue where they
// stopped, the rest only see records written from now on.
func (app *MarketApp) loadAuditCursors(ctx context.Context) error {
	head := app.MarketKeeper.LatestAuditSeq(app.newContext(ctx, app.cms.CacheMultiStore(), cmtproto.Header{}))
	app.cursors = make([]uint64, len(app.sinks))
	for i, s := range app.sinks {
		app.cursors[i] = head
		if r, ok := s.(resumableSink); ok {
			last, err := r.LastExported(ctx)
			if err != nil {
				return fmt.Errorf("audit sink %s: %w", s.Name(), err)
			}
			if last < head {
				app.cursors[i] = last
			}
		}
	}
	return nil
}

// exportAudit hands newly committed audit records to every sink. A failing
// sink keeps its cursor and retries after the next commit.
func (app *MarketApp) exportAudit(ctx context.Context) {
	if len(app.sinks) == 0 {
		return
	}
	sdkCtx := app.newContext(ctx, app.cms.CacheMultiStore(), cmtproto.Header{Height: app.height, Time: app.lastTime})
	for i, s := range app.sinks {
		for {
			records, err := app.MarketKeeper.AuditTrail(sdkCtx, app.cursors[i]+1, 0)
			if err != nil {
				app.logger.Error("failed to read audit trail", "error", err)
				return
			}
			if len(records) == 0 {
				break
			}
			if err := s.Export(ctx, records); err != nil {
				app.logger.Error("audit export failed", "sink", s.Name(), "from", app.cursors[i]+1, "error", err)
				break
			}
			app.cursors[i] = records[len(records)-1].Seq
		}
	}
}

type invariantRoute struct {
	module    string
	route     string
	invariant sdk.Invariant
}

// invariantRegistry collects module invariants for CheckInvariants.
type invariantRegistry struct {
	routes []invariantRoute
}

var _ sdk.InvariantRegistry = (*invariantRegistry)(nil)

func (r *invariantRegistry) RegisterRoute(moduleName, route string, invar sdk.Invariant) {
	r.routes = append(r.routes, invariantRoute{module: moduleName, route: route, invariant: invar})
}
