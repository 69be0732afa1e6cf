package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/suite"

	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/x/market/types"
)

var genesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func addr(name string) sdk.AccAddress {
	bz := make([]byte, 20)
	copy(bz, name)
	return sdk.AccAddress(bz)
}

type recordingSink struct {
	mu      sync.Mutex
	records []types.AuditRecord
	fail    bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Export(_ context.Context, records []types.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Action)
	}
	return out
}

type AppTestSuite struct {
	suite.Suite
	db    dbm.DB
	clock *app.ManualClock
	sink  *recordingSink
	app   *app.MarketApp

	buyer    sdk.AccAddress
	provider sdk.AccAddress
	verifier sdk.AccAddress
}

func TestAppTestSuite(t *testing.T) {
	suite.Run(t, new(AppTestSuite))
}

func (suite *AppTestSuite) SetupTest() {
	require := suite.Require()
	suite.db = dbm.NewMemDB()
	suite.clock = app.NewManualClock(genesisTime)
	suite.sink = &recordingSink{}
	suite.buyer = addr("buyer")
	suite.provider = addr("provider")
	suite.verifier = addr("verifier")

	suite.app = suite.open()

	cfg := app.DefaultGenesisConfig()
	cfg.GenesisTime = genesisTime
	cfg.Accounts = map[string]math.Int{
		suite.buyer.String():    math.NewInt(1_000_000_000),
		suite.provider.String(): math.NewInt(30_000_000),
	}
	cfg.Verifiers = []string{suite.verifier.String()}
	doc, err := app.NewGenesisDocFromConfig(cfg)
	require.NoError(err)
	require.NoError(suite.app.InitChain(context.Background(), doc))

	require.NoError(suite.app.Deliver(context.Background(), "register_provider", suite.provider, func(ctx sdk.Context) error {
		return suite.app.LedgerKeeper.RegisterProvider(ctx, suite.provider, nil, math.NewInt(20_000_000), nil)
	}))
}

func (suite *AppTestSuite) open() *app.MarketApp {
	marketApp, err := app.NewMarketApp(context.Background(), log.NewNopLogger(), suite.db,
		app.Config{ChainID: "pawmarket-test"},
		app.WithClock(suite.clock),
		app.WithAuditSink(suite.sink),
	)
	suite.Require().NoError(err)
	return marketApp
}

func (suite *AppTestSuite) postJob() (uint64, error) {
	var id uint64
	payment := math.NewInt(1_000_000)
	err := suite.app.Deliver(context.Background(), types.FnPostJob, suite.buyer, func(ctx sdk.Context) error {
		var err error
		id, err = suite.app.MarketKeeper.PostJob(ctx, suite.buyer, types.PostJobRequest{
			Capability:     "llama-3-8b",
			InputRef:       "ipfs://input",
			PaymentCeiling: payment,
			Deadline:       ctx.BlockTime().Add(time.Hour),
			Transferred:    payment,
		})
		return err
	})
	return id, err
}

func (suite *AppTestSuite) job(id uint64) types.Job {
	var job types.Job
	suite.Require().NoError(suite.app.Query(context.Background(), func(ctx sdk.Context) error {
		var err error
		job, err = suite.app.MarketKeeper.GetJob(ctx, id)
		return err
	}))
	return job
}

func (suite *AppTestSuite) balance(a sdk.AccAddress) math.Int {
	var out math.Int
	suite.Require().NoError(suite.app.Query(context.Background(), func(ctx sdk.Context) error {
		out = suite.app.LedgerKeeper.BalanceOf(ctx, a)
		return nil
	}))
	return out
}

func (suite *AppTestSuite) TestInitChainOnlyOnce() {
	doc, err := app.NewGenesisDocFromConfig(app.DefaultGenesisConfig())
	suite.Require().NoError(err)
	suite.Require().Error(suite.app.InitChain(context.Background(), doc))
	suite.Require().Equal("pawmarket-local", suite.app.ChainID(), "chain id comes from genesis")
}

func (suite *AppTestSuite) TestFullLifecycleThroughDeliver() {
	require := suite.Require()
	ctx := context.Background()

	id, err := suite.postJob()
	require.NoError(err)
	require.NoError(suite.app.Deliver(ctx, types.FnClaimJob, suite.provider, func(sdkCtx sdk.Context) error {
		return suite.app.MarketKeeper.ClaimJob(sdkCtx, suite.provider, id)
	}))
	require.NoError(suite.app.Deliver(ctx, types.FnSubmitProof, suite.provider, func(sdkCtx sdk.Context) error {
		job, err := suite.app.MarketKeeper.GetJob(sdkCtx, id)
		if err != nil {
			return err
		}
		return suite.app.MarketKeeper.SubmitProof(sdkCtx, suite.provider, id, types.ProofSubmission{
			Payload:     []byte("proof"),
			Commitments: types.ExpectedCommitments(job, "ipfs://result"),
			ResultRef:   "ipfs://result",
		})
	}))
	suite.clock.Advance(time.Minute)
	require.NoError(suite.app.Deliver(ctx, types.FnVerifyProof, suite.verifier, func(sdkCtx sdk.Context) error {
		valid, err := suite.app.MarketKeeper.VerifyProof(sdkCtx, suite.verifier, id)
		if err == nil && !valid {
			return types.ErrInvalidProof
		}
		return err
	}))
	require.Equal(types.JobStatusCompleted, suite.job(id).Status)
	require.Equal(math.NewInt(10_000_000+980_000), suite.balance(suite.provider))

	suite.clock.Advance(types.DefaultParams().ChallengeWindow())
	require.NoError(suite.app.EndBlock(ctx))
	require.Equal(types.JobStatusSettled, suite.job(id).Status)
	require.NoError(suite.app.CheckInvariants(ctx))

	require.Contains(suite.sink.actions(), types.EventTypeJobPosted)
	require.Contains(suite.sink.actions(), types.EventTypeJobSettled)
}

func (suite *AppTestSuite) TestRejectedCallLeavesNoTrace() {
	require := suite.Require()
	heightBefore, _ := suite.app.LastBlock()
	recorded := len(suite.sink.actions())

	err := suite.app.Deliver(context.Background(), types.FnPostJob, suite.buyer, func(ctx sdk.Context) error {
		_, err := suite.app.MarketKeeper.PostJob(ctx, suite.buyer, types.PostJobRequest{
			Capability:     "llama-3-8b",
			InputRef:       "ipfs://input",
			PaymentCeiling: math.NewInt(1_000_000),
			Deadline:       ctx.BlockTime().Add(time.Second),
			Transferred:    math.NewInt(1_000_000),
		})
		return err
	})
	require.ErrorIs(err, types.ErrInvalidDeadline)

	heightAfter, _ := suite.app.LastBlock()
	require.Equal(heightBefore+1, heightAfter)
	require.Equal(math.NewInt(1_000_000_000), suite.balance(suite.buyer))
	require.Len(suite.sink.actions(), recorded)
}

func (suite *AppTestSuite) TestAbuseRejectionIsRecorded() {
	require := suite.Require()
	for i := 0; i < 3; i++ {
		_, err := suite.postJob()
		require.NoError(err)
	}
	_, err := suite.postJob()
	require.ErrorIs(err, types.ErrRateLimitExceeded)

	var status types.CircuitStatus
	require.NoError(suite.app.Query(context.Background(), func(ctx sdk.Context) error {
		status, err = suite.app.MarketKeeper.CircuitBreakerStatus(ctx)
		return err
	}))
	require.Equal(uint64(1), status.Suspicious)
	require.Equal(types.LevelMonitoring, status.Level)
}

func (suite *AppTestSuite) TestBlockTimeNeverDecreases() {
	require := suite.Require()
	suite.clock.Advance(time.Hour)
	_, err := suite.postJob()
	require.NoError(err)
	_, first := suite.app.LastBlock()

	suite.clock.Set(genesisTime)
	id, err := suite.postJob()
	require.NoError(err)
	_, second := suite.app.LastBlock()
	require.True(first.Equal(second))
	require.True(first.Equal(suite.job(id).PostedAt))
}

func (suite *AppTestSuite) TestReopenKeepsState() {
	require := suite.Require()
	id, err := suite.postJob()
	require.NoError(err)
	height, _ := suite.app.LastBlock()

	suite.app = suite.open()
	reopened, _ := suite.app.LastBlock()
	require.Equal(height, reopened)
	require.Equal(types.JobStatusPosted, suite.job(id).Status)

	// a non-resumable sink only sees what is written after it attaches
	recorded := len(suite.sink.actions())
	_, err = suite.postJob()
	require.NoError(err)
	require.Len(suite.sink.actions(), recorded+1)
}

func (suite *AppTestSuite) TestFailingSinkCatchesUp() {
	require := suite.Require()
	suite.sink.fail = true
	_, err := suite.postJob()
	require.NoError(err)
	missed := len(suite.sink.actions())

	suite.sink.fail = false
	_, err = suite.postJob()
	require.NoError(err)

	suite.sink.mu.Lock()
	defer suite.sink.mu.Unlock()
	require.Greater(len(suite.sink.records), missed)
	for i := 1; i < len(suite.sink.records); i++ {
		require.Equal(suite.sink.records[i-1].Seq+1, suite.sink.records[i].Seq, "no gaps in the exported trail")
	}
}

func (suite *AppTestSuite) TestExportGenesisRoundTrip() {
	require := suite.Require()
	ctx := context.Background()
	id, err := suite.postJob()
	require.NoError(err)

	doc, err := suite.app.ExportGenesis(ctx)
	require.NoError(err)
	require.NoError(doc.Validate())

	fresh, err := app.NewMarketApp(ctx, log.NewNopLogger(), dbm.NewMemDB(), app.Config{}, app.WithClock(suite.clock))
	require.NoError(err)
	require.NoError(fresh.InitChain(ctx, doc))
	require.NoError(fresh.CheckInvariants(ctx))

	require.NoError(fresh.Query(ctx, func(sdkCtx sdk.Context) error {
		job, err := fresh.MarketKeeper.GetJob(sdkCtx, id)
		require.NoError(err)
		require.Equal(types.JobStatusPosted, job.Status)
		require.Equal(math.NewInt(1_000_000_000-1_000_000), fresh.LedgerKeeper.BalanceOf(sdkCtx, suite.buyer))
		return nil
	}))
}
