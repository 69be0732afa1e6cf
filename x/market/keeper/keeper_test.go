package keeper_test

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/query"
	"github.com/stretchr/testify/suite"

	keepertest "github.com/paw-chain/pawmarket/testutil/keeper"
	ledgerkeeper "github.com/paw-chain/pawmarket/x/ledger/keeper"
	"github.com/paw-chain/pawmarket/x/market/keeper"
	"github.com/paw-chain/pawmarket/x/market/types"
)

var (
	payment      = math.NewInt(1_000_000)
	buyerFunds   = math.NewInt(1_000_000_000)
	providerBond = math.NewInt(20_000_000)
	providerFund = math.NewInt(30_000_000)
)

type KeeperTestSuite struct {
	suite.Suite
	keeper *keeper.Keeper
	ledger *ledgerkeeper.Keeper
	ctx    sdk.Context

	buyer      sdk.AccAddress
	provider   sdk.AccAddress
	provider2  sdk.AccAddress
	sibling    sdk.AccAddress // shares provider's controller
	controller sdk.AccAddress
	verifier   sdk.AccAddress
	resolver   sdk.AccAddress
	guardian   sdk.AccAddress
	challenger sdk.AccAddress
}

func (suite *KeeperTestSuite) SetupTest() {
	suite.keeper, suite.ledger, suite.ctx = keepertest.MarketKeeper(suite.T(), nil)

	suite.buyer = keepertest.Addr("buyer")
	suite.provider = keepertest.Addr("provider")
	suite.provider2 = keepertest.Addr("provider2")
	suite.sibling = keepertest.Addr("sibling")
	suite.controller = keepertest.Addr("controller")
	suite.verifier = keepertest.Addr("verifier")
	suite.resolver = keepertest.Addr("resolver")
	suite.guardian = keepertest.Addr("guardian")
	suite.challenger = keepertest.Addr("challenger")

	require := suite.Require()
	require.NoError(suite.ledger.Fund(suite.ctx, suite.buyer, buyerFunds))
	require.NoError(suite.ledger.Fund(suite.ctx, suite.challenger, math.NewInt(10_000_000)))

	for _, p := range []struct{ addr, controller sdk.AccAddress }{
		{suite.provider, suite.controller},
		{suite.sibling, suite.controller},
		{suite.provider2, nil},
	} {
		require.NoError(suite.ledger.Fund(suite.ctx, p.addr, providerFund))
		require.NoError(suite.ledger.RegisterProvider(suite.ctx, p.addr, p.controller, providerBond, nil))
	}

	auth := keepertest.Authority
	require.NoError(suite.keeper.GrantRole(suite.ctx, auth, types.RoleVerifier, suite.verifier))
	require.NoError(suite.keeper.GrantRole(suite.ctx, auth, types.RoleResolver, suite.resolver))
	require.NoError(suite.keeper.GrantRole(suite.ctx, auth, types.RoleGuardian, suite.guardian))
}

func TestKeeperTestSuite(t *testing.T) {
	suite.Run(t, new(KeeperTestSuite))
}

func (suite *KeeperTestSuite) advance(d time.Duration) {
	suite.ctx = suite.ctx.
		WithBlockTime(suite.ctx.BlockTime().Add(d)).
		WithBlockHeight(suite.ctx.BlockHeight() + 1)
}

func (suite *KeeperTestSuite) postJob() uint64 {
	return suite.postJobWith(payment, time.Hour)
}

func (suite *KeeperTestSuite) postJobWith(amount math.Int, ttl time.Duration) uint64 {
	id, err := suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: amount,
		Deadline:       suite.ctx.BlockTime().Add(ttl),
		Transferred:    amount,
	})
	suite.Require().NoError(err)
	return id
}

func (suite *KeeperTestSuite) proofFor(jobID uint64) types.ProofSubmission {
	job, err := suite.keeper.GetJob(suite.ctx, jobID)
	suite.Require().NoError(err)
	return types.ProofSubmission{
		Payload:     []byte("proof-bytes"),
		Commitments: types.ExpectedCommitments(job, "ipfs://result"),
		ResultRef:   "ipfs://result",
	}
}

// completedJob runs a job through claim, proof and verification.
func (suite *KeeperTestSuite) completedJob() uint64 {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, suite.proofFor(id)))
	suite.advance(time.Minute)
	valid, err := suite.keeper.VerifyProof(suite.ctx, suite.verifier, id)
	require.NoError(err)
	require.True(valid)
	return id
}

func (suite *KeeperTestSuite) job(id uint64) types.Job {
	job, err := suite.keeper.GetJob(suite.ctx, id)
	suite.Require().NoError(err)
	return job
}

func (suite *KeeperTestSuite) requireInvariants() {
	msg, broken := keeper.AllInvariants(*suite.keeper)(suite.ctx)
	suite.Require().False(broken, msg)
}

func (suite *KeeperTestSuite) TestPostClaimProveSettle() {
	require := suite.Require()

	id := suite.completedJob()
	job := suite.job(id)
	require.Equal(types.JobStatusCompleted, job.Status)
	require.Equal("ipfs://result", job.ResultRef)

	share, fee := types.DefaultParams().ProtocolFee(payment)
	require.Equal(math.NewInt(980_000), share)
	require.Equal(providerFund.Sub(providerBond).Add(share), suite.ledger.BalanceOf(suite.ctx, suite.provider))
	require.Equal(fee, suite.ledger.BalanceOf(suite.ctx, suite.keeper.FeeCollector()))
	require.Equal(buyerFunds.Sub(payment), suite.ledger.BalanceOf(suite.ctx, suite.buyer))

	require.ErrorIs(suite.keeper.SettleJob(suite.ctx, suite.buyer, id), types.ErrChallengeWindow)

	suite.advance(types.DefaultParams().ChallengeWindow())
	require.NoError(suite.keeper.SettleJob(suite.ctx, suite.buyer, id))
	job = suite.job(id)
	require.Equal(types.JobStatusSettled, job.Status)
	require.Equal(types.OutcomeProvider, job.Outcome)
	require.Equal(suite.provider.String(), job.Provider)

	require.True(suite.ledger.DecayedScore(suite.ctx, suite.provider).GT(math.LegacyNewDecWithPrec(5, 1)))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestPaymentsBeyondInt64() {
	require := suite.Require()
	large, ok := math.NewIntFromString("100000000000000000000")
	require.True(ok)
	require.False(large.IsInt64())

	params := types.DefaultParams()
	params.MaxPayment = large
	require.NoError(suite.keeper.UpdateParams(suite.ctx, keepertest.Authority, params))
	require.NoError(suite.ledger.Fund(suite.ctx, suite.buyer, large))

	id := suite.postJobWith(large, time.Hour)
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, suite.proofFor(id)))
	suite.advance(time.Minute)

	var valid bool
	require.NotPanics(func() {
		var err error
		valid, err = suite.keeper.VerifyProof(suite.ctx, suite.verifier, id)
		require.NoError(err)
	})
	require.True(valid)

	share, _ := params.ProtocolFee(large)
	require.True(providerFund.Sub(providerBond).Add(share).Equal(suite.ledger.BalanceOf(suite.ctx, suite.provider)))

	challengeID, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://evidence", params.MinChallengeStake)
	require.NoError(err)
	require.NotPanics(func() {
		require.NoError(suite.keeper.ResolveChallenge(suite.ctx, suite.verifier, challengeID, true))
	})
	require.True(buyerFunds.Add(large).Equal(suite.ledger.BalanceOf(suite.ctx, suite.buyer)))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestClaimExclusivity() {
	require := suite.Require()
	id := suite.postJob()

	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.provider2, id), types.ErrAlreadyClaimed)

	job := suite.job(id)
	require.Equal(types.JobStatusClaimed, job.Status)
	require.Equal(suite.provider.String(), job.Provider)
	require.Equal(uint32(1), job.Attempts)
}

func (suite *KeeperTestSuite) TestClaimEligibility() {
	require := suite.Require()
	id := suite.postJob()

	stranger := keepertest.Addr("stranger")
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, stranger, id), types.ErrProviderNotActive)

	_, err := suite.keeper.SlashProvider(suite.ctx, keepertest.Authority, suite.provider2, math.NewInt(15_000_000), "downtime")
	require.NoError(err)
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.provider2, id), types.ErrInsufficientStake)

	// a provider run by the buyer
	require.NoError(suite.ledger.Fund(suite.ctx, keepertest.Addr("puppet"), providerFund))
	require.NoError(suite.ledger.RegisterProvider(suite.ctx, keepertest.Addr("puppet"), suite.buyer, providerBond, nil))
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, keepertest.Addr("puppet"), id), types.ErrSelfDealing)

	suite.advance(2 * time.Hour)
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.provider, id), types.ErrDeadlinePassed)
}

func (suite *KeeperTestSuite) TestInvalidProofRequeues() {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))

	sub := suite.proofFor(id)
	sub.Commitments.Output = types.InvalidOutputSentinel
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, sub))
	require.ErrorIs(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, sub), types.ErrProofExists)

	valid, err := suite.keeper.VerifyProof(suite.ctx, suite.verifier, id)
	require.NoError(err)
	require.False(valid)

	job := suite.job(id)
	require.Equal(types.JobStatusPosted, job.Status)
	require.Empty(job.Provider)
	require.True(suite.ledger.DecayedScore(suite.ctx, suite.provider).LT(math.LegacyNewDecWithPrec(5, 1)))

	history, err := suite.keeper.ProofHistory(suite.ctx, id)
	require.NoError(err)
	require.Len(history, 1)
	require.Equal(types.ProofStatusInvalid, history[0].Status)

	// the failing controller is barred from this job, other controllers are not
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.sibling, id), types.ErrSybilReattempt)
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider2, id))

	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(uint64(1), status.Failures)
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestUpheldChallengeReversesPayment() {
	require := suite.Require()
	id := suite.completedJob()
	scoreAfterCompletion := suite.ledger.DecayedScore(suite.ctx, suite.provider)

	stake := types.DefaultParams().MinChallengeStake
	_, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://evidence", stake.SubRaw(1))
	require.ErrorIs(err, types.ErrInsufficientChallenge)

	challengeID, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://evidence", stake)
	require.NoError(err)
	_, err = suite.keeper.ChallengeProof(suite.ctx, suite.buyer, id, "ipfs://evidence-2", stake)
	require.ErrorIs(err, types.ErrChallengePending)
	require.ErrorIs(suite.keeper.DisputeResult(suite.ctx, suite.buyer, id, "late"), types.ErrChallengePending)

	require.NoError(suite.keeper.ResolveChallenge(suite.ctx, suite.verifier, challengeID, true))

	job := suite.job(id)
	require.Equal(types.JobStatusSettled, job.Status)
	require.Equal(types.OutcomeBuyer, job.Outcome)
	require.True(job.ProviderPaid.IsZero())
	require.True(job.FeePaid.IsZero())

	require.Equal(buyerFunds, suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	require.Equal(providerFund.Sub(providerBond), suite.ledger.BalanceOf(suite.ctx, suite.provider))
	require.Equal(math.NewInt(10_000_000), suite.ledger.BalanceOf(suite.ctx, suite.challenger))
	require.True(suite.ledger.DecayedScore(suite.ctx, suite.provider).LT(scoreAfterCompletion))

	proof, err := suite.keeper.GetProof(suite.ctx, id)
	require.NoError(err)
	require.Equal(types.ProofStatusInvalid, proof.Status)

	challenge, err := suite.keeper.GetChallenge(suite.ctx, challengeID)
	require.NoError(err)
	require.Equal(types.ChallengeStatusSuccessful, challenge.Status)
	require.ErrorIs(suite.keeper.ResolveChallenge(suite.ctx, suite.verifier, challengeID, false), types.ErrChallengeResolved)
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestPartialReversal() {
	require := suite.Require()
	id := suite.completedJob()
	challengeID, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://evidence", types.DefaultParams().MinChallengeStake)
	require.NoError(err)

	// the provider moves most of its earnings away before resolution
	spent := providerFund.Sub(providerBond).Add(math.NewInt(900_000))
	require.NoError(suite.ledger.Transfer(suite.ctx, suite.provider, keepertest.Addr("elsewhere"), spent))

	require.NoError(suite.keeper.ResolveChallenge(suite.ctx, suite.verifier, challengeID, true))
	job := suite.job(id)
	require.Equal(math.NewInt(900_000), job.ProviderPaid)
	require.True(job.FeePaid.IsZero())
	require.Equal(buyerFunds.Sub(math.NewInt(900_000)), suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestRejectedAndExpiredChallenges() {
	require := suite.Require()
	params := types.DefaultParams()
	stake := params.MinChallengeStake
	providerBefore := providerFund.Sub(providerBond)

	id := suite.completedJob()
	first, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://weak", stake)
	require.NoError(err)
	require.ErrorIs(suite.keeper.ResolveChallenge(suite.ctx, suite.challenger, first, false), types.ErrUnauthorized)
	require.NoError(suite.keeper.ResolveChallenge(suite.ctx, suite.verifier, first, false))

	second, err := suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://weaker", stake)
	require.NoError(err)
	require.ErrorIs(suite.keeper.ExpireChallenge(suite.ctx, suite.buyer, second), types.ErrChallengeNotExpired)

	suite.advance(params.ChallengeResolution())
	require.NoError(suite.keeper.ExpireChallenge(suite.ctx, suite.buyer, second))

	challenge, err := suite.keeper.GetChallenge(suite.ctx, second)
	require.NoError(err)
	require.Equal(types.ChallengeStatusFailed, challenge.Status)
	require.True(challenge.Expired)

	share, _ := params.ProtocolFee(payment)
	require.Equal(providerBefore.Add(share).Add(stake).Add(stake), suite.ledger.BalanceOf(suite.ctx, suite.provider))

	challenges, err := suite.keeper.ChallengesByJob(suite.ctx, id)
	require.NoError(err)
	require.Len(challenges, 2)

	// the window has long closed, so the end of block settles the job
	require.NoError(suite.keeper.EndBlocker(suite.ctx))
	require.Equal(types.JobStatusSettled, suite.job(id).Status)
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestChallengeWindowCloses() {
	require := suite.Require()
	id := suite.completedJob()

	_, err := suite.keeper.ChallengeProof(suite.ctx, suite.provider, id, "ipfs://self", types.DefaultParams().MinChallengeStake)
	require.ErrorIs(err, types.ErrUnauthorized)

	suite.advance(types.DefaultParams().ChallengeWindow())
	_, err = suite.keeper.ChallengeProof(suite.ctx, suite.challenger, id, "ipfs://late", types.DefaultParams().MinChallengeStake)
	require.ErrorIs(err, types.ErrChallengeClosed)
}

func (suite *KeeperTestSuite) TestPostingRateLimit() {
	require := suite.Require()
	for i := 0; i < 10; i++ {
		suite.postJob()
		suite.advance(2 * time.Minute)
	}
	_, err := suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       suite.ctx.BlockTime().Add(time.Hour),
		Transferred:    payment,
	})
	require.ErrorIs(err, types.ErrRateLimitExceeded)
	require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.buyer, types.FnPostJob, err))

	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelMonitoring, status.Level)
	require.Equal(uint64(1), status.Suspicious)

	// the hour rolls over
	suite.advance(time.Hour)
	suite.postJob()
}

func (suite *KeeperTestSuite) TestPostingShortWindow() {
	require := suite.Require()
	for i := 0; i < 3; i++ {
		suite.postJob()
	}
	_, err := suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       suite.ctx.BlockTime().Add(time.Hour),
		Transferred:    payment,
	})
	require.ErrorIs(err, types.ErrRateLimitExceeded)
	suite.advance(time.Minute)
	suite.postJob()
}

func (suite *KeeperTestSuite) TestPostJobPreconditions() {
	require := suite.Require()
	now := suite.ctx.BlockTime()
	base := types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       now.Add(time.Hour),
		Transferred:    payment,
	}

	soon := base
	soon.Deadline = now.Add(59 * time.Second)
	_, err := suite.keeper.PostJob(suite.ctx, suite.buyer, soon)
	require.ErrorIs(err, types.ErrInvalidDeadline)

	huge := base
	huge.PaymentCeiling = types.DefaultParams().MaxPayment.AddRaw(1)
	huge.Transferred = huge.PaymentCeiling
	_, err = suite.keeper.PostJob(suite.ctx, suite.buyer, huge)
	require.ErrorIs(err, types.ErrInvalidAmount)

	short := base
	short.Transferred = payment.SubRaw(1)
	_, err = suite.keeper.PostJob(suite.ctx, suite.buyer, short)
	require.ErrorIs(err, types.ErrInsufficientFunds)

	// only the ceiling is taken
	over := base
	over.Transferred = payment.MulRaw(3)
	_, err = suite.keeper.PostJob(suite.ctx, suite.buyer, over)
	require.NoError(err)
	require.Equal(buyerFunds.Sub(payment), suite.ledger.BalanceOf(suite.ctx, suite.buyer))

	// rejected calls leave no trace
	trail, err := suite.keeper.AuditTrailForJob(suite.ctx, 1)
	require.NoError(err)
	require.Len(trail, 1)
	require.Equal(types.EventTypeJobPosted, trail[0].Action)
}

func (suite *KeeperTestSuite) TestMarkJobFailed() {
	require := suite.Require()
	id := suite.postJob()

	require.ErrorIs(suite.keeper.MarkJobFailed(suite.ctx, suite.verifier, id, "nothing to fail"), types.ErrInvalidTransition)
	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Zero(status.Failures)

	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.ErrorIs(suite.keeper.MarkJobFailed(suite.ctx, suite.buyer, id, "impatient"), types.ErrUnauthorized)

	// self-reported right after claiming
	require.NoError(suite.keeper.MarkJobFailed(suite.ctx, suite.provider, id, "out of memory"))
	require.Equal(types.JobStatusPosted, suite.job(id).Status)

	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(uint64(1), status.Failures)
	require.Equal(uint64(1), status.Suspicious)

	// failing again is a rejection, not a second penalty
	require.ErrorIs(suite.keeper.MarkJobFailed(suite.ctx, suite.provider, id, "again"), types.ErrInvalidTransition)
	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(uint64(1), status.Failures)
}

func (suite *KeeperTestSuite) TestFailureAfterDeadlineExpires() {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))

	suite.advance(2 * time.Hour)
	require.ErrorIs(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, suite.proofFor(id)), types.ErrDeadlinePassed)
	require.NoError(suite.keeper.MarkJobFailed(suite.ctx, suite.provider, id, "too slow"))

	job := suite.job(id)
	require.Equal(types.JobStatusExpired, job.Status)
	require.Equal(buyerFunds, suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestExpireJob() {
	require := suite.Require()
	id := suite.postJob()

	require.ErrorIs(suite.keeper.ExpireJob(suite.ctx, suite.buyer, id), types.ErrDeadlineNotPassed)
	suite.advance(time.Hour)
	require.NoError(suite.keeper.ExpireJob(suite.ctx, suite.provider2, id))
	require.Equal(types.JobStatusExpired, suite.job(id).Status)
	require.Equal(buyerFunds, suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	require.ErrorIs(suite.keeper.ExpireJob(suite.ctx, suite.buyer, id), types.ErrInvalidTransition)
}

func (suite *KeeperTestSuite) TestClaimAbandonedPayment() {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))

	suite.advance(time.Hour + 29*24*time.Hour)
	require.ErrorIs(suite.keeper.ClaimAbandonedPayment(suite.ctx, suite.buyer, id), types.ErrGracePeriodActive)

	suite.advance(24 * time.Hour)
	require.ErrorIs(suite.keeper.ClaimAbandonedPayment(suite.ctx, suite.provider, id), types.ErrNotBuyer)
	require.NoError(suite.keeper.ClaimAbandonedPayment(suite.ctx, suite.buyer, id))

	job := suite.job(id)
	require.Equal(types.JobStatusExpired, job.Status)
	require.Empty(job.Provider)
	require.Equal(buyerFunds, suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestDisputeResolution() {
	require := suite.Require()

	forBuyer := suite.completedJob()
	suite.advance(time.Minute)
	require.ErrorIs(suite.keeper.DisputeResult(suite.ctx, suite.provider, forBuyer, "quality"), types.ErrNotBuyer)
	require.NoError(suite.keeper.DisputeResult(suite.ctx, suite.buyer, forBuyer, "output is truncated"))
	require.Equal(types.JobStatusDisputed, suite.job(forBuyer).Status)

	require.ErrorIs(suite.keeper.ResolveDispute(suite.ctx, suite.verifier, forBuyer, true), types.ErrUnauthorized)
	require.NoError(suite.keeper.ResolveDispute(suite.ctx, suite.resolver, forBuyer, true))
	job := suite.job(forBuyer)
	require.Equal(types.JobStatusSettled, job.Status)
	require.Equal(types.OutcomeBuyer, job.Outcome)
	require.Equal(buyerFunds, suite.ledger.BalanceOf(suite.ctx, suite.buyer))

	dispute, err := suite.keeper.GetDispute(suite.ctx, forBuyer)
	require.NoError(err)
	require.True(dispute.Resolved)
	require.True(dispute.FavorsBuyer)

	suite.advance(2 * time.Minute)
	forProvider := suite.completedJob()
	suite.advance(time.Minute)
	require.NoError(suite.keeper.DisputeResult(suite.ctx, suite.buyer, forProvider, "too slow"))
	require.NoError(suite.keeper.ResolveDispute(suite.ctx, suite.resolver, forProvider, false))
	job = suite.job(forProvider)
	require.Equal(types.OutcomeProvider, job.Outcome)
	require.Equal(buyerFunds.Sub(payment), suite.ledger.BalanceOf(suite.ctx, suite.buyer))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestRateProvider() {
	require := suite.Require()
	id := suite.postJob()
	require.ErrorIs(suite.keeper.RateProvider(suite.ctx, suite.buyer, id, 5, ""), types.ErrInvalidTransition)

	suite.advance(time.Minute)
	id = suite.completedJob()
	require.ErrorIs(suite.keeper.RateProvider(suite.ctx, suite.buyer, id, 6, ""), types.ErrInvalidRating)
	require.ErrorIs(suite.keeper.RateProvider(suite.ctx, suite.challenger, id, 5, ""), types.ErrNotBuyer)

	before := suite.ledger.DecayedScore(suite.ctx, suite.provider)
	require.NoError(suite.keeper.RateProvider(suite.ctx, suite.buyer, id, 5, "fast and correct"))
	require.True(suite.ledger.DecayedScore(suite.ctx, suite.provider).GT(before))
	require.Error(suite.keeper.RateProvider(suite.ctx, suite.buyer, id, 4, "changed my mind"))
}

func (suite *KeeperTestSuite) TestBatchVerifyProofs() {
	require := suite.Require()

	good := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, good))
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, good, suite.proofFor(good)))

	bad := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider2, bad))
	sub := suite.proofFor(bad)
	sub.Commitments.Input = types.Commit("ipfs://other-input")
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider2, bad, sub))

	unproven := suite.postJob()

	results, err := suite.keeper.BatchVerifyProofs(suite.ctx, suite.verifier, []uint64{good, bad, unproven, 999})
	require.NoError(err)
	require.Len(results, 4)
	for i, id := range []uint64{good, bad, unproven, 999} {
		require.Equal(id, results[i].JobID)
	}
	require.True(results[0].Valid)
	require.NoError(results[0].Err)

	// an invalid proof is a verdict, not a rejection
	require.False(results[1].Valid)
	require.False(results[1].Rejected())

	require.False(results[2].Valid)
	require.ErrorIs(results[2].Err, types.ErrProofNotFound)
	require.False(results[3].Valid)
	require.ErrorIs(results[3].Err, types.ErrJobNotFound)

	require.Equal(types.JobStatusCompleted, suite.job(good).Status)
	require.Equal(types.JobStatusPosted, suite.job(bad).Status)

	_, err = suite.keeper.BatchVerifyProofs(suite.ctx, suite.challenger, []uint64{good})
	require.ErrorIs(err, types.ErrUnauthorized)
	_, err = suite.keeper.BatchVerifyProofs(suite.ctx, suite.verifier, make([]uint64, 51))
	require.ErrorIs(err, types.ErrBatchTooLarge)
}

func (suite *KeeperTestSuite) TestBatchVerifyRefusedWhilePaused() {
	require := suite.Require()
	id := suite.postJobWith(payment, 3*time.Hour)
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, suite.proofFor(id)))

	require.NoError(suite.keeper.PauseFunction(suite.ctx, suite.guardian, types.FnVerifyProof, "verifier audit"))
	results, err := suite.keeper.BatchVerifyProofs(suite.ctx, suite.verifier, []uint64{id})
	require.ErrorIs(err, types.ErrFunctionPaused)
	require.Nil(results)
	require.NoError(suite.keeper.ResumeFunction(suite.ctx, suite.guardian, types.FnVerifyProof))

	require.NoError(suite.keeper.EmergencyPause(suite.ctx, suite.guardian, "exploit under investigation"))
	results, err = suite.keeper.BatchVerifyProofs(suite.ctx, suite.verifier, []uint64{id})
	require.ErrorIs(err, types.ErrCircuitPaused)
	require.Nil(results)

	proof, err := suite.keeper.GetProof(suite.ctx, id)
	require.NoError(err)
	require.Equal(types.ProofStatusSubmitted, proof.Status)
	require.Equal(types.JobStatusClaimed, suite.job(id).Status)
}

func (suite *KeeperTestSuite) TestActiveJobsPagination() {
	require := suite.Require()
	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, suite.postJob())
		suite.advance(time.Minute)
	}
	suite.advance(time.Hour)
	require.NoError(suite.keeper.ExpireJob(suite.ctx, suite.buyer, ids[0]))

	jobs, page, err := suite.keeper.ActiveJobs(suite.ctx, &query.PageRequest{Limit: 2})
	require.NoError(err)
	require.Len(jobs, 2)
	require.Equal(ids[1], jobs[0].ID)
	require.NotNil(page.NextKey)

	jobs, _, err = suite.keeper.ActiveJobs(suite.ctx, &query.PageRequest{Limit: 1000})
	require.NoError(err)
	require.Len(jobs, 4)

	expired, _, err := suite.keeper.JobsByStatus(suite.ctx, types.JobStatusExpired, nil)
	require.NoError(err)
	require.Len(expired, 1)
}

func (suite *KeeperTestSuite) TestAuditTrailReplay() {
	require := suite.Require()
	suite.completedJob()
	suite.advance(time.Minute)
	failed := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider2, failed))
	require.NoError(suite.keeper.MarkJobFailed(suite.ctx, suite.verifier, failed, "bad output"))

	trail, err := suite.keeper.AuditTrail(suite.ctx, 1, 0)
	require.NoError(err)
	require.NotEmpty(trail)
	for i := 1; i < len(trail); i++ {
		require.Equal(trail[i-1].Seq+1, trail[i].Seq)
	}

	result, err := suite.keeper.ReplayAuditTrail(suite.ctx)
	require.NoError(err)
	require.True(result.Consistent(), "%+v", result.Mismatches)
	require.Equal(uint64(2), result.JobsChecked)
}

func (suite *KeeperTestSuite) TestGenesisRoundTrip() {
	require := suite.Require()
	suite.completedJob()
	suite.advance(time.Minute)
	suite.postJob()

	exported, err := suite.keeper.ExportGenesis(suite.ctx)
	require.NoError(err)
	require.NoError(exported.Validate())
	require.Len(exported.Jobs, 2)
	require.Equal(uint64(3), exported.NextJobID)
	require.Len(exported.Roles, 3)

	k2, _, ctx2 := keepertest.MarketKeeper(suite.T(), nil)
	require.NoError(k2.InitGenesis(ctx2, *exported))
	reexported, err := k2.ExportGenesis(ctx2)
	require.NoError(err)
	require.Equal(exported.Jobs, reexported.Jobs)
	require.Equal(exported.NextJobID, reexported.NextJobID)
}
