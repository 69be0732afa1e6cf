package keeper_test

import (
	"time"

	keepertest "github.com/paw-chain/pawmarket/testutil/keeper"
	"github.com/paw-chain/pawmarket/x/market/types"
)

func (suite *KeeperTestSuite) TestFailureRateEscalatesToThrottled() {
	require := suite.Require()

	var ids []uint64
	for i := 0; i < 5; i++ {
		ids = append(ids, suite.postJob())
		suite.advance(time.Minute)
	}
	for i, id := range ids {
		require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider2, id))
		require.NoError(suite.keeper.MarkJobFailed(suite.ctx, suite.verifier, id, "wrong output"))

		status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
		require.NoError(err)
		if i < 4 {
			require.Equal(types.LevelMonitoring, status.Level)
			require.Equal(uint64(i+1), status.Failures)
		}
	}

	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelThrottled, status.Level)
	require.Zero(status.Failures, "escalation resets the counters")
	require.Contains(status.Reason, "failure rate")
	require.NotNil(status.AutoRecoveryAt)

	// throttled callers wait out the cooldown between sensitive calls
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, ids[0]))
	err = suite.keeper.ClaimJob(suite.ctx, suite.provider, ids[1])
	require.ErrorIs(err, types.ErrCooldownActive)
	require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.provider, types.FnClaimJob, err))

	suite.advance(types.DefaultParams().ThrottleCooldown())
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, ids[1]))
	suite.requireInvariants()
}

func (suite *KeeperTestSuite) TestSuspiciousSignalsEscalateOneLevelAtATime() {
	require := suite.Require()
	threshold := int(types.DefaultParams().SuspiciousThreshold)

	for i := 0; i < threshold; i++ {
		require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.buyer, types.FnPostJob, types.ErrRateLimitExceeded))
	}
	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelThrottled, status.Level)

	for i := 0; i < threshold; i++ {
		require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.buyer, types.FnPostJob, types.ErrRateLimitExceeded))
	}
	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelPaused, status.Level)

	// ordinary rejections are not abuse
	require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.buyer, types.FnPostJob, types.ErrInvalidDeadline))

	trail, err := suite.keeper.AuditTrail(suite.ctx, 1, 0)
	require.NoError(err)
	var changes []string
	for _, record := range trail {
		if record.Action == types.EventTypeCircuitLevelChanged {
			changes = append(changes, record.Attr(types.AttributeKeyLevel))
		}
	}
	require.Equal([]string{"throttled", "paused"}, changes)
}

func (suite *KeeperTestSuite) TestEmergencyPauseAndUnpause() {
	require := suite.Require()
	id := suite.postJobWith(payment, 3*time.Hour)

	require.ErrorIs(suite.keeper.EmergencyPause(suite.ctx, suite.buyer, "halt"), types.ErrUnauthorized)
	require.ErrorIs(suite.keeper.SetCircuitLevel(suite.ctx, suite.guardian, types.LevelPaused, "skip"), types.ErrLevelSkip)

	require.NoError(suite.keeper.EmergencyPause(suite.ctx, suite.guardian, "exploit under investigation"))
	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelPaused, status.Level)
	require.Equal(suite.guardian.String(), status.Actor)

	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.provider, id), types.ErrCircuitPaused)
	_, err = suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       suite.ctx.BlockTime().Add(time.Hour),
		Transferred:    payment,
	})
	require.ErrorIs(err, types.ErrCircuitPaused)

	suite.advance(30 * time.Minute)
	require.ErrorIs(suite.keeper.Unpause(suite.ctx, suite.guardian, "fixed"), types.ErrUnpauseCooldown)

	suite.advance(30 * time.Minute)
	require.NoError(suite.keeper.Unpause(suite.ctx, suite.guardian, "fixed"))
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
}

func (suite *KeeperTestSuite) TestAutoRecoveryAtEndBlock() {
	require := suite.Require()
	require.NoError(suite.keeper.SetCircuitLevel(suite.ctx, suite.guardian, types.LevelThrottled, "watch"))

	suite.advance(types.DefaultParams().QuietPeriod() - time.Second)
	require.NoError(suite.keeper.EndBlocker(suite.ctx))
	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelThrottled, status.Level)

	suite.advance(time.Second)
	require.NoError(suite.keeper.EndBlocker(suite.ctx))
	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(types.LevelMonitoring, status.Level)
	require.Nil(status.AutoRecoveryAt)
}

func (suite *KeeperTestSuite) TestPauseSingleFunction() {
	require := suite.Require()
	id := suite.postJob()

	require.ErrorIs(suite.keeper.PauseFunction(suite.ctx, suite.guardian, "withdraw_all", "no such thing"), types.ErrUnknownFunction)
	require.NoError(suite.keeper.PauseFunction(suite.ctx, suite.guardian, types.FnClaimJob, "claim spam"))
	require.ErrorIs(suite.keeper.ClaimJob(suite.ctx, suite.provider, id), types.ErrFunctionPaused)

	// the rest of the market keeps running
	suite.postJob()

	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Contains(status.PausedFunctions, types.FnClaimJob)

	require.NoError(suite.keeper.ResumeFunction(suite.ctx, suite.guardian, types.FnClaimJob))
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
}

func (suite *KeeperTestSuite) TestPauseRejectionsAreCountedNotEscalated() {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.PauseFunction(suite.ctx, suite.guardian, types.FnClaimJob, "claim spam"))

	threshold := int(types.DefaultParams().SuspiciousThreshold)
	for i := 0; i <= threshold; i++ {
		err := suite.keeper.ClaimJob(suite.ctx, suite.provider, id)
		require.ErrorIs(err, types.ErrFunctionPaused)
		require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.provider, types.FnClaimJob, err))
	}
	status, err := suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(uint64(threshold+1), status.BreakerRejections)
	require.Zero(status.Suspicious)
	require.Equal(types.LevelMonitoring, status.Level)

	require.NoError(suite.keeper.EmergencyPause(suite.ctx, suite.guardian, "exploit under investigation"))
	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Zero(status.BreakerRejections, "escalation resets the counters")
	recoveryAt := *status.AutoRecoveryAt

	suite.advance(time.Hour)
	require.NoError(suite.keeper.ResumeFunction(suite.ctx, suite.guardian, types.FnClaimJob))
	_, err = suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       suite.ctx.BlockTime().Add(time.Hour),
		Transferred:    payment,
	})
	require.ErrorIs(err, types.ErrCircuitPaused)
	require.NoError(suite.keeper.RecordRejection(suite.ctx, suite.buyer, types.FnPostJob, err))

	// refused calls do not push back auto recovery
	status, err = suite.keeper.CircuitBreakerStatus(suite.ctx)
	require.NoError(err)
	require.Equal(uint64(1), status.BreakerRejections)
	require.True(recoveryAt.Equal(*status.AutoRecoveryAt))
}

func (suite *KeeperTestSuite) TestSettlementWaitsWhilePaused() {
	require := suite.Require()
	id := suite.completedJob()
	require.NoError(suite.keeper.PauseFunction(suite.ctx, suite.guardian, types.FnSettleJob, "audit"))

	suite.advance(types.DefaultParams().ChallengeWindow())
	require.NoError(suite.keeper.EndBlocker(suite.ctx))
	require.Equal(types.JobStatusCompleted, suite.job(id).Status)

	require.NoError(suite.keeper.ResumeFunction(suite.ctx, suite.guardian, types.FnSettleJob))
	settled, err := suite.keeper.ProcessSettlementQueue(suite.ctx)
	require.NoError(err)
	require.Equal(1, settled)
	require.Equal(types.JobStatusSettled, suite.job(id).Status)
}

func (suite *KeeperTestSuite) TestRoles() {
	require := suite.Require()
	id := suite.postJob()
	require.NoError(suite.keeper.ClaimJob(suite.ctx, suite.provider, id))
	require.NoError(suite.keeper.SubmitProof(suite.ctx, suite.provider, id, suite.proofFor(id)))

	require.ErrorIs(suite.keeper.GrantRole(suite.ctx, suite.guardian, types.RoleVerifier, suite.buyer), types.ErrUnauthorized)
	require.NoError(suite.keeper.RevokeRole(suite.ctx, keepertest.Authority, types.RoleVerifier, suite.verifier))
	require.False(suite.keeper.HasRole(suite.ctx, types.RoleVerifier, suite.verifier))

	_, err := suite.keeper.VerifyProof(suite.ctx, suite.verifier, id)
	require.ErrorIs(err, types.ErrUnauthorized)

	// the authority holds every role
	require.True(suite.keeper.HasRole(suite.ctx, types.RoleGuardian, keepertest.Authority))
	valid, err := suite.keeper.VerifyProof(suite.ctx, keepertest.Authority, id)
	require.NoError(err)
	require.True(valid)

	require.Len(suite.keeper.Roles(suite.ctx), 2)
}

func (suite *KeeperTestSuite) TestUpdateParams() {
	require := suite.Require()
	params := types.DefaultParams()
	params.PostsPerMinute = 1

	require.ErrorIs(suite.keeper.UpdateParams(suite.ctx, suite.guardian, params), types.ErrUnauthorized)
	require.NoError(suite.keeper.UpdateParams(suite.ctx, keepertest.Authority, params))

	suite.postJob()
	_, err := suite.keeper.PostJob(suite.ctx, suite.buyer, types.PostJobRequest{
		Capability:     "llama-3-8b",
		InputRef:       "ipfs://input",
		PaymentCeiling: payment,
		Deadline:       suite.ctx.BlockTime().Add(time.Hour),
		Transferred:    payment,
	})
	require.ErrorIs(err, types.ErrRateLimitExceeded)

	params.MinChallengeStake = params.MinChallengeStake.Neg()
	require.Error(suite.keeper.UpdateParams(suite.ctx, keepertest.Authority, params))
}
