package keeper

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// PostJob creates a job and reserves its payment ceiling in escrow.
func (k Keeper) PostJob(ctx context.Context, buyer sdk.AccAddress, req types.PostJobRequest) (uint64, error) {
	var jobID uint64
	err := k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnPostJob)
		if err != nil {
			return err
		}
		if err := req.ValidateBasic(); err != nil {
			return err
		}
		if req.PaymentCeiling.GT(params.MaxPayment) {
			return errorsmod.Wrapf(types.ErrInvalidAmount, "ceiling %s exceeds maximum %s", req.PaymentCeiling, params.MaxPayment)
		}
		now := ctx.BlockTime()
		if earliest := now.Add(params.MinDeadlineHorizon()); req.Deadline.Before(earliest) {
			return errorsmod.Wrapf(types.ErrInvalidDeadline, "deadline must be at or after %s", earliest.UTC().Format(time.RFC3339))
		}
		if err := k.checkCooldown(ctx, state, params, buyer, types.FnPostJob); err != nil {
			return err
		}
		if err := k.checkPostingRate(ctx, buyer, params); err != nil {
			return err
		}
		k.touchCooldown(ctx, buyer)

		job := types.Job{
			ID:           k.nextSequence(ctx, NextJobIDKey),
			Buyer:        buyer.String(),
			Capability:   req.Capability,
			InputRef:     req.InputRef,
			Payment:      req.PaymentCeiling,
			Deadline:     req.Deadline.UTC(),
			Status:       types.JobStatusPosted,
			PostedAt:     now,
			ProviderPaid: math.ZeroInt(),
			FeePaid:      math.ZeroInt(),
		}
		if err := job.Validate(); err != nil {
			return err
		}
		if err := k.setJob(ctx, job); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeJobPosted, job.Buyer, job.ID, jobAttrs(job,
			types.AttributeKeyStatus, job.Status.String(),
			types.AttributeKeyCapability, job.Capability,
			types.AttributeKeyPayment, job.Payment.String(),
			types.AttributeKeyDeadline, job.Deadline.Format(time.RFC3339),
		)); err != nil {
			return err
		}
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}

		if err := k.escrow.Reserve(ctx, types.JobEscrowID(job.ID), buyer, job.Payment); err != nil {
			return err
		}
		k.metrics.JobsPosted.Inc()
		jobID = job.ID
		return nil
	})
	return jobID, err
}

// ClaimJob assigns a posted job to a provider. The first successful claim
// wins.
func (k Keeper) ClaimJob(ctx context.Context, provider sdk.AccAddress, jobID uint64) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnClaimJob)
		if err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.HasAssignedProvider() {
			return errorsmod.Wrapf(types.ErrAlreadyClaimed, "job %d is %s", jobID, job.Status)
		}
		if job.Status != types.JobStatusPosted {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		now := ctx.BlockTime()
		if !now.Before(job.Deadline) {
			return errorsmod.Wrapf(types.ErrDeadlinePassed, "job %d", jobID)
		}

		if !k.stake.IsActiveProvider(ctx, provider) {
			return errorsmod.Wrap(types.ErrProviderNotActive, provider.String())
		}
		if stake := k.stake.StakeOf(ctx, provider); stake.LT(params.MinProviderStake) {
			return errorsmod.Wrapf(types.ErrInsufficientStake, "stake %s < %s", stake, params.MinProviderStake)
		}
		if score := k.reputation.DecayedScore(ctx, provider); score.LT(params.MinReputationScore) {
			return errorsmod.Wrapf(types.ErrLowReputation, "score %s < %s", score, params.MinReputationScore)
		}

		controller, ok := k.stake.ControllerOf(ctx, provider)
		if !ok {
			return errorsmod.Wrap(types.ErrNoControllerRecord, provider.String())
		}
		buyer := job.BuyerAddress()
		if controller.Equals(buyer) || provider.Equals(buyer) {
			return errorsmod.Wrapf(types.ErrSelfDealing, "job %d", jobID)
		}
		if k.controllerFailed(ctx, jobID, controller) {
			return errorsmod.Wrapf(types.ErrSybilReattempt, "controller %s on job %d", controller, jobID)
		}
		if err := k.checkCooldown(ctx, state, params, provider, types.FnClaimJob); err != nil {
			return err
		}
		k.touchCooldown(ctx, provider)
		k.recordControllerClaim(ctx, controller, jobID, now)

		job.Provider = provider.String()
		job.ClaimedAt = now
		job.Attempts++
		if err := k.transitionJob(ctx, &job, types.JobStatusClaimed, types.EventTypeJobClaimed, job.Provider, jobAttrs(job,
			types.AttributeKeyController, controller.String(),
			types.AttributeKeyAttempt, formatUint(uint64(job.Attempts)),
		)); err != nil {
			return err
		}
		k.metrics.JobsClaimed.Inc()
		return k.commitState(ctx, &state, params)
	})
}

// completeJob moves a job with a verified proof to Completed and pays the
// provider. The challenge window opens at the same time; a successful
// challenge reverses the payment.
func (k Keeper) completeJob(ctx context.Context, state *types.AbuseState, params types.Params, job *types.Job, proof types.ProofRecord, actor string) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	provider := job.ProviderAddress()

	share, fee := params.ProtocolFee(job.Payment)
	job.ResultRef = proof.ResultRef
	job.CompletedAt = now
	job.ChallengeWindowEnd = now.Add(params.ChallengeWindow())
	job.ProviderPaid = share
	job.FeePaid = fee
	if err := k.transitionJob(ctx, job, types.JobStatusCompleted, types.EventTypeJobCompleted, actor, jobAttrs(*job,
		types.AttributeKeyResultRef, job.ResultRef,
		types.AttributeKeyPayment, job.Payment.String(),
	)); err != nil {
		return err
	}
	k.enqueueSettlement(ctx, *job)
	state.RecordSuccess()
	if err := k.reputation.RecordOutcome(ctx, provider, job.ID, true); err != nil {
		return err
	}
	k.metrics.JobsCompleted.Inc()

	return k.releasePayment(ctx, *job)
}

// markJobFailed runs a claimed job through Failed and straight on to either
// Posted, when the deadline still allows another attempt, or Expired with a
// refund. Failed never rests in the store.
func (k Keeper) markJobFailed(ctx context.Context, state *types.AbuseState, params types.Params, job *types.Job, actor, reason string, selfReported bool) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	provider := job.ProviderAddress()

	if err := k.transitionJob(ctx, job, types.JobStatusFailed, types.EventTypeJobFailed, actor, jobAttrs(*job,
		types.AttributeKeyProvider, provider.String(),
		types.AttributeKeyReason, reason,
	)); err != nil {
		return err
	}

	controller := k.recordControllerFailure(ctx, job.ID, provider)
	if selfReported && now.Sub(job.ClaimedAt) < params.SuspiciousInterval() {
		k.flagSuspicious(ctx, state, "early_failure", controller.String(), job.ID)
	}
	state.RecordFailure(now)
	if err := k.archiveProof(ctx, job.ID); err != nil {
		return err
	}
	if err := k.reputation.RecordOutcome(ctx, provider, job.ID, false); err != nil {
		return err
	}

	if now.Before(job.Deadline) {
		k.metrics.JobsFailed.WithLabelValues("requeued").Inc()
		return k.transitionJob(ctx, job, types.JobStatusPosted, types.EventTypeJobRequeued, actor, jobAttrs(*job))
	}
	k.metrics.JobsFailed.WithLabelValues("expired").Inc()
	k.metrics.JobsExpired.WithLabelValues("failed").Inc()
	if err := k.transitionJob(ctx, job, types.JobStatusExpired, types.EventTypeJobExpired, actor, jobAttrs(*job)); err != nil {
		return err
	}
	return k.refundHeld(ctx, *job)
}

// MarkJobFailed reports that a claimed job cannot be delivered. The assigned
// provider or a verifier may call it. Jobs that are not claimed are rejected
// without penalty.
func (k Keeper) MarkJobFailed(ctx context.Context, caller sdk.AccAddress, jobID uint64, reason string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnMarkJobFailed)
		if err != nil {
			return err
		}
		if len(reason) > types.MaxReasonLength {
			return errorsmod.Wrapf(types.ErrInvalidJob, "reason exceeds %d characters", types.MaxReasonLength)
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != types.JobStatusClaimed {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		selfReported := caller.String() == job.Provider
		if !selfReported && !k.hasRole(ctx, types.RoleVerifier, caller) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is neither the provider nor a verifier", caller)
		}
		if err := k.markJobFailed(ctx, &state, params, &job, caller.String(), reason, selfReported); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}

// ExpireJob closes a posted job whose deadline passed without a claim and
// refunds the buyer. Anyone may call it.
func (k Keeper) ExpireJob(ctx context.Context, caller sdk.AccAddress, jobID uint64) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnExpireJob)
		if err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != types.JobStatusPosted {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		if ctx.BlockTime().Before(job.Deadline) {
			return errorsmod.Wrapf(types.ErrDeadlineNotPassed, "job %d", jobID)
		}
		if err := k.transitionJob(ctx, &job, types.JobStatusExpired, types.EventTypeJobExpired, caller.String(), jobAttrs(job)); err != nil {
			return err
		}
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}
		k.metrics.JobsExpired.WithLabelValues("deadline").Inc()
		return k.refundHeld(ctx, job)
	})
}

// ClaimAbandonedPayment refunds the buyer of a job that was never delivered
// once the grace period after its deadline has elapsed.
func (k Keeper) ClaimAbandonedPayment(ctx context.Context, buyer sdk.AccAddress, jobID uint64) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnClaimAbandonedPayment)
		if err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Buyer != buyer.String() {
			return errorsmod.Wrapf(types.ErrNotBuyer, "job %d", jobID)
		}
		if job.Status != types.JobStatusPosted && job.Status != types.JobStatusClaimed {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		now := ctx.BlockTime()
		if ready := job.Deadline.Add(params.AbandonGrace()); now.Before(ready) {
			return errorsmod.Wrapf(types.ErrGracePeriodActive, "refund available at %s", ready.UTC().Format(time.RFC3339))
		}

		if provider := job.ProviderAddress(); provider != nil {
			k.recordControllerFailure(ctx, jobID, provider)
			state.RecordFailure(now)
			if err := k.archiveProof(ctx, jobID); err != nil {
				return err
			}
			if err := k.reputation.RecordOutcome(ctx, provider, jobID, false); err != nil {
				return err
			}
		}
		if err := k.transitionJob(ctx, &job, types.JobStatusExpired, types.EventTypeJobAbandoned, buyer.String(), jobAttrs(job)); err != nil {
			return err
		}
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}
		k.metrics.JobsExpired.WithLabelValues("abandoned").Inc()
		return k.refundHeld(ctx, job)
	})
}

// settle closes a completed or disputed job with the given outcome.
func (k Keeper) settle(ctx context.Context, job *types.Job, outcome types.SettlementOutcome, actor string) error {
	k.dequeueSettlement(ctx, *job)
	job.Outcome = outcome
	if err := k.transitionJob(ctx, job, types.JobStatusSettled, types.EventTypeJobSettled, actor, jobAttrs(*job,
		types.AttributeKeyOutcome, outcome.String(),
	)); err != nil {
		return err
	}
	k.metrics.JobsSettled.WithLabelValues(outcome.String()).Inc()
	return nil
}

// settleIfDue checks the settlement preconditions of a completed job.
func (k Keeper) settleIfDue(ctx context.Context, job *types.Job, actor string) error {
	if job.Status != types.JobStatusCompleted {
		return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", job.ID, job.Status)
	}
	if now := sdk.UnwrapSDKContext(ctx).BlockTime(); now.Before(job.ChallengeWindowEnd) {
		return errorsmod.Wrapf(types.ErrChallengeWindow, "window closes at %s", job.ChallengeWindowEnd.UTC().Format(time.RFC3339))
	}
	if _, pending := k.pendingChallenge(ctx, job.ID); pending {
		return errorsmod.Wrapf(types.ErrChallengePending, "job %d", job.ID)
	}
	return k.settle(ctx, job, types.OutcomeProvider, actor)
}

// SettleJob finalizes a completed job once its challenge window has closed
// with no pending challenge.
func (k Keeper) SettleJob(ctx context.Context, caller sdk.AccAddress, jobID uint64) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnSettleJob)
		if err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if err := k.settleIfDue(ctx, &job, caller.String()); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}

// RateProvider records the buyer's rating of the provider that delivered a
// job.
func (k Keeper) RateProvider(ctx context.Context, buyer sdk.AccAddress, jobID uint64, stars uint32, feedback string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnRateProvider)
		if err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Buyer != buyer.String() {
			return errorsmod.Wrapf(types.ErrNotBuyer, "job %d", jobID)
		}
		delivered := job.Status == types.JobStatusCompleted ||
			(job.Status == types.JobStatusSettled && job.Outcome == types.OutcomeProvider)
		if !delivered {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		if stars < 1 || stars > 5 {
			return errorsmod.Wrapf(types.ErrInvalidRating, "got %d", stars)
		}
		if err := k.reputation.Rate(ctx, buyer, job.ProviderAddress(), jobID, stars, feedback); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeProviderRated, job.Buyer, jobID, jobAttrs(job,
			types.AttributeKeyStars, formatUint(uint64(stars)),
		)); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}
