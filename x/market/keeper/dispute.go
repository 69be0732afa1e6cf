package keeper

import (
	"context"
	"encoding/json"
	"strings"

	errorsmod "cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// GetDispute returns the dispute raised on a job.
func (k Keeper) GetDispute(ctx context.Context, jobID uint64) (types.Dispute, error) {
	var dispute types.Dispute
	found, err := k.getJSON(ctx, GetDisputeKey(jobID), &dispute)
	if err != nil {
		return types.Dispute{}, err
	}
	if !found {
		return types.Dispute{}, errorsmod.Wrapf(types.ErrDisputeNotFound, "job %d", jobID)
	}
	return dispute, nil
}

// IterateDisputes walks every dispute in job id order.
func (k Keeper) IterateDisputes(ctx context.Context, cb func(dispute types.Dispute) (stop bool, err error)) error {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), DisputeKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var dispute types.Dispute
		if err := json.Unmarshal(iter.Value(), &dispute); err != nil {
			return err
		}
		stop, err := cb(dispute)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// DisputeResult flags a completed job for review by a resolver. It is the
// backstop for disagreements a proof cannot capture.
func (k Keeper) DisputeResult(ctx context.Context, buyer sdk.AccAddress, jobID uint64, reason string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnDisputeResult)
		if err != nil {
			return err
		}
		if strings.TrimSpace(reason) == "" || len(reason) > types.MaxReasonLength {
			return errorsmod.Wrapf(types.ErrInvalidJob, "reason must be 1-%d characters", types.MaxReasonLength)
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Buyer != buyer.String() {
			return errorsmod.Wrapf(types.ErrNotBuyer, "job %d", jobID)
		}
		if job.Status != types.JobStatusCompleted {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		if id, pending := k.pendingChallenge(ctx, jobID); pending {
			return errorsmod.Wrapf(types.ErrChallengePending, "challenge %d", id)
		}

		now := ctx.BlockTime()
		if now.Sub(job.CompletedAt) < params.SuspiciousInterval() {
			k.flagSuspicious(ctx, &state, "early_dispute", job.Buyer, jobID)
		}

		dispute := types.Dispute{
			JobID:    jobID,
			Buyer:    job.Buyer,
			Reason:   reason,
			RaisedAt: now,
		}
		if err := k.setJSON(ctx, GetDisputeKey(jobID), dispute); err != nil {
			return err
		}
		k.dequeueSettlement(ctx, job)
		if err := k.transitionJob(ctx, &job, types.JobStatusDisputed, types.EventTypeDisputeRaised, job.Buyer, jobAttrs(job,
			types.AttributeKeyReason, reason,
		)); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}

// ResolveDispute settles a disputed job. When the resolver favors the buyer
// the released payment is reversed as far as it can be recovered.
func (k Keeper) ResolveDispute(ctx context.Context, resolver sdk.AccAddress, jobID uint64, favorBuyer bool) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnResolveDispute)
		if err != nil {
			return err
		}
		if !k.hasRole(ctx, types.RoleResolver, resolver) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a resolver", resolver)
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != types.JobStatusDisputed {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		dispute, err := k.GetDispute(ctx, jobID)
		if err != nil {
			return err
		}

		now := ctx.BlockTime()
		dispute.Resolved = true
		dispute.FavorsBuyer = favorBuyer
		dispute.Resolver = resolver.String()
		dispute.ResolvedAt = now
		if err := k.setJSON(ctx, GetDisputeKey(jobID), dispute); err != nil {
			return err
		}

		outcome := types.OutcomeProvider
		if favorBuyer {
			outcome = types.OutcomeBuyer
		}
		provider := job.ProviderAddress()
		if err := k.settle(ctx, &job, outcome, resolver.String()); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeDisputeResolved, resolver.String(), jobID, jobAttrs(job,
			types.AttributeKeyOutcome, outcome.String(),
		)); err != nil {
			return err
		}
		if !favorBuyer {
			return k.commitState(ctx, &state, params)
		}

		state.RecordFailure(now)
		if err := k.reputation.RecordOutcome(ctx, provider, jobID, false); err != nil {
			return err
		}
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}
		return k.reversePayment(ctx, &job, provider)
	})
}
