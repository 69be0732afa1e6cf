package keeper

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// GetChallenge returns a challenge by id.
func (k Keeper) GetChallenge(ctx context.Context, id uint64) (types.Challenge, error) {
	var challenge types.Challenge
	found, err := k.getJSON(ctx, GetChallengeKey(id), &challenge)
	if err != nil {
		return types.Challenge{}, err
	}
	if !found {
		return types.Challenge{}, errorsmod.Wrapf(types.ErrChallengeNotFound, "challenge %d", id)
	}
	return challenge, nil
}

func (k Keeper) setChallenge(ctx context.Context, challenge types.Challenge) error {
	if err := k.setJSON(ctx, GetChallengeKey(challenge.ID), challenge); err != nil {
		return err
	}
	store := k.getStore(ctx)
	store.Set(GetChallengeByJobKey(challenge.JobID, challenge.ID), []byte{})
	if challenge.Status == types.ChallengeStatusPending {
		store.Set(GetPendingChallengeKey(challenge.JobID), sdk.Uint64ToBigEndian(challenge.ID))
	} else {
		store.Delete(GetPendingChallengeKey(challenge.JobID))
	}
	return nil
}

// pendingChallenge returns the id of the challenge pending on a job.
func (k Keeper) pendingChallenge(ctx context.Context, jobID uint64) (uint64, bool) {
	bz := k.getStore(ctx).Get(GetPendingChallengeKey(jobID))
	if bz == nil {
		return 0, false
	}
	return sdk.BigEndianToUint64(bz), true
}

// ChallengesByJob returns every challenge raised against a job.
func (k Keeper) ChallengesByJob(ctx context.Context, jobID uint64) ([]types.Challenge, error) {
	prefix := concat(ChallengesByJobPrefix, sdk.Uint64ToBigEndian(jobID))
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), prefix)
	defer iter.Close()

	var challenges []types.Challenge
	for ; iter.Valid(); iter.Next() {
		challenge, err := k.GetChallenge(ctx, sdk.BigEndianToUint64(iter.Key()[len(prefix):]))
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, challenge)
	}
	return challenges, nil
}

// IterateChallenges walks every challenge in id order.
func (k Keeper) IterateChallenges(ctx context.Context, cb func(challenge types.Challenge) (stop bool, err error)) error {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), ChallengeKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var challenge types.Challenge
		if err := json.Unmarshal(iter.Value(), &challenge); err != nil {
			return err
		}
		stop, err := cb(challenge)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}
	return nil
}

// ChallengeProof stakes a challenge against a verified proof. Settlement of
// the job is frozen until the challenge resolves or expires.
func (k Keeper) ChallengeProof(ctx context.Context, challenger sdk.AccAddress, jobID uint64, evidenceRef string, stake math.Int) (uint64, error) {
	var challengeID uint64
	err := k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnChallengeProof)
		if err != nil {
			return err
		}
		if strings.TrimSpace(evidenceRef) == "" || len(evidenceRef) > types.MaxReferenceLength {
			return errorsmod.Wrapf(types.ErrInvalidProof, "evidence reference must be 1-%d characters", types.MaxReferenceLength)
		}
		if stake.IsNil() || stake.LT(params.MinChallengeStake) {
			return errorsmod.Wrapf(types.ErrInsufficientChallenge, "stake %s < %s", stake, params.MinChallengeStake)
		}

		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		proof, found, err := k.getProof(ctx, jobID)
		if err != nil {
			return err
		}
		if !found || proof.Status != types.ProofStatusVerified {
			return errorsmod.Wrapf(types.ErrProofNotVerified, "job %d", jobID)
		}
		if job.Status != types.JobStatusCompleted {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		if job.Provider == challenger.String() {
			return errorsmod.Wrap(types.ErrUnauthorized, "provider cannot challenge its own proof")
		}
		now := ctx.BlockTime()
		if !now.Before(job.ChallengeWindowEnd) {
			return errorsmod.Wrapf(types.ErrChallengeClosed, "job %d", jobID)
		}
		if pendingID, pending := k.pendingChallenge(ctx, jobID); pending {
			return errorsmod.Wrapf(types.ErrChallengePending, "challenge %d", pendingID)
		}
		if err := k.checkCooldown(ctx, state, params, challenger, types.FnChallengeProof); err != nil {
			return err
		}
		k.touchCooldown(ctx, challenger)

		if now.Sub(job.CompletedAt) < params.SuspiciousInterval() {
			k.flagSuspicious(ctx, &state, "early_challenge", challenger.String(), jobID)
		}

		challenge := types.Challenge{
			ID:          k.nextSequence(ctx, NextChallengeIDKey),
			JobID:       jobID,
			Challenger:  challenger.String(),
			Stake:       stake,
			EvidenceRef: evidenceRef,
			CreatedAt:   now,
			Deadline:    now.Add(params.ChallengeResolution()),
			Status:      types.ChallengeStatusPending,
		}
		if err := k.setChallenge(ctx, challenge); err != nil {
			return err
		}
		k.dequeueSettlement(ctx, job)
		if err := k.audit(ctx, types.EventTypeChallengeRaised, challenge.Challenger, jobID, map[string]string{
			types.AttributeKeyChallengeID: strconv.FormatUint(challenge.ID, 10),
			types.AttributeKeyChallenger:  challenge.Challenger,
			types.AttributeKeyStake:       stake.String(),
			types.AttributeKeyDeadline:    challenge.Deadline.Format(time.RFC3339),
		}); err != nil {
			return err
		}
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}

		if err := k.escrow.Reserve(ctx, types.ChallengeEscrowID(challenge.ID), challenger, stake); err != nil {
			return err
		}
		k.metrics.ChallengesRaised.Inc()
		challengeID = challenge.ID
		return nil
	})
	return challengeID, err
}

// ResolveChallenge decides a pending challenge. An upheld challenge
// invalidates the proof, reverses the provider's payment as far as it can
// be recovered and returns the stake; a rejected one forfeits the stake to
// the provider.
func (k Keeper) ResolveChallenge(ctx context.Context, resolver sdk.AccAddress, challengeID uint64, upheld bool) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnResolveChallenge)
		if err != nil {
			return err
		}
		if !k.hasRole(ctx, types.RoleVerifier, resolver) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a verifier", resolver)
		}
		challenge, job, err := k.loadPendingChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		if !upheld {
			if err := k.rejectChallenge(ctx, &challenge, job, resolver.String(), false); err != nil {
				return err
			}
			return k.commitState(ctx, &state, params)
		}

		now := ctx.BlockTime()
		provider := job.ProviderAddress()

		challenge.Status = types.ChallengeStatusSuccessful
		challenge.ResolvedAt = now
		challenge.Resolver = resolver.String()
		if err := k.setChallenge(ctx, challenge); err != nil {
			return err
		}

		proof, _, err := k.getProof(ctx, job.ID)
		if err != nil {
			return err
		}
		proof.Status = types.ProofStatusInvalid
		proof.FailureReason = "challenge upheld: " + challenge.EvidenceRef
		if err := k.setProof(ctx, proof); err != nil {
			return err
		}

		if err := k.settle(ctx, &job, types.OutcomeBuyer, resolver.String()); err != nil {
			return err
		}
		k.recordControllerFailure(ctx, job.ID, provider)
		state.RecordFailure(now)
		if err := k.reputation.RecordOutcome(ctx, provider, job.ID, false); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeChallengeResolved, resolver.String(), job.ID, map[string]string{
			types.AttributeKeyChallengeID: strconv.FormatUint(challenge.ID, 10),
			types.AttributeKeyUpheld:      "true",
			types.AttributeKeyProvider:    provider.String(),
		}); err != nil {
			return err
		}
		k.metrics.ChallengesResolved.WithLabelValues("upheld").Inc()
		if err := k.commitState(ctx, &state, params); err != nil {
			return err
		}

		if err := k.escrow.Refund(ctx, types.ChallengeEscrowID(challenge.ID), sdk.MustAccAddressFromBech32(challenge.Challenger), challenge.Stake); err != nil {
			return err
		}
		return k.reversePayment(ctx, &job, provider)
	})
}

// ExpireChallenge closes a challenge left unresolved past its deadline. It
// is treated as rejected and the provider keeps the stake. Anyone may call
// it.
func (k Keeper) ExpireChallenge(ctx context.Context, caller sdk.AccAddress, challengeID uint64) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnExpireChallenge)
		if err != nil {
			return err
		}
		challenge, job, err := k.loadPendingChallenge(ctx, challengeID)
		if err != nil {
			return err
		}
		if ctx.BlockTime().Before(challenge.Deadline) {
			return errorsmod.Wrapf(types.ErrChallengeNotExpired, "challenge %d", challengeID)
		}
		if err := k.rejectChallenge(ctx, &challenge, job, caller.String(), true); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}

func (k Keeper) loadPendingChallenge(ctx context.Context, challengeID uint64) (types.Challenge, types.Job, error) {
	challenge, err := k.GetChallenge(ctx, challengeID)
	if err != nil {
		return types.Challenge{}, types.Job{}, err
	}
	if challenge.Status != types.ChallengeStatusPending {
		return types.Challenge{}, types.Job{}, errorsmod.Wrapf(types.ErrChallengeResolved, "challenge %d is %s", challengeID, challenge.Status)
	}
	job, err := k.GetJob(ctx, challenge.JobID)
	if err != nil {
		return types.Challenge{}, types.Job{}, err
	}
	return challenge, job, nil
}

// rejectChallenge fails a challenge, forfeits the stake to the provider and
// puts the job back in the settlement queue.
func (k Keeper) rejectChallenge(ctx context.Context, challenge *types.Challenge, job types.Job, actor string, expired bool) error {
	challenge.Status = types.ChallengeStatusFailed
	challenge.ResolvedAt = sdk.UnwrapSDKContext(ctx).BlockTime()
	challenge.Resolver = actor
	challenge.Expired = expired
	if err := k.setChallenge(ctx, *challenge); err != nil {
		return err
	}
	k.enqueueSettlement(ctx, job)

	action, outcome := types.EventTypeChallengeResolved, "rejected"
	if expired {
		action, outcome = types.EventTypeChallengeExpired, "expired"
	}
	if err := k.audit(ctx, action, actor, job.ID, map[string]string{
		types.AttributeKeyChallengeID: strconv.FormatUint(challenge.ID, 10),
		types.AttributeKeyUpheld:      "false",
		types.AttributeKeyProvider:    job.Provider,
	}); err != nil {
		return err
	}
	k.metrics.ChallengesResolved.WithLabelValues(outcome).Inc()

	return k.escrow.Release(ctx, types.ChallengeEscrowID(challenge.ID), job.ProviderAddress(), challenge.Stake)
}
