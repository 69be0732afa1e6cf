package keeper

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// RegisterInvariants registers all market module invariants
func RegisterInvariants(ir sdk.InvariantRegistry, k Keeper) {
	ir.RegisterRoute(types.ModuleName, "escrow-conservation",
		EscrowConservationInvariant(k))
	ir.RegisterRoute(types.ModuleName, "completion-verified",
		CompletionVerifiedInvariant(k))
	ir.RegisterRoute(types.ModuleName, "challenge-exclusivity",
		ChallengeExclusivityInvariant(k))
	ir.RegisterRoute(types.ModuleName, "assigned-provider",
		AssignedProviderInvariant(k))
}

// AllInvariants runs all invariants of the market module
func AllInvariants(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		res, stop := EscrowConservationInvariant(k)(ctx)
		if stop {
			return res, stop
		}
		res, stop = CompletionVerifiedInvariant(k)(ctx)
		if stop {
			return res, stop
		}
		res, stop = ChallengeExclusivityInvariant(k)(ctx)
		if stop {
			return res, stop
		}
		return AssignedProviderInvariant(k)(ctx)
	}
}

// expectedHeld is what a job escrow must custody in each status: the full
// payment until the job is delivered, nothing afterwards.
func expectedHeld(job types.Job) math.Int {
	switch job.Status {
	case types.JobStatusPosted, types.JobStatusClaimed:
		return job.Payment
	default:
		return math.ZeroInt()
	}
}

// EscrowConservationInvariant checks that every job escrow holds exactly
// what its status implies and that nothing was paid out beyond what came in.
func EscrowConservationInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var (
			broken bool
			msg    string
		)
		err := k.IterateJobs(ctx, func(job types.Job) (bool, error) {
			account, found := k.escrow.Account(ctx, types.JobEscrowID(job.ID))
			if !found {
				broken = true
				msg += fmt.Sprintf("job %d has no escrow account\n", job.ID)
				return false, nil
			}
			if !account.Reserved.Equal(job.Payment) {
				broken = true
				msg += fmt.Sprintf("job %d reserved %s, payment %s\n", job.ID, account.Reserved, job.Payment)
			}
			if held, want := account.Held(), expectedHeld(job); !held.Equal(want) {
				broken = true
				msg += fmt.Sprintf("job %d (%s) holds %s, expected %s\n", job.ID, job.Status, held, want)
			}
			in := account.Reserved.Add(account.Reclaimed)
			if out := account.Released.Add(account.Refunded); out.GT(in) {
				broken = true
				msg += fmt.Sprintf("job %d paid out %s from %s\n", job.ID, out, in)
			}
			return false, nil
		})
		if err != nil {
			broken = true
			msg += fmt.Sprintf("error iterating jobs: %v\n", err)
		}
		return sdk.FormatInvariant(types.ModuleName, "escrow-conservation", msg), broken
	}
}

// CompletionVerifiedInvariant checks that every completed job carries a
// verified proof.
func CompletionVerifiedInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var (
			broken bool
			msg    string
		)
		err := k.IterateJobs(ctx, func(job types.Job) (bool, error) {
			if job.Status != types.JobStatusCompleted {
				return false, nil
			}
			proof, found, err := k.getProof(ctx, job.ID)
			if err != nil {
				return false, err
			}
			if !found || proof.Status != types.ProofStatusVerified {
				broken = true
				msg += fmt.Sprintf("job %d completed without a verified proof\n", job.ID)
			}
			return false, nil
		})
		if err != nil {
			broken = true
			msg += fmt.Sprintf("error iterating jobs: %v\n", err)
		}
		return sdk.FormatInvariant(types.ModuleName, "completion-verified", msg), broken
	}
}

// ChallengeExclusivityInvariant checks that no job has more than one pending
// challenge and that the pending index agrees with the records.
func ChallengeExclusivityInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var (
			broken bool
			msg    string
		)
		pending := make(map[uint64]uint64)
		err := k.IterateChallenges(ctx, func(challenge types.Challenge) (bool, error) {
			if challenge.Status != types.ChallengeStatusPending {
				return false, nil
			}
			if other, ok := pending[challenge.JobID]; ok {
				broken = true
				msg += fmt.Sprintf("job %d has pending challenges %d and %d\n", challenge.JobID, other, challenge.ID)
			}
			pending[challenge.JobID] = challenge.ID
			if indexed, ok := k.pendingChallenge(ctx, challenge.JobID); !ok || indexed != challenge.ID {
				broken = true
				msg += fmt.Sprintf("pending challenge %d not indexed for job %d\n", challenge.ID, challenge.JobID)
			}
			return false, nil
		})
		if err != nil {
			broken = true
			msg += fmt.Sprintf("error iterating challenges: %v\n", err)
		}
		return sdk.FormatInvariant(types.ModuleName, "challenge-exclusivity", msg), broken
	}
}

// AssignedProviderInvariant checks that a provider is assigned exactly when
// the status carries one and that Failed never rests in the store.
func AssignedProviderInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var (
			broken bool
			msg    string
		)
		err := k.IterateJobs(ctx, func(job types.Job) (bool, error) {
			if job.Status == types.JobStatusFailed {
				broken = true
				msg += fmt.Sprintf("job %d stored as failed\n", job.ID)
			}
			if err := job.Validate(); err != nil {
				broken = true
				msg += fmt.Sprintf("job %d: %v\n", job.ID, err)
			}
			return false, nil
		})
		if err != nil {
			broken = true
			msg += fmt.Sprintf("error iterating jobs: %v\n", err)
		}
		return sdk.FormatInvariant(types.ModuleName, "assigned-provider", msg), broken
	}
}
