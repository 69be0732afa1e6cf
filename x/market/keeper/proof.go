package keeper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// SubmitProof stores the assigned provider's proof for a claimed job.
func (k Keeper) SubmitProof(ctx context.Context, provider sdk.AccAddress, jobID uint64, sub types.ProofSubmission) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnSubmitProof)
		if err != nil {
			return err
		}
		if err := sub.ValidateBasic(); err != nil {
			return err
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status != types.JobStatusClaimed {
			return errorsmod.Wrapf(types.ErrInvalidTransition, "job %d is %s", jobID, job.Status)
		}
		if job.Provider != provider.String() {
			return errorsmod.Wrapf(types.ErrNotAssigned, "job %d", jobID)
		}
		now := ctx.BlockTime()
		if !now.Before(job.Deadline) {
			return errorsmod.Wrapf(types.ErrDeadlinePassed, "job %d", jobID)
		}
		if _, found, err := k.getProof(ctx, jobID); err != nil {
			return err
		} else if found {
			return errorsmod.Wrapf(types.ErrProofExists, "job %d", jobID)
		}

		hash := sha256.Sum256(sub.Payload)
		proof := types.ProofRecord{
			JobID:       jobID,
			Attempt:     job.Attempts,
			Provider:    job.Provider,
			SubmittedAt: now,
			Status:      types.ProofStatusSubmitted,
			Payload:     sub.Payload,
			ContentHash: hash[:],
			Commitments: sub.Commitments,
			ResultRef:   sub.ResultRef,
		}
		if err := k.setProof(ctx, proof); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeProofSubmitted, job.Provider, jobID, map[string]string{
			types.AttributeKeyContentHash: hex.EncodeToString(proof.ContentHash),
			types.AttributeKeyAttempt:     formatUint(uint64(proof.Attempt)),
			types.AttributeKeyResultRef:   proof.ResultRef,
		}); err != nil {
			return err
		}
		return k.commitState(ctx, &state, params)
	})
}

// VerifyProof runs the configured verifier over a submitted proof. A proof
// that fails verification is an outcome, not an error: the job goes through
// the failure path and false is returned.
func (k Keeper) VerifyProof(ctx context.Context, verifier sdk.AccAddress, jobID uint64) (bool, error) {
	var valid bool
	err := k.atomic(ctx, func(ctx sdk.Context) error {
		state, params, err := k.gate(ctx, types.FnVerifyProof)
		if err != nil {
			return err
		}
		if !k.hasRole(ctx, types.RoleVerifier, verifier) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a verifier", verifier)
		}
		job, err := k.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		proof, found, err := k.getProof(ctx, jobID)
		if err != nil {
			return err
		}
		if !found {
			return errorsmod.Wrapf(types.ErrProofNotFound, "job %d", jobID)
		}
		if proof.Status != types.ProofStatusSubmitted || job.Status != types.JobStatusClaimed {
			return errorsmod.Wrapf(types.ErrProofNotSubmitted, "job %d proof is %s", jobID, proof.Status)
		}

		proof.VerifiedAt = ctx.BlockTime()
		if verr := k.verifier.Verify(ctx, job, proof); verr != nil {
			proof.Status = types.ProofStatusInvalid
			proof.FailureReason = verr.Error()
			if err := k.setProof(ctx, proof); err != nil {
				return err
			}
			if err := k.audit(ctx, types.EventTypeProofRejected, verifier.String(), jobID, map[string]string{
				types.AttributeKeyProvider: proof.Provider,
				types.AttributeKeyReason:   proof.FailureReason,
			}); err != nil {
				return err
			}
			k.metrics.ProofsVerified.WithLabelValues("invalid").Inc()
			k.Logger(ctx).Info("proof rejected", "job_id", jobID, "provider", proof.Provider, "reason", proof.FailureReason)

			if err := k.markJobFailed(ctx, &state, params, &job, verifier.String(), proof.FailureReason, false); err != nil {
				return err
			}
			return k.commitState(ctx, &state, params)
		}

		proof.Status = types.ProofStatusVerified
		if err := k.setProof(ctx, proof); err != nil {
			return err
		}
		if err := k.audit(ctx, types.EventTypeProofVerified, verifier.String(), jobID, map[string]string{
			types.AttributeKeyProvider:    proof.Provider,
			types.AttributeKeyContentHash: hex.EncodeToString(proof.ContentHash),
		}); err != nil {
			return err
		}
		k.metrics.ProofsVerified.WithLabelValues("valid").Inc()

		if err := k.completeJob(ctx, &state, params, &job, proof, verifier.String()); err != nil {
			return err
		}
		valid = true
		return k.commitState(ctx, &state, params)
	})
	return valid, err
}

// BatchVerifyProofs verifies several jobs in one call. Results follow the
// input order. The batch as a whole is refused when verification is paused or
// the caller is not a verifier; after that an item that errors carries its
// error in the result and does not affect the others.
func (k Keeper) BatchVerifyProofs(ctx context.Context, verifier sdk.AccAddress, jobIDs []uint64) ([]types.VerifyResult, error) {
	_, params, err := k.gate(ctx, types.FnVerifyProof)
	if err != nil {
		return nil, err
	}
	if uint64(len(jobIDs)) > uint64(params.MaxBatchVerify) {
		return nil, errorsmod.Wrapf(types.ErrBatchTooLarge, "%d > %d", len(jobIDs), params.MaxBatchVerify)
	}
	if !k.hasRole(ctx, types.RoleVerifier, verifier) {
		return nil, errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a verifier", verifier)
	}

	results := make([]types.VerifyResult, len(jobIDs))
	for i, id := range jobIDs {
		results[i].JobID = id
		valid, err := k.VerifyProof(ctx, verifier, id)
		if err != nil {
			k.Logger(ctx).Debug("batch item rejected", "job_id", id, "error", err)
			results[i].Err = err
			continue
		}
		results[i].Valid = valid
	}
	return results, nil
}

// GetProof returns the current proof of a job.
func (k Keeper) GetProof(ctx context.Context, jobID uint64) (types.ProofRecord, error) {
	proof, found, err := k.getProof(ctx, jobID)
	if err != nil {
		return types.ProofRecord{}, err
	}
	if !found {
		return types.ProofRecord{}, errorsmod.Wrapf(types.ErrProofNotFound, "job %d", jobID)
	}
	return proof, nil
}
