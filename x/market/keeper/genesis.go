package keeper

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// InitGenesis initializes the market module's state from a genesis state
func (k Keeper) InitGenesis(ctx context.Context, data types.GenesisState) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}

	// Set params
	if err := k.SetParams(ctx, data.Params); err != nil {
		return fmt.Errorf("failed to set params: %w", err)
	}

	for _, job := range data.Jobs {
		normalizeJob(&job)
		if err := k.setJob(ctx, job); err != nil {
			return fmt.Errorf("failed to initialize job %d: %w", job.ID, err)
		}
		if job.Status == types.JobStatusCompleted {
			k.enqueueSettlement(ctx, job)
		}
	}
	for _, proof := range data.Proofs {
		if err := k.setProof(ctx, proof); err != nil {
			return fmt.Errorf("failed to initialize proof for job %d: %w", proof.JobID, err)
		}
	}
	for _, challenge := range data.Challenges {
		if err := k.setChallenge(ctx, challenge); err != nil {
			return fmt.Errorf("failed to initialize challenge %d: %w", challenge.ID, err)
		}
		if challenge.Status == types.ChallengeStatusPending {
			job, err := k.GetJob(ctx, challenge.JobID)
			if err != nil {
				return err
			}
			k.dequeueSettlement(ctx, job)
		}
	}
	for _, dispute := range data.Disputes {
		if err := k.setJSON(ctx, GetDisputeKey(dispute.JobID), dispute); err != nil {
			return fmt.Errorf("failed to initialize dispute for job %d: %w", dispute.JobID, err)
		}
	}
	for _, grant := range data.Roles {
		addr, err := sdk.AccAddressFromBech32(grant.Address)
		if err != nil {
			return fmt.Errorf("invalid role holder %s: %w", grant.Address, err)
		}
		k.getStore(ctx).Set(GetRoleKey(grant.Role, addr), []byte{})
	}

	state := data.AbuseState
	if state.PausedFunctions == nil {
		state.PausedFunctions = map[string]types.PauseInfo{}
	}
	if err := k.SetAbuseState(ctx, state); err != nil {
		return fmt.Errorf("failed to set abuse state: %w", err)
	}

	store := k.getStore(ctx)
	store.Set(NextJobIDKey, sdk.Uint64ToBigEndian(data.NextJobID))
	store.Set(NextChallengeIDKey, sdk.Uint64ToBigEndian(data.NextChallengeID))
	return nil
}

// ExportGenesis exports the market module's state to a genesis state
func (k Keeper) ExportGenesis(ctx context.Context) (*types.GenesisState, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return nil, err
	}
	state, err := k.GetAbuseState(ctx)
	if err != nil {
		return nil, err
	}

	gs := types.DefaultGenesis()
	gs.Params = params
	gs.AbuseState = state
	gs.Roles = k.Roles(ctx)
	gs.NextJobID = k.peekSequence(ctx, NextJobIDKey)
	gs.NextChallengeID = k.peekSequence(ctx, NextChallengeIDKey)

	if err := k.IterateJobs(ctx, func(job types.Job) (bool, error) {
		gs.Jobs = append(gs.Jobs, job)
		return false, nil
	}); err != nil {
		return nil, err
	}
	if err := k.IterateProofs(ctx, func(proof types.ProofRecord) (bool, error) {
		gs.Proofs = append(gs.Proofs, proof)
		return false, nil
	}); err != nil {
		return nil, err
	}
	if err := k.IterateChallenges(ctx, func(challenge types.Challenge) (bool, error) {
		gs.Challenges = append(gs.Challenges, challenge)
		return false, nil
	}); err != nil {
		return nil, err
	}
	if err := k.IterateDisputes(ctx, func(dispute types.Dispute) (bool, error) {
		gs.Disputes = append(gs.Disputes, dispute)
		return false, nil
	}); err != nil {
		return nil, err
	}
	if gs.Roles == nil {
		gs.Roles = []types.RoleGrant{}
	}
	return gs, nil
}
