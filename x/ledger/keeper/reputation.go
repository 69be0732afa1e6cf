package keeper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

var _ markettypes.ReputationKeeper = Keeper{}

// GetReputation returns the stored record, or a neutral one for an unknown provider.
func (k Keeper) GetReputation(ctx context.Context, provider sdk.AccAddress) types.Reputation {
	var r types.Reputation
	found, err := k.get(ctx, prefixed(ReputationKeyPrefix, provider), &r)
	if err != nil || !found || r.Score.IsNil() {
		return types.NewReputation(provider.String(), sdk.UnwrapSDKContext(ctx).BlockTime())
	}
	return r
}

// SetReputation stores a reputation record.
func (k Keeper) SetReputation(ctx context.Context, r types.Reputation) error {
	addr, err := sdk.AccAddressFromBech32(r.Provider)
	if err != nil {
		return errorsmod.Wrap(types.ErrInvalidProvider, err.Error())
	}
	return k.set(ctx, prefixed(ReputationKeyPrefix, addr), r)
}

// DecayedScore implements markettypes.ReputationKeeper.
func (k Keeper) DecayedScore(ctx context.Context, provider sdk.AccAddress) math.LegacyDec {
	return k.GetReputation(ctx, provider).Decayed(sdk.UnwrapSDKContext(ctx).BlockTime())
}

// RecordOutcome implements markettypes.ReputationKeeper.
func (k Keeper) RecordOutcome(ctx context.Context, provider sdk.AccAddress, jobID uint64, success bool) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	r := k.GetReputation(ctx, provider)
	before := r.Decayed(now)
	r.ApplyOutcome(success, now)
	if err := k.SetReputation(ctx, r); err != nil {
		return err
	}
	k.Logger(ctx).Debug("reputation updated",
		"provider", provider.String(),
		"job_id", jobID,
		"success", success,
		"before", before.String(),
		"after", r.Score.String(),
	)
	return nil
}

// Rate implements markettypes.ReputationKeeper. Each job can be rated once.
func (k Keeper) Rate(ctx context.Context, buyer, provider sdk.AccAddress, jobID uint64, stars uint32, feedback string) error {
	if stars < types.MinStars || stars > types.MaxStars {
		return errorsmod.Wrapf(types.ErrInvalidRating, "stars must be %d-%d, got %d", types.MinStars, types.MaxStars, stars)
	}
	feedback = strings.TrimSpace(feedback)
	if len(feedback) > types.MaxFeedbackLength {
		return errorsmod.Wrapf(types.ErrInvalidRating, "feedback exceeds %d characters", types.MaxFeedbackLength)
	}
	key := ratingKey(jobID)
	if k.getStore(ctx).Has(key) {
		return errorsmod.Wrapf(types.ErrAlreadyRated, "job %d", jobID)
	}

	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	rating := types.Rating{
		JobID:    jobID,
		Buyer:    buyer.String(),
		Provider: provider.String(),
		Stars:    stars,
		Feedback: feedback,
		Time:     now,
	}
	if err := k.set(ctx, key, rating); err != nil {
		return err
	}

	r := k.GetReputation(ctx, provider)
	r.ApplyRating(stars, now)
	return k.SetReputation(ctx, r)
}

// GetRating returns the rating left for a job.
func (k Keeper) GetRating(ctx context.Context, jobID uint64) (types.Rating, bool) {
	var rating types.Rating
	found, err := k.get(ctx, ratingKey(jobID), &rating)
	return rating, err == nil && found
}

// IterateReputations walks every stored reputation record.
func (k Keeper) IterateReputations(ctx context.Context, cb func(r types.Reputation) bool) {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), ReputationKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var r types.Reputation
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		if cb(r) {
			break
		}
	}
}

func ratingKey(jobID uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte{}, RatingKeyPrefix...), jobID)
}
