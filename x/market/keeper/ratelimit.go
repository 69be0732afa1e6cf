package keeper

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// postingHistory is the list of a buyer's posting times within the last hour,
// oldest first, as unix seconds.
type postingHistory struct {
	Times []int64 `json:"times"`
}

// checkPostingRate enforces the per-minute and per-hour posting limits and
// records the new posting when it is allowed.
func (k Keeper) checkPostingRate(ctx context.Context, buyer sdk.AccAddress, params types.Params) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	key := GetPostingHistoryKey(buyer)

	var history postingHistory
	if _, err := k.getJSON(ctx, key, &history); err != nil {
		return err
	}

	hourAgo := now.Add(-time.Hour).Unix()
	minuteAgo := now.Add(-time.Minute).Unix()
	kept := history.Times[:0]
	var lastMinute uint32
	for _, t := range history.Times {
		if t <= hourAgo {
			continue
		}
		kept = append(kept, t)
		if t > minuteAgo {
			lastMinute++
		}
	}
	history.Times = kept

	if lastMinute >= params.PostsPerMinute {
		return errorsmod.Wrapf(types.ErrRateLimitExceeded, "%d postings in the last minute", lastMinute)
	}
	if uint32(len(history.Times)) >= params.PostsPerHour {
		return errorsmod.Wrapf(types.ErrRateLimitExceeded, "%d postings in the last hour", len(history.Times))
	}

	history.Times = append(history.Times, now.Unix())
	return k.setJSON(ctx, key, history)
}
