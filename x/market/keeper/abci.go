package keeper

import (
	"context"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// EndBlocker is called at the end of every block
// It handles breaker auto-recovery and settles jobs whose challenge window closed
func (k Keeper) EndBlocker(ctx context.Context) error {
	sdkCtx := sdk.UnwrapSDKContext(ctx)

	if err := k.ProcessAutoRecovery(ctx); err != nil {
		sdkCtx.Logger().Error("failed to process breaker auto-recovery", "error", err)
		// Don't return error - log and continue
	}

	settled, err := k.ProcessSettlementQueue(ctx)
	if err != nil {
		sdkCtx.Logger().Error("failed to process settlement queue", "error", err)
		// Don't return error - log and continue to prevent block production halt
	}

	// Emit end block event for monitoring
	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			"market_end_block",
			sdk.NewAttribute("height", fmt.Sprintf("%d", sdkCtx.BlockHeight())),
			sdk.NewAttribute("settled", fmt.Sprintf("%d", settled)),
		),
	)

	return nil
}

// ProcessAutoRecovery drops the breaker back to Monitoring once the quiet
// period has passed.
func (k Keeper) ProcessAutoRecovery(ctx context.Context) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		params, err := k.GetParams(ctx)
		if err != nil {
			return err
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		if !state.ShouldAutoRecover(params, ctx.BlockTime()) {
			return nil
		}
		if err := k.maybeAutoRecover(ctx, &state, params); err != nil {
			return err
		}
		return k.SetAbuseState(ctx, state)
	})
}

// ProcessSettlementQueue settles completed jobs whose challenge window has
// closed, oldest first and bounded per run. Nothing settles while the
// breaker or settlement is paused.
func (k Keeper) ProcessSettlementQueue(ctx context.Context) (int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params, err := k.GetParams(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get params: %w", err)
	}
	state, err := k.GetAbuseState(ctx)
	if err != nil {
		return 0, err
	}
	if state.CheckOperation(types.FnSettleJob) != nil {
		return 0, nil
	}

	now := sdkCtx.BlockTime()
	end := concat(SettlementQueuePrefix, sdk.Uint64ToBigEndian(uint64(now.Unix())+1))
	iter := k.getStore(ctx).Iterator(SettlementQueuePrefix, end)

	// collect first, settling mutates the queue
	var due []uint64
	for ; iter.Valid() && uint32(len(due)) < params.MaxSettlementsPerRun; iter.Next() {
		key := iter.Key()
		due = append(due, sdk.BigEndianToUint64(key[len(key)-8:]))
	}
	iter.Close()

	settled := 0
	for _, jobID := range due {
		stale := false
		err := k.atomic(ctx, func(ctx sdk.Context) error {
			job, err := k.GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			if job.Status != types.JobStatusCompleted {
				k.dequeueSettlement(ctx, job)
				stale = true
				return nil
			}
			return k.settleIfDue(ctx, &job, "")
		})
		if err != nil {
			sdkCtx.Logger().Error("failed to settle job", "job_id", jobID, "error", err)
			continue
		}
		if stale {
			continue
		}
		settled++
		k.metrics.Settlements.Inc()
	}
	return settled, nil
}
