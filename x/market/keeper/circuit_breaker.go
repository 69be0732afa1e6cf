package keeper

import (
	"context"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// GetAbuseState returns the circuit breaker state.
func (k Keeper) GetAbuseState(ctx context.Context) (types.AbuseState, error) {
	state := types.NewAbuseState()
	if _, err := k.getJSON(ctx, AbuseStateKey, &state); err != nil {
		return types.AbuseState{}, err
	}
	if state.PausedFunctions == nil {
		state.PausedFunctions = map[string]types.PauseInfo{}
	}
	return state, nil
}

// SetAbuseState stores the circuit breaker state.
func (k Keeper) SetAbuseState(ctx context.Context, state types.AbuseState) error {
	k.metrics.CircuitLevel.Set(float64(state.Level))
	return k.setJSON(ctx, AbuseStateKey, state)
}

// CircuitBreakerStatus returns the level, counters and paused operations.
func (k Keeper) CircuitBreakerStatus(ctx context.Context) (types.CircuitStatus, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return types.CircuitStatus{}, err
	}
	state, err := k.GetAbuseState(ctx)
	if err != nil {
		return types.CircuitStatus{}, err
	}
	return state.Status(params), nil
}

// gate loads the per-call state, applies lazy auto-recovery and rejects the
// call when the breaker or the operation is paused.
func (k Keeper) gate(ctx context.Context, fn string) (types.AbuseState, types.Params, error) {
	params, err := k.GetParams(ctx)
	if err != nil {
		return types.AbuseState{}, types.Params{}, err
	}
	state, err := k.GetAbuseState(ctx)
	if err != nil {
		return types.AbuseState{}, types.Params{}, err
	}
	if err := k.maybeAutoRecover(ctx, &state, params); err != nil {
		return types.AbuseState{}, types.Params{}, err
	}
	if err := state.CheckOperation(fn); err != nil {
		return state, params, err
	}
	return state, params, nil
}

// commitState evaluates escalation and persists the state at the end of a call.
func (k Keeper) commitState(ctx context.Context, state *types.AbuseState, params types.Params) error {
	if reason, ok := state.ShouldEscalate(params); ok {
		if err := k.changeLevel(ctx, state, state.Level+1, "", reason); err != nil {
			return err
		}
	}
	return k.SetAbuseState(ctx, *state)
}

// changeLevel is the single path through which the breaker level moves.
func (k Keeper) changeLevel(ctx context.Context, state *types.AbuseState, to types.CircuitLevel, actor, reason string) error {
	from := state.Level
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	if err := state.SetLevel(to, actor, reason, now); err != nil {
		return err
	}
	if from == to {
		return nil
	}

	k.metrics.LevelChanges.WithLabelValues(to.String()).Inc()
	k.metrics.CircuitLevel.Set(float64(to))
	if to > from {
		k.Logger(ctx).Warn("circuit breaker escalated", "from", from.String(), "to", to.String(), "reason", reason, "actor", actor)
	} else {
		k.Logger(ctx).Info("circuit breaker lowered", "from", from.String(), "to", to.String(), "reason", reason, "actor", actor)
	}
	return k.audit(ctx, types.EventTypeCircuitLevelChanged, actor, 0, map[string]string{
		types.AttributeKeyFromLevel: from.String(),
		types.AttributeKeyLevel:     to.String(),
		types.AttributeKeyReason:    reason,
	})
}

func (k Keeper) maybeAutoRecover(ctx context.Context, state *types.AbuseState, params types.Params) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	if !state.ShouldAutoRecover(params, now) {
		return nil
	}
	from := state.Level
	if err := k.changeLevel(ctx, state, types.LevelMonitoring, "", "quiet period elapsed"); err != nil {
		return err
	}
	sdk.UnwrapSDKContext(ctx).EventManager().EmitEvent(sdk.NewEvent(
		types.EventTypeCircuitRecovered,
		sdk.NewAttribute(types.AttributeKeyFromLevel, from.String()),
	))
	return nil
}

// flagSuspicious counts a suspicious signal against the breaker.
func (k Keeper) flagSuspicious(ctx context.Context, state *types.AbuseState, signal, actor string, jobID uint64) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	state.RecordSuspicious(sdkCtx.BlockTime())
	k.metrics.SuspiciousSignals.WithLabelValues(signal).Inc()

	sdkCtx.EventManager().EmitEvent(sdk.NewEvent(
		types.EventTypeAbuseSignal,
		sdk.NewAttribute(types.AttributeKeySignal, signal),
		sdk.NewAttribute(types.AttributeKeyActor, actor),
		sdk.NewAttribute(types.AttributeKeyJobID, formatUint(jobID)),
	))
	k.Logger(ctx).Warn("suspicious activity", "signal", signal, "actor", actor, "job_id", jobID, "count", state.Suspicious)
}

// RecordRejection counts a rejection of a call that has already been
// reverted. It must run in its own committed context. Abuse rejections are
// suspicious signals; calls refused by a pause are only counted.
func (k Keeper) RecordRejection(ctx context.Context, caller sdk.AccAddress, fn string, rejection error) error {
	abuse := types.IsAbuseRejection(rejection)
	if !abuse && !types.IsBreakerRejection(rejection) {
		return nil
	}
	return k.atomic(ctx, func(ctx sdk.Context) error {
		params, err := k.GetParams(ctx)
		if err != nil {
			return err
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		k.metrics.Rejections.WithLabelValues(fn).Inc()
		if !abuse {
			state.RecordBreakerRejection()
			return k.SetAbuseState(ctx, state)
		}
		k.flagSuspicious(ctx, &state, fn+"_rejected", caller.String(), 0)
		return k.commitState(ctx, &state, params)
	})
}

// checkCooldown applies the per-caller throttle to sensitive operations.
func (k Keeper) checkCooldown(ctx context.Context, state types.AbuseState, params types.Params, caller sdk.AccAddress, fn string) error {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	return state.CheckCooldown(fn, k.lastSensitiveCall(ctx, caller), now, params)
}

func (k Keeper) lastSensitiveCall(ctx context.Context, caller sdk.AccAddress) time.Time {
	bz := k.getStore(ctx).Get(GetCooldownKey(caller))
	if bz == nil {
		return time.Time{}
	}
	return time.Unix(0, int64(sdk.BigEndianToUint64(bz))).UTC()
}

func (k Keeper) touchCooldown(ctx context.Context, caller sdk.AccAddress) {
	now := sdk.UnwrapSDKContext(ctx).BlockTime()
	k.getStore(ctx).Set(GetCooldownKey(caller), sdk.Uint64ToBigEndian(uint64(now.UnixNano())))
}
