package keeper

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/market/types"
)

func (k Keeper) isAuthority(addr sdk.AccAddress) bool {
	return addr.String() == k.authority
}

func (k Keeper) requireAuthority(addr sdk.AccAddress) error {
	if !k.isAuthority(addr) {
		return errorsmod.Wrapf(types.ErrUnauthorized, "expected %s, got %s", k.authority, addr)
	}
	return nil
}

// hasRole reports whether addr holds role. The authority holds every role.
func (k Keeper) hasRole(ctx context.Context, role types.Role, addr sdk.AccAddress) bool {
	if k.isAuthority(addr) {
		return true
	}
	return k.getStore(ctx).Has(GetRoleKey(role, addr))
}

// HasRole reports whether addr holds role.
func (k Keeper) HasRole(ctx context.Context, role types.Role, addr sdk.AccAddress) bool {
	return k.hasRole(ctx, role, addr)
}

// GrantRole gives addr a role. Only the authority may grant.
func (k Keeper) GrantRole(ctx context.Context, authority sdk.AccAddress, role types.Role, addr sdk.AccAddress) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if err := k.requireAuthority(authority); err != nil {
			return err
		}
		if _, err := types.ParseRole(string(role)); err != nil {
			return err
		}
		k.getStore(ctx).Set(GetRoleKey(role, addr), []byte{})
		return k.audit(ctx, types.EventTypeRoleGranted, authority.String(), 0, map[string]string{
			types.AttributeKeyRole:    string(role),
			types.AttributeKeyAddress: addr.String(),
		})
	})
}

// RevokeRole removes a role from addr.
func (k Keeper) RevokeRole(ctx context.Context, authority sdk.AccAddress, role types.Role, addr sdk.AccAddress) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if err := k.requireAuthority(authority); err != nil {
			return err
		}
		if _, err := types.ParseRole(string(role)); err != nil {
			return err
		}
		k.getStore(ctx).Delete(GetRoleKey(role, addr))
		return k.audit(ctx, types.EventTypeRoleRevoked, authority.String(), 0, map[string]string{
			types.AttributeKeyRole:    string(role),
			types.AttributeKeyAddress: addr.String(),
		})
	})
}

// Roles lists every role grant.
func (k Keeper) Roles(ctx context.Context) []types.RoleGrant {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), RoleKeyPrefix)
	defer iter.Close()

	var grants []types.RoleGrant
	for ; iter.Valid(); iter.Next() {
		key := iter.Key()[len(RoleKeyPrefix):]
		n := int(key[0])
		grants = append(grants, types.RoleGrant{
			Role:    types.Role(key[1 : 1+n]),
			Address: sdk.AccAddress(key[1+n:]).String(),
		})
	}
	return grants
}

// SetCircuitLevel forces the breaker to a level. Escalation still moves one
// level at a time; leaving Paused requires the unpause cooldown.
func (k Keeper) SetCircuitLevel(ctx context.Context, guardian sdk.AccAddress, level types.CircuitLevel, reason string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if !k.hasRole(ctx, types.RoleGuardian, guardian) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a guardian", guardian)
		}
		params, err := k.GetParams(ctx)
		if err != nil {
			return err
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		if level < state.Level {
			if err := state.CanUnpause(params, ctx.BlockTime()); err != nil {
				return err
			}
		}
		if err := k.changeLevel(ctx, &state, level, guardian.String(), reason); err != nil {
			return err
		}
		return k.SetAbuseState(ctx, state)
	})
}

// EmergencyPause walks the breaker up to Paused one level at a time.
func (k Keeper) EmergencyPause(ctx context.Context, guardian sdk.AccAddress, reason string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if !k.hasRole(ctx, types.RoleGuardian, guardian) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a guardian", guardian)
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		for state.Level < types.LevelPaused {
			if err := k.changeLevel(ctx, &state, state.Level+1, guardian.String(), reason); err != nil {
				return err
			}
		}
		return k.SetAbuseState(ctx, state)
	})
}

// Unpause returns a paused breaker to Monitoring once the unpause cooldown
// has elapsed.
func (k Keeper) Unpause(ctx context.Context, guardian sdk.AccAddress, reason string) error {
	return k.SetCircuitLevel(ctx, guardian, types.LevelMonitoring, reason)
}

// PauseFunction disables one operation independently of the breaker level.
func (k Keeper) PauseFunction(ctx context.Context, guardian sdk.AccAddress, fn, reason string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if !k.hasRole(ctx, types.RoleGuardian, guardian) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a guardian", guardian)
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		if err := state.PauseFunction(fn, guardian.String(), reason, ctx.BlockTime()); err != nil {
			return err
		}
		if err := k.SetAbuseState(ctx, state); err != nil {
			return err
		}
		return k.audit(ctx, types.EventTypeFunctionPaused, guardian.String(), 0, map[string]string{
			types.AttributeKeyFunction: fn,
			types.AttributeKeyReason:   reason,
		})
	})
}

// ResumeFunction re-enables an operation paused with PauseFunction.
func (k Keeper) ResumeFunction(ctx context.Context, guardian sdk.AccAddress, fn string) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if !k.hasRole(ctx, types.RoleGuardian, guardian) {
			return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not a guardian", guardian)
		}
		state, err := k.GetAbuseState(ctx)
		if err != nil {
			return err
		}
		if err := state.ResumeFunction(fn); err != nil {
			return err
		}
		if err := k.SetAbuseState(ctx, state); err != nil {
			return err
		}
		return k.audit(ctx, types.EventTypeFunctionResumed, guardian.String(), 0, map[string]string{
			types.AttributeKeyFunction: fn,
		})
	})
}

// SlashProvider burns part of a provider's stake. Authority only.
func (k Keeper) SlashProvider(ctx context.Context, authority, provider sdk.AccAddress, amount math.Int, reason string) (math.Int, error) {
	var slashed math.Int
	err := k.atomic(ctx, func(ctx sdk.Context) error {
		if err := k.requireAuthority(authority); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInvalidAmount, "slash amount must be positive")
		}
		var err error
		slashed, err = k.stake.Slash(ctx, provider, amount, reason)
		if err != nil {
			return err
		}
		return k.audit(ctx, types.EventTypeProviderSlashed, authority.String(), 0, map[string]string{
			types.AttributeKeyProvider: provider.String(),
			types.AttributeKeyAmount:   slashed.String(),
			types.AttributeKeyReason:   reason,
		})
	})
	return slashed, err
}

// UpdateParams replaces the module parameters. Authority only.
func (k Keeper) UpdateParams(ctx context.Context, authority sdk.AccAddress, params types.Params) error {
	return k.atomic(ctx, func(ctx sdk.Context) error {
		if err := k.requireAuthority(authority); err != nil {
			return err
		}
		if err := k.SetParams(ctx, params); err != nil {
			return err
		}
		return k.audit(ctx, types.EventTypeParamsUpdated, authority.String(), 0, nil)
	})
}
