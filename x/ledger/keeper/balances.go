package keeper

import (
	"context"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
)

// BalanceOf returns the spendable balance of an account.
func (k Keeper) BalanceOf(ctx context.Context, addr sdk.AccAddress) math.Int {
	var amount math.Int
	found, err := k.get(ctx, prefixed(BalanceKeyPrefix, addr), &amount)
	if err != nil || !found || amount.IsNil() {
		return math.ZeroInt()
	}
	return amount
}

func (k Keeper) setBalance(ctx context.Context, addr sdk.AccAddress, amount math.Int) error {
	if amount.IsZero() {
		k.getStore(ctx).Delete(prefixed(BalanceKeyPrefix, addr))
		return nil
	}
	return k.set(ctx, prefixed(BalanceKeyPrefix, addr), amount)
}

// Fund credits new value to an account. It is used by genesis and operators
// seeding test networks.
func (k Keeper) Fund(ctx context.Context, addr sdk.AccAddress, amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidAmount, "fund amount must be positive")
	}
	return k.setBalance(ctx, addr, k.BalanceOf(ctx, addr).Add(amount))
}

// Transfer moves value between accounts.
func (k Keeper) Transfer(ctx context.Context, from, to sdk.AccAddress, amount math.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errorsmod.Wrap(types.ErrInvalidAmount, "transfer amount cannot be negative")
	}
	if amount.IsZero() {
		return nil
	}
	if err := k.debit(ctx, from, amount); err != nil {
		return err
	}
	return k.setBalance(ctx, to, k.BalanceOf(ctx, to).Add(amount))
}

func (k Keeper) debit(ctx context.Context, from sdk.AccAddress, amount math.Int) error {
	balance := k.BalanceOf(ctx, from)
	if balance.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientBalance, "%s has %s, needs %s", from, balance, amount)
	}
	return k.setBalance(ctx, from, balance.Sub(amount))
}

// IterateBalances walks every non-zero balance.
func (k Keeper) IterateBalances(ctx context.Context, cb func(addr sdk.AccAddress, amount math.Int) bool) {
	store := k.getStore(ctx)
	iter := storetypes.KVStorePrefixIterator(store, BalanceKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		addr := sdk.AccAddress(iter.Key()[len(BalanceKeyPrefix):])
		var amount math.Int
		if err := json.Unmarshal(iter.Value(), &amount); err != nil {
			continue
		}
		if cb(addr, amount) {
			break
		}
	}
}
