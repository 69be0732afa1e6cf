package keeper

import (
	"context"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

var _ markettypes.EscrowKeeper = Keeper{}

// Account returns an escrow account.
func (k Keeper) Account(ctx context.Context, escrowID string) (markettypes.EscrowAccount, bool) {
	var acct markettypes.EscrowAccount
	found, err := k.get(ctx, prefixed(EscrowKeyPrefix, []byte(escrowID)), &acct)
	if err != nil || !found {
		return markettypes.EscrowAccount{}, false
	}
	return normalize(acct), true
}

func (k Keeper) setAccount(ctx context.Context, acct markettypes.EscrowAccount) error {
	return k.set(ctx, prefixed(EscrowKeyPrefix, []byte(acct.ID)), acct)
}

// Reserve moves amount from the depositor into the escrow. An escrow has one
// depositor; further reserves must come from the same account.
func (k Keeper) Reserve(ctx context.Context, escrowID string, from sdk.AccAddress, amount math.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	acct, found := k.Account(ctx, escrowID)
	if !found {
		acct = normalize(markettypes.EscrowAccount{ID: escrowID, Depositor: from.String()})
	} else if acct.Depositor != from.String() {
		return errorsmod.Wrapf(types.ErrDepositorMismatch, "escrow %s belongs to %s", escrowID, acct.Depositor)
	}

	if err := k.debit(ctx, from, amount); err != nil {
		return err
	}
	acct.Reserved = acct.Reserved.Add(amount)
	if err := k.setAccount(ctx, acct); err != nil {
		return err
	}
	return k.setBalance(ctx, k.pool, k.BalanceOf(ctx, k.pool).Add(amount))
}

// Release pays amount out of the escrow to a recipient. Releases never exceed
// the value the escrow still holds.
func (k Keeper) Release(ctx context.Context, escrowID string, to sdk.AccAddress, amount math.Int) error {
	return k.payOut(ctx, escrowID, to, amount, false)
}

// Refund returns amount from the escrow to a recipient, normally the depositor.
func (k Keeper) Refund(ctx context.Context, escrowID string, to sdk.AccAddress, amount math.Int) error {
	return k.payOut(ctx, escrowID, to, amount, true)
}

func (k Keeper) payOut(ctx context.Context, escrowID string, to sdk.AccAddress, amount math.Int, refund bool) error {
	if err := positive(amount); err != nil {
		return err
	}
	acct, found := k.Account(ctx, escrowID)
	if !found {
		return errorsmod.Wrap(types.ErrEscrowNotFound, escrowID)
	}
	if held := acct.Held(); held.LT(amount) {
		return errorsmod.Wrapf(types.ErrEscrowExhausted, "escrow %s holds %s, requested %s", escrowID, held, amount)
	}

	// Accounting is written before value moves.
	if refund {
		acct.Refunded = acct.Refunded.Add(amount)
	} else {
		acct.Released = acct.Released.Add(amount)
	}
	if err := k.setAccount(ctx, acct); err != nil {
		return err
	}
	return k.Transfer(ctx, k.pool, to, amount)
}

// Reclaim pulls up to amount back from a previous recipient into the escrow.
// Value the recipient already spent is unrecoverable; the recovered amount is
// returned.
func (k Keeper) Reclaim(ctx context.Context, escrowID string, from sdk.AccAddress, amount math.Int) (math.Int, error) {
	if err := positive(amount); err != nil {
		return math.ZeroInt(), err
	}
	acct, found := k.Account(ctx, escrowID)
	if !found {
		return math.ZeroInt(), errorsmod.Wrap(types.ErrEscrowNotFound, escrowID)
	}

	recovered := math.MinInt(amount, k.BalanceOf(ctx, from))
	if recovered.IsZero() {
		return recovered, nil
	}
	acct.Reclaimed = acct.Reclaimed.Add(recovered)
	if err := k.setAccount(ctx, acct); err != nil {
		return math.ZeroInt(), err
	}
	if err := k.Transfer(ctx, from, k.pool, recovered); err != nil {
		return math.ZeroInt(), err
	}
	return recovered, nil
}

// IterateEscrows walks every escrow account in id order.
func (k Keeper) IterateEscrows(ctx context.Context, cb func(acct markettypes.EscrowAccount) bool) {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), EscrowKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var acct markettypes.EscrowAccount
		if err := json.Unmarshal(iter.Value(), &acct); err != nil {
			continue
		}
		if cb(normalize(acct)) {
			break
		}
	}
}

// TotalHeld sums the held value of every escrow.
func (k Keeper) TotalHeld(ctx context.Context) math.Int {
	total := math.ZeroInt()
	k.IterateEscrows(ctx, func(acct markettypes.EscrowAccount) bool {
		total = total.Add(acct.Held())
		return false
	})
	return total
}

func normalize(acct markettypes.EscrowAccount) markettypes.EscrowAccount {
	for _, v := range []*math.Int{&acct.Reserved, &acct.Released, &acct.Refunded, &acct.Reclaimed} {
		if v.IsNil() {
			*v = math.ZeroInt()
		}
	}
	return acct
}

func positive(amount math.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrInvalidAmount, "amount must be positive")
	}
	return nil
}
