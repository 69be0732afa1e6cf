package keeper

import (
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

// RegisterInvariants registers all ledger invariants
func RegisterInvariants(ir sdk.InvariantRegistry, k Keeper) {
	ir.RegisterRoute(types.ModuleName, "escrow-pool", EscrowPoolInvariant(k))
	ir.RegisterRoute(types.ModuleName, "escrow-accounting", EscrowAccountingInvariant(k))
}

// EscrowPoolInvariant checks that the escrow pool balance equals the value
// every escrow account reports as held.
func EscrowPoolInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		pool := k.BalanceOf(ctx, k.pool)
		held := k.TotalHeld(ctx)
		broken := !pool.Equal(held)
		return sdk.FormatInvariant(types.ModuleName, "escrow-pool",
			fmt.Sprintf("pool balance %s, held by escrows %s", pool, held)), broken
	}
}

// EscrowAccountingInvariant checks that no escrow paid out more than it took in.
func EscrowAccountingInvariant(k Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		var (
			broken bool
			msg    string
		)
		k.IterateEscrows(ctx, func(acct markettypes.EscrowAccount) bool {
			if acct.Held().IsNegative() {
				broken = true
				msg += fmt.Sprintf("escrow %s: reserved %s + reclaimed %s < released %s + refunded %s\n",
					acct.ID, acct.Reserved, acct.Reclaimed, acct.Released, acct.Refunded)
			}
			return false
		})
		return sdk.FormatInvariant(types.ModuleName, "escrow-accounting", msg), broken
	}
}
