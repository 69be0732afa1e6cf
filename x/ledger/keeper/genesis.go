package keeper

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

// InitGenesis initializes the ledger state from a genesis state.
func (k Keeper) InitGenesis(ctx context.Context, gs types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return fmt.Errorf("invalid ledger genesis: %w", err)
	}

	for _, b := range gs.Balances {
		addr, _ := sdk.AccAddressFromBech32(b.Address)
		if err := k.setBalance(ctx, addr, b.Amount); err != nil {
			return err
		}
	}
	for _, p := range gs.Providers {
		if err := k.SetProvider(ctx, p); err != nil {
			return err
		}
	}
	held := math.ZeroInt()
	for _, e := range gs.Escrows {
		e = normalize(e)
		if err := k.setAccount(ctx, e); err != nil {
			return err
		}
		held = held.Add(e.Held())
	}
	if !k.BalanceOf(ctx, k.pool).Equal(held) {
		return fmt.Errorf("escrow pool balance %s does not match held escrow %s", k.BalanceOf(ctx, k.pool), held)
	}
	for _, r := range gs.Reputations {
		if err := k.SetReputation(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// ExportGenesis returns the ledger's exported genesis.
func (k Keeper) ExportGenesis(ctx context.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	k.IterateBalances(ctx, func(addr sdk.AccAddress, amount math.Int) bool {
		gs.Balances = append(gs.Balances, types.Balance{Address: addr.String(), Amount: amount})
		return false
	})
	k.IterateProviders(ctx, func(p types.Provider) bool {
		gs.Providers = append(gs.Providers, p)
		return false
	})
	k.IterateEscrows(ctx, func(acct markettypes.EscrowAccount) bool {
		gs.Escrows = append(gs.Escrows, acct)
		return false
	})
	k.IterateReputations(ctx, func(r types.Reputation) bool {
		gs.Reputations = append(gs.Reputations, r)
		return false
	})
	return gs
}
