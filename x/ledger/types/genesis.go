package types

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

// Balance is an account balance entry.
type Balance struct {
	Address string   `json:"address"`
	Amount  math.Int `json:"amount"`
}

// GenesisState is the exported ledger state.
type GenesisState struct {
	Balances    []Balance                   `json:"balances"`
	Providers   []Provider                  `json:"providers"`
	Escrows     []markettypes.EscrowAccount `json:"escrows"`
	Reputations []Reputation                `json:"reputations"`
}

// DefaultGenesis returns an empty ledger.
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Balances:    []Balance{},
		Providers:   []Provider{},
		Escrows:     []markettypes.EscrowAccount{},
		Reputations: []Reputation{},
	}
}

// Validate performs basic genesis state validation.
func (gs GenesisState) Validate() error {
	seen := make(map[string]bool)
	for i, b := range gs.Balances {
		if _, err := sdk.AccAddressFromBech32(b.Address); err != nil {
			return fmt.Errorf("balance %d: %w", i, err)
		}
		if seen[b.Address] {
			return fmt.Errorf("balance %d: duplicate address %s", i, b.Address)
		}
		seen[b.Address] = true
		if b.Amount.IsNil() || b.Amount.IsNegative() {
			return fmt.Errorf("balance %d: negative amount", i)
		}
	}

	seen = make(map[string]bool)
	for i, p := range gs.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %d: %w", i, err)
		}
		if seen[p.Address] {
			return fmt.Errorf("provider %d: duplicate address %s", i, p.Address)
		}
		seen[p.Address] = true
	}

	seen = make(map[string]bool)
	for i, e := range gs.Escrows {
		if e.ID == "" || seen[e.ID] {
			return fmt.Errorf("escrow %d: missing or duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true
		if e.Held().IsNegative() {
			return fmt.Errorf("escrow %s: released and refunded exceed reserved", e.ID)
		}
	}

	for i, r := range gs.Reputations {
		if r.Score.IsNil() || r.Score.IsNegative() || r.Score.GT(math.LegacyOneDec()) {
			return fmt.Errorf("reputation %d: score out of range", i)
		}
	}
	return nil
}
