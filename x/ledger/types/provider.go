package types

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Provider is a registered compute provider in the stake registry.
type Provider struct {
	Address      string    `json:"address"`
	Controller   string    `json:"controller"`
	Stake        math.Int  `json:"stake"`
	Slashed      math.Int  `json:"slashed"`
	Slashes      uint64    `json:"slashes"`
	Active       bool      `json:"active"`
	SigningKey   []byte    `json:"signing_key,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Validate checks the provider record.
func (p Provider) Validate() error {
	if _, err := sdk.AccAddressFromBech32(p.Address); err != nil {
		return fmt.Errorf("%w: address: %s", ErrInvalidProvider, err)
	}
	if _, err := sdk.AccAddressFromBech32(p.Controller); err != nil {
		return fmt.Errorf("%w: controller: %s", ErrInvalidProvider, err)
	}
	if p.Stake.IsNil() || p.Stake.IsNegative() {
		return fmt.Errorf("%w: stake cannot be negative", ErrInvalidProvider)
	}
	if len(p.SigningKey) != 0 && len(p.SigningKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: signing key must be %d bytes", ErrInvalidProvider, ed25519.PublicKeySize)
	}
	return nil
}

// SlashRecord is a stake reduction applied to a provider.
type SlashRecord struct {
	Provider string    `json:"provider"`
	Amount   math.Int  `json:"amount"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"time"`
}
