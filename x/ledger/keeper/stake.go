package keeper

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

var _ markettypes.StakeKeeper = Keeper{}

// GetProvider returns a registered provider.
func (k Keeper) GetProvider(ctx context.Context, addr sdk.AccAddress) (types.Provider, bool) {
	var p types.Provider
	found, err := k.get(ctx, prefixed(ProviderKeyPrefix, addr), &p)
	if err != nil || !found {
		return types.Provider{}, false
	}
	if p.Slashed.IsNil() {
		p.Slashed = math.ZeroInt()
	}
	return p, true
}

// SetProvider stores a provider record.
func (k Keeper) SetProvider(ctx context.Context, p types.Provider) error {
	addr, err := sdk.AccAddressFromBech32(p.Address)
	if err != nil {
		return errorsmod.Wrap(types.ErrInvalidProvider, err.Error())
	}
	return k.set(ctx, prefixed(ProviderKeyPrefix, addr), p)
}

// RegisterProvider bonds stake from the provider's balance and registers it
// under a controller. The controller defaults to the provider itself.
func (k Keeper) RegisterProvider(
	ctx context.Context,
	addr, controller sdk.AccAddress,
	stake math.Int,
	signingKey ed25519.PublicKey,
) error {
	if _, found := k.GetProvider(ctx, addr); found {
		return errorsmod.Wrap(types.ErrProviderExists, addr.String())
	}
	if controller.Empty() {
		controller = addr
	}
	p := types.Provider{
		Address:      addr.String(),
		Controller:   controller.String(),
		Stake:        stake,
		Slashed:      math.ZeroInt(),
		Active:       true,
		SigningKey:   signingKey,
		RegisteredAt: sdk.UnwrapSDKContext(ctx).BlockTime(),
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if stake.IsPositive() {
		if err := k.debit(ctx, addr, stake); err != nil {
			return err
		}
	}
	if err := k.SetProvider(ctx, p); err != nil {
		return err
	}
	k.Logger(ctx).Info("provider registered", "provider", p.Address, "controller", p.Controller, "stake", stake.String())
	return nil
}

// AddStake bonds more of the provider's balance.
func (k Keeper) AddStake(ctx context.Context, addr sdk.AccAddress, amount math.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	p, found := k.GetProvider(ctx, addr)
	if !found {
		return errorsmod.Wrap(types.ErrProviderNotFound, addr.String())
	}
	if err := k.debit(ctx, addr, amount); err != nil {
		return err
	}
	p.Stake = p.Stake.Add(amount)
	return k.SetProvider(ctx, p)
}

// SetActive toggles whether the provider may claim work.
func (k Keeper) SetActive(ctx context.Context, addr sdk.AccAddress, active bool) error {
	p, found := k.GetProvider(ctx, addr)
	if !found {
		return errorsmod.Wrap(types.ErrProviderNotFound, addr.String())
	}
	p.Active = active
	return k.SetProvider(ctx, p)
}

// IsActiveProvider implements markettypes.StakeKeeper.
func (k Keeper) IsActiveProvider(ctx context.Context, addr sdk.AccAddress) bool {
	p, found := k.GetProvider(ctx, addr)
	return found && p.Active
}

// StakeOf implements markettypes.StakeKeeper.
func (k Keeper) StakeOf(ctx context.Context, addr sdk.AccAddress) math.Int {
	p, found := k.GetProvider(ctx, addr)
	if !found || p.Stake.IsNil() {
		return math.ZeroInt()
	}
	return p.Stake
}

// ControllerOf implements markettypes.StakeKeeper.
func (k Keeper) ControllerOf(ctx context.Context, addr sdk.AccAddress) (sdk.AccAddress, bool) {
	p, found := k.GetProvider(ctx, addr)
	if !found {
		return nil, false
	}
	controller, err := sdk.AccAddressFromBech32(p.Controller)
	if err != nil {
		return nil, false
	}
	return controller, true
}

// SigningKey returns the provider's registered proof signing key. Its
// signature matches markettypes.KeyResolver.
func (k Keeper) SigningKey(ctx context.Context, provider string) (ed25519.PublicKey, bool) {
	addr, err := sdk.AccAddressFromBech32(provider)
	if err != nil {
		return nil, false
	}
	p, found := k.GetProvider(ctx, addr)
	if !found || len(p.SigningKey) != ed25519.PublicKeySize {
		return nil, false
	}
	return ed25519.PublicKey(p.SigningKey), true
}

// Slash burns up to amount of the provider's stake and returns what was
// actually slashed. A provider whose stake reaches zero is deactivated.
func (k Keeper) Slash(ctx context.Context, addr sdk.AccAddress, amount math.Int, reason string) (math.Int, error) {
	if err := positive(amount); err != nil {
		return math.ZeroInt(), err
	}
	p, found := k.GetProvider(ctx, addr)
	if !found {
		return math.ZeroInt(), errorsmod.Wrap(types.ErrProviderNotFound, addr.String())
	}

	slashed := math.MinInt(amount, p.Stake)
	p.Stake = p.Stake.Sub(slashed)
	p.Slashed = p.Slashed.Add(slashed)
	p.Slashes++
	if p.Stake.IsZero() {
		p.Active = false
	}
	if err := k.SetProvider(ctx, p); err != nil {
		return math.ZeroInt(), err
	}

	sdkCtx := sdk.UnwrapSDKContext(ctx)
	record := types.SlashRecord{Provider: p.Address, Amount: slashed, Reason: reason, Time: sdkCtx.BlockTime()}
	if err := k.set(ctx, slashRecordKey(addr, p.Slashes), record); err != nil {
		return math.ZeroInt(), err
	}
	k.Logger(ctx).Warn("provider slashed", "provider", p.Address, "amount", slashed.String(), "reason", reason)
	return slashed, nil
}

// SlashRecords returns a provider's slash history, oldest first.
func (k Keeper) SlashRecords(ctx context.Context, addr sdk.AccAddress) []types.SlashRecord {
	prefix := prefixed(SlashRecordKeyPrefix, addressPrefix(addr))
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), prefix)
	defer iter.Close()

	var out []types.SlashRecord
	for ; iter.Valid(); iter.Next() {
		var r types.SlashRecord
		if err := json.Unmarshal(iter.Value(), &r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// IterateProviders walks every registered provider.
func (k Keeper) IterateProviders(ctx context.Context, cb func(p types.Provider) bool) {
	iter := storetypes.KVStorePrefixIterator(k.getStore(ctx), ProviderKeyPrefix)
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		var p types.Provider
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			continue
		}
		if cb(p) {
			break
		}
	}
}

// addressPrefix length-prefixes an address so variable-length addresses
// cannot collide inside composite keys.
func addressPrefix(addr sdk.AccAddress) []byte {
	return append([]byte{byte(len(addr))}, addr...)
}

func slashRecordKey(addr sdk.AccAddress, seq uint64) []byte {
	key := prefixed(SlashRecordKeyPrefix, addressPrefix(addr))
	return binary.BigEndian.AppendUint64(key, seq)
}
