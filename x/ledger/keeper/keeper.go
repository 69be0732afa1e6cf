package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"

	"github.com/paw-chain/pawmarket/x/ledger/types"
)

var (
	// BalanceKeyPrefix is the prefix for account balances
	BalanceKeyPrefix = []byte{0x01}

	// ProviderKeyPrefix is the prefix for the provider registry
	ProviderKeyPrefix = []byte{0x02}

	// EscrowKeyPrefix is the prefix for escrow accounts
	EscrowKeyPrefix = []byte{0x03}

	// ReputationKeyPrefix is the prefix for reputation records
	ReputationKeyPrefix = []byte{0x04}

	// RatingKeyPrefix is the prefix for per-job ratings
	RatingKeyPrefix = []byte{0x05}

	// SlashRecordKeyPrefix is the prefix for slash history
	SlashRecordKeyPrefix = []byte{0x06}
)

// Keeper is the reference stake, escrow and reputation ledger consumed by the
// market module.
type Keeper struct {
	storeKey storetypes.StoreKey
	pool     sdk.AccAddress
}

type kvStoreProvider interface {
	KVStore(key storetypes.StoreKey) storetypes.KVStore
}

// NewKeeper creates a new ledger Keeper instance
func NewKeeper(key storetypes.StoreKey) *Keeper {
	return &Keeper{
		storeKey: key,
		pool:     address.Module(types.EscrowPoolName),
	}
}

// EscrowPool returns the account that custodies escrowed value.
func (k Keeper) EscrowPool() sdk.AccAddress {
	return k.pool
}

// Logger returns a module-specific logger.
func (k Keeper) Logger(ctx context.Context) log.Logger {
	return sdk.UnwrapSDKContext(ctx).Logger().With("module", "x/"+types.ModuleName)
}

func (k Keeper) getStore(ctx context.Context) storetypes.KVStore {
	if provider, ok := ctx.(kvStoreProvider); ok {
		return provider.KVStore(k.storeKey)
	}
	return sdk.UnwrapSDKContext(ctx).KVStore(k.storeKey)
}

func (k Keeper) get(ctx context.Context, key []byte, v any) (bool, error) {
	bz := k.getStore(ctx).Get(key)
	if bz == nil {
		return false, nil
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %x: %w", key, err)
	}
	return true, nil
}

func (k Keeper) set(ctx context.Context, key []byte, v any) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %x: %w", key, err)
	}
	k.getStore(ctx).Set(key, bz)
	return nil
}

func prefixed(prefix []byte, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}
