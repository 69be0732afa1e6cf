package keeper

import (
	"context"
	"encoding/json"
	"fmt"

	"cosmossdk.io/log"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/address"

	"github.com/paw-chain/pawmarket/x/market/types"
)

// Keeper of the market store
type Keeper struct {
	storeKey   storetypes.StoreKey
	stake      types.StakeKeeper
	escrow     types.EscrowKeeper
	reputation types.ReputationKeeper
	verifier   types.ProofVerifier

	// authority may update params, grant roles and slash. It passes every
	// role check.
	authority    string
	feeCollector sdk.AccAddress

	metrics *MarketMetrics
}

type kvStoreProvider interface {
	KVStore(key storetypes.StoreKey) storetypes.KVStore
}

// NewKeeper creates a new market Keeper instance. A nil verifier defaults to
// commitment checking.
func NewKeeper(
	key storetypes.StoreKey,
	stake types.StakeKeeper,
	escrow types.EscrowKeeper,
	reputation types.ReputationKeeper,
	verifier types.ProofVerifier,
	authority string,
) *Keeper {
	if verifier == nil {
		verifier = types.CommitmentVerifier{}
	}
	return &Keeper{
		storeKey:     key,
		stake:        stake,
		escrow:       escrow,
		reputation:   reputation,
		verifier:     verifier,
		authority:    authority,
		feeCollector: address.Module(types.FeeCollectorName),
		metrics:      NewMarketMetrics(),
	}
}

// DefaultAuthority is the gov module account, the authority used when none is
// configured.
func DefaultAuthority() sdk.AccAddress {
	return address.Module("gov")
}

// GetAuthority returns the module's authority.
func (k Keeper) GetAuthority() string {
	return k.authority
}

// FeeCollector returns the account receiving protocol fees.
func (k Keeper) FeeCollector() sdk.AccAddress {
	return k.feeCollector
}

// Logger returns a module-specific logger.
func (k Keeper) Logger(ctx context.Context) log.Logger {
	return sdk.UnwrapSDKContext(ctx).Logger().With("module", "x/"+types.ModuleName)
}

// getStore returns the KVStore for the market module
func (k Keeper) getStore(ctx context.Context) storetypes.KVStore {
	if provider, ok := ctx.(kvStoreProvider); ok {
		return provider.KVStore(k.storeKey)
	}
	return sdk.UnwrapSDKContext(ctx).KVStore(k.storeKey)
}

func (k Keeper) getJSON(ctx context.Context, key []byte, v any) (bool, error) {
	bz := k.getStore(ctx).Get(key)
	if bz == nil {
		return false, nil
	}
	if err := json.Unmarshal(bz, v); err != nil {
		return false, fmt.Errorf("unmarshal %x: %w", key, err)
	}
	return true, nil
}

func (k Keeper) setJSON(ctx context.Context, key []byte, v any) error {
	bz, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %x: %w", key, err)
	}
	k.getStore(ctx).Set(key, bz)
	return nil
}

// atomic runs fn against a cache of the current state and writes it back,
// events included, only when fn succeeds. A rejected call leaves no partial
// update behind.
func (k Keeper) atomic(ctx context.Context, fn func(ctx sdk.Context) error) error {
	cacheCtx, write := sdk.UnwrapSDKContext(ctx).CacheContext()
	if err := fn(cacheCtx); err != nil {
		return err
	}
	write()
	return nil
}

func (k Keeper) nextSequence(ctx context.Context, key []byte) uint64 {
	store := k.getStore(ctx)
	next := uint64(1)
	if bz := store.Get(key); bz != nil {
		next = sdk.BigEndianToUint64(bz)
	}
	store.Set(key, sdk.Uint64ToBigEndian(next+1))
	return next
}

func (k Keeper) peekSequence(ctx context.Context, key []byte) uint64 {
	if bz := k.getStore(ctx).Get(key); bz != nil {
		return sdk.BigEndianToUint64(bz)
	}
	return 1
}
