package keeper

import (
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	ledgerkeeper "github.com/paw-chain/pawmarket/x/ledger/keeper"
	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	"github.com/paw-chain/pawmarket/x/market/keeper"
	"github.com/paw-chain/pawmarket/x/market/types"
)

// GenesisTime is the block time of a fresh test context.
var GenesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Authority is the address holding the market authority in tests.
var Authority = keeper.DefaultAuthority()

// MarketKeeper creates a market keeper backed by the reference ledger on an
// in-memory store. A nil verifier keeps the default commitment verifier.
func MarketKeeper(t testing.TB, verifier types.ProofVerifier) (*keeper.Keeper, *ledgerkeeper.Keeper, sdk.Context) {
	marketKey := storetypes.NewKVStoreKey(types.StoreKey)
	ledgerKey := storetypes.NewKVStoreKey(ledgertypes.StoreKey)

	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(marketKey, storetypes.StoreTypeIAVL, db)
	stateStore.MountStoreWithDB(ledgerKey, storetypes.StoreTypeIAVL, db)
	require.NoError(t, stateStore.LoadLatestVersion())

	ledger := ledgerkeeper.NewKeeper(ledgerKey)
	k := keeper.NewKeeper(marketKey, ledger, ledger, ledger, verifier, Authority.String())

	ctx := sdk.NewContext(stateStore, cmtproto.Header{Height: 1, Time: GenesisTime}, false, log.NewNopLogger())

	return k, ledger, ctx
}

// Addr derives a deterministic 20-byte test address from a name.
func Addr(name string) sdk.AccAddress {
	bz := make([]byte, 20)
	copy(bz, name)
	return sdk.AccAddress(bz)
}
