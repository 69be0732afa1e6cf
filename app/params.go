package app

import (
	"os"
	"path/filepath"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// Bech32PrefixAccAddr defines the Bech32 prefix of an account's address
	Bech32PrefixAccAddr = "paw"
	// Bech32PrefixAccPub defines the Bech32 prefix of an account's public key
	Bech32PrefixAccPub = "pawpub"

	// DefaultChainID names a network started without a genesis file.
	DefaultChainID = "pawmarket-local"

	// DefaultBlockInterval is how often the daemon runs end-of-block processing
	// when no calls arrive.
	DefaultBlockInterval = 5 * time.Second
)

// DefaultNodeHome is the default home directory for the market daemon.
var DefaultNodeHome string

func init() {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	DefaultNodeHome = filepath.Join(userHomeDir, ".pawmarket")
}

// SetConfig sets the address prefix for the market network and seals the
// SDK config. Call it once at process start.
func SetConfig() {
	config := sdk.GetConfig()
	config.SetBech32PrefixForAccount(Bech32PrefixAccAddr, Bech32PrefixAccPub)
	config.Seal()
}
