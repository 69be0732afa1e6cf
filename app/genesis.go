package app

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"cosmossdk.io/math"

	ledgertypes "github.com/paw-chain/pawmarket/x/ledger/types"
	markettypes "github.com/paw-chain/pawmarket/x/market/types"
)

// GenesisState is the application state keyed by module name.
type GenesisState map[string]json.RawMessage

// GenesisDoc is the genesis file loaded by the daemon.
type GenesisDoc struct {
	ChainID     string       `json:"chain_id"`
	GenesisTime time.Time    `json:"genesis_time"`
	AppState    GenesisState `json:"app_state"`
}

// NewDefaultGenesisState returns empty ledger and market state with default
// parameters.
func NewDefaultGenesisState() GenesisState {
	return GenesisState{
		ledgertypes.ModuleName: mustMarshalJSON(ledgertypes.DefaultGenesis()),
		markettypes.ModuleName: mustMarshalJSON(markettypes.DefaultGenesis()),
	}
}

// GenesisConfig seeds a new network.
type GenesisConfig struct {
	ChainID     string
	GenesisTime time.Time

	// Accounts funded at genesis, bech32 address to amount.
	Accounts map[string]math.Int

	// Role grants applied at genesis.
	Guardians []string
	Verifiers []string
	Resolvers []string

	Params markettypes.Params
}

// DefaultGenesisConfig returns a config for a local network.
func DefaultGenesisConfig() GenesisConfig {
	return GenesisConfig{
		ChainID:     DefaultChainID,
		GenesisTime: time.Now().UTC().Truncate(time.Second),
		Accounts:    map[string]math.Int{},
		Params:      markettypes.DefaultParams(),
	}
}

// NewGenesisDocFromConfig builds a validated genesis document.
func NewGenesisDocFromConfig(cfg GenesisConfig) (*GenesisDoc, error) {
	ledgerGenesis := ledgertypes.DefaultGenesis()
	addrs := make([]string, 0, len(cfg.Accounts))
	for addr := range cfg.Accounts {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		ledgerGenesis.Balances = append(ledgerGenesis.Balances, ledgertypes.Balance{Address: addr, Amount: cfg.Accounts[addr]})
	}

	marketGenesis := markettypes.DefaultGenesis()
	marketGenesis.Params = cfg.Params
	grant := func(role markettypes.Role, addrs []string) {
		for _, addr := range addrs {
			marketGenesis.Roles = append(marketGenesis.Roles, markettypes.RoleGrant{Role: role, Address: addr})
		}
	}
	grant(markettypes.RoleGuardian, cfg.Guardians)
	grant(markettypes.RoleVerifier, cfg.Verifiers)
	grant(markettypes.RoleResolver, cfg.Resolvers)

	doc := &GenesisDoc{
		ChainID:     cfg.ChainID,
		GenesisTime: cfg.GenesisTime,
		AppState: GenesisState{
			ledgertypes.ModuleName: mustMarshalJSON(ledgerGenesis),
			markettypes.ModuleName: mustMarshalJSON(marketGenesis),
		},
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Modules decodes the ledger and market sections.
func (gs GenesisState) Modules() (*ledgertypes.GenesisState, *markettypes.GenesisState, error) {
	ledgerGenesis := ledgertypes.DefaultGenesis()
	if raw, ok := gs[ledgertypes.ModuleName]; ok {
		if err := json.Unmarshal(raw, ledgerGenesis); err != nil {
			return nil, nil, fmt.Errorf("ledger genesis: %w", err)
		}
	}
	marketGenesis := markettypes.DefaultGenesis()
	if raw, ok := gs[markettypes.ModuleName]; ok {
		if err := json.Unmarshal(raw, marketGenesis); err != nil {
			return nil, nil, fmt.Errorf("market genesis: %w", err)
		}
	}
	return ledgerGenesis, marketGenesis, nil
}

// Validate checks both module sections.
func (doc GenesisDoc) Validate() error {
	if doc.ChainID == "" {
		return fmt.Errorf("chain id is required")
	}
	ledgerGenesis, marketGenesis, err := doc.AppState.Modules()
	if err != nil {
		return err
	}
	if err := ledgerGenesis.Validate(); err != nil {
		return fmt.Errorf("ledger genesis: %w", err)
	}
	if err := marketGenesis.Validate(); err != nil {
		return fmt.Errorf("market genesis: %w", err)
	}
	return nil
}

// LoadGenesisDoc reads and validates a genesis file.
func LoadGenesisDoc(path string) (*GenesisDoc, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	var doc GenesisDoc
	if err := json.Unmarshal(bz, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse genesis: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// SaveAs writes the document as indented JSON.
func (doc GenesisDoc) SaveAs(path string) error {
	bz, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o600)
}

func mustMarshalJSON(v any) json.RawMessage {
	bz, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bz
}
