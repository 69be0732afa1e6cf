package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/paw-chain/pawmarket/app"
)

const (
	FlagChainID   = "chain-id"
	FlagOverwrite = "overwrite"
	FlagAccount   = "account"
	FlagGuardian  = "guardian"
	FlagVerifier  = "verifier"
	FlagResolver  = "resolver"
	FlagJWTSecret = "jwt-secret"

	jwtSecretBytes = 32
)

type initOutput struct {
	ChainID     string `json:"chain_id"`
	Home        string `json:"home"`
	ConfigFile  string `json:"config_file"`
	GenesisFile string `json:"genesis_file"`
	Accounts    int    `json:"accounts"`
}

// InitCmd returns a command that writes a default config file and a genesis
// document into the home directory.
func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize config and genesis files for a market network",
		Long: `Initialize the daemon home directory with a default marketd.toml and a
genesis.json. Accounts are funded with --account address=amount, repeated as
needed. Role holders are granted with --guardian, --verifier and --resolver.

Example:
  marketd init --chain-id pawmarket-1 \
    --account paw1...=1000000000 --guardian paw1... --verifier paw1...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := homeDir(cmd)
			overwrite, _ := cmd.Flags().GetBool(FlagOverwrite)

			genesisCfg, err := genesisConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			doc, err := app.NewGenesisDocFromConfig(genesisCfg)
			if err != nil {
				return fmt.Errorf("invalid genesis: %w", err)
			}

			genesisPath := GenesisPath(home)
			if !overwrite {
				if _, err := os.Stat(genesisPath); err == nil {
					return fmt.Errorf("genesis file already exists: %s (use --%s)", genesisPath, FlagOverwrite)
				}
			}

			secret, _ := cmd.Flags().GetString(FlagJWTSecret)
			if secret == "" {
				if secret, err = randomSecret(); err != nil {
					return err
				}
			}
			if len(secret) < jwtSecretBytes {
				return fmt.Errorf("--%s must be at least %d characters", FlagJWTSecret, jwtSecretBytes)
			}

			if err := WriteDefaultConfig(home, secret, overwrite); err != nil {
				return err
			}
			if err := os.MkdirAll(DataDir(home), 0o750); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			if err := doc.SaveAs(genesisPath); err != nil {
				return fmt.Errorf("failed to write genesis: %w", err)
			}

			return printJSON(cmd, initOutput{
				ChainID:     doc.ChainID,
				Home:        home,
				ConfigFile:  ConfigPath(home),
				GenesisFile: genesisPath,
				Accounts:    len(genesisCfg.Accounts),
			})
		},
	}

	cmd.Flags().String(FlagChainID, app.DefaultChainID, "genesis file chain-id")
	cmd.Flags().Bool(FlagOverwrite, false, "overwrite existing config and genesis files")
	cmd.Flags().StringArray(FlagAccount, nil, "fund an account at genesis (address=amount)")
	cmd.Flags().StringSlice(FlagGuardian, nil, "grant the guardian role at genesis")
	cmd.Flags().StringSlice(FlagVerifier, nil, "grant the verifier role at genesis")
	cmd.Flags().StringSlice(FlagResolver, nil, "grant the resolver role at genesis")
	cmd.Flags().String(FlagJWTSecret, "", "API token signing secret (generated when empty)")

	return cmd
}

func genesisConfigFromFlags(cmd *cobra.Command) (app.GenesisConfig, error) {
	cfg := app.DefaultGenesisConfig()
	if chainID, _ := cmd.Flags().GetString(FlagChainID); chainID != "" {
		cfg.ChainID = chainID
	}

	accounts, _ := cmd.Flags().GetStringArray(FlagAccount)
	for _, entry := range accounts {
		addr, amount, err := parseAccountFlag(entry)
		if err != nil {
			return app.GenesisConfig{}, err
		}
		if existing, ok := cfg.Accounts[addr]; ok {
			amount = amount.Add(existing)
		}
		cfg.Accounts[addr] = amount
	}

	var err error
	if cfg.Guardians, err = addressFlag(cmd, FlagGuardian); err != nil {
		return app.GenesisConfig{}, err
	}
	if cfg.Verifiers, err = addressFlag(cmd, FlagVerifier); err != nil {
		return app.GenesisConfig{}, err
	}
	if cfg.Resolvers, err = addressFlag(cmd, FlagResolver); err != nil {
		return app.GenesisConfig{}, err
	}
	return cfg, nil
}

// parseAccountFlag splits "address=amount".
func parseAccountFlag(entry string) (string, math.Int, error) {
	addr, rawAmount, ok := strings.Cut(entry, "=")
	if !ok {
		return "", math.Int{}, fmt.Errorf("invalid --%s %q: expected address=amount", FlagAccount, entry)
	}
	acc, err := sdk.AccAddressFromBech32(strings.TrimSpace(addr))
	if err != nil {
		return "", math.Int{}, fmt.Errorf("invalid --%s address %q: %w", FlagAccount, addr, err)
	}
	amount, ok := math.NewIntFromString(strings.TrimSpace(rawAmount))
	if !ok || !amount.IsPositive() {
		return "", math.Int{}, fmt.Errorf("invalid --%s amount %q", FlagAccount, rawAmount)
	}
	return acc.String(), amount, nil
}

func addressFlag(cmd *cobra.Command, name string) ([]string, error) {
	values, _ := cmd.Flags().GetStringSlice(name)
	out := make([]string, 0, len(values))
	for _, v := range values {
		acc, err := sdk.AccAddressFromBech32(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid --%s address %q: %w", name, v, err)
		}
		out = append(out, acc.String())
	}
	return out, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, jwtSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
