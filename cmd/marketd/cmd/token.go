package cmd

import (
	"errors"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/paw-chain/pawmarket/api"
	"github.com/paw-chain/pawmarket/x/market/types"
)

const (
	FlagRoles = "roles"
	FlagTTL   = "ttl"

	defaultTokenTTL = 24 * time.Hour
)

// TokenCmd issues an API bearer token for an address, signed with the
// configured secret.
func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [address]",
		Short: "Issue an API access token for an address",
		Long: `Issue a bearer token for the HTTP API. The token authenticates the
address; role checks happen against market state when calls are delivered.

Example:
  marketd token paw1... --roles guardian --ttl 1h`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := sdk.AccAddressFromBech32(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}

			cfg, err := loadDaemonConfig(cmd)
			if err != nil {
				return err
			}
			if len(cfg.API.JWTSecret) == 0 {
				return errors.New("api.jwt-secret is not configured; run marketd init or set MARKETD_API_JWT_SECRET")
			}

			rawRoles, _ := cmd.Flags().GetStringSlice(FlagRoles)
			roles := make([]string, 0, len(rawRoles))
			for _, r := range rawRoles {
				role, err := types.ParseRole(r)
				if err != nil {
					return err
				}
				roles = append(roles, string(role))
			}
			ttl, _ := cmd.Flags().GetDuration(FlagTTL)

			token, err := api.NewAuthService(cfg.API.JWTSecret).GenerateToken(addr, roles, ttl)
			if err != nil {
				return err
			}
			return printJSON(cmd, token)
		},
	}

	cmd.Flags().StringSlice(FlagRoles, nil, "roles to embed in the token (guardian|verifier|resolver)")
	cmd.Flags().Duration(FlagTTL, defaultTokenTTL, "token lifetime")

	return cmd
}
