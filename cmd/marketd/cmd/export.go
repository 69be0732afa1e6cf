package cmd

import (
	"encoding/json"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/cobra"

	"github.com/paw-chain/pawmarket/x/market/types"
)

const FlagOutputDocument = "output-document"

// ExportCmd writes the current state as a genesis document.
func ExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export state to a genesis document",
		Long: `Export the committed state as genesis JSON. The daemon must be stopped
when the goleveldb backend is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadDaemonConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := daemonLogger(cmd, cfg)
			if err != nil {
				return err
			}
			n, err := openNode(cmd.Context(), logger, cfg, false)
			if err != nil {
				return err
			}
			defer n.close(logger)

			doc, err := n.app.ExportGenesis(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to export state: %w", err)
			}

			if path, _ := cmd.Flags().GetString(FlagOutputDocument); path != "" {
				return doc.SaveAs(path)
			}
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().String(FlagOutputDocument, "", "write the exported genesis to this file instead of stdout")

	return cmd
}

// CheckCmd runs the state invariants and replays the audit trail against the
// stored jobs. It fails when either finds a discrepancy.
func CheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify state invariants and reconcile the audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadDaemonConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := daemonLogger(cmd, cfg)
			if err != nil {
				return err
			}
			n, err := openNode(cmd.Context(), logger, cfg, false)
			if err != nil {
				return err
			}
			defer n.close(logger)

			if err := n.app.CheckInvariants(cmd.Context()); err != nil {
				return err
			}

			var result types.Reconciliation
			err = n.app.Query(cmd.Context(), func(ctx sdk.Context) error {
				var err error
				result, err = n.app.MarketKeeper.ReplayAuditTrail(ctx)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to replay audit trail: %w", err)
			}

			if err := printJSON(cmd, result); err != nil {
				return err
			}
			if len(result.Mismatches) > 0 {
				return fmt.Errorf("audit trail disagrees with %d stored job(s)", len(result.Mismatches))
			}
			return nil
		},
	}
}
