package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"cosmossdk.io/log"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/paw-chain/pawmarket/app"
)

const (
	FlagHome      = "home"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"

	logFormatJSON  = "json"
	logFormatPlain = "plain"
)

// NewRootCmd creates the root command for marketd. It is called once in the
// main function.
func NewRootCmd() *cobra.Command {
	// Ensure SDK bech32 prefixes are configured prior to CLI usage.
	initSDKConfig()

	rootCmd := &cobra.Command{
		Use:   "marketd",
		Short: "PAW compute market daemon",
		Long: `marketd runs the PAW compute market: a job escrow ledger with provider
staking, proof verification, challenges, disputes and a circuit breaker,
served over an authenticated HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// set the default command outputs
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
			return nil
		},
	}

	rootCmd.PersistentFlags().String(FlagHome, app.DefaultNodeHome, "directory for config and data")
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "log level (trace|debug|info|warn|error), overrides the config file")
	rootCmd.PersistentFlags().String(FlagLogFormat, "", "log format (plain|json), overrides the config file")

	rootCmd.AddCommand(
		InitCmd(),
		StartCmd(),
		TokenCmd(),
		KeysCmd(),
		SignProofCmd(),
		ExportCmd(),
		CheckCmd(),
	)

	return rootCmd
}

var sdkConfigOnce sync.Once

func initSDKConfig() {
	sdkConfigOnce.Do(func() {
		app.SetConfig()
	})
}

// homeDir returns the --home flag value.
func homeDir(cmd *cobra.Command) string {
	home, _ := cmd.Flags().GetString(FlagHome)
	if home == "" {
		return app.DefaultNodeHome
	}
	return home
}

// loadDaemonConfig reads the config for --home and applies the logging flags.
func loadDaemonConfig(cmd *cobra.Command) (*DaemonConfig, error) {
	cfg, err := LoadConfig(homeDir(cmd))
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString(FlagLogLevel); level != "" {
		cfg.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString(FlagLogFormat); format != "" {
		cfg.LogFormat = format
	}
	return cfg, nil
}

// newLogger builds the daemon logger the way the SDK server does: zerolog
// levels with an optional JSON encoder.
func newLogger(w io.Writer, level, format string) (log.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := []log.Option{log.LevelOption(lvl)}
	switch strings.ToLower(format) {
	case logFormatJSON:
		opts = append(opts, log.OutputJSONOption())
	case logFormatPlain, "":
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return log.NewLogger(w, opts...), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", " ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func daemonLogger(cmd *cobra.Command, cfg *DaemonConfig) (log.Logger, error) {
	var w io.Writer = os.Stderr
	if cmd != nil {
		w = cmd.ErrOrStderr()
	}
	return newLogger(w, cfg.LogLevel, cfg.LogFormat)
}
