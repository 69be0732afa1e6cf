package cmd

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cosmos/cosmos-sdk/client/input"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/go-bip39"
	"github.com/spf13/cobra"

	"github.com/paw-chain/pawmarket/x/market/types"
)

const (
	flagMnemonicLength = "mnemonic-length"
	flagNoBackup       = "no-backup"
	flagAccountIndex   = "account-index"
	flagIndex          = "index"
	flagMnemonicFile   = "mnemonic-file"
)

// providerKeys is the key material a provider needs: an account address for
// API calls and an ed25519 key for signing proof commitments. Both derive
// from one BIP39 mnemonic.
type providerKeys struct {
	Address    string `json:"address"`
	SigningKey []byte `json:"signing_key"`
	Mnemonic   string `json:"mnemonic,omitempty"`

	signer ed25519.PrivateKey
}

// deriveProviderKeys derives the account key on the external BIP44 chain and
// the proof signing key on the internal chain of the same account and index.
func deriveProviderKeys(mnemonic string, account, index uint32) (*providerKeys, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic: checksum failed")
	}
	coinType := sdk.GetConfig().GetCoinType()

	accountPath := hd.CreateHDPath(coinType, account, index)
	derived, err := hd.Secp256k1.Derive()(mnemonic, "", accountPath.String())
	if err != nil {
		return nil, fmt.Errorf("failed to derive account key: %w", err)
	}
	priv := hd.Secp256k1.Generate()(derived)

	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, err
	}
	master, ch := hd.ComputeMastersFromSeed(seed)
	signingPath := hd.NewParams(44, coinType, account, true, index)
	signingSeed, err := hd.DerivePrivateKeyForPath(master, ch, signingPath.String())
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	signer := ed25519.NewKeyFromSeed(signingSeed)

	return &providerKeys{
		Address:    sdk.AccAddress(priv.PubKey().Address()).String(),
		SigningKey: signer.Public().(ed25519.PublicKey),
		signer:     signer,
	}, nil
}

func newMnemonic(words int) (string, error) {
	// 12 words = 128 bits, 24 words = 256 bits
	var entropySize int
	switch words {
	case 12:
		entropySize = 128 / 8
	case 24:
		entropySize = 256 / 8
	default:
		return "", fmt.Errorf("mnemonic length must be 12 or 24 words")
	}
	entropy := make([]byte, entropySize)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("failed to generate secure entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

func normalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(mnemonic), " ")
}

// readMnemonic takes the mnemonic from --mnemonic-file, or prompts on stdin.
func readMnemonic(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString(flagMnemonicFile); path != "" {
		bz, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read mnemonic: %w", err)
		}
		return normalizeMnemonic(string(bz)), nil
	}
	buf := bufio.NewReader(cmd.InOrStdin())
	mnemonic, err := input.GetString("Enter your bip39 mnemonic", buf)
	if err != nil {
		return "", fmt.Errorf("failed to read mnemonic: %w", err)
	}
	return normalizeMnemonic(mnemonic), nil
}

func derivationFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32(flagAccountIndex, 0, "account number for HD derivation")
	cmd.Flags().Uint32(flagIndex, 0, "address index number for HD derivation")
}

func keysFromCmd(cmd *cobra.Command, mnemonic string) (*providerKeys, error) {
	account, _ := cmd.Flags().GetUint32(flagAccountIndex)
	index, _ := cmd.Flags().GetUint32(flagIndex)
	return deriveProviderKeys(mnemonic, account, index)
}

// KeysCmd groups provider key generation and recovery.
func KeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Generate or recover provider keys from a BIP39 mnemonic",
		Long: `Keys derives the two keys a provider uses from one BIP39 mnemonic: the
account address that authenticates API calls, and the ed25519 key that signs
proof commitments. The signing key's public half is what gets registered with
the provider stake.`,
	}

	cmd.AddCommand(addKeyCmd(), recoverKeyCmd())
	return cmd
}

func addKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Generate a new mnemonic and derive provider keys",
		Long: `Generate a new mnemonic using secure random entropy and print the derived
address and signing key.

WARNING: Keep your mnemonic phrase in a secure location. Anyone with access to
it can act as your provider and sign proofs in your name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			words, _ := cmd.Flags().GetInt(flagMnemonicLength)
			mnemonic, err := newMnemonic(words)
			if err != nil {
				return err
			}
			keys, err := keysFromCmd(cmd, mnemonic)
			if err != nil {
				return err
			}
			if noBackup, _ := cmd.Flags().GetBool(flagNoBackup); !noBackup {
				keys.Mnemonic = mnemonic
			}
			return printJSON(cmd, keys)
		},
	}

	cmd.Flags().Int(flagMnemonicLength, 24, "mnemonic length (12 or 24 words)")
	cmd.Flags().Bool(flagNoBackup, false, "do not print the mnemonic (WARNING: not recommended)")
	derivationFlags(cmd)
	return cmd
}

func recoverKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Derive provider keys from an existing mnemonic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mnemonic, err := readMnemonic(cmd)
			if err != nil {
				return err
			}
			if n := len(strings.Fields(mnemonic)); n != 12 && n != 24 {
				return fmt.Errorf("invalid mnemonic length: expected 12 or 24 words, got %d", n)
			}
			keys, err := keysFromCmd(cmd, mnemonic)
			if err != nil {
				return err
			}
			return printJSON(cmd, keys)
		},
	}

	cmd.Flags().String(flagMnemonicFile, "", "read the mnemonic from this file instead of stdin")
	derivationFlags(cmd)
	return cmd
}

// signedProof is ready to submit as a proof request body once result_ref is
// filled in.
type signedProof struct {
	Payload     []byte            `json:"payload"`
	Commitments types.Commitments `json:"commitments"`
	Provider    string            `json:"provider"`
}

// SignProofCmd signs a commitments document with the provider's signing key.
func SignProofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign-proof [commitments-file]",
		Short: "Sign proof commitments with the provider signing key",
		Long: `Sign the capability, input and output commitments of a proof. The
commitments file holds {"capability", "input", "output"} as base64 encoded
32 byte digests. The printed payload is the signature to submit as the proof
payload when the market requires signed proofs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bz, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read commitments: %w", err)
			}
			var commitments types.Commitments
			if err := json.Unmarshal(bz, &commitments); err != nil {
				return fmt.Errorf("failed to parse commitments: %w", err)
			}
			if err := commitments.Validate(); err != nil {
				return err
			}

			mnemonic, err := readMnemonic(cmd)
			if err != nil {
				return err
			}
			keys, err := keysFromCmd(cmd, mnemonic)
			if err != nil {
				return err
			}
			return printJSON(cmd, signedProof{
				Payload:     ed25519.Sign(keys.signer, commitments.Bytes()),
				Commitments: commitments,
				Provider:    keys.Address,
			})
		},
	}

	cmd.Flags().String(flagMnemonicFile, "", "read the mnemonic from this file instead of stdin")
	derivationFlags(cmd)
	return cmd
}
