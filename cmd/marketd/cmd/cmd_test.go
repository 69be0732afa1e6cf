package cmd

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/pawmarket/api"
	"github.com/paw-chain/pawmarket/app"
	"github.com/paw-chain/pawmarket/x/market/types"
)

func testAddr(name string) string {
	initSDKConfig()
	bz := make([]byte, 20)
	copy(bz, name)
	return sdk.AccAddress(bz).String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(bytes.NewReader(nil))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func initHome(t *testing.T, extra ...string) string {
	t.Helper()
	home := t.TempDir()
	args := append([]string{"init", "--home", home, "--chain-id", "pawmarket-test"}, extra...)
	_, err := execute(t, args...)
	require.NoError(t, err)
	return home
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, dbBackendGoLevelDB, cfg.DBBackend)
	require.Equal(t, app.DefaultBlockInterval, cfg.BlockInterval)
	require.Equal(t, api.DefaultConfig().Port, cfg.API.Port)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.API.CORSOrigins)
	require.False(t, cfg.API.TLSEnabled)
	require.True(t, cfg.AuditLog)
	require.Empty(t, cfg.Postgres.URL)
	require.Equal(t, 3*app.DefaultBlockInterval, cfg.Health.MaxBlockAge)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MARKETD_API_PORT", "6100")
	t.Setenv("MARKETD_API_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARKETD_MARKET_BLOCK_INTERVAL", "250ms")
	t.Setenv("MARKETD_DB_BACKEND", "MemDB")
	t.Setenv("MARKETD_MARKET_SIGNED_PROOFS", "true")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "6100", cfg.API.Port)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.CORSOrigins)
	require.Equal(t, 250*time.Millisecond, cfg.BlockInterval)
	require.Equal(t, dbBackendMemDB, cfg.DBBackend)
	require.True(t, cfg.SignedProofs)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))

	cases := map[string]string{
		"backend":  "[db]\nbackend = \"rocksdb\"\n",
		"interval": "[market]\nblock-interval = \"0s\"\n",
		"duration": "[api]\nrequest-timeout = \"soon\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(ConfigPath(home), []byte(body), 0o644))
			_, err := LoadConfig(home)
			require.Error(t, err)
		})
	}
}

func TestInitWritesConfigAndGenesis(t *testing.T) {
	buyer := testAddr("buyer")
	guardian := testAddr("guardian")
	home := initHome(t,
		"--account", buyer+"=100",
		"--account", buyer+"=50",
		"--guardian", guardian,
	)

	doc, err := app.LoadGenesisDoc(GenesisPath(home))
	require.NoError(t, err)
	require.Equal(t, "pawmarket-test", doc.ChainID)

	ledgerGenesis, marketGenesis, err := doc.AppState.Modules()
	require.NoError(t, err)
	require.Len(t, ledgerGenesis.Balances, 1)
	require.Equal(t, buyer, ledgerGenesis.Balances[0].Address)
	require.True(t, ledgerGenesis.Balances[0].Amount.Equal(math.NewInt(150)))
	require.Contains(t, marketGenesis.Roles, types.RoleGrant{Role: types.RoleGuardian, Address: guardian})

	cfg, err := LoadConfig(home)
	require.NoError(t, err)
	require.Len(t, cfg.API.JWTSecret, 2*jwtSecretBytes)
	require.NoError(t, cfg.API.Validate())

	_, err = execute(t, "init", "--home", home)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init", "--home", home, "--overwrite", "--chain-id", "pawmarket-2")
	require.NoError(t, err)
	doc, err = app.LoadGenesisDoc(GenesisPath(home))
	require.NoError(t, err)
	require.Equal(t, "pawmarket-2", doc.ChainID)
}

func TestInitRejectsBadFlags(t *testing.T) {
	cases := [][]string{
		{"--account", "not-an-entry"},
		{"--account", "cosmos1invalid=10"},
		{"--account", testAddr("buyer") + "=-5"},
		{"--guardian", "nobody"},
		{"--jwt-secret", "short"},
	}
	for _, extra := range cases {
		args := append([]string{"init", "--home", t.TempDir()}, extra...)
		_, err := execute(t, args...)
		require.Error(t, err, "%v", extra)
	}
}

func TestTokenCmd(t *testing.T) {
	home := initHome(t)
	guardian := testAddr("guardian")

	out, err := execute(t, "token", guardian, "--home", home, "--roles", "Guardian", "--ttl", "1h")
	require.NoError(t, err)

	var resp api.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, guardian, resp.Address)
	require.Equal(t, []string{"guardian"}, resp.Roles)

	cfg, err := LoadConfig(home)
	require.NoError(t, err)
	claims, err := api.NewAuthService(cfg.API.JWTSecret).ValidateToken(resp.Token)
	require.NoError(t, err)
	require.Equal(t, guardian, claims.Address)

	_, err = execute(t, "token", guardian, "--home", home, "--roles", "overlord")
	require.Error(t, err)

	_, err = execute(t, "token", guardian, "--home", t.TempDir())
	require.ErrorContains(t, err, "jwt-secret")
}

func TestProviderKeyDerivation(t *testing.T) {
	initSDKConfig()
	mnemonic, err := newMnemonic(24)
	require.NoError(t, err)

	a, err := deriveProviderKeys(mnemonic, 0, 0)
	require.NoError(t, err)
	b, err := deriveProviderKeys(mnemonic, 0, 0)
	require.NoError(t, err)
	require.Equal(t, a.Address, b.Address)
	require.Equal(t, a.SigningKey, b.SigningKey)
	require.Len(t, a.SigningKey, ed25519.PublicKeySize)

	other, err := deriveProviderKeys(mnemonic, 0, 1)
	require.NoError(t, err)
	require.NotEqual(t, a.Address, other.Address)
	require.NotEqual(t, a.SigningKey, other.SigningKey)

	_, err = deriveProviderKeys("not a mnemonic", 0, 0)
	require.Error(t, err)

	_, err = newMnemonic(15)
	require.Error(t, err)
}

func TestKeysAndSignProof(t *testing.T) {
	out, err := execute(t, "keys", "add", "--mnemonic-length", "12")
	require.NoError(t, err)
	var added providerKeys
	require.NoError(t, json.Unmarshal([]byte(out), &added))
	require.NotEmpty(t, added.Mnemonic)

	dir := t.TempDir()
	mnemonicFile := filepath.Join(dir, "mnemonic")
	require.NoError(t, os.WriteFile(mnemonicFile, []byte(added.Mnemonic+"\n"), 0o600))

	out, err = execute(t, "keys", "recover", "--mnemonic-file", mnemonicFile)
	require.NoError(t, err)
	var recovered providerKeys
	require.NoError(t, json.Unmarshal([]byte(out), &recovered))
	require.Equal(t, added.Address, recovered.Address)
	require.Equal(t, added.SigningKey, recovered.SigningKey)
	require.Empty(t, recovered.Mnemonic)

	commitments := types.Commitments{
		Capability: bytes.Repeat([]byte{1}, types.CommitmentSize),
		Input:      bytes.Repeat([]byte{2}, types.CommitmentSize),
		Output:     bytes.Repeat([]byte{3}, types.CommitmentSize),
	}
	bz, err := json.Marshal(commitments)
	require.NoError(t, err)
	commitmentsFile := filepath.Join(dir, "commitments.json")
	require.NoError(t, os.WriteFile(commitmentsFile, bz, 0o600))

	out, err = execute(t, "sign-proof", commitmentsFile, "--mnemonic-file", mnemonicFile)
	require.NoError(t, err)
	var signed signedProof
	require.NoError(t, json.Unmarshal([]byte(out), &signed))
	require.Equal(t, added.Address, signed.Provider)
	require.True(t, ed25519.Verify(added.SigningKey, commitments.Bytes(), signed.Payload))

	require.NoError(t, os.WriteFile(commitmentsFile, []byte(`{"capability":"AQ=="}`), 0o600))
	_, err = execute(t, "sign-proof", commitmentsFile, "--mnemonic-file", mnemonicFile)
	require.Error(t, err)
}

func TestExportAndCheck(t *testing.T) {
	t.Setenv("MARKETD_DB_BACKEND", dbBackendMemDB)
	t.Setenv("MARKETD_AUDIT_LOG", "false")
	buyer := testAddr("buyer")
	home := initHome(t, "--account", buyer+"=1000")

	out, err := execute(t, "export", "--home", home)
	require.NoError(t, err)
	var doc app.GenesisDoc
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Equal(t, "pawmarket-test", doc.ChainID)
	require.NoError(t, doc.Validate())

	exported := filepath.Join(t.TempDir(), "exported.json")
	_, err = execute(t, "export", "--home", home, "--output-document", exported)
	require.NoError(t, err)
	_, err = app.LoadGenesisDoc(exported)
	require.NoError(t, err)

	out, err = execute(t, "check", "--home", home)
	require.NoError(t, err)
	var result types.Reconciliation
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Empty(t, result.Mismatches)

	_, err = execute(t, "check", "--home", t.TempDir())
	require.Error(t, err)
}

func TestRunBlocks(t *testing.T) {
	t.Setenv("MARKETD_DB_BACKEND", dbBackendMemDB)
	home := initHome(t)
	cfg, err := LoadConfig(home)
	require.NoError(t, err)

	n, err := openNode(context.Background(), log.NewNopLogger(), cfg, false)
	require.NoError(t, err)
	defer n.close(log.NewNopLogger())
	start, _ := n.app.LastBlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runBlocks(ctx, log.NewNopLogger(), n.app, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		height, _ := n.app.LastBlock()
		return height >= start+3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	logger.Debug("hello", "k", "v")
	require.Contains(t, buf.String(), `"message":"hello"`)

	_, err = newLogger(&buf, "loud", "plain")
	require.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	require.Error(t, err)
}
