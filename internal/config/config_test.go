package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SynergiaOS/SolanaSniper/internal/domain"
)

const validYAML = `
bot:
  name: sniperbot
  dry_run: true
  update_interval_ms: 500
solana:
  rpc_url: https://api.mainnet-beta.solana.com
  commitment: confirmed
  timeout_seconds: 10
exchanges:
  raydium:
    enabled: true
    api_url: https://api.raydium.io
    rate_limit_per_second: 5
strategies:
  pumpfun_sniping:
    enabled: true
    confidence_threshold: 0.75
    cooldown_seconds: 300
risk_management:
  global_max_exposure: 5000
  max_daily_loss: 500
  max_drawdown: 0.15
  position_sizing_method: percentage
  max_exposure_per_token_pct: 0.1
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Bot.DryRun)
	assert.Equal(t, 500, cfg.Bot.UpdateIntervalMs)
	assert.Equal(t, 0.15, cfg.Risk.MaxDrawdown)
	assert.Equal(t, 5000.0, cfg.Risk.GlobalMaxExposure)
	assert.Equal(t, 300, cfg.Strategies["pumpfun_sniping"].CooldownSeconds)
	// Defaults survive partial files.
	assert.Equal(t, 3, cfg.Aggregator.MaxRetries)
	assert.Equal(t, 30, cfg.MEV.BundleTimeoutSeconds)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfigInvalid, domain.CodeOf(err))
}

func TestLoad_BadCommitment(t *testing.T) {
	body := `
bot:
  dry_run: true
solana:
  rpc_url: https://api.mainnet-beta.solana.com
  commitment: eventually
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfigInvalid, domain.CodeOf(err))
}

func TestLoad_LiveWithoutKeyMaterial(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "")
	body := `
bot:
  dry_run: false
  paper_trading: false
solana:
  rpc_url: https://api.mainnet-beta.solana.com
`
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Equal(t, domain.CodeKeyMaterialMissing, domain.CodeOf(err))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEY", "base58secret")
	t.Setenv("HUB_PATH", "/tmp/hubdata")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "base58secret", cfg.WalletPrivateKey)
	assert.Equal(t, "/tmp/hubdata", cfg.Hub.Path)
}

func TestValidate_MEVRequiresRelay(t *testing.T) {
	cfg := defaultConfig()
	cfg.Solana.RPCURL = "https://rpc"
	cfg.Bot.DryRun = true
	cfg.MEV.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfigInvalid, domain.CodeOf(err))

	cfg.MEV.RelayURL = "https://mainnet.block-engine.jito.wtf/api/v1"
	cfg.MEV.TipAccounts = []string{"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"}
	assert.NoError(t, cfg.Validate())
}
