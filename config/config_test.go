package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hyc.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[pool]
owner = "owner.near"
percent_fee = 500

[commitments]
height = 8

[pool.risk]
"shady.near" = 9
`)
	cfg, err := ReadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "owner.near", cfg.Pool.Owner)
	require.Equal(t, uint64(500), cfg.Pool.PercentFee)
	require.Equal(t, uint8(9), cfg.Pool.Risk["shady.near"])
	require.Equal(t, uint32(8), cfg.Commitments.Height)
	require.Equal(t, uint32(20), cfg.Commitments.RootWindow)
	require.Equal(t, DefaultZeroValue, cfg.Whitelist.ZeroValue)
	require.Equal(t, DisbursementSync, cfg.Disbursement.Mode)
	require.NoError(t, cfg.Validate())

	deposit, err := cfg.DepositValue()
	require.NoError(t, err)
	require.Equal(t, "10000000000000000000000000", deposit.String())
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing owner", func(c *Config) { c.Pool.Owner = "" }},
		{"zero deposit", func(c *Config) { c.Pool.DepositValue = "0" }},
		{"garbage deposit", func(c *Config) { c.Pool.DepositValue = "ten" }},
		{"bad zero value", func(c *Config) { c.Whitelist.ZeroValue = "0xzz" }},
		{"fee rate at 100%", func(c *Config) { c.Pool.PercentFee = FeeDivisor }},
		{"zero height", func(c *Config) { c.Commitments.Height = 0 }},
		{"height above 32", func(c *Config) { c.Whitelist.Height = 33 }},
		{"zero window", func(c *Config) { c.Commitments.RootWindow = 0 }},
		{"zero value outside field", func(c *Config) {
			c.Commitments.ZeroValue = "21888242871839275222246405745257275088548364400416034343698204186575808495617"
		}},
		{"unknown mode", func(c *Config) { c.Disbursement.Mode = "carrier-pigeon" }},
		{"queue without redis", func(c *Config) { c.Disbursement.Mode = DisbursementQueue }},
		{"no workers", func(c *Config) { c.Disbursement.Workers = 0 }},
		{"redis without url", func(c *Config) { c.Redis.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pool.Owner = "owner.near"
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestTreeParams(t *testing.T) {
	params, err := Default().Commitments.Params()
	require.NoError(t, err)
	require.Equal(t, uint32(20), params.Height)
	require.Equal(t, DefaultZeroValue, params.ZeroValue.String())
}

func TestParseInt(t *testing.T) {
	v, err := ParseInt("0x10")
	require.NoError(t, err)
	require.Equal(t, int64(16), v.Int64())

	_, err = ParseInt("-1")
	require.Error(t, err)
	_, err = ParseInt("")
	require.Error(t, err)
	for _, s := range []string{"0b101", "0o17", "1_000", "+5", "0x"} {
		_, err = ParseInt(s)
		require.Error(t, err, s)
	}
}
