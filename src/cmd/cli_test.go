package cmd

import (
	"bytes"
	"context"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VectorBits/permscan/src/internal/config"
	"github.com/VectorBits/permscan/src/internal/scanner"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := ParseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "contracts.json", cfg.ContractsFile)
	assert.Equal(t, "latest", cfg.Block)
	assert.Equal(t, "permissions.json", cfg.Output)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.False(t, cfg.Verbose)
}

func TestParseFlagsSingleTarget(t *testing.T) {
	cfg, err := ParseFlags([]string{
		"-addr", testAddress, "-name", "Proxy", "-impl", "VaultV2", "-chain", "mainnet",
		"-block", "0x10", "-md", "reports", "-db", "data/history.db", "-v",
	})
	require.NoError(t, err)
	assert.Empty(t, cfg.ContractsFile)
	assert.Equal(t, testAddress, cfg.Address)
	assert.Equal(t, "VaultV2", cfg.Implementation)
	assert.Equal(t, "0x10", cfg.Block)
	assert.Equal(t, "reports", cfg.MarkdownDir)
	assert.Equal(t, "data/history.db", cfg.DBDSN)
	assert.True(t, cfg.Verbose)
}

func TestParseFlagsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-nope"}},
		{"positional", []string{"extra"}},
		{"bad address", []string{"-addr", "0x123", "-name", "A", "-chain", "mainnet"}},
		{"addr without name", []string{"-addr", testAddress, "-chain", "mainnet"}},
		{"addr without chain", []string{"-addr", testAddress, "-name", "A"}},
		{"name without addr", []string{"-name", "A"}},
		{"bad block", []string{"-block", "tomorrow"}},
		{"empty output", []string{"-o", ""}},
		{"empty contracts", []string{"-config", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFlags(tt.args)
			require.Error(t, err)
			assert.ErrorIs(t, err, scanner.ErrConfiguration)
		})
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := ParseFlags([]string{"-block", "--help"})
	assert.ErrorIs(t, err, flag.ErrHelp)

	_, err = ParseFlags([]string{"-h"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestHelpTopic(t *testing.T) {
	topic, ok := helpTopic([]string{"-db", "--help"})
	assert.True(t, ok)
	assert.Equal(t, "db", topic)

	topic, ok = helpTopic([]string{"--help"})
	assert.True(t, ok)
	assert.Empty(t, topic)

	_, ok = helpTopic([]string{"-v"})
	assert.False(t, ok)
}

func TestShowHelpTopics(t *testing.T) {
	var buf bytes.Buffer
	showHelp(&buf, "block")
	assert.Contains(t, buf.String(), "finalized")

	buf.Reset()
	showHelp(&buf, "config")
	assert.Contains(t, buf.String(), "Chain_Name")

	buf.Reset()
	showHelp(&buf, "unknown")
	assert.Contains(t, buf.String(), "USAGE:")
}

func TestMergeConfigs(t *testing.T) {
	app := &config.AppConfig{Database: config.DatabaseConfig{Driver: "postgres", DSN: "host=db"}}

	cfg := &CLIConfig{ContractsFile: "c.json", Block: "123", Output: "out.json", MetricsFile: "m.prom"}
	sc := cfg.MergeConfigs(app)
	assert.Equal(t, "c.json", sc.ContractsFile)
	assert.Equal(t, "123", sc.Block)
	assert.Equal(t, "out.json", sc.Output)
	assert.Equal(t, "m.prom", sc.MetricsFile)
	assert.Equal(t, "postgres", sc.Database.Driver)
	assert.Equal(t, "host=db", sc.Database.DSN)
	assert.Equal(t, 30*time.Second, sc.Timeout)

	cfg.DBDSN = "local.db"
	cfg.DBDriver = "sqlite"
	sc = cfg.MergeConfigs(app)
	assert.Equal(t, "sqlite", sc.Database.Driver)
	assert.Equal(t, "local.db", sc.Database.DSN)

	sc = (&CLIConfig{}).MergeConfigs(nil)
	assert.Equal(t, "latest", sc.Block)
	assert.Equal(t, "permissions.json", sc.Output)
}

func TestExecuteScanConfigurationErrors(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "")
	t.Setenv("MAINNET_RPC", "http://127.0.0.1:1")
	app := &config.AppConfig{Chains: map[string]config.ChainConfig{}}

	tests := []struct {
		name string
		sc   config.ScanConfiguration
	}{
		{"missing contracts file", config.ScanConfiguration{ContractsFile: t.TempDir() + "/missing.json", Block: "latest"}},
		{"unknown chain", config.ScanConfiguration{Address: testAddress, Name: "Vault", Chain: "nosuchchain", Block: "latest"}},
		{"bad block", config.ScanConfiguration{Address: testAddress, Name: "Vault", Chain: "mainnet", Block: "soon"}},
		{"no explorer key", config.ScanConfiguration{Address: testAddress, Name: "Vault", Chain: "mainnet", Block: "latest"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExecuteScan(context.Background(), tt.sc, app)
			require.Error(t, err)
			assert.ErrorIs(t, err, scanner.ErrConfiguration)
		})
	}
}

func TestLoadContractsSingle(t *testing.T) {
	contracts, err := loadContracts(context.Background(), config.ScanConfiguration{
		Address: testAddress, Name: "Vault", Chain: "mainnet",
	})
	require.NoError(t, err)
	assert.Equal(t, "Vault", contracts.ProjectName)
	assert.Equal(t, "mainnet", contracts.ChainName)
	require.Len(t, contracts.Contracts, 1)
	assert.Equal(t, testAddress, contracts.Contracts[0].Address)
}
