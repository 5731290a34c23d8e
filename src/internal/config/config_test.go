package config

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsYAML = `
chains:
  mainnet:
    chain_id: 1
    rpc_urls:
      - https://rpc-a.example
      - https://rpc-b.example
    explorer:
      api_key: fallback
      api_keys: [k1, k2]
  devnet:
    rpc_urls: [http://127.0.0.1:8545]
solc:
  remappings:
    - "@oz/=lib/openzeppelin/"
database:
  driver: sqlite
  dsn: results/runs.db
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(settingsYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.Chains, 2)
	assert.Equal(t, []string{"@oz/=lib/openzeppelin/"}, cfg.Solc.Remappings)
	assert.Equal(t, DatabaseConfig{Driver: "sqlite", DSN: "results/runs.db"}, cfg.Database)
}

func TestGetChainConfigMergesEnvironment(t *testing.T) {
	t.Setenv("MAINNET_RPC", "https://env.example")
	t.Setenv("ETHERSCAN_API_KEY", "envkey")
	cfg, err := ParseConfig([]byte(settingsYAML))
	require.NoError(t, err)

	chain, err := cfg.GetChainConfig("mainnet")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://env.example", "https://rpc-a.example", "https://rpc-b.example"}, chain.RPCURLs)
	assert.Equal(t, []string{"k1", "k2", "envkey"}, chain.Explorer.APIKeys)
	assert.Equal(t, DefaultExplorerURL, chain.Explorer.BaseURL)
	assert.Equal(t, 1, chain.ChainID)
}

func TestGetChainConfigFromEnvOnly(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "")
	t.Setenv("ARBITRUM_RPC", "https://arb.example")
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)

	chain, err := cfg.GetChainConfig("arbi")
	require.NoError(t, err)
	assert.Equal(t, "arbi", chain.Name)
	assert.Equal(t, 42161, chain.ChainID)
	assert.Equal(t, []string{"https://arb.example"}, chain.RPCURLs)
}

func TestGetChainConfigErrors(t *testing.T) {
	t.Setenv("BSC_RPC", "")
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)

	_, err = cfg.GetChainConfig("nochain")
	assert.ErrorContains(t, err, "unsupported chain")

	_, err = cfg.GetChainConfig("bsc")
	assert.ErrorContains(t, err, "BSC_RPC")
}

func TestRPCEnvName(t *testing.T) {
	assert.Equal(t, "ZKSYNC_ERA_RPC", rpcEnvName("era.zksync"))
	assert.Equal(t, "CARDONA_POLY_ZK_RPC", rpcEnvName("cardona.polyzk"))
	assert.Equal(t, "MY_CHAIN_RPC", rpcEnvName("my-chain"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PERMSCAN_TEST_VALUE=from-file\n"), 0644))
	t.Setenv("PERMSCAN_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("PERMSCAN_TEST_VALUE"))

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PERMSCAN_TEST_VALUE"))
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "settings.yaml"))
	assert.Error(t, err)
}

func TestParseContracts(t *testing.T) {
	data := []byte(`{
		"Chain_Name": "mainnet",
		"Project_Name": "demo",
		"Contracts": [
			{"name": "Vault", "address": "0x00000000000000000000000000000000000000aa"},
			{"name": "VaultProxy", "address": "0x00000000000000000000000000000000000000bb", "implementation_name": "VaultV2"}
		]
	}`)
	contracts, err := ParseContracts(data)
	require.NoError(t, err)
	assert.Equal(t, "mainnet", contracts.ChainName)
	assert.Equal(t, "demo", contracts.ProjectName)
	require.Len(t, contracts.Contracts, 2)
	assert.Equal(t, "VaultV2", contracts.Contracts[1].ImplementationName)
}

func TestParseContractsRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"no chain":    `{"Project_Name":"p","Contracts":[{"name":"A","address":"0x00000000000000000000000000000000000000aa"}]}`,
		"no project":  `{"Chain_Name":"c","Contracts":[{"name":"A","address":"0x00000000000000000000000000000000000000aa"}]}`,
		"empty list":  `{"Chain_Name":"c","Project_Name":"p","Contracts":[]}`,
		"bad address": `{"Chain_Name":"c","Project_Name":"p","Contracts":[{"name":"A","address":"0x12"}]}`,
		"not json":    `{`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseContracts([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadContractsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Chain_Name":"bsc","Project_Name":"p","Contracts":[{"name":"A","address":"0x00000000000000000000000000000000000000aa"}]}`), 0644))

	contracts, err := LoadContracts(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "bsc", contracts.ChainName)
}

func TestParseBlock(t *testing.T) {
	for in, want := range map[string]*big.Int{
		"latest":    nil,
		"":          nil,
		"123":       big.NewInt(123),
		"0x10":      big.NewInt(16),
		"earliest":  big.NewInt(int64(rpc.EarliestBlockNumber)),
		"pending":   big.NewInt(int64(rpc.PendingBlockNumber)),
		"safe":      big.NewInt(int64(rpc.SafeBlockNumber)),
		"finalized": big.NewInt(int64(rpc.FinalizedBlockNumber)),
	} {
		got, err := ParseBlock(in)
		require.NoError(t, err, in)
		if want == nil {
			assert.Nil(t, got, in)
			continue
		}
		assert.Equal(t, 0, want.Cmp(got), in)
	}

	_, err := ParseBlock("yesterday")
	assert.Error(t, err)
	_, err = ParseBlock("-5")
	assert.Error(t, err)
}

func TestAPIKeyManager(t *testing.T) {
	assert.Nil(t, NewAPIKeyManager(nil, ""))

	m := NewAPIKeyManager([]string{"a", " a ", "", "b"}, "a")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.GetKeyCount())
	first := m.GetNextKey()
	second := m.GetNextKey()
	assert.NotEqual(t, first, second)
	assert.Contains(t, []string{"a", "b"}, m.GetRandomKey())

	fallback := Explorer{APIKey: "only"}.KeyManager()
	assert.True(t, fallback.HasKeys())
	assert.Equal(t, "only", fallback.GetRandomKey())
}

type fakeClient struct {
	mu        sync.Mutex
	healthErr error
	errs      []error
	word      []byte
	calls     int
	closed    bool
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	return 1, f.healthErr
}

func (f *fakeClient) StorageAt(ctx context.Context, account common.Address, key common.Hash, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.word, nil
}

func (f *fakeClient) Close() { f.closed = true }

func noSleep(sleeps *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
}

func TestStorageAtFailsOver(t *testing.T) {
	bad := &fakeClient{errs: []error{errors.New("boom")}}
	good := &fakeClient{word: common.LeftPadBytes([]byte{7}, 32)}
	m, err := NewRPCManagerWithClients("mainnet", []string{"a", "b"}, []StorageClient{bad, good}, time.Second)
	require.NoError(t, err)
	var sleeps []time.Duration
	m.SetSleep(noSleep(&sleeps))

	word, err := m.StorageAt(context.Background(), common.Address{}, common.Hash{}, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(7), word[31])
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeps)
	assert.Equal(t, "b", m.GetCurrentURL())
}

func TestStorageAtGivesUpAfterThreeAttempts(t *testing.T) {
	fail := errors.New("down")
	only := &fakeClient{errs: []error{fail, fail, fail, fail}}
	m, err := NewRPCManagerWithClients("mainnet", []string{"a"}, []StorageClient{only}, time.Second)
	require.NoError(t, err)
	var sleeps []time.Duration
	m.SetSleep(noSleep(&sleeps))

	_, err = m.StorageAt(context.Background(), common.Address{}, common.Hash{}, big.NewInt(10))
	require.ErrorIs(t, err, fail)
	assert.Equal(t, 3, only.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps)
}

func TestGetClientSkipsUnhealthy(t *testing.T) {
	sick := &fakeClient{healthErr: errors.New("sick")}
	well := &fakeClient{}
	m, err := NewRPCManagerWithClients("mainnet", []string{"a", "b"}, []StorageClient{sick, well}, time.Second)
	require.NoError(t, err)

	c, err := m.GetClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, well, c)

	m.Close()
	assert.True(t, sick.closed)
	assert.True(t, well.closed)
}

func TestGetClientAllUnavailable(t *testing.T) {
	sick := &fakeClient{healthErr: errors.New("sick")}
	m, err := NewRPCManagerWithClients("mainnet", []string{"a"}, []StorageClient{sick}, time.Second)
	require.NoError(t, err)

	_, err = m.GetClient(context.Background())
	assert.ErrorContains(t, err, "unavailable")
}

func TestOpenDatabaseSQLite(t *testing.T) {
	db, err := OpenDatabase(DatabaseConfig{DSN: filepath.Join(t.TempDir(), "nested", "runs.db")})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
	require.NoError(t, sqlDB.Close())

	_, err = OpenDatabase(DatabaseConfig{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported")
	_, err = OpenDatabase(DatabaseConfig{})
	assert.Error(t, err)
}
