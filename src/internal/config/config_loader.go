package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ChainConfig struct {
	Name     string   `yaml:"name"`
	ChainID  int      `yaml:"chain_id"`
	RPCURLs  []string `yaml:"rpc_urls"`
	Explorer Explorer `yaml:"explorer"`
}

type Explorer struct {
	APIKey  string   `yaml:"api_key"`
	APIKeys []string `yaml:"api_keys"`
	BaseURL string   `yaml:"base_url"`
	// RateLimit is the number of explorer requests per second, zero means unlimited.
	RateLimit int `yaml:"rate_limit"`
}

type SolcConfig struct {
	Remappings []string `yaml:"remappings"`
	Binary     string   `yaml:"binary"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AppConfig struct {
	Chains   map[string]ChainConfig `yaml:"chains"`
	Solc     SolcConfig             `yaml:"solc"`
	Database DatabaseConfig         `yaml:"database"`
}

// LoadConfig reads settings.yaml from path, or from the first default location
// that exists when path is empty. A missing file yields an empty configuration, so
// that a run can be configured from the environment alone.
func LoadConfig(path string) (*AppConfig, error) {
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return &AppConfig{Chains: map[string]ChainConfig{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*AppConfig, error) {
	var config AppConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}
	if config.Chains == nil {
		config.Chains = map[string]ChainConfig{}
	}
	return &config, nil
}

func findConfigFile() string {
	possiblePaths := []string{
		"config/settings.yaml",
		"settings.yaml",
		"src/config/settings.yaml",
		"../config/settings.yaml",
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// GetChainConfig returns the settings of chainName merged with the environment:
// the chain's RPC variable is tried first and ETHERSCAN_API_KEY is added to the
// explorer keys. Known chains get their chain id and the multichain explorer.
func (c *AppConfig) GetChainConfig(chainName string) (*ChainConfig, error) {
	chainName = strings.TrimSpace(chainName)
	chain, exists := c.Chains[chainName]
	envURL := RPCFromEnv(chainName)
	known, isKnown := knownChains[chainName]
	if !exists && envURL == "" && !isKnown {
		return nil, fmt.Errorf("unsupported chain: %s", chainName)
	}

	if chain.Name == "" {
		chain.Name = chainName
	}
	if chain.ChainID == 0 && isKnown {
		chain.ChainID = known.chainID
	}
	urls := make([]string, 0, len(chain.RPCURLs)+1)
	if envURL != "" {
		urls = append(urls, envURL)
	}
	for _, u := range chain.RPCURLs {
		if u = strings.TrimSpace(u); u != "" && u != envURL {
			urls = append(urls, u)
		}
	}
	chain.RPCURLs = urls
	if len(chain.RPCURLs) == 0 {
		return nil, fmt.Errorf("no RPC URL configured for chain %s (set %s or rpc_urls)", chainName, rpcEnvName(chainName))
	}

	if key := strings.TrimSpace(os.Getenv("ETHERSCAN_API_KEY")); key != "" {
		chain.Explorer.APIKeys = append(chain.Explorer.APIKeys, key)
	}
	if chain.Explorer.BaseURL == "" {
		chain.Explorer.BaseURL = DefaultExplorerURL
	}
	return &chain, nil
}

func GetConfigDir(path string) string {
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return "config"
	}
	return filepath.Dir(path)
}
