package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultExplorerURL is the Etherscan multichain API, selected per chain by chainid.
const DefaultExplorerURL = "https://api.etherscan.io/v2"

type knownChain struct {
	env     string
	chainID int
}

// chain name -> RPC environment variable and chain id
var knownChains = map[string]knownChain{
	"mainnet":        {"MAINNET_RPC", 1},
	"bsc":            {"BSC_RPC", 56},
	"poly":           {"POLYGON_RPC", 137},
	"polyzk":         {"POLYGON_ZK_RPC", 1101},
	"cardona.polyzk": {"CARDONA_POLY_ZK_RPC", 2442},
	"base":           {"BASE_RPC", 8453},
	"arbi":           {"ARBITRUM_RPC", 42161},
	"nova.arbi":      {"NOVA_ARBITRUM_RPC", 42170},
	"linea":          {"LINEA_RPC", 59144},
	"ftm":            {"FANTOM_RPC", 250},
	"blast":          {"BLAST_RPC", 81457},
	"optim":          {"OPTIMISTIC_RPC", 10},
	"avax":           {"AVAX_RPC", 43114},
	"bttc":           {"BTTC_RPC", 199},
	"celo":           {"CELO_RPC", 42220},
	"cronos":         {"CRONOS_RPC", 25},
	"frax":           {"FRAX_RPC", 252},
	"gno":            {"GNOSIS_RPC", 100},
	"kroma":          {"KROMA_RPC", 255},
	"mantle":         {"MANTLE_RPC", 5000},
	"moonbeam":       {"MOONBEAM_RPC", 1284},
	"moonriver":      {"MOONRIVER_RPC", 1285},
	"opbnb":          {"OPBNB_RPC", 204},
	"scroll":         {"SCROLL_RPC", 534352},
	"taiko":          {"TAIKO_RPC", 167000},
	"wemix":          {"WEMIX_RPC", 1111},
	"era.zksync":     {"ZKSYNC_ERA_RPC", 324},
	"xai":            {"XAI_RPC", 660279},
}

// LoadEnv loads .env style files into the process environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func rpcEnvName(chainName string) string {
	if known, ok := knownChains[chainName]; ok {
		return known.env
	}
	name := strings.ToUpper(chainName)
	name = strings.NewReplacer(".", "_", "-", "_").Replace(name)
	return name + "_RPC"
}

// RPCFromEnv returns the RPC URL configured in the environment for chainName.
func RPCFromEnv(chainName string) string {
	return strings.TrimSpace(os.Getenv(rpcEnvName(chainName)))
}
