package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
)

// ScanConfiguration holds the options of one run, as collected by the CLI.
type ScanConfiguration struct {
	ContractsFile string
	SettingsFile  string
	Chain         string
	Block         string
	Output        string

	Address        string
	Name           string
	Implementation string
	Project        string

	MarkdownDir string
	ExportDir   string
	MetricsFile string
	Database    DatabaseConfig

	Proxy   string
	Timeout time.Duration
	Verbose bool
}

func DefaultScanConfiguration() ScanConfiguration {
	return ScanConfiguration{
		Block:   "latest",
		Output:  "permissions.json",
		Timeout: 30 * time.Second,
	}
}

// ParseBlock converts a CLI block argument. "latest" and the empty string yield nil.
// Decimal and 0x-hex numbers and the tags earliest, pending, safe and finalized
// are accepted. Tags map to the negative rpc.BlockNumber constants, which ethclient
// sends back as the tag.
func ParseBlock(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "latest" {
		return nil, nil
	}
	if n, ok := new(big.Int).SetString(s, 10); ok {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("invalid block %q: negative", s)
		}
		return n, nil
	}
	quoted, _ := json.Marshal(s)
	var bn rpc.BlockNumber
	if err := bn.UnmarshalJSON(quoted); err != nil {
		return nil, fmt.Errorf("invalid block %q: %w", s, err)
	}
	if bn == rpc.LatestBlockNumber {
		return nil, nil
	}
	return big.NewInt(bn.Int64()), nil
}
