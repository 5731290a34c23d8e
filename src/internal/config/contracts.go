package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// ContractEntry is one deployment to analyze. ImplementationName names the logic
// contract when Address is a proxy.
type ContractEntry struct {
	Name               string `json:"name"`
	Address            string `json:"address"`
	ImplementationName string `json:"implementation_name,omitempty"`
}

type ContractsFile struct {
	ChainName   string          `json:"Chain_Name"`
	ProjectName string          `json:"Project_Name"`
	Contracts   []ContractEntry `json:"Contracts"`
}

// LoadContracts reads a contracts file from a local path or any afs URL.
func LoadContracts(ctx context.Context, location string) (*ContractsFile, error) {
	data, err := afs.New().DownloadWithURL(ctx, url.Normalize(location, file.Scheme))
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts file %s: %w", location, err)
	}
	return ParseContracts(data)
}

func ParseContracts(data []byte) (*ContractsFile, error) {
	var contracts ContractsFile
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("failed to parse contracts file: %w", err)
	}
	if err := contracts.Validate(); err != nil {
		return nil, err
	}
	return &contracts, nil
}

func (c *ContractsFile) Validate() error {
	if strings.TrimSpace(c.ChainName) == "" {
		return fmt.Errorf("contracts file: Chain_Name is required")
	}
	if strings.TrimSpace(c.ProjectName) == "" {
		return fmt.Errorf("contracts file: Project_Name is required")
	}
	if len(c.Contracts) == 0 {
		return fmt.Errorf("contracts file: no contracts listed")
	}
	for i, entry := range c.Contracts {
		if strings.TrimSpace(entry.Name) == "" {
			return fmt.Errorf("contracts file: entry %d has no name", i)
		}
		if !common.IsHexAddress(entry.Address) {
			return fmt.Errorf("contracts file: entry %s has invalid address %q", entry.Name, entry.Address)
		}
	}
	return nil
}

// Single builds a one-entry contracts file from command line values.
func Single(chain, project, name, address, implementation string) (*ContractsFile, error) {
	contracts := &ContractsFile{
		ChainName:   chain,
		ProjectName: project,
		Contracts: []ContractEntry{{
			Name:               name,
			Address:            address,
			ImplementationName: implementation,
		}},
	}
	if err := contracts.Validate(); err != nil {
		return nil, err
	}
	return contracts, nil
}
